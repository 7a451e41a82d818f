package api

import (
	"errors"

	helper "lotto-server/internal/common/helper"
	"lotto-server/internal/common/response"
	"lotto-server/internal/entropy"
	"lotto-server/internal/lottery"
	"lotto-server/internal/service"

	beego "github.com/beego/beego/v2/server/web"
)

type SelectionController struct{ beego.Controller }

// operatorFromCtx 优先取认证中间件注入的操作者，其次取请求参数
func operatorFromCtx(c *beego.Controller, fallback string) string {
	if v := c.Ctx.Input.GetData("operator"); v != nil {
		if op, ok := v.(string); ok && op != "" {
			return op
		}
	}
	return fallback
}

// RequestSelection 处理申请开奖接口：POST /api/request_selection
// 向熵源申请随机数并把回合推进到 awaiting_randomness。
// 重复申请会覆盖在途请求ID（后发请求取代先发请求）。
func (c *SelectionController) RequestSelection() {
	rp, ok, msg := helper.ParseAndValidateRequestSelection(c.Ctx)
	traceID := helper.GetTraceID(c.Ctx)
	if !ok {
		response.BadRequest(&c.Controller, msg, traceID)
		return
	}
	operator := operatorFromCtx(&c.Controller, rp.Operator)

	out, err := service.RequestSelectionService(c.Ctx.Request.Context(), rp.Tag, rp.PaymentProof, operator, traceID)
	if err != nil {
		if errors.Is(err, lottery.ErrAlreadyComplete) {
			response.Conflict(&c.Controller, response.CodeAlreadyComplete, traceID)
			return
		}
		if errors.Is(err, lottery.ErrNoParticipants) {
			response.Conflict(&c.Controller, response.CodeNoParticipants, traceID)
			return
		}
		if errors.Is(err, entropy.ErrInvalidTag) {
			response.Error(&c.Controller, 400, response.CodeInvalidTag, traceID)
			return
		}
		// 付费凭证不足，无法发起熵源请求
		if errors.Is(err, service.ErrFeeTooLow) {
			response.Error(&c.Controller, 400, response.CodeFeeTooLow, traceID)
			return
		}
		// 熵源不可用：503 提示调用方稍后重试
		if errors.Is(err, entropy.ErrResourceUnavailable) {
			response.Error(&c.Controller, 503, response.CodeResourceUnavailable, traceID)
			return
		}
		response.InternalError(&c.Controller, traceID)
		return
	}

	response.Success(&c.Controller, map[string]interface{}{
		"round":      out.Round,
		"request_id": out.RequestID,
		"tag":        out.Tag,
	}, traceID)
}

// Finalize 处理开奖接口：POST /api/finalize
// 随机值尚未履约时返回 202，调用方可稍后携带相同 request_id 重试。
func (c *SelectionController) Finalize() {
	fp, ok, msg := helper.ParseAndValidateFinalize(c.Ctx)
	traceID := helper.GetTraceID(c.Ctx)
	if !ok {
		response.BadRequest(&c.Controller, msg, traceID)
		return
	}
	operator := operatorFromCtx(&c.Controller, fp.Operator)

	out, err := service.FinalizeService(c.Ctx.Request.Context(), fp.RequestID, operator, traceID)
	if err != nil {
		if errors.Is(err, lottery.ErrAlreadyComplete) {
			response.Conflict(&c.Controller, response.CodeAlreadyComplete, traceID)
			return
		}
		if errors.Is(err, lottery.ErrNoParticipants) {
			response.Conflict(&c.Controller, response.CodeNoParticipants, traceID)
			return
		}
		if errors.Is(err, lottery.ErrRequestIDMismatch) {
			response.Conflict(&c.Controller, response.CodeRequestIdMismatch, traceID)
			return
		}
		// 随机值未就绪：202 + Retry-After
		if errors.Is(err, lottery.ErrRandomnessNotReady) {
			response.Accepted(&c.Controller, response.CodeRandomnessNotReady, "随机值尚未就绪，请稍后重试", traceID)
			return
		}
		response.InternalError(&c.Controller, traceID)
		return
	}

	response.Success(&c.Controller, map[string]interface{}{
		"round":        out.Round,
		"winner":       out.Winner,
		"winner_index": out.WinnerIndex,
		"random_value": out.RandomValue,
		"request_id":   out.RequestID,
	}, traceID)
}
