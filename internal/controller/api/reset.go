package api

import (
	"errors"

	helper "lotto-server/internal/common/helper"
	"lotto-server/internal/common/response"
	"lotto-server/internal/lottery"
	"lotto-server/internal/service"

	beego "github.com/beego/beego/v2/server/web"
)

type ResetController struct{ beego.Controller }

// Reset 处理重开回合接口：POST /api/reset
// 仅允许对已完成的回合执行；成功后开启下一回合。
func (c *ResetController) Reset() {
	rp, ok, msg := helper.ParseAndValidateReset(c.Ctx)
	traceID := helper.GetTraceID(c.Ctx)
	if !ok {
		response.BadRequest(&c.Controller, msg, traceID)
		return
	}
	operator := operatorFromCtx(&c.Controller, rp.Operator)

	out, err := service.ResetService(c.Ctx.Request.Context(), operator, traceID)
	if err != nil {
		if errors.Is(err, lottery.ErrNotComplete) {
			response.Conflict(&c.Controller, response.CodeNotComplete, traceID)
			return
		}
		response.InternalError(&c.Controller, traceID)
		return
	}

	response.Success(&c.Controller, map[string]interface{}{
		"prev_round": out.PrevRound,
		"new_round":  out.NewRound,
	}, traceID)
}
