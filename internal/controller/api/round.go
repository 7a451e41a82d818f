package api

import (
	"errors"
	"strconv"
	"strings"

	helper "lotto-server/internal/common/helper"
	"lotto-server/internal/common/response"
	"lotto-server/internal/service"

	beego "github.com/beego/beego/v2/server/web"
)

type RoundController struct{ beego.Controller }

// Get 处理历史回合查询：GET /api/round/:round_no
// 已完成回合返回开奖明细（随机值、赢家下标、请求ID）。
func (c *RoundController) Get() {
	traceID := helper.GetTraceID(c.Ctx)

	roundStr := strings.TrimSpace(c.Ctx.Input.Param(":round_no"))
	roundNo, err := strconv.ParseUint(roundStr, 10, 64)
	if err != nil || roundNo == 0 {
		response.BadRequest(&c.Controller, "round_no must be a positive integer", traceID)
		return
	}

	out, err := service.RoundHistoryService(c.Ctx.Request.Context(), roundNo)
	if err != nil {
		if errors.Is(err, service.ErrRoundNotFound) {
			response.NotFound(&c.Controller, "round not found", traceID)
			return
		}
		response.InternalError(&c.Controller, traceID)
		return
	}

	response.Success(&c.Controller, out, traceID)
}
