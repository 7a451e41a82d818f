package api

import (
	helper "lotto-server/internal/common/helper"
	"lotto-server/internal/common/response"
	"lotto-server/internal/service"

	beego "github.com/beego/beego/v2/server/web"
)

type StatusController struct{ beego.Controller }

// Status 处理当前回合状态查询：GET /api/lottery/status
// 无前置条件，任何状态下都可查询。
func (c *StatusController) Status() {
	traceID := helper.GetTraceID(c.Ctx)

	out, err := service.StatusService(c.Ctx.Request.Context())
	if err != nil {
		response.InternalError(&c.Controller, traceID)
		return
	}

	response.Success(&c.Controller, out, traceID)
}
