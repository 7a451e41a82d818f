package api

import (
	"errors"

	helper "lotto-server/internal/common/helper"
	"lotto-server/internal/common/response"
	"lotto-server/internal/lottery"
	"lotto-server/internal/service"

	beego "github.com/beego/beego/v2/server/web"
)

type EnterController struct{ beego.Controller }

// Enter 处理报名接口：POST /api/enter
//
// 幂等键约定：客户端生成并随请求传入，用于在网络重试/超时重发时保证
// “同一次报名只生效一次”。
//   - 同一次报名的所有重试传相同的 idempotency_key；
//   - 不同参与者/不同回合的报名必须使用不同的 key；
//   - 建议生成方式：UUID。
//
// 服务端幂等保证（多层防护）：
//  1. Redis 进行中锁（约45秒）：并发重复请求返回 202 并携带 Retry-After: 1；
//  2. MySQL 唯一键：事务内先插入 idempotency_keys，冲突则返回首次结果；
//  3. 结果缓存：首次成功结果短期缓存于 Redis，重复请求直接命中返回。
func (c *EnterController) Enter() {
	// 1) 解析入参与基本校验（service 不再重复校验）
	ep, ok, msg := helper.ParseAndValidateEnter(c.Ctx)
	traceID := helper.GetTraceID(c.Ctx)
	if !ok {
		response.BadRequest(&c.Controller, msg, traceID)
		return
	}

	// 平台信息由认证中间件注入
	if v := c.Ctx.Input.GetData("platform_id"); v != nil {
		if pid, pok := v.(int8); pok {
			ep.Platform = int(pid)
		}
	}

	out, err := service.EnterService(c.Ctx.Request.Context(), service.EnterInput{
		ParticipantID:  ep.ParticipantID,
		Platform:       ep.Platform,
		IdempotencyKey: ep.IdempotencyKey,
		TraceID:        traceID,
	})
	if err != nil {
		// 并发重复请求进行中
		if errors.Is(err, service.ErrDuplicateInFlight) {
			response.Accepted(&c.Controller, response.CodeDuplicateInFlight, "重复请求进行中，请稍后重试", traceID)
			return
		}
		// 回合已完成，不接受报名
		if errors.Is(err, lottery.ErrAlreadyComplete) {
			response.Conflict(&c.Controller, response.CodeAlreadyComplete, traceID)
			return
		}
		// 同一回合重复报名
		if errors.Is(err, lottery.ErrDuplicateEntry) {
			response.Conflict(&c.Controller, response.CodeDuplicateEntry, traceID)
			return
		}
		// 回合人数达到上限
		if errors.Is(err, service.ErrTooManyParticipants) {
			response.Conflict(&c.Controller, response.CodeInvalidState, traceID)
			return
		}
		response.InternalError(&c.Controller, traceID)
		return
	}

	response.Success(&c.Controller, map[string]interface{}{
		"round":          out.Round,
		"position":       out.Position,
		"participant_id": out.ParticipantID,
	}, traceID)
}
