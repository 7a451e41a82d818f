package middleware

import (
	"time"

	"lotto-server/common/logger"
	"lotto-server/internal/auth"
	"lotto-server/internal/common/helper"
	"lotto-server/internal/common/response"
	"lotto-server/internal/config"

	beegocontext "github.com/beego/beego/v2/server/web/context"
	"go.uber.org/zap"
)

// PlatformAuthFilter 平台认证过滤器
// 验证接入平台的 HMAC 签名；报名参与者身份由请求体携带
func PlatformAuthFilter(ctx *beegocontext.Context) {
	cfg := config.GetCurrent()
	traceID := helper.GetTraceID(ctx)

	// 辅助函数：返回错误
	returnError := func(httpCode int, bizCode int, message string) {
		ctx.Output.SetStatus(httpCode)
		ctx.Output.JSON(response.APIResponse{
			Code:      bizCode,
			Message:   message,
			Data:      nil,
			TraceID:   traceID,
			Timestamp: time.Now().UnixMilli(),
		}, false, false)
	}

	// 演示模式：简化认证
	if cfg != nil && cfg.Auth.DemoMode {
		ctx.Input.SetData("platform_id", cfg.Auth.DemoPlatform.PlatformID)
		ctx.Input.SetData("demo_mode", true)

		logger.Debug("demo mode authentication",
			zap.String("trace_id", traceID))
		return
	}

	// 生产模式：完整的平台签名验证
	platform, err := auth.VerifyPlatformSignature(ctx)
	if err != nil {
		logger.Warn("platform authentication failed",
			zap.String("trace_id", traceID),
			zap.Error(err))

		// 根据错误类型返回不同的错误码
		switch err {
		case auth.ErrMissingAuthHeaders:
			returnError(401, response.CodeUnauthorized, "缺少认证信息")
		case auth.ErrTimestampExpired:
			returnError(401, response.CodeTimestampExpired, "时间戳已过期")
		case auth.ErrNonceReused:
			returnError(401, response.CodeNonceReused, "Nonce已被使用")
		case auth.ErrInvalidSignature:
			returnError(401, response.CodeInvalidSignature, "签名验证失败")
		case auth.ErrInvalidPlatform:
			returnError(401, response.CodeInvalidPlatform, "无效的平台")
		case auth.ErrPlatformDisabled:
			returnError(403, response.CodePlatformDisabled, "平台已禁用")
		case auth.ErrIPNotAllowed:
			returnError(403, response.CodeIPNotAllowed, "IP不在白名单")
		default:
			returnError(401, response.CodeUnauthorized, "认证失败")
		}
		return
	}

	// 将平台信息存入 context
	ctx.Input.SetData("platform", platform)
	ctx.Input.SetData("platform_id", platform.PlatformID)

	logger.Debug("platform authentication successful",
		zap.String("trace_id", traceID),
		zap.String("platform", platform.AppKey),
		zap.Int8("platform_id", platform.PlatformID))
}
