package middleware

import (
	"strings"
	"time"

	"lotto-server/common/logger"
	"lotto-server/internal/auth"
	"lotto-server/internal/common/helper"
	"lotto-server/internal/common/response"
	"lotto-server/internal/config"

	beegocontext "github.com/beego/beego/v2/server/web/context"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AdminAuthFilter 管理员认证过滤器
// 用于保护管理接口（申请开奖、开奖、重置）
// 支持两种凭证：
//  1. 运营端 JWT（Authorization: Bearer <jwt>，要求 role=admin）
//  2. 静态 Token（Authorization: Bearer <token>，优先比对 bcrypt hash，其次明文）
func AdminAuthFilter(ctx *beegocontext.Context) {
	cfg := config.GetCurrent()
	traceID := helper.GetTraceID(ctx)

	// 如果未启用管理员认证，跳过
	if cfg == nil || !cfg.Auth.Admin.Enabled {
		logger.Debug("admin auth disabled, skip", zap.String("trace_id", traceID))
		return
	}

	// 辅助函数：返回认证错误
	returnAuthError := func(code int, message string) {
		ctx.Output.SetStatus(code)
		ctx.Output.JSON(response.APIResponse{
			Code:      response.CodeUnauthorized,
			Message:   message,
			Data:      nil,
			TraceID:   traceID,
			Timestamp: time.Now().UnixMilli(),
		}, false, false)
	}

	// 提取 Authorization 头
	authHeader := strings.TrimSpace(ctx.Input.Header("Authorization"))
	if authHeader == "" {
		logger.Warn("missing admin token", zap.String("trace_id", traceID))
		returnAuthError(401, "缺少管理员认证信息")
		return
	}

	// 解析 Bearer Token
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		logger.Warn("invalid admin token format", zap.String("trace_id", traceID))
		returnAuthError(401, "无效的认证格式")
		return
	}

	token := parts[1]

	// 1. 优先尝试 JWT（运营端令牌）
	if claims, err := auth.VerifyJWTToken(ctx); err == nil {
		if claims.Role != "admin" {
			logger.Warn("operator token without admin role",
				zap.String("trace_id", traceID),
				zap.String("operator", claims.Operator),
				zap.String("role", claims.Role))
			returnAuthError(403, "权限不足")
			return
		}
		ctx.Input.SetData("is_admin", true)
		ctx.Input.SetData("operator", claims.Operator)
		logger.Debug("admin jwt authentication successful",
			zap.String("trace_id", traceID),
			zap.String("operator", claims.Operator))
		return
	}

	// 2. 静态 Token：优先 bcrypt hash 比对
	if hash := strings.TrimSpace(cfg.Auth.Admin.TokenHash); hash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err == nil {
			ctx.Input.SetData("is_admin", true)
			logger.Debug("admin authentication successful", zap.String("trace_id", traceID))
			return
		}
	}

	// 3. 明文 Token 兜底（仅演示环境）
	if cfg.Auth.Admin.Token != "" && token == cfg.Auth.Admin.Token {
		ctx.Input.SetData("is_admin", true)
		logger.Debug("admin authentication successful", zap.String("trace_id", traceID))
		return
	}

	logger.Warn("invalid admin token",
		zap.String("trace_id", traceID),
		zap.String("token_prefix", token[:min(len(token), 8)]+"..."))
	returnAuthError(401, "无效的管理员Token")
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
