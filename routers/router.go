package routers

import (
	"lotto-server/internal/config"
	"lotto-server/internal/controller/api"
	"lotto-server/internal/metrics"
	"lotto-server/internal/middleware"

	beego "github.com/beego/beego/v2/server/web"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Register 注册HTTP路由与全局过滤器
// 需在配置加载完成后调用（过滤器按配置开关决定是否挂载）
func Register() {
	cfg := config.GetCurrent()

	// 全局过滤器（按执行顺序）
	// 1. Panic Recovery（最先执行，捕获所有 panic）
	beego.InsertFilter("/*", beego.BeforeRouter, middleware.RecoveryFilter)

	// 2. 请求ID注入
	beego.InsertFilter("/*", beego.BeforeRouter, middleware.RequestIDFilter)

	// 3. CORS 处理（如果启用）
	if cfg != nil && cfg.CORS.Enabled {
		beego.InsertFilter("/*", beego.BeforeExec, middleware.CORSFilter)
	}

	// 4. HTTP 指标收集
	beego.InsertFilter("/*", beego.BeforeExec, metrics.HTTPMetricsFilter)
	beego.InsertFilter("/*", beego.FinishRouter, metrics.HTTPMetricsAfter)

	// 健康检查与指标（无需认证）
	beego.Router("/healthz", &api.HealthController{}, "get:Healthz")
	beego.Router("/readyz", &api.HealthController{}, "get:Readyz")
	if cfg == nil || cfg.Observability.EnableProm {
		beego.Handler("/metrics", promhttp.Handler())
	}

	// ========== 业务 API（平台认证） ==========

	// 报名接口：平台认证（演示模式内部降级）+ 限流
	beego.InsertFilter("/api/enter", beego.BeforeExec, middleware.PlatformAuthFilter)
	if cfg != nil && cfg.RateLimit.Enabled {
		beego.InsertFilter("/api/enter", beego.BeforeExec, middleware.RateLimitFilter)
	}
	beego.Router("/api/enter", &api.EnterController{}, "post:Enter")

	// 状态与历史查询：开放读取
	beego.Router("/api/lottery/status", &api.StatusController{}, "get:Status")
	beego.Router("/api/round/:round_no", &api.RoundController{}, "get:Get")

	// ========== 管理 API（管理员认证） ==========

	// 申请开奖 / 开奖 / 重开回合
	if cfg != nil && cfg.Auth.Admin.Enabled {
		beego.InsertFilter("/api/request_selection", beego.BeforeExec, middleware.AdminAuthFilter)
		beego.InsertFilter("/api/finalize", beego.BeforeExec, middleware.AdminAuthFilter)
		beego.InsertFilter("/api/reset", beego.BeforeExec, middleware.AdminAuthFilter)
	}
	beego.Router("/api/request_selection", &api.SelectionController{}, "post:RequestSelection")
	beego.Router("/api/finalize", &api.SelectionController{}, "post:Finalize")
	beego.Router("/api/reset", &api.ResetController{}, "post:Reset")
}
