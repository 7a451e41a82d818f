package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"lotto-server/common"
	"lotto-server/common/logger"
	"lotto-server/internal/config"
	infmysql "lotto-server/internal/infra/mysql"
	infrds "lotto-server/internal/infra/redis"
	"lotto-server/internal/model"
	"lotto-server/internal/service"
	"lotto-server/internal/worker"
	"lotto-server/routers"

	beego "github.com/beego/beego/v2/server/web"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1) 配置：Nacos → etcd → 本地文件
	cfg, err := config.Load(ctx)
	if err != nil {
		common.Printf("[Boot] 配置加载失败: %v", err)
		os.Exit(1)
	}
	config.SetCurrent(cfg)

	// 2) 日志
	logger.InitLogger()
	defer logger.Sync()
	if cfg.Server.LogLevel != "" {
		logger.SetLevel(cfg.Server.LogLevel)
	}
	logger.Info("lotto-server booting",
		zap.Int("port", cfg.Server.Port),
		zap.String("entropy_mode", cfg.Entropy.Mode),
		zap.Bool("demo_mode", cfg.Auth.DemoMode))

	// 配置热更新：日志级别即时生效
	if werr := config.StartWatch(ctx, func(oldCfg, newCfg *config.Config) {
		if newCfg != nil && newCfg.Server.LogLevel != "" {
			logger.SetLevel(newCfg.Server.LogLevel)
		}
	}); werr != nil {
		logger.Warn("config watch not started", zap.Error(werr))
	}

	// 3) 存储（均可缺省：缺省时走演示模式内存核心）
	if cfg.Database.DSN != "" {
		db := common.InitDB(cfg.Database.DSN, cfg.Database.MaxIdleConns, cfg.Database.MaxOpenConns)
		infmysql.UseDB(db.DB)
	}
	infrds.Init(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)

	// 4) 回合初始化与核心回灌
	traceID := uuid.NewString()
	if sqlxDB := infmysql.SQLX(); sqlxDB != nil {
		if err := model.EnsureFirstRound(ctx, sqlxDB, traceID); err != nil {
			logger.Fatalf("ensure first round failed", zap.Error(err))
		}
	}
	if err := service.HydrateFromDB(ctx); err != nil {
		logger.Fatalf("hydrate from db failed", zap.Error(err))
	}

	// 5) 后台 worker
	var wg sync.WaitGroup
	worker.StartOutboxDispatcher(ctx, &wg)
	worker.StartInboxConsumer(ctx, &wg)
	worker.StartEntropyFulfiller(ctx, &wg)

	// 6) 路由与HTTP服务
	routers.Register()
	if cfg.Server.Port > 0 {
		beego.BConfig.Listen.HTTPPort = cfg.Server.Port
	}
	beego.BConfig.CopyRequestBody = true

	// 优雅退出：信号触发后停 worker 再退出
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutdown signal received")
		cancel()
		wg.Wait()
		logger.Sync()
		os.Exit(0)
	}()

	beego.Run()
}
