package worker

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"lotto-server/common/helper"
	"lotto-server/common/logger"
	"lotto-server/internal/config"
	"lotto-server/internal/entropy"
	"lotto-server/internal/service"

	"go.uber.org/zap"
)

// StartEntropyFulfiller 启动演示模式本地履约 worker
// 扫描未履约的随机数请求，用 crypto/rand 生成随机值并提交。
// 生产环境由外部履约方提交随机值，这个 worker 必须保持关闭；
// 需要同时满足：功能开关 entropy_fulfiller 与 entropy.fulfiller.enabled。
func StartEntropyFulfiller(ctx context.Context, wg *sync.WaitGroup) {
	cfg := config.GetCurrent()
	if cfg == nil || !cfg.Entropy.Fulfiller.Enabled {
		return
	}
	if !config.GetFeatureFlag("entropy_fulfiller") {
		return
	}

	interval := cfg.Entropy.Fulfiller.IntervalMs
	if interval <= 0 {
		interval = 500
	}
	jitter := cfg.Entropy.Fulfiller.JitterMs
	if jitter < 0 {
		jitter = 0
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("entropy fulfiller started", zap.Int("interval_ms", interval), zap.Int("jitter_ms", jitter))
		for {
			wait := time.Duration(interval) * time.Millisecond
			if jitter > 0 {
				wait += time.Duration(helper.GenerateRandNum(0, jitter)) * time.Millisecond
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
				fulfillPending(ctx)
			}
		}
	}()
}

// fulfillPending 为当前熵源的所有未履约请求生成并提交随机值
func fulfillPending(ctx context.Context) {
	switch src := service.EntropySource().(type) {
	case *entropy.MemorySource:
		for _, id := range src.Pending() {
			v, err := randomUint64()
			if err != nil {
				logger.Warn("fulfiller: random generation failed", zap.Error(err))
				return
			}
			if src.Fulfill(id, v) {
				logger.Info("fulfiller: request fulfilled", zap.String("request_id", id))
			}
		}
	case *entropy.RedisSource:
		ids, err := src.PendingRequests(ctx, 32)
		if err != nil {
			logger.Warn("fulfiller: scan pending failed", zap.Error(err))
			return
		}
		for _, id := range ids {
			v, err := randomUint64()
			if err != nil {
				logger.Warn("fulfiller: random generation failed", zap.Error(err))
				return
			}
			if err := src.CommitValue(ctx, id, v); err != nil {
				logger.Warn("fulfiller: commit value failed", zap.String("request_id", id), zap.Error(err))
				continue
			}
			logger.Info("fulfiller: request fulfilled", zap.String("request_id", id))
		}
	default:
		// http 模式由远端预言机履约，本地 worker 无事可做
	}
}

func randomUint64() (uint64, error) {
	var b [8]byte
	if _, err := cryptorand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}
