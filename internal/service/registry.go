package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"lotto-server/common/logger"
	"lotto-server/internal/config"
	"lotto-server/internal/entropy"
	infmysql "lotto-server/internal/infra/mysql"
	"lotto-server/internal/lottery"
	"lotto-server/internal/metrics"
	"lotto-server/internal/model"

	"go.uber.org/zap"
)

// 进程内单例：熵源与抽奖核心
// 配置了数据库时，事务路径为权威，核心仅在启动时回灌一次用于演示/降级；
// 未配置数据库时（演示模式），全部操作直接走内存核心。
var (
	srcOnce    sync.Once
	srcGlobal  entropy.Source
	kernOnce   sync.Once
	kernGlobal *lottery.RoundLottery
)

// EntropySource 按配置选择熵源实现（memory/redis/http），默认 memory
func EntropySource() entropy.Source {
	srcOnce.Do(func() {
		mode := ""
		if cfg := config.GetCurrent(); cfg != nil {
			mode = strings.ToLower(strings.TrimSpace(cfg.Entropy.Mode))
		}
		switch mode {
		case "redis":
			srcGlobal = entropy.NewRedisSource()
		case "http":
			base := ""
			if cfg := config.GetCurrent(); cfg != nil {
				base = cfg.Entropy.OracleURL
			}
			srcGlobal = entropy.NewHTTPSource(base)
		default:
			srcGlobal = entropy.NewMemorySource()
		}
		fmt.Printf("[Registry] 熵源已初始化: mode=%s\n", mode)
	})
	return srcGlobal
}

// Kernel 返回进程内抽奖核心（懒初始化，回合1）
func Kernel() *lottery.RoundLottery {
	kernOnce.Do(func() {
		kernGlobal = lottery.New(EntropySource(), kernelNotifier{})
	})
	return kernGlobal
}

// kernelNotifier 把核心的状态转换通知落到日志与指标
type kernelNotifier struct{}

func (kernelNotifier) RoundStarted(round uint64) {
	metrics.SetCurrentRound(round)
	logger.Info("round started", zap.Uint64("round", round))
}

func (kernelNotifier) ParticipantAdded(participantID string, round uint64) {
	logger.Info("participant added",
		zap.String("participant_id", participantID),
		zap.Uint64("round", round))
}

func (kernelNotifier) SelectionRequested(requestID string, round uint64) {
	logger.Info("selection requested",
		zap.String("request_id", requestID),
		zap.Uint64("round", round))
}

func (kernelNotifier) WinnerSelected(winner, requestID string, round uint64) {
	logger.Info("winner selected",
		zap.String("winner", winner),
		zap.String("request_id", requestID),
		zap.Uint64("round", round))
}

func (kernelNotifier) RoundReset(newRound uint64) {
	metrics.SetCurrentRound(newRound)
	logger.Info("round reset", zap.Uint64("new_round", newRound))
}

// HydrateFromDB 启动时用数据库当前回合回灌内存核心
// 数据库未配置时为 no-op（演示模式从回合1开始）
func HydrateFromDB(ctx context.Context) error {
	db := infmysql.SQLX()
	if db == nil {
		return nil
	}

	round, err := model.GetCurrentRound(ctx, db)
	if err != nil {
		return fmt.Errorf("hydrate: load current round: %w", err)
	}
	participants, err := model.ListByRound(ctx, db, round.RoundNumber)
	if err != nil {
		return fmt.Errorf("hydrate: load participants: %w", err)
	}

	Kernel().Restore(round.RoundNumber, participants, round.PendingRequestID, round.Winner, round.IsComplete == 1)
	metrics.SetCurrentRound(round.RoundNumber)
	metrics.SetRoundParticipants(len(participants))
	metrics.SetRoundState(statusCodeToState(round.Status))

	fmt.Printf("[Registry] 核心已从数据库回灌: round=%d, participants=%d, pending=%s, complete=%d\n",
		round.RoundNumber, len(participants), round.PendingRequestID, round.IsComplete)
	return nil
}
