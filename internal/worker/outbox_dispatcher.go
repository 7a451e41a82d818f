package worker

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	rmq "github.com/apache/rocketmq-clients/golang/v5"
	"github.com/apache/rocketmq-clients/golang/v5/credentials"

	"lotto-server/common/logger"
	"lotto-server/internal/config"
	infmysql "lotto-server/internal/infra/mysql"
	infmq "lotto-server/internal/infra/rocketmq"
	"lotto-server/internal/metrics"
	"lotto-server/internal/model"

	"go.uber.org/zap"
)

// StartOutboxDispatcher 启动 Outbox 分发器，支持通过 ctx 优雅退出
// 事务内落库的回合生命周期事件由这里异步投递到 MQ；
// 需要同时满足：MQ 已启用、数据库已配置、功能开关 outbox_dispatcher 打开。
func StartOutboxDispatcher(ctx context.Context, wg *sync.WaitGroup) {
	if !config.GetFeatureFlag("outbox_dispatcher") {
		return
	}
	if infmysql.SQLX() == nil || !infmq.Enabled() {
		return
	}
	wg.Add(1)
	pub := infmq.PublisherInstance()
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer wg.Done()

		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				batch := int(config.GetThreshold("outbox_batch_size", 100))
				c, cancel := context.WithTimeout(ctx, 2*time.Second)
				rows, err := model.ListOutboxPending(c, infmysql.SQLX(), batch)
				cancel()
				if err != nil {
					logger.Warn("outbox: list pending failed", zap.Error(err))
					continue
				}
				metrics.SetOutboxPending(len(rows))
				for _, r := range rows {
					topic := infmq.TopicName(r.Topic)
					if err := pub.Publish(topic, []byte(r.Payload)); err != nil {
						metrics.RecordOutboxPublish(r.Topic, "fail")
						_ = model.MarkOutboxFailed(ctx, infmysql.SQLX(), r.ID, truncateErr(err))
						continue
					}
					metrics.RecordOutboxPublish(r.Topic, "success")
					if err := model.MarkOutboxSent(ctx, infmysql.SQLX(), r.ID); err != nil {
						logger.Warn("outbox: mark sent failed", zap.Int64("id", r.ID), zap.Error(err))
					}
				}
			}
		}
	}()
}

func truncateErr(err error) string {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	if len(b) > 240 {
		return string(b[:240])
	}
	return string(b)
}

// StartInboxConsumer 启动 RocketMQ v5 SimpleConsumer，把回合生命周期消息
// 可靠落库至 inbox 表（message_id 去重），供下游对账与回放。
func StartInboxConsumer(ctx context.Context, wg *sync.WaitGroup) {
	cfg := config.GetCurrent()
	if cfg == nil || cfg.RocketMQ.NameServer == "" || infmysql.SQLX() == nil {
		return
	}
	// Ensure RocketMQ SDK logs go to console instead of /logs
	rmq.ResetLogger()

	endpoint := infmq.SanitizeEndpoint(cfg.RocketMQ.NameServer)
	group := cfg.RocketMQ.ConsumerGroup
	if group == "" {
		logger.Warn("[mq] consumer not started: empty consumer_group")
		return
	}
	ak := strings.TrimSpace(cfg.RocketMQ.AccessKey)
	sk := strings.TrimSpace(cfg.RocketMQ.SecretKey)
	if ak == "" || sk == "" {
		logger.Warn("[mq] consumer not started: missing access/secret key")
		return
	}

	rcfg := &rmq.Config{Endpoint: endpoint, ConsumerGroup: group}
	rcfg.Credentials = &credentials.SessionCredentials{AccessKey: ak, AccessSecret: sk}

	// 订阅全部回合生命周期主题
	subs := map[string]*rmq.FilterExpression{}
	for _, t := range []string{"round_started", "participant_added", "selection_requested", "winner_selected", "round_reset"} {
		subs[infmq.TopicName(t)] = rmq.SUB_ALL
	}

	awaitDuration := 5 * time.Second
	maxMessageNum := int32(16)
	invisibleDuration := 20 * time.Second

	// 带重试启动，避免容器刚启动未就绪导致一次性失败
	var sc rmq.SimpleConsumer
	var err error
	for i := 0; i < 6; i++ {
		sc, err = rmq.NewSimpleConsumer(rcfg,
			rmq.WithAwaitDuration(awaitDuration),
			rmq.WithSubscriptionExpressions(subs),
		)
		if err == nil {
			if e := sc.Start(); e == nil {
				break
			} else {
				err = e
			}
		}
		logger.Warn("[mq] simple consumer start retry", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(3 * time.Second)
	}
	if err != nil {
		logger.Error("[mq] start simple consumer failed", zap.Error(err))
		return
	}
	logger.Info("[mq] inbox consumer started", zap.String("group", group))

	wg.Add(1)

	go func() {
		defer wg.Done()

		defer sc.GracefulStop()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				mvs, err := sc.Receive(ctx, maxMessageNum, invisibleDuration)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					logger.Warn("[mq] receive error", zap.Error(err))
					continue
				}
				for _, mv := range mvs {
					id := mv.GetMessageId()
					topic := mv.GetTopic()
					body := mv.GetBody()
					if err := model.UpsertInbox(ctx, infmysql.SQLX(), id, topic, string(body), time.Now().UnixMilli()); err != nil {
						logger.Warn("[mq] upsert inbox failed", zap.String("id", id), zap.String("topic", topic), zap.Error(err))
						continue
					}
					var payload map[string]any
					if err := json.Unmarshal(body, &payload); err == nil {
						if w, ok := payload["winner"].(string); ok && w != "" {
							round, _ := payload["round"].(float64)
							logger.Info("[mq] consumed winner event", zap.Uint64("round", uint64(round)), zap.String("winner", w))
						}
					}
					if err := sc.Ack(ctx, mv); err != nil {
						logger.Warn("[mq] ack failed", zap.String("id", id), zap.Error(err))
					}
				}
			}
		}
	}()
}
