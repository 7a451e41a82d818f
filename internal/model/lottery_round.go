package model

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// LotteryRound 对应 lottery_round 表
// 说明：时间为毫秒时间戳；状态采用"数值码+冗余完成位"双写
// status: 1=open 2=awaiting_randomness 3=complete
// is_complete: 0=未完成 1=已完成（防止重复 finalize）
// 每个回合一行，当前回合 = round_number 最大的一行；reset 插入新行，旧行留作历史。
type LotteryRound struct {
	ID               int64  `db:"id"`
	RoundNumber      uint64 `db:"round_number"`
	Status           int8   `db:"status"`
	ParticipantCount int    `db:"participant_count"`
	PendingRequestID string `db:"pending_request_id"` // 空串表示尚未发起请求
	RandomValue      uint64 `db:"random_value"`
	Winner           string `db:"winner"`
	IsComplete       int8   `db:"is_complete"`
	TraceID          string `db:"trace_id"`
	CreatedAt        int64  `db:"created_at"`
	UpdatedAt        int64  `db:"updated_at"`
}

// 约定的状态码映射：1=open 2=awaiting_randomness 3=complete
const (
	RoundStatusOpen     int8 = 1
	RoundStatusAwaiting int8 = 2
	RoundStatusComplete int8 = 3
)

// EnsureFirstRound 确保第1回合存在（服务启动时调用）
func EnsureFirstRound(ctx context.Context, exec sqlx.ExtContext, traceID string) error {
	var cnt int
	sqlCheck := "SELECT COUNT(1) FROM lottery_round"
	if err := sqlx.GetContext(ctx, exec, &cnt, sqlCheck); err != nil {
		return err
	}
	if cnt > 0 {
		return nil
	}

	now := time.Now().UnixMilli()
	sqlIns := "INSERT INTO lottery_round (round_number, status, participant_count, pending_request_id, random_value, winner, is_complete, trace_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	_, err := exec.ExecContext(ctx, sqlIns, 1, RoundStatusOpen, 0, "", 0, "", 0, traceID, now, now)
	return err
}

// GetCurrentRoundForUpdate 在事务中锁定并返回当前回合（round_number 最大的一行）
func GetCurrentRoundForUpdate(ctx context.Context, exec sqlx.ExtContext) (*LotteryRound, error) {
	sqlStr := `SELECT id, round_number, status, participant_count, pending_request_id,
		random_value, winner, is_complete, trace_id, created_at, updated_at
		FROM lottery_round ORDER BY round_number DESC LIMIT 1 FOR UPDATE`
	var r LotteryRound
	if err := sqlx.GetContext(ctx, exec, &r, sqlStr); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetCurrentRound 返回当前回合（无锁读取）
func GetCurrentRound(ctx context.Context, exec sqlx.ExtContext) (*LotteryRound, error) {
	sqlStr := `SELECT id, round_number, status, participant_count, pending_request_id,
		random_value, winner, is_complete, trace_id, created_at, updated_at
		FROM lottery_round ORDER BY round_number DESC LIMIT 1`
	var r LotteryRound
	if err := sqlx.GetContext(ctx, exec, &r, sqlStr); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRoundByNumber 按回合号查询（历史回放用，无锁读取）
func GetRoundByNumber(ctx context.Context, exec sqlx.ExtContext, round uint64) (*LotteryRound, error) {
	sqlStr := `SELECT id, round_number, status, participant_count, pending_request_id,
		random_value, winner, is_complete, trace_id, created_at, updated_at
		FROM lottery_round WHERE round_number = ?`
	var r LotteryRound
	if err := sqlx.GetContext(ctx, exec, &r, sqlStr, round); err != nil {
		return nil, err
	}
	return &r, nil
}

// SetParticipantCount 更新回合参与人数（enter 成功后调用）
func SetParticipantCount(ctx context.Context, exec sqlx.ExtContext, round uint64, count int) error {
	now := time.Now().UnixMilli()
	sqlStr := "UPDATE lottery_round SET participant_count = ?, updated_at = ? WHERE round_number = ?"
	_, err := exec.ExecContext(ctx, sqlStr, count, now, round)
	return err
}

// SetPendingRequest 记录在途随机数请求ID并推进到 awaiting_randomness
// 重复调用会覆盖之前的请求ID（后发请求取代在途请求）
func SetPendingRequest(ctx context.Context, exec sqlx.ExtContext, round uint64, requestID string) error {
	now := time.Now().UnixMilli()
	sqlStr := "UPDATE lottery_round SET pending_request_id = ?, status = ?, updated_at = ? WHERE round_number = ?"
	_, err := exec.ExecContext(ctx, sqlStr, requestID, RoundStatusAwaiting, now, round)
	return err
}

// MarkComplete 写入赢家并标记回合完成
func MarkComplete(ctx context.Context, exec sqlx.ExtContext, round uint64, winner string, randomValue uint64) error {
	now := time.Now().UnixMilli()
	sqlStr := "UPDATE lottery_round SET winner = ?, random_value = ?, status = ?, is_complete = 1, updated_at = ? WHERE round_number = ?"
	_, err := exec.ExecContext(ctx, sqlStr, winner, randomValue, RoundStatusComplete, now, round)
	return err
}

// InsertNextRound 插入下一回合（reset 时调用，旧回合行保留为历史）
func InsertNextRound(ctx context.Context, exec sqlx.ExtContext, round uint64, traceID string) error {
	now := time.Now().UnixMilli()
	sqlStr := "INSERT INTO lottery_round (round_number, status, participant_count, pending_request_id, random_value, winner, is_complete, trace_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	_, err := exec.ExecContext(ctx, sqlStr, round, RoundStatusOpen, 0, "", 0, "", 0, traceID, now, now)
	return err
}

// RoundSnapshot 提供 GET 接口所需的最小字段集合
type RoundSnapshot struct {
	RoundNumber      uint64 `db:"round_number"`
	Status           int8   `db:"status"`
	ParticipantCount int    `db:"participant_count"`
	PendingRequestID string `db:"pending_request_id"`
	Winner           string `db:"winner"`
	IsComplete       int8   `db:"is_complete"`
}

// GetRoundSnapshot 按回合号查询所需字段（无锁读取）
func GetRoundSnapshot(ctx context.Context, exec sqlx.ExtContext, round uint64) (*RoundSnapshot, error) {
	sqlStr := `SELECT round_number, status, participant_count, pending_request_id, winner, is_complete
		FROM lottery_round WHERE round_number = ?`
	var rs RoundSnapshot
	if err := sqlx.GetContext(ctx, exec, &rs, sqlStr, round); err != nil {
		return nil, err
	}
	return &rs, nil
}
