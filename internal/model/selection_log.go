package model

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// SelectionLog 对应 selection_log 表（开奖日志）
// round_number 上有唯一索引，finalize 的第二重幂等保护：
// 重复 finalize 在插入时触发唯一键冲突，由调用方识别并按已完成处理。
type SelectionLog struct {
	ID          int64  `db:"id"`
	RoundNumber uint64 `db:"round_number"`
	RequestID   string `db:"request_id"`
	RandomValue uint64 `db:"random_value"`
	WinnerIndex int    `db:"winner_index"`
	Winner      string `db:"winner"`
	Operator    string `db:"operator"`
	TraceID     string `db:"trace_id"`
	CreatedAt   int64  `db:"created_at"`
}

// Insert 插入一条开奖日志
func (s *SelectionLog) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	now := time.Now().UnixMilli()
	sqlStr := "INSERT INTO selection_log (round_number, request_id, random_value, winner_index, winner, operator, trace_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)"
	_, err := exec.ExecContext(ctx, sqlStr, s.RoundNumber, s.RequestID, s.RandomValue, s.WinnerIndex, s.Winner, s.Operator, s.TraceID, now)
	return err
}

// GetByRound 查询某回合的开奖日志（历史回放用）
func GetSelectionLogByRound(ctx context.Context, exec sqlx.ExtContext, round uint64) (*SelectionLog, error) {
	sqlStr := `SELECT id, round_number, request_id, random_value, winner_index, winner, operator, trace_id, created_at
		FROM selection_log WHERE round_number = ?`
	var s SelectionLog
	if err := sqlx.GetContext(ctx, exec, &s, sqlStr, round); err != nil {
		return nil, err
	}
	return &s, nil
}
