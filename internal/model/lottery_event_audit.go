package model

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// LotteryEventAudit 对应 lottery_event_audit 表（状态机审计）
// event_type 采用数值枚举（1=enter 2=request_selection 3=finalize 4=reset）
// prev_state/next_state 使用字符串快照，便于直观查询
type LotteryEventAudit struct {
	ID int64 `db:"id"`
	// 回合号
	RoundNumber uint64 `db:"round_number"`
	// 事件类型（数值：1=enter 2=request_selection 3=finalize 4=reset）
	EventType int8   `db:"event_type"`
	PrevState string `db:"prev_state"`
	NextState string `db:"next_state"`
	Operator  string `db:"operator"`
	Source    string `db:"source"`
	Payload   string `db:"payload"`
	TraceID   string `db:"trace_id"`
	CreatedAt int64  `db:"created_at"`
}

// 事件类型数值枚举
const (
	AuditEvtEnter            int8 = 1
	AuditEvtRequestSelection int8 = 2
	AuditEvtFinalize         int8 = 3
	AuditEvtReset            int8 = 4
)

// Insert
func (e *LotteryEventAudit) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	now := time.Now().UnixMilli()
	sqlStr := "INSERT INTO lottery_event_audit (round_number, event_type, prev_state, next_state, operator, source, payload, trace_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"
	args := []interface{}{e.RoundNumber, e.EventType, e.PrevState, e.NextState, e.Operator, e.Source, e.Payload, e.TraceID, now}

	_, err := exec.ExecContext(ctx, sqlStr, args...)
	return err
}
