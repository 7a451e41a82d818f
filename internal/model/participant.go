package model

import (
	"context"
	"time"

	"lotto-server/common"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
)

// RoundParticipant 对应 round_participant 表
// 唯一索引 (round_number, participant_id) 在数据库层兜底去重；
// position 为报名顺序（0起），finalize 按 随机值 mod 人数 取该下标。
type RoundParticipant struct {
	ID            int64  `db:"id"`
	RoundNumber   uint64 `db:"round_number"`
	ParticipantID string `db:"participant_id"`
	Position      int    `db:"position"`
	TraceID       string `db:"trace_id"`
	CreatedAt     int64  `db:"created_at"`
}

// Insert 插入一条参与记录；重复报名触发唯一键冲突由调用方识别
func (p *RoundParticipant) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	now := time.Now().UnixMilli()
	sqlStr := "INSERT INTO round_participant (round_number, participant_id, position, trace_id, created_at) VALUES (?, ?, ?, ?, ?)"
	_, err := exec.ExecContext(ctx, sqlStr, p.RoundNumber, p.ParticipantID, p.Position, p.TraceID, now)
	return err
}

// CountByRoundForUpdate 在事务中统计回合参与人数（锁定相关行，position 分配用）
func CountByRoundForUpdate(ctx context.Context, exec sqlx.ExtContext, round uint64) (int, error) {
	sqlStr := "SELECT COUNT(1) FROM round_participant WHERE round_number = ? FOR UPDATE"
	var cnt int
	if err := sqlx.GetContext(ctx, exec, &cnt, sqlStr, round); err != nil {
		return 0, err
	}
	return cnt, nil
}

// GetByPosition 按 (回合, 下标) 取参与者（finalize 选取赢家用）
func GetByPosition(ctx context.Context, exec sqlx.ExtContext, round uint64, position int) (string, error) {
	sqlStr := "SELECT participant_id FROM round_participant WHERE round_number = ? AND position = ?"
	var id string
	if err := sqlx.GetContext(ctx, exec, &id, sqlStr, round, position); err != nil {
		return "", err
	}
	return id, nil
}

// GetPositionByParticipant 查询参与者在某回合的报名下标（幂等重放回填用）
func GetPositionByParticipant(ctx context.Context, exec sqlx.ExtContext, round uint64, participantID string) (int, error) {
	sqlStr := "SELECT position FROM round_participant WHERE round_number = ? AND participant_id = ?"
	var pos int
	if err := sqlx.GetContext(ctx, exec, &pos, sqlStr, round, participantID); err != nil {
		return 0, err
	}
	return pos, nil
}

// ListByRound 按报名顺序列出回合全部参与者（历史查询/核心回灌用）
func ListByRound(ctx context.Context, db *sqlx.DB, round uint64) ([]string, error) {
	var rows []struct {
		ParticipantID string `db:"participant_id"`
	}
	err := common.SelectAllCtx(ctx, &rows, common.QueryArg{
		Db:     db,
		Table:  "round_participant",
		Fields: []interface{}{"participant_id"},
		Ex:     []goqu.Expression{goqu.C("round_number").Eq(round)},
		Order:  []exp.OrderedExpression{goqu.C("position").Asc()},
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ParticipantID)
	}
	return ids, nil
}
