package service

import (
	"context"
	"fmt"

	infmysql "lotto-server/internal/infra/mysql"
	"lotto-server/internal/lottery"
	"lotto-server/internal/metrics"
	"lotto-server/internal/model"
	"lotto-server/internal/state"
)

// ResetResult 重开回合结果
type ResetResult struct {
	PrevRound uint64 `json:"prev_round"`
	NewRound  uint64 `json:"new_round"`
}

// ResetService 结束已完成的回合并开启下一回合
// 仅允许对已完成回合执行；旧回合行保留为历史，新回合插入新行。
func ResetService(ctx context.Context, operator, traceID string) (res *ResetResult, err error) {
	defer func() {
		if err != nil {
			metrics.RecordReset("fail")
		} else {
			metrics.RecordReset("success")
		}
	}()

	fmt.Printf("[Reset] 收到重开回合请求: operator=%s, trace=%s\n", operator, traceID)

	db := infmysql.SQLX()

	// 演示模式：内存核心直通
	if db == nil {
		prev := Kernel().Status().Round
		newRound, kerr := Kernel().Reset()
		if kerr != nil {
			return nil, kerr
		}
		metrics.SetRoundState(state.StateOpen)
		metrics.SetRoundParticipants(0)
		return &ResetResult{PrevRound: prev, NewRound: newRound}, nil
	}

	txCtx, cancel := context.WithTimeout(ctx, defaultTxTimeout)
	defer cancel()

	tx, err := db.BeginTxx(txCtx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	round, err := model.GetCurrentRoundForUpdate(txCtx, tx)
	if err != nil {
		return nil, err
	}
	if round.IsComplete != 1 {
		return nil, lottery.ErrNotComplete
	}
	newRound := round.RoundNumber + 1

	if ierr := model.InsertNextRound(txCtx, tx, newRound, traceID); ierr != nil {
		return nil, ierr
	}
	if oerr := model.CreateOutbox(txCtx, tx, "round_reset", fmt.Sprintf("%d", round.RoundNumber), map[string]interface{}{
		"round":     round.RoundNumber,
		"new_round": newRound,
		"winner":    round.Winner,
		"trace_id":  traceID,
	}); oerr != nil {
		return nil, oerr
	}
	if oerr := model.CreateOutbox(txCtx, tx, "round_started", fmt.Sprintf("%d", newRound), map[string]interface{}{
		"round":    newRound,
		"trace_id": traceID,
	}); oerr != nil {
		return nil, oerr
	}
	audit := &model.LotteryEventAudit{
		RoundNumber: round.RoundNumber,
		EventType:   model.AuditEvtReset,
		PrevState:   state.StateComplete,
		NextState:   state.StateOpen,
		Operator:    operator,
		Source:      "api",
		Payload:     fmt.Sprintf(`{"new_round":%d}`, newRound),
		TraceID:     traceID,
	}
	if aerr := audit.Insert(txCtx, tx); aerr != nil {
		return nil, aerr
	}

	if cerr := tx.Commit(); cerr != nil {
		return nil, cerr
	}
	committed = true

	metrics.SetCurrentRound(newRound)
	metrics.SetRoundState(state.StateOpen)
	metrics.SetRoundParticipants(0)
	fmt.Printf("[Reset] 重开回合成功: prev=%d, new=%d\n", round.RoundNumber, newRound)
	return &ResetResult{PrevRound: round.RoundNumber, NewRound: newRound}, nil
}
