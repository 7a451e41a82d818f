package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lotto-server/common/helper"
	"lotto-server/common/logger"
	"lotto-server/internal/config"
	"lotto-server/internal/entropy"
	infmysql "lotto-server/internal/infra/mysql"
	infrds "lotto-server/internal/infra/redis"
	"lotto-server/internal/lottery"
	"lotto-server/internal/metrics"
	"lotto-server/internal/model"
	"lotto-server/internal/state"

	"go.uber.org/zap"
)

// SelectionResult 申请开奖结果
type SelectionResult struct {
	Round     uint64 `json:"round"`
	RequestID string `json:"request_id"`
	Tag       string `json:"tag"`
}

// FinalizeResult 开奖结果
type FinalizeResult struct {
	Round       uint64 `json:"round"`
	Winner      string `json:"winner"`
	WinnerIndex int    `json:"winner_index"`
	RandomValue uint64 `json:"random_value"`
	RequestID   string `json:"request_id"`
}

// RequestSelectionService 向熵源申请随机数并登记请求ID
// 重复申请会覆盖在途请求ID：旧请求即使被履约也无法再用于开奖。
// 熵源调用放在事务之外，避免持有行锁期间等待外部接口；
// 事务内二次校验，校验失败时已发出的请求作废（有TTL，无需清理）。
func RequestSelectionService(ctx context.Context, tag, paymentProof, operator, traceID string) (res *SelectionResult, err error) {
	defer func() {
		if err != nil {
			metrics.RecordSelection("fail")
		} else {
			metrics.RecordSelection("success")
		}
	}()

	fmt.Printf("[Selection] 收到申请开奖请求: tag=%s, operator=%s, trace=%s\n", tag, operator, traceID)

	// 费用前置校验（配置了 min_fee 时强制）：熵源请求的付费凭证不足则拒绝
	if cfg := config.GetCurrent(); cfg != nil && cfg.Entropy.MinFee != "" {
		min, ok := helper.ParseAmount(cfg.Entropy.MinFee)
		if ok {
			fee, feeOK := helper.ParseAmount(paymentProof)
			if !feeOK || fee.LessThan(min) {
				fmt.Printf("[Selection] 付费凭证不足: proof=%s, min=%s\n", paymentProof, cfg.Entropy.MinFee)
				return nil, ErrFeeTooLow
			}
		}
	}

	db := infmysql.SQLX()

	// 演示模式：内存核心直通
	if db == nil {
		st := Kernel().Status()
		if tag == "" {
			tag = fmt.Sprintf("lotto-round-%d", st.Round)
		}
		id, kerr := Kernel().RequestSelection(ctx, tag)
		if kerr != nil {
			return nil, kerr
		}
		return &SelectionResult{Round: st.Round, RequestID: id, Tag: tag}, nil
	}

	// 预检（无锁读取）：明显不满足条件时不浪费熵源请求
	cur, err := model.GetCurrentRound(ctx, db)
	if err != nil {
		return nil, err
	}
	if cur.IsComplete == 1 {
		return nil, lottery.ErrAlreadyComplete
	}
	if cur.ParticipantCount == 0 {
		return nil, lottery.ErrNoParticipants
	}
	if tag == "" {
		tag = fmt.Sprintf("lotto-round-%d", cur.RoundNumber)
	}

	requestID, err := EntropySource().Request(ctx, tag)
	if err != nil {
		return nil, err
	}
	fmt.Printf("[Selection] 熵源请求已发出: round=%d, request_id=%s\n", cur.RoundNumber, requestID)

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
	// 加锁后二次校验（预检与加锁之间状态可能已变化）
	if round.IsComplete == 1 {
		return nil, lottery.ErrAlreadyComplete
	}
	if round.ParticipantCount == 0 {
		return nil, lottery.ErrNoParticipants
	}
	prevState := statusCodeToState(round.Status)

	if uerr := model.SetPendingRequest(txCtx, tx, round.RoundNumber, requestID); uerr != nil {
		return nil, uerr
	}
	if oerr := model.CreateOutbox(txCtx, tx, "selection_requested", fmt.Sprintf("%d:%s", round.RoundNumber, requestID), map[string]interface{}{
		"round":      round.RoundNumber,
		"request_id": requestID,
		"tag":        tag,
		"trace_id":   traceID,
	}); oerr != nil {
		return nil, oerr
	}
	audit := &model.LotteryEventAudit{
		RoundNumber: round.RoundNumber,
		EventType:   model.AuditEvtRequestSelection,
		PrevState:   prevState,
		NextState:   state.StateAwaiting,
		Operator:    operator,
		Source:      "api",
		Payload:     fmt.Sprintf(`{"request_id":%q,"tag":%q}`, requestID, tag),
		TraceID:     traceID,
	}
	if aerr := audit.Insert(txCtx, tx); aerr != nil {
		return nil, aerr
	}

	if cerr := tx.Commit(); cerr != nil {
		return nil, cerr
	}
	committed = true

	metrics.SetRoundState(state.StateAwaiting)
	fmt.Printf("[Selection] 申请开奖成功: round=%d, request_id=%s, tag=%s\n", round.RoundNumber, requestID, tag)
	return &SelectionResult{Round: round.RoundNumber, RequestID: requestID, Tag: tag}, nil
}

// FinalizeService 用已履约的随机值选出赢家并完成回合
// 双重幂等保护：回合完成位（FOR UPDATE 下检查）+ selection_log 唯一键。
func FinalizeService(ctx context.Context, requestID, operator, traceID string) (res *FinalizeResult, err error) {
	start := time.Now()
	defer func() {
		if err != nil {
			metrics.RecordFinalize("fail", finalizeFailReason(err), start)
		} else {
			metrics.RecordFinalize("success", "", start)
		}
	}()

	fmt.Printf("[Selection] 收到开奖请求: request_id=%s, operator=%s, trace=%s\n", requestID, operator, traceID)

	db := infmysql.SQLX()

	// 演示模式：内存核心直通
	if db == nil {
		st := Kernel().Status()
		winner, kerr := Kernel().Finalize(ctx, requestID)
		if kerr != nil {
			return nil, kerr
		}
		value, _ := EntropySource().ValueFor(ctx, requestID)
		idx := 0
		if st.ParticipantCount > 0 {
			idx = int(value % uint64(st.ParticipantCount))
		}
		metrics.SetRoundState(state.StateComplete)
		return &FinalizeResult{Round: st.Round, Winner: winner, WinnerIndex: idx, RandomValue: value, RequestID: requestID}, nil
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
	if round.IsComplete == 1 {
		return nil, lottery.ErrAlreadyComplete
	}
	if round.ParticipantCount == 0 {
		return nil, lottery.ErrNoParticipants
	}
	// 过期/他回合的请求ID一律按不匹配拒绝
	if round.PendingRequestID == "" || requestID != round.PendingRequestID {
		return nil, lottery.ErrRequestIDMismatch
	}

	src := EntropySource()
	if !src.IsFulfilled(ctx, requestID) {
		return nil, lottery.ErrRandomnessNotReady
	}
	value, err := src.ValueFor(ctx, requestID)
	if err != nil {
		if errors.Is(err, entropy.ErrNotFulfilled) {
			return nil, lottery.ErrRandomnessNotReady
		}
		return nil, err
	}

	// 赢家下标 = 随机值 mod 参与人数（报名顺序下标）
	idx := int(value % uint64(round.ParticipantCount))
	winner, err := model.GetByPosition(txCtx, tx, round.RoundNumber, idx)
	if err != nil {
		return nil, err
	}

	sel := &model.SelectionLog{
		RoundNumber: round.RoundNumber,
		RequestID:   requestID,
		RandomValue: value,
		WinnerIndex: idx,
		Winner:      winner,
		Operator:    operator,
		TraceID:     traceID,
	}
	if serr := sel.Insert(txCtx, tx); serr != nil {
		// 唯一键冲突说明该回合已开奖
		if isMySQLDuplicateKeyError(serr) {
			return nil, lottery.ErrAlreadyComplete
		}
		return nil, serr
	}
	if merr := model.MarkComplete(txCtx, tx, round.RoundNumber, winner, value); merr != nil {
		return nil, merr
	}

	if oerr := model.CreateOutbox(txCtx, tx, "winner_selected", fmt.Sprintf("%d:%s", round.RoundNumber, requestID), map[string]interface{}{
		"round":        round.RoundNumber,
		"winner":       winner,
		"winner_index": idx,
		"random_value": value,
		"request_id":   requestID,
		"trace_id":     traceID,
	}); oerr != nil {
		return nil, oerr
	}
	audit := &model.LotteryEventAudit{
		RoundNumber: round.RoundNumber,
		EventType:   model.AuditEvtFinalize,
		PrevState:   statusCodeToState(round.Status),
		NextState:   state.StateComplete,
		Operator:    operator,
		Source:      "api",
		Payload:     fmt.Sprintf(`{"request_id":%q,"winner_index":%d}`, requestID, idx),
		TraceID:     traceID,
	}
	if aerr := audit.Insert(txCtx, tx); aerr != nil {
		return nil, aerr
	}

	if cerr := tx.Commit(); cerr != nil {
		return nil, cerr
	}
	committed = true

	res = &FinalizeResult{Round: round.RoundNumber, Winner: winner, WinnerIndex: idx, RandomValue: value, RequestID: requestID}
	metrics.SetRoundState(state.StateComplete)
	metrics.RecordEntropyLatency(round.UpdatedAt)
	cacheRoundResult(res)
	logger.InfoCtx(ctx, "round finalized",
		zap.Uint64("round", round.RoundNumber),
		zap.String("winner", winner),
		zap.Int("winner_index", idx),
		zap.String("request_id", requestID))
	fmt.Printf("[Selection] 开奖成功: round=%d, winner=%s, index=%d\n", round.RoundNumber, winner, idx)
	return res, nil
}

// cacheRoundResult 开奖结果写入 Redis 缓存（尽力而为）
func cacheRoundResult(res *FinalizeResult) {
	rdb := infrds.Client()
	if rdb == nil || res == nil {
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		return
	}
	cctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = rdb.Set(cctx, infrds.RoundResultKey(res.Round), string(b), roundCacheTTL).Err()
}

// finalizeFailReason 把开奖失败映射为指标 reason 标签
func finalizeFailReason(err error) string {
	switch {
	case errors.Is(err, lottery.ErrRandomnessNotReady):
		return "not_ready"
	case errors.Is(err, lottery.ErrRequestIDMismatch):
		return "mismatch"
	case errors.Is(err, lottery.ErrAlreadyComplete):
		return "complete"
	default:
		return "system"
	}
}
