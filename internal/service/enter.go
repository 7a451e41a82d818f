package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"lotto-server/internal/config"
	infmysql "lotto-server/internal/infra/mysql"
	infrds "lotto-server/internal/infra/redis"
	"lotto-server/internal/lottery"
	"lotto-server/internal/metrics"
	"lotto-server/internal/model"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"
)

// 释放幂等锁：仅当锁值与持有者一致时删除，避免误删他人锁
const releaseLockScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

// EnterInput 报名入参（控制器解析校验后传入）
type EnterInput struct {
	ParticipantID  string
	Platform       int
	IdempotencyKey string
	TraceID        string
}

// EnterResult 报名结果
type EnterResult struct {
	Round         uint64 `json:"round"`
	Position      int    `json:"position"`
	ParticipantID string `json:"participant_id"`
}

// EnterService 处理报名请求
// 幂等三重保护：Redis 结果缓存 → Redis 进行中锁（SETNX）→ 数据库唯一键
// 数据库配置时走事务路径（FOR UPDATE 串行化当前回合），否则走内存核心。
func EnterService(ctx context.Context, in EnterInput) (res *EnterResult, err error) {
	start := time.Now()
	defer func() {
		if err != nil {
			metrics.RecordEnter("fail", enterFailReason(err), start)
		} else {
			metrics.RecordEnter("success", "", start)
		}
	}()

	fmt.Printf("[Enter] 收到报名请求: participant=%s, idem_key=%s, platform=%d, trace=%s\n",
		in.ParticipantID, in.IdempotencyKey, in.Platform, in.TraceID)

	rdb := infrds.Client()

	// 1. 幂等快路径：结果缓存命中直接返回首个成功结果
	if rdb != nil {
		if cached, cerr := rdb.Get(ctx, infrds.IdemResultKey(in.IdempotencyKey)).Result(); cerr == nil && cached != "" {
			var prev EnterResult
			if jerr := json.Unmarshal([]byte(cached), &prev); jerr == nil {
				fmt.Printf("[Enter] 幂等结果缓存命中: idem_key=%s, round=%d\n", in.IdempotencyKey, prev.Round)
				return &prev, nil
			}
		}

		// 2. 进行中锁：吸收瞬时重复提交
		lockVal := uuid.NewString()
		ok, lerr := rdb.SetNX(ctx, infrds.IdemLockKey(in.IdempotencyKey), lockVal, idemLockTTL).Result()
		if lerr == nil && !ok {
			fmt.Printf("[Enter] 幂等锁占用中: idem_key=%s\n", in.IdempotencyKey)
			return nil, ErrDuplicateInFlight
		}
		if lerr == nil && ok {
			defer func() {
				relCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = rdb.Eval(relCtx, releaseLockScript, []string{infrds.IdemLockKey(in.IdempotencyKey)}, lockVal).Err()
			}()
		}
		// Redis 故障时降级：继续由数据库唯一键兜底
	}

	// 3. 数据库未配置：内存核心直通（演示模式）
	db := infmysql.SQLX()
	if db == nil {
		if kerr := Kernel().Enter(in.ParticipantID); kerr != nil {
			return nil, kerr
		}
		st := Kernel().Status()
		res = &EnterResult{Round: st.Round, Position: st.ParticipantCount - 1, ParticipantID: in.ParticipantID}
		metrics.SetRoundParticipants(st.ParticipantCount)
		cacheEnterResult(rdb, in.IdempotencyKey, res)
		return res, nil
	}

	// 4. 事务路径
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
	if maxP := config.GetThreshold("max_participants", 0); maxP > 0 && int64(round.ParticipantCount) >= maxP {
		fmt.Printf("[Enter] 回合人数达到上限: round=%d, count=%d, max=%d\n", round.RoundNumber, round.ParticipantCount, maxP)
		return nil, ErrTooManyParticipants
	}

	// 幂等键落库（唯一键兜底）：冲突说明同键请求已生效，回填首次结果
	idem := &model.IdempotencyKey{
		IdempotencyKey: in.IdempotencyKey,
		Purpose:        "enter",
		Ref:            fmt.Sprintf("%s@%d", in.ParticipantID, round.RoundNumber),
	}
	if ierr := idem.Insert(txCtx, tx); ierr != nil {
		if isMySQLDuplicateKeyError(ierr) {
			// 先释放行锁再查首次结果；defer 里的二次 Rollback 无害
			_ = tx.Rollback()
			return replayEnterResult(ctx, db, in)
		}
		return nil, ierr
	}

	// 报名落库：(round_number, participant_id) 唯一键兜底去重
	position := round.ParticipantCount
	p := &model.RoundParticipant{
		RoundNumber:   round.RoundNumber,
		ParticipantID: in.ParticipantID,
		Position:      position,
		TraceID:       in.TraceID,
	}
	if perr := p.Insert(txCtx, tx); perr != nil {
		if isMySQLDuplicateKeyError(perr) {
			return nil, lottery.ErrDuplicateEntry
		}
		return nil, perr
	}

	newCount := round.ParticipantCount + 1
	if uerr := model.SetParticipantCount(txCtx, tx, round.RoundNumber, newCount); uerr != nil {
		return nil, uerr
	}

	// 事务消息 + 审计
	if oerr := model.CreateOutbox(txCtx, tx, "participant_added", fmt.Sprintf("%d:%s", round.RoundNumber, in.ParticipantID), map[string]interface{}{
		"round":          round.RoundNumber,
		"participant_id": in.ParticipantID,
		"position":       position,
		"trace_id":       in.TraceID,
	}); oerr != nil {
		return nil, oerr
	}
	audit := &model.LotteryEventAudit{
		RoundNumber: round.RoundNumber,
		EventType:   model.AuditEvtEnter,
		PrevState:   statusCodeToState(round.Status),
		NextState:   statusCodeToState(round.Status),
		Operator:    in.ParticipantID,
		Source:      "api",
		Payload:     fmt.Sprintf(`{"position":%d,"platform":%d}`, position, in.Platform),
		TraceID:     in.TraceID,
	}
	if aerr := audit.Insert(txCtx, tx); aerr != nil {
		return nil, aerr
	}

	if cerr := tx.Commit(); cerr != nil {
		return nil, cerr
	}
	committed = true

	res = &EnterResult{Round: round.RoundNumber, Position: position, ParticipantID: in.ParticipantID}
	metrics.SetRoundParticipants(newCount)
	cacheEnterResult(rdb, in.IdempotencyKey, res)
	fmt.Printf("[Enter] 报名成功: participant=%s, round=%d, position=%d\n", in.ParticipantID, round.RoundNumber, position)
	return res, nil
}

// replayEnterResult 幂等键冲突时回填首次成功结果
// ref 形如 participant@round；参与者不一致说明同键被挪用，按系统错误处理。
func replayEnterResult(ctx context.Context, db *sqlx.DB, in EnterInput) (*EnterResult, error) {
	ref, err := model.SelectRefByIdemKey(ctx, db, in.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	at := strings.LastIndex(ref, "@")
	if at <= 0 {
		return nil, fmt.Errorf("malformed idempotency ref: %q", ref)
	}
	participant := ref[:at]
	round, perr := strconv.ParseUint(ref[at+1:], 10, 64)
	if perr != nil {
		return nil, fmt.Errorf("malformed idempotency ref: %q", ref)
	}
	if participant != in.ParticipantID {
		return nil, fmt.Errorf("idempotency key already used by another participant")
	}
	pos, err := model.GetPositionByParticipant(ctx, db, round, participant)
	if err != nil {
		return nil, err
	}
	fmt.Printf("[Enter] 幂等键重放: idem_key=%s, round=%d, position=%d\n", in.IdempotencyKey, round, pos)
	return &EnterResult{Round: round, Position: pos, ParticipantID: participant}, nil
}

// cacheEnterResult 成功结果写入 Redis 结果缓存（尽力而为，失败不影响主流程）
func cacheEnterResult(rdb *goredis.Client, idemKey string, res *EnterResult) {
	if rdb == nil || res == nil {
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		return
	}
	cctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = rdb.Set(cctx, infrds.IdemResultKey(idemKey), string(b), idemResultTTL).Err()
}

// enterFailReason 把报名失败映射为指标 reason 标签
func enterFailReason(err error) string {
	switch {
	case errors.Is(err, lottery.ErrDuplicateEntry), errors.Is(err, ErrDuplicateInFlight):
		return "duplicate"
	case errors.Is(err, lottery.ErrAlreadyComplete):
		return "complete"
	case errors.Is(err, ErrTooManyParticipants):
		return "limit"
	default:
		return "system"
	}
}
