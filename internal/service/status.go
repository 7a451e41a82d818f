package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	infmysql "lotto-server/internal/infra/mysql"
	infrds "lotto-server/internal/infra/redis"
	"lotto-server/internal/model"
)

// ErrRoundNotFound 查询的回合不存在
var ErrRoundNotFound = errors.New("round not found")

// StatusView 当前回合状态视图
type StatusView struct {
	Round            uint64 `json:"round"`
	State            string `json:"state"`
	ParticipantCount int    `json:"participant_count"`
	PendingRequestID string `json:"pending_request_id,omitempty"`
	Winner           string `json:"winner,omitempty"`
	Complete         bool   `json:"complete"`
}

// RoundHistory 历史回合视图（含开奖明细）
type RoundHistory struct {
	Round            uint64 `json:"round"`
	State            string `json:"state"`
	ParticipantCount int    `json:"participant_count"`
	Winner           string `json:"winner,omitempty"`
	WinnerIndex      int    `json:"winner_index,omitempty"`
	RandomValue      uint64 `json:"random_value,omitempty"`
	RequestID        string `json:"request_id,omitempty"`
	Complete         bool   `json:"complete"`
}

// StatusService 返回当前回合状态
// 数据库配置时以数据库为准（无锁读取），否则读内存核心。
func StatusService(ctx context.Context) (*StatusView, error) {
	db := infmysql.SQLX()
	if db == nil {
		st := Kernel().Status()
		return &StatusView{
			Round:            st.Round,
			State:            Kernel().State(),
			ParticipantCount: st.ParticipantCount,
			Winner:           st.Winner,
			Complete:         st.Complete,
		}, nil
	}

	round, err := model.GetCurrentRound(ctx, db)
	if err != nil {
		return nil, err
	}
	view := &StatusView{
		Round:            round.RoundNumber,
		State:            statusCodeToState(round.Status),
		ParticipantCount: round.ParticipantCount,
		PendingRequestID: round.PendingRequestID,
		Winner:           round.Winner,
		Complete:         round.IsComplete == 1,
	}
	cacheRoundStatus(view)
	return view, nil
}

// cacheRoundStatus 状态视图写入 Redis（尽力而为，供外部系统快速查询）
func cacheRoundStatus(view *StatusView) {
	rdb := infrds.Client()
	if rdb == nil || view == nil {
		return
	}
	b, err := json.Marshal(view)
	if err != nil {
		return
	}
	cctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = rdb.Set(cctx, infrds.RoundStatusKey(view.Round), string(b), roundCacheTTL).Err()
}

// RoundHistoryService 按回合号查询历史回合
// 已完成回合优先走 Redis 开奖结果缓存，未命中回源数据库。
func RoundHistoryService(ctx context.Context, roundNo uint64) (*RoundHistory, error) {
	db := infmysql.SQLX()

	// 演示模式：只有当前回合可查
	if db == nil {
		st := Kernel().Status()
		if roundNo != st.Round {
			return nil, ErrRoundNotFound
		}
		return &RoundHistory{
			Round:            st.Round,
			State:            Kernel().State(),
			ParticipantCount: st.ParticipantCount,
			Winner:           st.Winner,
			Complete:         st.Complete,
		}, nil
	}

	// 缓存快路径：开奖结果缓存命中时补齐明细
	if rdb := infrds.Client(); rdb != nil {
		if cached, cerr := rdb.Get(ctx, infrds.RoundResultKey(roundNo)).Result(); cerr == nil && cached != "" {
			var fr FinalizeResult
			if jerr := json.Unmarshal([]byte(cached), &fr); jerr == nil && fr.Round == roundNo {
				if snap, serr := model.GetRoundSnapshot(ctx, db, roundNo); serr == nil {
					return &RoundHistory{
						Round:            roundNo,
						State:            statusCodeToState(snap.Status),
						ParticipantCount: snap.ParticipantCount,
						Winner:           fr.Winner,
						WinnerIndex:      fr.WinnerIndex,
						RandomValue:      fr.RandomValue,
						RequestID:        fr.RequestID,
						Complete:         snap.IsComplete == 1,
					}, nil
				}
			}
		}
	}

	snap, err := model.GetRoundSnapshot(ctx, db, roundNo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoundNotFound
		}
		return nil, err
	}
	hist := &RoundHistory{
		Round:            snap.RoundNumber,
		State:            statusCodeToState(snap.Status),
		ParticipantCount: snap.ParticipantCount,
		Winner:           snap.Winner,
		Complete:         snap.IsComplete == 1,
	}
	if hist.Complete {
		if sel, serr := model.GetSelectionLogByRound(ctx, db, roundNo); serr == nil {
			hist.WinnerIndex = sel.WinnerIndex
			hist.RandomValue = sel.RandomValue
			hist.RequestID = sel.RequestID
		}
	}
	return hist, nil
}
