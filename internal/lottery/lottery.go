package lottery

import (
	"context"
	"errors"
	"sync"

	"lotto-server/internal/entropy"
	"lotto-server/internal/state"
)

// RoundLottery 单回合抽奖状态机（进程内核心）
// 所有可变状态归属当前回合，四个变更操作与 Status 读取都在同一把互斥锁
// 内执行，彼此可线性化；失败的操作不产生任何状态变更。
// 随机数请求的履约是带外的：RequestSelection 登记请求即返回，Finalize
// 由调用方在确认履约后显式触发，核心从不阻塞等待熵源。
type RoundLottery struct {
	mu  sync.Mutex
	src entropy.Source
	ntf Notifier

	round            uint64
	participants     []string            // 报名顺序即选取下标顺序
	participated     map[string]struct{} // O(1) 去重
	pendingRequestID string
	winner           string
	complete         bool
}

// Notifier 状态转换通知（每次转换恰好一次，仅供外部观测，核心不依赖）
type Notifier interface {
	RoundStarted(round uint64)
	ParticipantAdded(participantID string, round uint64)
	SelectionRequested(requestID string, round uint64)
	WinnerSelected(winner, requestID string, round uint64)
	RoundReset(newRound uint64)
}

// Status 回合状态快照
type Status struct {
	ParticipantCount int
	Complete         bool
	Winner           string // 未完成时为空
	Round            uint64
}

// New 创建核心并开启第1回合。ntf 可为 nil。
func New(src entropy.Source, ntf Notifier) *RoundLottery {
	l := &RoundLottery{
		src:          src,
		ntf:          ntf,
		round:        1,
		participated: make(map[string]struct{}),
	}
	if l.ntf != nil {
		l.ntf.RoundStarted(1)
	}
	return l
}

// Enter 报名当前回合
// 只要回合未完成即可报名，包括已发起随机数请求之后。此时加入者对在途
// 请求已无公平中奖机会，该行为保留为产品决策，不静默收紧。
func (l *RoundLottery) Enter(participantID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.complete {
		return ErrAlreadyComplete
	}
	if _, dup := l.participated[participantID]; dup {
		return ErrDuplicateEntry
	}
	l.participants = append(l.participants, participantID)
	l.participated[participantID] = struct{}{}
	if l.ntf != nil {
		l.ntf.ParticipantAdded(participantID, l.round)
	}
	return nil
}

// RequestSelection 向熵源发起随机数请求并登记请求ID
// finalize 之前重复调用会覆盖 pendingRequestID：后发请求取代在途请求，
// 旧请求即使被履约也无法再用于 finalize。
func (l *RoundLottery) RequestSelection(ctx context.Context, tag string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.complete {
		return "", ErrAlreadyComplete
	}
	if len(l.participants) == 0 {
		return "", ErrNoParticipants
	}
	id, err := l.src.Request(ctx, tag)
	if err != nil {
		return "", err
	}
	l.pendingRequestID = id
	if l.ntf != nil {
		l.ntf.SelectionRequested(id, l.round)
	}
	return id, nil
}

// Finalize 读取已履约的随机值并选出赢家
// 赢家下标 = 随机值 mod 参与人数。当随机值取值范围不是参与人数的整数倍
// 时取模会引入轻微偏差，这是已知且被接受的限制（如需严格均匀应改为
// 拒绝采样，本核心不提供）。
func (l *RoundLottery) Finalize(ctx context.Context, requestID string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.complete {
		return "", ErrAlreadyComplete
	}
	if len(l.participants) == 0 {
		return "", ErrNoParticipants
	}
	if requestID != l.pendingRequestID {
		return "", ErrRequestIDMismatch
	}
	if !l.src.IsFulfilled(ctx, requestID) {
		return "", ErrRandomnessNotReady
	}
	value, err := l.src.ValueFor(ctx, requestID)
	if err != nil {
		if errors.Is(err, entropy.ErrNotFulfilled) {
			return "", ErrRandomnessNotReady
		}
		return "", err
	}

	idx := value % uint64(len(l.participants))
	l.winner = l.participants[idx]
	l.complete = true
	if l.ntf != nil {
		l.ntf.WinnerSelected(l.winner, requestID, l.round)
	}
	return l.winner, nil
}

// Reset 结束已完成的回合并开启下一回合，返回新回合号
func (l *RoundLottery) Reset() (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.complete {
		return 0, ErrNotComplete
	}
	l.round++
	l.participants = nil
	l.participated = make(map[string]struct{})
	l.pendingRequestID = ""
	l.winner = ""
	l.complete = false
	if l.ntf != nil {
		l.ntf.RoundReset(l.round)
	}
	return l.round, nil
}

// Status 返回当前回合快照（无前置条件，不会失败）
func (l *RoundLottery) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{
		ParticipantCount: len(l.participants),
		Complete:         l.complete,
		Winner:           l.winner,
		Round:            l.round,
	}
}

// State 返回当前状态机状态名（open/awaiting_randomness/complete）
func (l *RoundLottery) State() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case l.complete:
		return state.StateComplete
	case l.pendingRequestID != "":
		return state.StateAwaiting
	default:
		return state.StateOpen
	}
}

// Restore 用持久化快照重建核心状态（启动回灌用，覆盖当前状态）
func (l *RoundLottery) Restore(round uint64, participants []string, pendingRequestID, winner string, complete bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.round = round
	l.participants = append([]string(nil), participants...)
	l.participated = make(map[string]struct{}, len(participants))
	for _, p := range participants {
		l.participated[p] = struct{}{}
	}
	l.pendingRequestID = pendingRequestID
	l.winner = winner
	l.complete = complete
}

// 回合操作前置条件错误定义（均为前置条件违反，失败不产生部分变更）
var (
	ErrAlreadyComplete    = errors.New("round already complete")
	ErrDuplicateEntry     = errors.New("participant already entered this round")
	ErrNoParticipants     = errors.New("no participants in round")
	ErrNotComplete        = errors.New("round not complete")
	ErrRandomnessNotReady = errors.New("randomness not fulfilled yet")
	ErrRequestIDMismatch  = errors.New("request id does not match pending request")
)
