package lottery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"lotto-server/internal/entropy"
	"lotto-server/internal/state"
)

// recordingNotifier 记录通知序列，验证"每次转换恰好一次、按序"
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) add(e string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) RoundStarted(round uint64) {
	n.add(fmt.Sprintf("round_started:%d", round))
}
func (n *recordingNotifier) ParticipantAdded(p string, round uint64) {
	n.add(fmt.Sprintf("participant_added:%s:%d", p, round))
}
func (n *recordingNotifier) SelectionRequested(id string, round uint64) {
	n.add(fmt.Sprintf("selection_requested:%s:%d", id, round))
}
func (n *recordingNotifier) WinnerSelected(w, id string, round uint64) {
	n.add(fmt.Sprintf("winner_selected:%s:%s:%d", w, id, round))
}
func (n *recordingNotifier) RoundReset(round uint64) {
	n.add(fmt.Sprintf("round_reset:%d", round))
}

func newForTest() (*RoundLottery, *entropy.MemorySource, *recordingNotifier) {
	src := entropy.NewMemorySource()
	ntf := &recordingNotifier{}
	return New(src, ntf), src, ntf
}

func TestRequestSelectionEmptyRound(t *testing.T) {
	l, _, _ := newForTest()
	if _, err := l.RequestSelection(context.Background(), "t"); !errors.Is(err, ErrNoParticipants) {
		t.Fatalf("want ErrNoParticipants, got %v", err)
	}
	if st := l.Status(); st.ParticipantCount != 0 || st.Complete || st.Winner != "" || st.Round != 1 {
		t.Fatalf("state changed by failed request: %+v", st)
	}
}

func TestDuplicateEntry(t *testing.T) {
	l, _, _ := newForTest()
	if err := l.Enter("alice"); err != nil {
		t.Fatalf("first enter: %v", err)
	}
	if err := l.Enter("alice"); !errors.Is(err, ErrDuplicateEntry) {
		t.Fatalf("want ErrDuplicateEntry, got %v", err)
	}
	if st := l.Status(); st.ParticipantCount != 1 {
		t.Fatalf("participant count = %d, want 1", st.ParticipantCount)
	}
}

func TestUniquenessUnderRepeatedEntries(t *testing.T) {
	l, _, _ := newForTest()
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("p%d", i%10)
		err := l.Enter(id)
		if i < 10 && err != nil {
			t.Fatalf("enter %s: %v", id, err)
		}
		if i >= 10 && !errors.Is(err, ErrDuplicateEntry) {
			t.Fatalf("enter %s round-trip %d: want ErrDuplicateEntry, got %v", id, i, err)
		}
	}
	if st := l.Status(); st.ParticipantCount != 10 {
		t.Fatalf("participant count = %d, want 10", st.ParticipantCount)
	}
}

func TestFinalizeSelectsByModulo(t *testing.T) {
	l, src, _ := newForTest()
	mustEnter(t, l, "alice", "bob")

	id, err := l.RequestSelection(context.Background(), "t")
	if err != nil {
		t.Fatalf("request selection: %v", err)
	}
	src.Fulfill(id, 7)

	winner, err := l.Finalize(context.Background(), id)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	// 7 mod 2 = 1 -> bob
	if winner != "bob" {
		t.Fatalf("winner = %s, want bob", winner)
	}
	st := l.Status()
	if st.ParticipantCount != 2 || !st.Complete || st.Winner != "bob" || st.Round != 1 {
		t.Fatalf("status = %+v", st)
	}
}

func TestNoPrematureWinner(t *testing.T) {
	l, src, _ := newForTest()
	mustEnter(t, l, "alice", "bob")
	if st := l.Status(); st.Winner != "" {
		t.Fatalf("winner before request: %q", st.Winner)
	}
	id, _ := l.RequestSelection(context.Background(), "t")
	if st := l.Status(); st.Winner != "" {
		t.Fatalf("winner before fulfillment: %q", st.Winner)
	}
	// 未履约时 finalize 必须失败且不产生变更
	if _, err := l.Finalize(context.Background(), id); !errors.Is(err, ErrRandomnessNotReady) {
		t.Fatalf("want ErrRandomnessNotReady, got %v", err)
	}
	if st := l.Status(); st.Winner != "" || st.Complete {
		t.Fatalf("state changed by failed finalize: %+v", st)
	}
	src.Fulfill(id, 0)
	if _, err := l.Finalize(context.Background(), id); err != nil {
		t.Fatalf("finalize after fulfill: %v", err)
	}
}

func TestCompletionBarrier(t *testing.T) {
	l, src, _ := newForTest()
	mustEnter(t, l, "alice")
	id, _ := l.RequestSelection(context.Background(), "t")
	src.Fulfill(id, 3)
	if _, err := l.Finalize(context.Background(), id); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	before := l.Status()
	if err := l.Enter("bob"); !errors.Is(err, ErrAlreadyComplete) {
		t.Fatalf("enter after complete: want ErrAlreadyComplete, got %v", err)
	}
	if _, err := l.RequestSelection(context.Background(), "t2"); !errors.Is(err, ErrAlreadyComplete) {
		t.Fatalf("request after complete: want ErrAlreadyComplete, got %v", err)
	}
	if _, err := l.Finalize(context.Background(), id); !errors.Is(err, ErrAlreadyComplete) {
		t.Fatalf("finalize after complete: want ErrAlreadyComplete, got %v", err)
	}
	if after := l.Status(); after != before {
		t.Fatalf("state changed behind completion barrier: %+v -> %+v", before, after)
	}
}

func TestResetClearsAndAdvances(t *testing.T) {
	l, src, _ := newForTest()

	// reset 前置条件：必须已完成
	if _, err := l.Reset(); !errors.Is(err, ErrNotComplete) {
		t.Fatalf("reset before complete: want ErrNotComplete, got %v", err)
	}

	mustEnter(t, l, "alice", "bob")
	id, _ := l.RequestSelection(context.Background(), "t")
	src.Fulfill(id, 7)
	if _, err := l.Finalize(context.Background(), id); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	newRound, err := l.Reset()
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if newRound != 2 {
		t.Fatalf("new round = %d, want 2", newRound)
	}
	st := l.Status()
	if st.ParticipantCount != 0 || st.Complete || st.Winner != "" || st.Round != 2 {
		t.Fatalf("status after reset = %+v", st)
	}
	// 上一回合的参与者在新回合可以重新报名
	if err := l.Enter("alice"); err != nil {
		t.Fatalf("re-enter after reset: %v", err)
	}
}

func TestStaleRequestIDRejected(t *testing.T) {
	l, src, _ := newForTest()
	mustEnter(t, l, "alice", "bob")
	oldID, _ := l.RequestSelection(context.Background(), "t")
	src.Fulfill(oldID, 7)
	if _, err := l.Finalize(context.Background(), oldID); err != nil {
		t.Fatalf("finalize round 1: %v", err)
	}
	if _, err := l.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	mustEnter(t, l, "alice")
	if _, err := l.RequestSelection(context.Background(), "t2"); err != nil {
		t.Fatalf("request round 2: %v", err)
	}
	// 上一回合的请求ID即使已履约也必须被拒绝
	if _, err := l.Finalize(context.Background(), oldID); !errors.Is(err, ErrRequestIDMismatch) {
		t.Fatalf("stale id: want ErrRequestIDMismatch, got %v", err)
	}
}

func TestRequestSelectionOverwritesPendingID(t *testing.T) {
	l, src, _ := newForTest()
	mustEnter(t, l, "alice", "bob")

	first, err := l.RequestSelection(context.Background(), "t")
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	second, err := l.RequestSelection(context.Background(), "t")
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct request ids, got %s twice", first)
	}

	// 被覆盖的首个请求即使履约也不再被接受
	src.Fulfill(first, 1)
	if _, err := l.Finalize(context.Background(), first); !errors.Is(err, ErrRequestIDMismatch) {
		t.Fatalf("overwritten id: want ErrRequestIDMismatch, got %v", err)
	}
	src.Fulfill(second, 1)
	winner, err := l.Finalize(context.Background(), second)
	if err != nil {
		t.Fatalf("finalize with replacement id: %v", err)
	}
	if winner != "bob" {
		t.Fatalf("winner = %s, want bob", winner)
	}
}

func TestEnterAllowedWhileAwaitingRandomness(t *testing.T) {
	l, src, _ := newForTest()
	mustEnter(t, l, "alice")
	id, _ := l.RequestSelection(context.Background(), "t")

	// 请求在途期间仍允许继续报名
	if err := l.Enter("bob"); err != nil {
		t.Fatalf("enter while awaiting: %v", err)
	}
	if got := l.State(); got != state.StateAwaiting {
		t.Fatalf("state = %s, want %s", got, state.StateAwaiting)
	}

	src.Fulfill(id, 1)
	winner, err := l.Finalize(context.Background(), id)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	// 后加入者参与取模：1 mod 2 = 1 -> bob
	if winner != "bob" {
		t.Fatalf("winner = %s, want bob", winner)
	}
}

func TestWinnerMembership(t *testing.T) {
	for round := 0; round < 20; round++ {
		l, src, _ := newForTest()
		n := round%5 + 1
		entered := make(map[string]bool, n)
		for i := 0; i < n; i++ {
			id := fmt.Sprintf("p%d", i)
			mustEnter(t, l, id)
			entered[id] = true
		}
		reqID, err := l.RequestSelection(context.Background(), "t")
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		src.Fulfill(reqID, uint64(round)*2654435761)
		winner, err := l.Finalize(context.Background(), reqID)
		if err != nil {
			t.Fatalf("finalize: %v", err)
		}
		if !entered[winner] {
			t.Fatalf("winner %s not among participants", winner)
		}
	}
}

func TestNotificationSequence(t *testing.T) {
	l, src, ntf := newForTest()
	mustEnter(t, l, "alice", "bob")
	id, _ := l.RequestSelection(context.Background(), "t")
	src.Fulfill(id, 7)
	if _, err := l.Finalize(context.Background(), id); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, err := l.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	want := []string{
		"round_started:1",
		"participant_added:alice:1",
		"participant_added:bob:1",
		"selection_requested:" + id + ":1",
		"winner_selected:bob:" + id + ":1",
		"round_reset:2",
	}
	if len(ntf.events) != len(want) {
		t.Fatalf("events = %v, want %v", ntf.events, want)
	}
	for i := range want {
		if ntf.events[i] != want[i] {
			t.Fatalf("event[%d] = %s, want %s", i, ntf.events[i], want[i])
		}
	}
}

func TestConcurrentEnter(t *testing.T) {
	l, _, _ := newForTest()
	var wg sync.WaitGroup
	const workers = 8
	const perWorker = 50
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				// 一半ID跨协程重复，验证并发下仍无重复入选
				_ = l.Enter(fmt.Sprintf("p%d", (w*perWorker+i)%200))
			}
		}(w)
	}
	wg.Wait()
	if st := l.Status(); st.ParticipantCount != 200 {
		t.Fatalf("participant count = %d, want 200", st.ParticipantCount)
	}
}

func TestRestore(t *testing.T) {
	l, _, _ := newForTest()
	l.Restore(5, []string{"alice", "bob", "carol"}, "req-9", "", false)

	st := l.Status()
	if st.Round != 5 || st.ParticipantCount != 3 || st.Complete {
		t.Fatalf("status after restore = %+v", st)
	}
	if err := l.Enter("alice"); !errors.Is(err, ErrDuplicateEntry) {
		t.Fatalf("restored participant set lost: %v", err)
	}
	if _, err := l.Finalize(context.Background(), "req-1"); !errors.Is(err, ErrRequestIDMismatch) {
		t.Fatalf("restored pending id lost: %v", err)
	}
}

func mustEnter(t *testing.T, l *RoundLottery, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if err := l.Enter(id); err != nil {
			t.Fatalf("enter %s: %v", id, err)
		}
	}
}
