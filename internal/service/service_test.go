package service

import (
	"context"
	"errors"
	"os"
	"testing"

	"lotto-server/common/logger"
	"lotto-server/internal/config"
	"lotto-server/internal/entropy"
	"lotto-server/internal/lottery"
)

func TestMain(m *testing.M) {
	logger.InitLogger()
	os.Exit(m.Run())
}

// 未配置数据库与 Redis 时，服务层直通内存核心（演示模式），
// 这组测试覆盖该路径下四个操作的完整生命周期与拒绝语义。

func resetKernel(t *testing.T) {
	t.Helper()
	Kernel().Restore(1, nil, "", "", false)
}

func memorySource(t *testing.T) *entropy.MemorySource {
	t.Helper()
	src, ok := EntropySource().(*entropy.MemorySource)
	if !ok {
		t.Fatalf("expected memory entropy source, got %T", EntropySource())
	}
	return src
}

func enterN(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if _, err := EnterService(context.Background(), EnterInput{
			ParticipantID:  id,
			IdempotencyKey: "idem-" + id,
		}); err != nil {
			t.Fatalf("enter %s: %v", id, err)
		}
	}
}

func TestEnterServiceAssignsPositions(t *testing.T) {
	resetKernel(t)

	res, err := EnterService(context.Background(), EnterInput{ParticipantID: "alice", IdempotencyKey: "k1"})
	if err != nil {
		t.Fatalf("enter alice: %v", err)
	}
	if res.Round != 1 || res.Position != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	res, err = EnterService(context.Background(), EnterInput{ParticipantID: "bob", IdempotencyKey: "k2"})
	if err != nil {
		t.Fatalf("enter bob: %v", err)
	}
	if res.Position != 1 {
		t.Fatalf("expected position 1, got %d", res.Position)
	}
}

func TestEnterServiceRejectsDuplicate(t *testing.T) {
	resetKernel(t)
	enterN(t, "alice")

	_, err := EnterService(context.Background(), EnterInput{ParticipantID: "alice", IdempotencyKey: "k-dup"})
	if !errors.Is(err, lottery.ErrDuplicateEntry) {
		t.Fatalf("expected ErrDuplicateEntry, got %v", err)
	}
}

func TestRequestSelectionFeeGate(t *testing.T) {
	resetKernel(t)
	enterN(t, "alice")

	cfg := &config.Config{}
	cfg.Entropy.MinFee = "1.00"
	config.SetCurrent(cfg)
	t.Cleanup(func() { config.SetCurrent(&config.Config{}) })

	cases := []struct {
		name    string
		proof   string
		wantErr error
	}{
		{"below minimum", "0.50", ErrFeeTooLow},
		{"missing proof", "", ErrFeeTooLow},
		{"exact minimum", "1.00", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := RequestSelectionService(context.Background(), "", tc.proof, "admin", "t-fee")
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("proof=%q: expected %v, got %v", tc.proof, tc.wantErr, err)
			}
		})
	}
}

func TestSelectionLifecycle(t *testing.T) {
	resetKernel(t)
	enterN(t, "alice", "bob", "carol")

	sel, err := RequestSelectionService(context.Background(), "", "", "admin", "t-1")
	if err != nil {
		t.Fatalf("request selection: %v", err)
	}
	if sel.RequestID == "" {
		t.Fatal("expected non-empty request id")
	}
	if sel.Tag != "lotto-round-1" {
		t.Fatalf("expected default tag lotto-round-1, got %s", sel.Tag)
	}

	// 未履约：拒绝开奖
	if _, err := FinalizeService(context.Background(), sel.RequestID, "admin", "t-2"); !errors.Is(err, lottery.ErrRandomnessNotReady) {
		t.Fatalf("expected ErrRandomnessNotReady, got %v", err)
	}

	// 请求ID不匹配：拒绝开奖
	if _, err := FinalizeService(context.Background(), "req-bogus", "admin", "t-3"); !errors.Is(err, lottery.ErrRequestIDMismatch) {
		t.Fatalf("expected ErrRequestIDMismatch, got %v", err)
	}

	if !memorySource(t).Fulfill(sel.RequestID, 7) {
		t.Fatal("fulfill failed: unknown request id")
	}

	out, err := FinalizeService(context.Background(), sel.RequestID, "admin", "t-4")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	// 7 mod 3 = 1 → bob
	if out.Winner != "bob" || out.WinnerIndex != 1 || out.RandomValue != 7 {
		t.Fatalf("unexpected finalize result: %+v", out)
	}

	// 重复开奖：拒绝
	if _, err := FinalizeService(context.Background(), sel.RequestID, "admin", "t-5"); !errors.Is(err, lottery.ErrAlreadyComplete) {
		t.Fatalf("expected ErrAlreadyComplete, got %v", err)
	}

	// 完成后报名：拒绝
	if _, err := EnterService(context.Background(), EnterInput{ParticipantID: "dave", IdempotencyKey: "k-late"}); !errors.Is(err, lottery.ErrAlreadyComplete) {
		t.Fatalf("expected ErrAlreadyComplete on late enter, got %v", err)
	}

	reset, err := ResetService(context.Background(), "admin", "t-6")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if reset.PrevRound != 1 || reset.NewRound != 2 {
		t.Fatalf("unexpected reset result: %+v", reset)
	}

	st, err := StatusService(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Round != 2 || st.Complete || st.ParticipantCount != 0 {
		t.Fatalf("unexpected status after reset: %+v", st)
	}
}

func TestRerequestOverridesPending(t *testing.T) {
	resetKernel(t)
	enterN(t, "alice", "bob")

	first, err := RequestSelectionService(context.Background(), "tag-a", "", "admin", "t-1")
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	second, err := RequestSelectionService(context.Background(), "tag-b", "", "admin", "t-2")
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if first.RequestID == second.RequestID {
		t.Fatal("expected distinct request ids")
	}

	// 旧请求即使被履约也已失效
	memorySource(t).Fulfill(first.RequestID, 1)
	if _, err := FinalizeService(context.Background(), first.RequestID, "admin", "t-3"); !errors.Is(err, lottery.ErrRequestIDMismatch) {
		t.Fatalf("expected ErrRequestIDMismatch for stale request, got %v", err)
	}

	memorySource(t).Fulfill(second.RequestID, 2)
	if out, err := FinalizeService(context.Background(), second.RequestID, "admin", "t-4"); err != nil || out.Winner != "alice" {
		t.Fatalf("finalize with current request: out=%+v err=%v", out, err)
	}
}

func TestRequestSelectionRequiresParticipants(t *testing.T) {
	resetKernel(t)

	if _, err := RequestSelectionService(context.Background(), "", "", "admin", "t-1"); !errors.Is(err, lottery.ErrNoParticipants) {
		t.Fatalf("expected ErrNoParticipants, got %v", err)
	}
}

func TestResetRequiresComplete(t *testing.T) {
	resetKernel(t)
	enterN(t, "alice")

	if _, err := ResetService(context.Background(), "admin", "t-1"); !errors.Is(err, lottery.ErrNotComplete) {
		t.Fatalf("expected ErrNotComplete, got %v", err)
	}
}

func TestRoundHistoryDemoMode(t *testing.T) {
	resetKernel(t)
	enterN(t, "alice")

	hist, err := RoundHistoryService(context.Background(), 1)
	if err != nil {
		t.Fatalf("history current round: %v", err)
	}
	if hist.Round != 1 || hist.ParticipantCount != 1 {
		t.Fatalf("unexpected history: %+v", hist)
	}

	if _, err := RoundHistoryService(context.Background(), 99); !errors.Is(err, ErrRoundNotFound) {
		t.Fatalf("expected ErrRoundNotFound, got %v", err)
	}
}
