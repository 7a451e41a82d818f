package entropy

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestMemorySourceLifecycle(t *testing.T) {
	src := NewMemorySource()
	ctx := context.Background()

	id, err := src.Request(ctx, "round.1")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if src.IsFulfilled(ctx, id) {
		t.Fatalf("fulfilled before commit")
	}
	if _, err := src.ValueFor(ctx, id); !errors.Is(err, ErrNotFulfilled) {
		t.Fatalf("want ErrNotFulfilled, got %v", err)
	}
	if got := src.Pending(); len(got) != 1 || got[0] != id {
		t.Fatalf("pending = %v, want [%s]", got, id)
	}

	if !src.Fulfill(id, 42) {
		t.Fatalf("fulfill rejected known id")
	}
	if !src.IsFulfilled(ctx, id) {
		t.Fatalf("not fulfilled after commit")
	}
	v, err := src.ValueFor(ctx, id)
	if err != nil || v != 42 {
		t.Fatalf("value = %d, %v; want 42, nil", v, err)
	}
	if len(src.Pending()) != 0 {
		t.Fatalf("pending not drained: %v", src.Pending())
	}

	if src.Fulfill("req-999", 1) {
		t.Fatalf("fulfill accepted unknown id")
	}
}

func TestValidateTag(t *testing.T) {
	valid := []string{"t", "round-2", "lotto.2026_08", "A1"}
	for _, tag := range valid {
		if err := ValidateTag(tag); err != nil {
			t.Fatalf("tag %q rejected: %v", tag, err)
		}
	}
	invalid := []string{"", "has space", "über", strings.Repeat("a", 65)}
	for _, tag := range invalid {
		if err := ValidateTag(tag); !errors.Is(err, ErrInvalidTag) {
			t.Fatalf("tag %q: want ErrInvalidTag, got %v", tag, err)
		}
	}
}
