package idempotency

import (
	"context"
	"sync"
	"testing"
)

func TestMemoryClaimOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	won, err := m.Claim(ctx, "evt-1")
	if err != nil || !won {
		t.Fatalf("first Claim = (%v, %v), want (true, nil)", won, err)
	}

	won, err = m.Claim(ctx, "evt-1")
	if err != nil || won {
		t.Fatalf("second Claim = (%v, %v), want (false, nil)", won, err)
	}
}

func TestMemoryProcessed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	ok, err := m.Processed(ctx, "evt-1")
	if err != nil || ok {
		t.Fatalf("Processed before claim = (%v, %v), want (false, nil)", ok, err)
	}

	if _, err := m.Claim(ctx, "evt-1"); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	ok, err = m.Processed(ctx, "evt-1")
	if err != nil || !ok {
		t.Fatalf("Processed after claim = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestMemoryForgetAllowsReclaim(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.Claim(ctx, "evt-1"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := m.Forget(ctx, "evt-1"); err != nil {
		t.Fatalf("Forget: %v", err)
	}

	won, err := m.Claim(ctx, "evt-1")
	if err != nil || !won {
		t.Fatalf("Claim after Forget = (%v, %v), want (true, nil)", won, err)
	}
}

func TestMemoryForgetUnknownID(t *testing.T) {
	if err := NewMemory().Forget(context.Background(), "never-seen"); err != nil {
		t.Fatalf("Forget of unknown id: %v", err)
	}
}

func TestMemoryConcurrentClaimSingleWinner(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	const workers = 32
	var wg sync.WaitGroup
	wins := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := m.Claim(ctx, "evt-contended")
			if err != nil {
				t.Errorf("Claim: %v", err)
				return
			}
			wins <- won
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for won := range wins {
		if won {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
}

func TestMemoryIDsAreIndependent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for _, id := range []string{"a", "b", "c"} {
		won, err := m.Claim(ctx, id)
		if err != nil || !won {
			t.Fatalf("Claim(%q) = (%v, %v), want (true, nil)", id, won, err)
		}
	}
	if m.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", m.Len())
	}
}

func TestRedisKeyPrefix(t *testing.T) {
	if got := buildKey("abc-123"); got != "event:processed:abc-123" {
		t.Fatalf("buildKey = %q", got)
	}
}
