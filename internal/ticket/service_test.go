package ticket

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gridforge/marketauth/internal/store/core"
)

func newTestService(ttl time.Duration) (*Service, *MemoryStore) {
	st := NewMemoryStore()
	return NewService(st, ttl), st
}

func TestCreateAndExchange(t *testing.T) {
	svc, _ := newTestService(5 * time.Minute)
	ctx := context.Background()

	id, err := svc.Create(ctx, "Bearer abc123")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(id) < 40 {
		t.Errorf("ticket id suspiciously short: %q", id)
	}

	auth, err := svc.Exchange(ctx, id)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if auth != "Bearer abc123" {
		t.Errorf("auth = %q", auth)
	}
}

func TestExchange_SecondAttemptFails(t *testing.T) {
	svc, _ := newTestService(5 * time.Minute)
	ctx := context.Background()

	id, err := svc.Create(ctx, "Bearer abc")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Exchange(ctx, id); err != nil {
		t.Fatalf("first exchange: %v", err)
	}
	if _, err := svc.Exchange(ctx, id); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second exchange err = %v, want ErrNotFound", err)
	}
}

func TestExchange_UnknownTicket(t *testing.T) {
	svc, _ := newTestService(5 * time.Minute)
	if _, err := svc.Exchange(context.Background(), "no-such-ticket"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestExchange_ExpiredTicket(t *testing.T) {
	svc, _ := newTestService(5 * time.Minute)
	ctx := context.Background()

	clock := time.Now().UTC()
	svc.now = func() time.Time { return clock }

	id, err := svc.Create(ctx, "Bearer abc")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Justo dentro del TTL todavía canjea; pasado el TTL es not found,
	// indistinguible de un id inexistente.
	clock = clock.Add(5*time.Minute + time.Second)
	if _, err := svc.Exchange(ctx, id); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestExchange_WithinTTL(t *testing.T) {
	svc, _ := newTestService(5 * time.Minute)
	ctx := context.Background()

	clock := time.Now().UTC()
	svc.now = func() time.Time { return clock }

	id, err := svc.Create(ctx, "Bearer abc")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	clock = clock.Add(4 * time.Minute)
	if _, err := svc.Exchange(ctx, id); err != nil {
		t.Fatalf("exchange within ttl: %v", err)
	}
}

func TestExchange_ConcurrentExactlyOneWins(t *testing.T) {
	svc, _ := newTestService(5 * time.Minute)
	ctx := context.Background()

	id, err := svc.Create(ctx, "Bearer abc")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const workers = 50
	var wins atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := svc.Exchange(ctx, id); err == nil {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("%d concurrent exchanges succeeded, want exactly 1", got)
	}
}

func TestPurge_RemovesOnlyExpired(t *testing.T) {
	svc, st := newTestService(5 * time.Minute)
	ctx := context.Background()

	clock := time.Now().UTC()
	svc.now = func() time.Time { return clock }

	oldID, err := svc.Create(ctx, "Bearer old")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	clock = clock.Add(10 * time.Minute)
	freshID, err := svc.Create(ctx, "Bearer fresh")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	n, err := svc.Purge(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d tickets, want 1", n)
	}
	if _, err := st.ConsumeTicket(ctx, oldID, time.Time{}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expired ticket survived the purge")
	}
	if _, err := svc.Exchange(ctx, freshID); err != nil {
		t.Errorf("fresh ticket must survive the purge: %v", err)
	}
}

func TestMemoryStore_DuplicateInsert(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	tk := core.DownloadTicket{ID: "x", Authorization: "Bearer a", CreatedAt: time.Now()}
	if err := st.InsertTicket(ctx, tk); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := st.InsertTicket(ctx, tk); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("duplicate insert err = %v, want ErrConflict", err)
	}
}
