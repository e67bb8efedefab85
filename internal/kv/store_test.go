package kv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(rdb, "t")
	return store, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

type record struct {
	Name     string `json:"name"`
	Attempts int    `json:"attempts"`
}

func TestPutGetDelete(t *testing.T) {
	store, _, done := newTestStore(t)
	defer done()
	ctx := context.Background()

	if err := store.Put(ctx, "k1", record{Name: "a"}, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	var got record
	if err := store.Get(ctx, "k1", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "a" {
		t.Fatalf("got %+v", got)
	}

	if err := store.Delete(ctx, "k1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Get(ctx, "k1", &got); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete err = %v, want ErrNotFound", err)
	}

	// Deleting again is fine.
	if err := store.Delete(ctx, "k1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestRecordExpiresWithLease(t *testing.T) {
	store, mr, done := newTestStore(t)
	defer done()
	ctx := context.Background()

	if err := store.Put(ctx, "k1", record{Name: "a"}, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	var got record
	if err := store.Get(ctx, "k1", &got); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after expiry err = %v, want ErrNotFound", err)
	}
}

func TestUpdateKeepsLease(t *testing.T) {
	store, mr, done := newTestStore(t)
	defer done()
	ctx := context.Background()

	if err := store.Put(ctx, "k1", record{Attempts: 0}, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	mr.FastForward(30 * time.Second)
	if err := store.Update(ctx, "k1", record{Attempts: 1}); err != nil {
		t.Fatalf("update: %v", err)
	}

	// The update must not have restarted the one-minute lease.
	mr.FastForward(45 * time.Second)
	var got record
	if err := store.Get(ctx, "k1", &got); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get err = %v, want ErrNotFound after original lease", err)
	}
}

func TestUpdateMissingKey(t *testing.T) {
	store, _, done := newTestStore(t)
	defer done()

	err := store.Update(context.Background(), "absent", record{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPutReplacesValueAndLease(t *testing.T) {
	store, mr, done := newTestStore(t)
	defer done()
	ctx := context.Background()

	if err := store.Put(ctx, "k1", record{Name: "old"}, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	mr.FastForward(50 * time.Second)
	if err := store.Put(ctx, "k1", record{Name: "new"}, time.Minute); err != nil {
		t.Fatalf("second put: %v", err)
	}

	mr.FastForward(30 * time.Second)
	var got record
	if err := store.Get(ctx, "k1", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "new" {
		t.Fatalf("got %+v, want new value", got)
	}
}

func TestTTL(t *testing.T) {
	store, _, done := newTestStore(t)
	defer done()
	ctx := context.Background()

	if err := store.Put(ctx, "k1", record{}, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	ttl, err := store.TTL(ctx, "k1")
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Fatalf("ttl = %v", ttl)
	}

	if _, err := store.TTL(ctx, "absent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ttl of absent key err = %v, want ErrNotFound", err)
	}
}
