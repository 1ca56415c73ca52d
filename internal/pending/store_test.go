package pending

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestStore(max int, ttl time.Duration) (*Store[string], *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewStore[string](max, ttl)
	s.now = clock.now
	return s, clock
}

func TestStore_PutTake(t *testing.T) {
	s, _ := newTestStore(10, time.Minute)
	token := s.Put("upload")

	if v, ok := s.Get(token); !ok || v != "upload" {
		t.Fatalf("Get = %q, %v", v, ok)
	}
	if v, ok := s.Take(token); !ok || v != "upload" {
		t.Fatalf("Take = %q, %v", v, ok)
	}
	if _, ok := s.Take(token); ok {
		t.Error("token must be consumable only once")
	}
}

func TestStore_LazyExpiry(t *testing.T) {
	s, clock := newTestStore(10, time.Minute)
	token := s.Put("x")

	clock.t = clock.t.Add(2 * time.Minute)
	if _, ok := s.Get(token); ok {
		t.Error("expired entry returned")
	}
	if s.Len() != 0 {
		t.Errorf("expired entry not removed on access, len=%d", s.Len())
	}
}

func TestStore_Sweep(t *testing.T) {
	s, clock := newTestStore(10, time.Minute)
	s.Set("a", "1")
	clock.t = clock.t.Add(30 * time.Second)
	s.Set("b", "2")
	clock.t = clock.t.Add(45 * time.Second)

	if n := s.Sweep(); n != 1 {
		t.Errorf("Sweep removed %d, want 1", n)
	}
	if _, ok := s.Get("b"); !ok {
		t.Error("fresh entry swept")
	}
}

func TestStore_EvictsOldest(t *testing.T) {
	s, _ := newTestStore(2, time.Minute)
	s.Set("a", "1")
	s.Set("b", "2")
	s.Set("c", "3")
	if _, ok := s.Get("a"); ok {
		t.Error("oldest entry should be evicted")
	}
	if s.Len() != 2 {
		t.Errorf("len = %d, want 2", s.Len())
	}
}

func TestSweeper_SweepOnce(t *testing.T) {
	s, clock := newTestStore(10, time.Second)
	s.Put("x")
	s.Put("y")
	clock.t = clock.t.Add(time.Minute)

	sw := NewSweeper(nil)
	sw.Register(s)
	if n := sw.SweepOnce(context.Background()); n != 2 {
		t.Errorf("SweepOnce = %d, want 2", n)
	}
}

func TestSweeper_StartStop(t *testing.T) {
	sw := NewSweeper(nil)
	sw.Start(context.Background(), 10*time.Millisecond)
	sw.Stop()
	sw.Stop()
}
