package cache

import (
	"context"
	"testing"
	"time"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[string](2, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a missing")
	}
	c.Set("c", "3")

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	for _, key := range []string{"a", "c"} {
		if _, ok := c.Get(key); !ok {
			t.Fatalf("%s missing", key)
		}
	}
	if got := c.Size(); got != 2 {
		t.Fatalf("size = %d, want 2", got)
	}
}

func TestLRUOverwrite(t *testing.T) {
	c := NewLRU[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("a", 2)
	if v, ok := c.Get("a"); !ok || v != 2 {
		t.Fatalf("Get(a) = %d, %v", v, ok)
	}
	if c.Size() != 1 {
		t.Fatalf("size = %d, want 1", c.Size())
	}
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("a still present after Delete")
	}
}

func TestLRUExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewLRU[[]byte](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("old", []byte("x"))
	now = now.Add(40 * time.Second)
	c.Set("new", []byte("y"))
	now = now.Add(30 * time.Second)

	if _, ok := c.Get("old"); ok {
		t.Fatal("expired entry returned")
	}
	if _, ok := c.Get("new"); !ok {
		t.Fatal("live entry missing")
	}

	now = now.Add(time.Minute)
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("CleanExpired = %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Fatalf("size = %d after sweep", c.Size())
	}

	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 {
		t.Fatalf("stats = %+v", st)
	}
	c.Purge()
	if st := c.Stats(); st != (Stats{}) {
		t.Fatalf("stats after purge = %+v", st)
	}
}

func TestSweeper(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRU[int](10, time.Second)
	c.now = func() time.Time { return now }
	c.Set("a", 1)
	c.Set("b", 2)

	s := NewSweeper(nil)
	s.Register("numbers", c)
	if n := s.Sweep(context.Background()); n != 0 {
		t.Fatalf("nothing expired yet, swept %d", n)
	}
	now = now.Add(2 * time.Second)
	if n := s.Sweep(context.Background()); n != 2 {
		t.Fatalf("swept %d, want 2", n)
	}

	s.Start(time.Hour)
	s.Stop()
	s.Stop()
}
