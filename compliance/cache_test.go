package compliance

import (
	"testing"
	"time"
)

var _ PlaybookCache = (*InMemoryPlaybookCache)(nil)

func TestInMemoryPlaybookCache(t *testing.T) {
	c := NewInMemoryPlaybookCache(DefaultCacheConfig())
	pb := &Playbook{ID: "pb_1", Name: "MSA Review", Rules: []Rule{validRule()}}

	t.Run("miss", func(t *testing.T) {
		if got := c.Get("pb_1"); got != nil {
			t.Errorf("Get() on empty cache = %+v, want nil", got)
		}
	})

	t.Run("hit after set", func(t *testing.T) {
		c.Set(pb)
		got := c.Get("pb_1")
		if got == nil || got.Name != "MSA Review" {
			t.Fatalf("Get() = %+v", got)
		}
	})

	t.Run("returned value is a copy", func(t *testing.T) {
		got := c.Get("pb_1")
		got.Name = "mutated"
		got.Rules[0].Name = "mutated rule"
		again := c.Get("pb_1")
		if again.Name != "MSA Review" || again.Rules[0].Name != "Termination required" {
			t.Errorf("mutation leaked into the cache: %+v", again)
		}
	})

	t.Run("invalidate", func(t *testing.T) {
		c.Invalidate("pb_1")
		if got := c.Get("pb_1"); got != nil {
			t.Errorf("Get() after Invalidate() = %+v, want nil", got)
		}
	})
}

func TestInMemoryPlaybookCacheTTL(t *testing.T) {
	c := NewInMemoryPlaybookCache(CacheConfig{TTL: 10 * time.Millisecond})
	c.Set(&Playbook{ID: "pb_1", Name: "MSA Review"})

	if got := c.Get("pb_1"); got == nil {
		t.Fatal("Get() inside TTL = nil, want hit")
	}

	time.Sleep(20 * time.Millisecond)
	if got := c.Get("pb_1"); got != nil {
		t.Errorf("Get() after TTL = %+v, want nil", got)
	}
}
