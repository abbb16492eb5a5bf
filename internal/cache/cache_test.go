package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestGetOrCompute_ComputesOnce(t *testing.T) {
	c, err := NewLRU[int](8)
	if err != nil {
		t.Fatalf("NewLRU failed: %v", err)
	}

	var computed atomic.Int32
	compute := func() (int, error) {
		computed.Add(1)
		return 42, nil
	}

	v, err := c.GetOrCompute("key", compute)
	if err != nil || v != 42 {
		t.Fatalf("Expected 42, got %d (%v)", v, err)
	}
	v, err = c.GetOrCompute("key", compute)
	if err != nil || v != 42 {
		t.Fatalf("Expected cached 42, got %d (%v)", v, err)
	}
	if computed.Load() != 1 {
		t.Errorf("Expected compute to run once, ran %d times", computed.Load())
	}
}

func TestGetOrCompute_ErrorNotCached(t *testing.T) {
	c, _ := NewLRU[int](8)

	_, err := c.GetOrCompute("key", func() (int, error) {
		return 0, errors.New("boom")
	})
	if err == nil {
		t.Fatal("Expected compute error")
	}

	// A later successful compute fills the entry.
	v, err := c.GetOrCompute("key", func() (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Errorf("Expected 7 after failed compute, got %d (%v)", v, err)
	}
	if c.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", c.Len())
	}
}

func TestGetOrCompute_ConcurrentSingleFlight(t *testing.T) {
	c, _ := NewLRU[string](8)

	var computed atomic.Int32
	var start, done sync.WaitGroup
	start.Add(1)
	for i := 0; i < 16; i++ {
		done.Add(1)
		go func() {
			defer done.Done()
			start.Wait()
			v, err := c.GetOrCompute("shared", func() (string, error) {
				computed.Add(1)
				return "value", nil
			})
			if err != nil || v != "value" {
				t.Errorf("Expected value, got %q (%v)", v, err)
			}
		}()
	}
	start.Done()
	done.Wait()

	if computed.Load() != 1 {
		t.Errorf("Concurrent misses should compute once, ran %d times", computed.Load())
	}
}

func TestEviction(t *testing.T) {
	c, _ := NewLRU[int](2)
	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("c", 3)

	if c.Len() != 2 {
		t.Errorf("Expected bounded size 2, got %d", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("Oldest entry should have been evicted")
	}
}
