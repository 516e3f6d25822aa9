package history

import (
	"fmt"
	"testing"

	"github.com/chartstudio/collab/internal/model"
)

func entry(id string) *model.ChangeHistoryEntry {
	return &model.ChangeHistoryEntry{ID: id, Type: model.ChangeTypeUpdate}
}

func TestNewRing(t *testing.T) {
	// Valid capacity
	r := NewRing(100)
	if r.Cap() != 100 {
		t.Errorf("expected capacity 100, got %d", r.Cap())
	}
	if r.Len() != 0 {
		t.Errorf("expected length 0, got %d", r.Len())
	}

	// Zero capacity defaults to 1
	r = NewRing(0)
	if r.Cap() != 1 {
		t.Errorf("expected capacity 1 for zero input, got %d", r.Cap())
	}

	// Negative capacity defaults to 1
	r = NewRing(-5)
	if r.Cap() != 1 {
		t.Errorf("expected capacity 1 for negative input, got %d", r.Cap())
	}
}

func TestRing_Append(t *testing.T) {
	r := NewRing(3)

	r.Append(entry("a"))
	r.Append(entry("b"))
	if r.Len() != 2 {
		t.Errorf("expected length 2, got %d", r.Len())
	}

	got := r.All()
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("expected [a b], got %v", ids(got))
	}

	// Nil entries are ignored
	r.Append(nil)
	if r.Len() != 2 {
		t.Errorf("expected length 2 after nil append, got %d", r.Len())
	}
}

func TestRing_AppendOverflow(t *testing.T) {
	r := NewRing(3)
	for i := 0; i < 5; i++ {
		r.Append(entry(fmt.Sprintf("e%d", i)))
	}

	// Should have discarded e0 and e1 and kept the newest three in order.
	got := r.All()
	if len(got) != 3 {
		t.Fatalf("expected length 3, got %d", len(got))
	}
	want := []string{"e2", "e3", "e4"}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("expected %v, got %v", want, ids(got))
			break
		}
	}
	if r.Len() != 3 {
		t.Errorf("expected length 3, got %d", r.Len())
	}
}

func TestRing_All(t *testing.T) {
	r := NewRing(10)

	// All on an empty ring
	if got := r.All(); got != nil {
		t.Errorf("expected nil for empty ring, got %v", ids(got))
	}

	r.Append(entry("a"))
	got := r.All()
	if len(got) != 1 || got[0].ID != "a" {
		t.Errorf("expected [a], got %v", ids(got))
	}

	// All returns a copy of the slice; mutating it must not affect the ring
	got[0] = entry("X")
	got2 := r.All()
	if len(got2) != 1 || got2[0].ID != "a" {
		t.Errorf("All should return a copy, got %v", ids(got2))
	}
}

func TestRing_Clear(t *testing.T) {
	r := NewRing(10)
	r.Append(entry("a"))
	r.Append(entry("b"))

	r.Clear()

	if r.Len() != 0 {
		t.Errorf("expected length 0 after clear, got %d", r.Len())
	}
	if got := r.All(); got != nil {
		t.Errorf("expected nil after clear, got %v", ids(got))
	}

	// Appending after clear works
	r.Append(entry("c"))
	got := r.All()
	if len(got) != 1 || got[0].ID != "c" {
		t.Errorf("expected [c], got %v", ids(got))
	}
}

func ids(entries []*model.ChangeHistoryEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}
