package picker

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestToggle(t *testing.T) {
	t.Parallel()
	s := New()
	if on := s.Toggle("a"); !on {
		t.Fatal("first toggle should select")
	}
	if !s.Has("a") || s.Len() != 1 {
		t.Fatalf("selection = %v", s)
	}
	if on := s.Toggle("a"); on {
		t.Fatal("second toggle should deselect")
	}
	if s.Has("a") || s.Len() != 0 {
		t.Fatalf("selection = %v", s)
	}
}

func TestAddClear(t *testing.T) {
	t.Parallel()
	s := New()
	s.Add("a", "b", "c")
	if s.Len() != 3 {
		t.Fatalf("len = %d, want 3", s.Len())
	}
	s.Clear()
	if s.Len() != 0 {
		t.Fatalf("len after clear = %d, want 0", s.Len())
	}
}

func TestIDsFiltersAndOrders(t *testing.T) {
	t.Parallel()
	s := New()
	s.Add("b", "stale", "a")
	got := s.IDs([]string{"a", "b", "c"})
	if diff := cmp.Diff([]string{"a", "b"}, got); diff != "" {
		t.Errorf("IDs mismatch (-want +got):\n%s", diff)
	}
}

func TestPage(t *testing.T) {
	t.Parallel()
	items := []string{"a", "b", "c", "d", "e"}

	tests := []struct {
		name      string
		page      int
		size      int
		wantItems []string
		wantTotal int
	}{
		{"first", 0, 2, []string{"a", "b"}, 3},
		{"middle", 1, 2, []string{"c", "d"}, 3},
		{"last partial", 2, 2, []string{"e"}, 3},
		{"past end", 3, 2, nil, 3},
		{"negative", -1, 2, nil, 3},
		{"single page", 0, 10, []string{"a", "b", "c", "d", "e"}, 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, total := Page(items, tt.page, tt.size)
			if total != tt.wantTotal {
				t.Fatalf("total = %d, want %d", total, tt.wantTotal)
			}
			if diff := cmp.Diff(tt.wantItems, got); diff != "" {
				t.Errorf("items mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if got, total := Page([]string(nil), 0, 3); got != nil || total != 0 {
		t.Fatalf("empty input: items=%v total=%d", got, total)
	}
}
