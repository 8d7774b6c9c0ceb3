// Package picker holds the pure set and paging helpers behind the
// channel selection screens.
package picker

// Selection is a set of channel ids.
type Selection map[string]struct{}

func New() Selection { return make(Selection) }

func (s Selection) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Toggle flips membership and reports the new state.
func (s Selection) Toggle(id string) bool {
	if s.Has(id) {
		delete(s, id)
		return false
	}
	s[id] = struct{}{}
	return true
}

func (s Selection) Add(ids ...string) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

func (s Selection) Clear() {
	for id := range s {
		delete(s, id)
	}
}

func (s Selection) Len() int { return len(s) }

// IDs returns the selected ids filtered to those still present in known,
// preserving known's order. Stale ids (removed from the channel set
// after selection) are skipped here; ids passed straight to delivery
// fail per-channel instead.
func (s Selection) IDs(known []string) []string {
	out := make([]string, 0, len(s))
	for _, id := range known {
		if s.Has(id) {
			out = append(out, id)
		}
	}
	return out
}

// Page slices items for one page. Out-of-range pages yield an empty
// slice; totalPages is always at least 1 for non-empty input.
func Page[T any](items []T, page, size int) (pageItems []T, totalPages int) {
	if size <= 0 {
		size = 1
	}
	totalPages = (len(items) + size - 1) / size
	if totalPages == 0 {
		return nil, 0
	}
	if page < 0 || page >= totalPages {
		return nil, totalPages
	}
	start := page * size
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], totalPages
}
