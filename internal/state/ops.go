package state

import (
	"errors"
	"sort"
	"time"
)

// errNoop aborts a Mutate without an error and without a write.
var errNoop = errors.New("state: no change")

func (s *Store) mutateQuiet(fn func(*Document) error) error {
	err := s.Mutate(fn)
	if errors.Is(err, errNoop) {
		return nil
	}
	return err
}

func (s *Store) IsOwner(id string) bool { return id == s.ownerID }

func (s *Store) IsAdmin(id string) bool {
	return containsString(s.Snapshot().Admins, id)
}

// Admins returns the admin set, owner first, the rest sorted.
func (s *Store) Admins() []string {
	all := s.Snapshot().Admins
	rest := make([]string, 0, len(all))
	for _, id := range all {
		if id != s.ownerID {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append([]string{s.ownerID}, rest...)
}

// AddAdmin grants access. Reports false when the id was already an admin.
func (s *Store) AddAdmin(id string) (bool, error) {
	added := false
	err := s.mutateQuiet(func(d *Document) error {
		if containsString(d.Admins, id) {
			return errNoop
		}
		d.Admins = append(d.Admins, id)
		added = true
		return nil
	})
	return added, err
}

// RemoveAdmin revokes access. The owner is never removable: the call
// reports false and the set stays unchanged.
func (s *Store) RemoveAdmin(id string) (bool, error) {
	removed := false
	err := s.mutateQuiet(func(d *Document) error {
		if id == s.ownerID {
			return errNoop
		}
		kept := d.Admins[:0]
		for _, a := range d.Admins {
			if a == id {
				removed = true
				continue
			}
			kept = append(kept, a)
		}
		if !removed {
			return errNoop
		}
		d.Admins = kept
		return nil
	})
	return removed, err
}

func (s *Store) AddChannel(id string, ch Channel) error {
	if ch.Type == "" {
		ch.Type = ChannelUnknown
	}
	return s.Mutate(func(d *Document) error {
		d.Channels[id] = ch
		return nil
	})
}

func (s *Store) RemoveChannel(id string) (bool, error) {
	removed := false
	err := s.mutateQuiet(func(d *Document) error {
		if _, ok := d.Channels[id]; !ok {
			return errNoop
		}
		delete(d.Channels, id)
		removed = true
		return nil
	})
	return removed, err
}

// Channels returns the configured channels ordered by name, then id.
func (s *Store) Channels() []ChannelEntry {
	return s.Snapshot().SortedChannels()
}

// UpdateSettings is the single validated entry point for settings
// changes. fn mutates a copy; the result is clamped before persisting.
func (s *Store) UpdateSettings(fn func(*Settings)) (Settings, error) {
	var out Settings
	err := s.Mutate(func(d *Document) error {
		fn(&d.Settings)
		d.Settings.Clamp()
		out = d.Settings
		return nil
	})
	return out, err
}

func (s *Store) PutScheduled(id string, p ScheduledPost) error {
	return s.Mutate(func(d *Document) error {
		d.ScheduledPosts[id] = p
		return nil
	})
}

// DeleteScheduled reports whether the job existed; deleting a missing
// job is not an error.
func (s *Store) DeleteScheduled(id string) (bool, error) {
	found := false
	err := s.mutateQuiet(func(d *Document) error {
		if _, ok := d.ScheduledPosts[id]; !ok {
			return errNoop
		}
		delete(d.ScheduledPosts, id)
		found = true
		return nil
	})
	return found, err
}

func (s *Store) ListScheduled() map[string]ScheduledPost {
	return s.Snapshot().ScheduledPosts
}

// RecordDispatch folds one finished batch delivery into the aggregate
// stats, the acting admin's stats, and the daily analytics. Counters
// only ever grow.
func (s *Store) RecordDispatch(adminID string, sent, failed int, channels []string, at time.Time) error {
	if sent < 0 {
		sent = 0
	}
	if failed < 0 {
		failed = 0
	}
	return s.Mutate(func(d *Document) error {
		d.Stats.TotalPosts += int64(sent)
		d.Stats.TotalBatches++
		if sent > 0 {
			t := at
			d.Stats.LastPostAt = &t
			d.Stats.LastPostChannels = append([]string(nil), channels...)
		}

		as := d.AdminStats[adminID]
		as.Posts += int64(sent)
		as.Batches++
		t := at
		as.LastActionAt = &t
		d.AdminStats[adminID] = as

		day := at.Format("2006-01-02")
		ds := d.PostAnalytics[day]
		ds.Posts += int64(sent)
		ds.Batches++
		ds.Failures += int64(failed)
		d.PostAnalytics[day] = ds
		return nil
	})
}
