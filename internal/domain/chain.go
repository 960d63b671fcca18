package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBrokenChain   = errors.New("slots do not form one contiguous block")
	ErrChainTooShort = errors.New("slots are shorter than the service duration")
)

// Chain is a run of back-to-back free slots owned by one provider on one day.
type Chain struct {
	ProviderID   int64       `json:"provider_id"`
	ProviderName string      `json:"provider_name"`
	Date         Date        `json:"date"`
	Start        Clock       `json:"start_time"`
	End          Clock       `json:"end_time"`
	SlotIDs      []uuid.UUID `json:"slot_ids"`
}

// SortSlots returns a copy ordered by provider, date and start time.
func SortSlots(slots []Slot) []Slot {
	out := append([]Slot(nil), slots...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ProviderID != b.ProviderID {
			return a.ProviderID < b.ProviderID
		}
		if c := a.Date.Compare(b.Date); c != 0 {
			return c < 0
		}
		return a.Start.Compare(b.Start) < 0
	})
	return out
}

// MatchChains returns every chain of exactly length free slots. Each free slot
// opens at most one chain; chains starting at neighbouring slots overlap and
// are all returned. Bound slots never take part in a chain.
func MatchChains(slots []Slot, length int) []Chain {
	if length < 1 {
		return nil
	}

	ordered := SortSlots(slots)
	byStart := make(map[SlotKey]Slot, len(ordered))
	for _, s := range ordered {
		if s.Booked() {
			continue
		}
		byStart[s.Key()] = s
	}

	var out []Chain
	for _, first := range ordered {
		if first.Booked() {
			continue
		}
		members := []Slot{first}
		for len(members) < length {
			prev := members[len(members)-1]
			next, ok := byStart[SlotKey{ProviderID: prev.ProviderID, Date: prev.Date, Start: prev.End}]
			if !ok {
				break
			}
			members = append(members, next)
		}
		if len(members) == length {
			out = append(out, newChain(members))
		}
	}
	return out
}

func newChain(members []Slot) Chain {
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	first, last := members[0], members[len(members)-1]
	return Chain{
		ProviderID: first.ProviderID,
		Date:       first.Date,
		Start:      first.Start,
		End:        last.End,
		SlotIDs:    ids,
	}
}

// ValidateChain checks that slots can hold one appointment of durationHours:
// one provider, one day, no gaps, and enough total time.
func ValidateChain(slots []Slot, durationHours int) error {
	if len(slots) == 0 {
		return ErrBrokenChain
	}
	ordered := SortSlots(slots)
	var total time.Duration
	for i, s := range ordered {
		total += s.Length()
		if i == 0 {
			continue
		}
		prev := ordered[i-1]
		if s.ProviderID != prev.ProviderID {
			return fmt.Errorf("%w: slots belong to providers %d and %d", ErrBrokenChain, prev.ProviderID, s.ProviderID)
		}
		if s.Date != prev.Date {
			return fmt.Errorf("%w: slots span %s and %s", ErrBrokenChain, prev.Date, s.Date)
		}
		if !s.Start.Equal(prev.End) {
			return fmt.Errorf("%w: gap between %s and %s", ErrBrokenChain, prev.End, s.Start)
		}
	}
	if want := time.Duration(durationHours) * time.Hour; total < want {
		return fmt.Errorf("%w: have %s, need %s", ErrChainTooShort, total, want)
	}
	return nil
}
