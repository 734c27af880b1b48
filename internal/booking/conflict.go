package booking

import (
	"cmp"
	"slices"

	"github.com/google/uuid"
)

// Existing is a committed booking in the room under test.
type Existing struct {
	BookingID   uuid.UUID
	Title       string
	OrganizerID uuid.UUID
	Series      Series
}

// Conflict pairs a candidate occurrence with the existing occurrence it hits.
type Conflict struct {
	Candidate   Interval  `json:"candidate"`
	BookingID   uuid.UUID `json:"booking_id"`
	Title       string    `json:"title"`
	OrganizerID uuid.UUID `json:"organizer_id"`
	Occurrence  Interval  `json:"occurrence"`
}

type CheckRequest struct {
	Candidates []Interval
	Existing   []Existing
	// ExcludeBookingID is the booking being edited; it never conflicts with itself.
	ExcludeBookingID uuid.UUID
	// Override lets an admin commit despite conflicts. Conflicts are still reported.
	Override bool
}

type CheckResult struct {
	Conflicts  []Conflict `json:"conflicts"`
	Overridden bool       `json:"overridden"`
}

// Blocked reports whether the write must be rejected.
func (r CheckResult) Blocked() bool {
	return len(r.Conflicts) > 0 && !r.Overridden
}

type flatOccurrence struct {
	occ Interval
	src *Existing
}

// Check compares every candidate with every existing occurrence and returns
// all clashes, ordered by candidate start and then existing start.
func Check(req CheckRequest) CheckResult {
	var flat []flatOccurrence
	for i := range req.Existing {
		e := &req.Existing[i]
		if req.ExcludeBookingID != uuid.Nil && e.BookingID == req.ExcludeBookingID {
			continue
		}
		for occ := range e.Series.All() {
			flat = append(flat, flatOccurrence{occ: occ, src: e})
		}
	}
	slices.SortFunc(flat, func(a, b flatOccurrence) int {
		if c := a.occ.Start.Compare(b.occ.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.src.BookingID.String(), b.src.BookingID.String())
	})

	candidates := slices.Clone(req.Candidates)
	slices.SortStableFunc(candidates, func(a, b Interval) int {
		return a.Start.Compare(b.Start)
	})

	var result CheckResult
	for _, cand := range candidates {
		for _, f := range flat {
			// flat is sorted by start, nothing later can reach back into cand
			if !f.occ.Start.Before(cand.End) {
				break
			}
			if cand.Overlaps(f.occ) {
				result.Conflicts = append(result.Conflicts, Conflict{
					Candidate:   cand,
					BookingID:   f.src.BookingID,
					Title:       f.src.Title,
					OrganizerID: f.src.OrganizerID,
					Occurrence:  f.occ,
				})
			}
		}
	}

	result.Overridden = req.Override && len(result.Conflicts) > 0
	return result
}
