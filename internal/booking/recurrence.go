package booking

import (
	"errors"
	"iter"
	"slices"
	"time"

	"github.com/hugh/roombook/internal/database/models"
)

// MaxOccurrences caps a single series (ten years of weekly meetings).
const MaxOccurrences = 520

const (
	MaxDailyInterval  = 366
	MaxWeeklyInterval = 52
	// MaxSeriesYears bounds how far past its first occurrence a series may run.
	MaxSeriesYears = 10
	minStartYear   = 1970
	maxStartYear   = 9000
)

var (
	ErrInvalidInterval       = errors.New("end must be after start")
	ErrUnknownRepeatType     = errors.New("unknown repeat type")
	ErrMissingEndCondition   = errors.New("recurring bookings need an occurrence count or an end date")
	ErrInvalidCount          = errors.New("occurrence count must be positive")
	ErrUntilBeforeStart      = errors.New("recurrence end date is before the first occurrence")
	ErrEmptyWeekdays         = errors.New("custom recurrence needs at least one weekday")
	ErrInvalidWeekday        = errors.New("weekday must be between 0 (Sunday) and 6 (Saturday)")
	ErrInvalidRepeatInterval = errors.New("repeat interval must be positive")
	ErrIntervalTooLarge      = errors.New("repeat interval is too large (at most 366 days or 52 weeks)")
	ErrBeyondHorizon         = errors.New("recurrence runs more than 10 years past the first occurrence")
	ErrStartOutOfRange       = errors.New("start is outside the supported date range")
	ErrSelfOverlap           = errors.New("occurrence is longer than the gap between occurrences")
	ErrTooManyOccurrences    = errors.New("recurrence produces too many occurrences")
	ErrEmptySeries           = errors.New("recurrence produces no occurrences")
)

// Interval is a half-open [Start, End) span.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Overlaps uses half-open semantics: intervals that only touch do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// At is the interval used to ask "is the room busy at instant t".
func At(t time.Time) Interval {
	return Interval{Start: t, End: t.Add(time.Nanosecond)}
}

// Rule describes a booking's recurrence. Start and End are the first
// occurrence. Until is an inclusive calendar date evaluated in Location.
type Rule struct {
	Start    time.Time
	End      time.Time
	Type     models.RepeatType
	Interval int
	Weekdays []time.Weekday
	Count    int
	Until    time.Time
	Location *time.Location
}

// RuleFromBooking rebuilds the rule stored on a booking row.
func RuleFromBooking(b *models.Booking, loc *time.Location) Rule {
	r := Rule{
		Start:    b.StartTime,
		End:      b.EndTime,
		Type:     b.RepeatType,
		Interval: b.RepeatInterval,
		Count:    b.RepeatCount,
		Location: loc,
	}
	if b.RepeatUntil != nil {
		r.Until = *b.RepeatUntil
	}
	for _, d := range b.CustomDays {
		r.Weekdays = append(r.Weekdays, time.Weekday(d))
	}
	return r
}

func (r Rule) location() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

func (r Rule) repeatType() models.RepeatType {
	if r.Type == "" {
		return models.RepeatNone
	}
	return r.Type
}

func (r Rule) step() int {
	if r.Interval <= 0 {
		return 1
	}
	return r.Interval
}

func (r Rule) horizon() time.Time {
	return r.Start.In(r.location()).AddDate(MaxSeriesYears, 0, 0)
}

// Validate checks the rule without expanding it.
func (r Rule) Validate() error {
	if !r.End.After(r.Start) {
		return ErrInvalidInterval
	}
	if y := r.Start.Year(); y < minStartYear || y > maxStartYear {
		return ErrStartOutOfRange
	}

	kind := r.repeatType()
	switch kind {
	case models.RepeatNone:
		return nil
	case models.RepeatDaily, models.RepeatWeekly, models.RepeatCustom:
	default:
		return ErrUnknownRepeatType
	}

	if r.Interval < 0 {
		return ErrInvalidRepeatInterval
	}
	if (kind == models.RepeatDaily && r.Interval > MaxDailyInterval) ||
		(kind == models.RepeatWeekly && r.Interval > MaxWeeklyInterval) {
		return ErrIntervalTooLarge
	}
	if r.Count < 0 {
		return ErrInvalidCount
	}
	if r.Count == 0 && r.Until.IsZero() {
		return ErrMissingEndCondition
	}
	if !r.Until.IsZero() && dateKey(r.Until, r.location()) < dateKey(r.Start, r.location()) {
		return ErrUntilBeforeStart
	}
	if !r.Until.IsZero() && dateKey(r.Until, r.location()) > dateKey(r.horizon(), r.location()) {
		return ErrBeyondHorizon
	}

	gap := 24 * time.Hour
	switch kind {
	case models.RepeatDaily:
		gap = time.Duration(r.step()) * 24 * time.Hour
	case models.RepeatWeekly:
		gap = time.Duration(r.step()) * 7 * 24 * time.Hour
	case models.RepeatCustom:
		if len(r.Weekdays) == 0 {
			return ErrEmptyWeekdays
		}
		for _, d := range r.Weekdays {
			if d < time.Sunday || d > time.Saturday {
				return ErrInvalidWeekday
			}
		}
	}
	if r.End.Sub(r.Start) > gap {
		return ErrSelfOverlap
	}

	return nil
}

// Occurrences lazily walks the rule without validating it. A custom rule with
// no weekdays yields nothing, and an unbounded rule stops at MaxOccurrences+1
// so callers can detect the overflow.
func Occurrences(r Rule) iter.Seq[Interval] {
	return func(yield func(Interval) bool) {
		loc := r.location()
		base := r.Start.In(loc)
		dur := r.End.Sub(r.Start)
		limit := MaxOccurrences + 1
		if r.Count > 0 && r.Count < limit {
			limit = r.Count
		}
		var untilKey int
		if !r.Until.IsZero() {
			untilKey = dateKey(r.Until, loc)
		}
		pastUntil := func(t time.Time) bool {
			return untilKey != 0 && dateKey(t, loc) > untilKey
		}
		emit := func(start time.Time) bool {
			return yield(Interval{Start: start.UTC(), End: start.Add(dur).UTC()})
		}

		switch r.repeatType() {
		case models.RepeatNone:
			emit(base)

		case models.RepeatDaily, models.RepeatWeekly:
			days := r.step()
			if r.repeatType() == models.RepeatWeekly {
				days *= 7
			}
			for i := 0; i < limit; i++ {
				start := base.AddDate(0, 0, i*days)
				if pastUntil(start) || !emit(start) {
					return
				}
			}

		case models.RepeatCustom:
			if len(r.Weekdays) == 0 {
				return
			}
			emitted := 0
			for d := 0; emitted < limit; d++ {
				start := base.AddDate(0, 0, d)
				if pastUntil(start) {
					return
				}
				if !slices.Contains(r.Weekdays, start.Weekday()) {
					continue
				}
				if !emit(start) {
					return
				}
				emitted++
			}
		}
	}
}

// Series is a validated, finite expansion. It is a value and can be iterated
// any number of times.
type Series struct {
	rule  Rule
	count int
	first Interval
	last  Interval
}

// Expand validates r and measures its expansion.
func Expand(r Rule) (Series, error) {
	if err := r.Validate(); err != nil {
		return Series{}, err
	}

	s := Series{rule: r}
	for occ := range Occurrences(r) {
		if s.count == 0 {
			s.first = occ
		}
		s.last = occ
		s.count++
	}

	if s.count == 0 {
		return Series{}, ErrEmptySeries
	}
	if s.count > MaxOccurrences {
		return Series{}, ErrTooManyOccurrences
	}
	if s.last.Start.After(r.horizon()) {
		return Series{}, ErrBeyondHorizon
	}
	return s, nil
}

// Single is the series of a non-recurring interval.
func Single(i Interval) Series {
	return Series{
		rule:  Rule{Start: i.Start, End: i.End, Type: models.RepeatNone},
		count: 1,
		first: i,
		last:  i,
	}
}

func (s Series) All() iter.Seq[Interval] {
	if s.count == 0 {
		return func(func(Interval) bool) {}
	}
	return Occurrences(s.rule)
}

func (s Series) Slice() []Interval {
	out := make([]Interval, 0, s.count)
	for occ := range s.All() {
		out = append(out, occ)
	}
	return out
}

func (s Series) Len() int {
	return s.count
}

func (s Series) First() Interval {
	return s.first
}

func (s Series) Last() Interval {
	return s.last
}

// Span runs from the first start to the last end.
func (s Series) Span() Interval {
	return Interval{Start: s.first.Start, End: s.last.End}
}

func dateKey(t time.Time, loc *time.Location) int {
	y, m, d := t.In(loc).Date()
	return y*10000 + int(m)*100 + d
}
