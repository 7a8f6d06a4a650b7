package gtfsgeneral

import (
	"fmt"
	"sort"
	"time"
)

// Date is a GTFS service day in YYYYMMDD form, e.g. 20240131.
type Date int

// ParseDate parses the GTFS YYYYMMDD date format.
func ParseDate(s string) (Date, error) {
	t, err := time.ParseInLocation("20060102", s, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("parse date %q: %w", s, err)
	}
	return dateOf(t), nil
}

func dateOf(t time.Time) Date {
	return Date(t.Year()*10000 + int(t.Month())*100 + t.Day())
}

func (d Date) Time() time.Time {
	return time.Date(int(d)/10000, time.Month(int(d)/100%100), int(d)%100, 0, 0, 0, 0, time.UTC)
}

func (d Date) Weekday() time.Weekday { return d.Time().Weekday() }

func (d Date) next() Date { return dateOf(d.Time().AddDate(0, 0, 1)) }

// String renders the date the way the metadata report prints it.
func (d Date) String() string { return d.Time().Format("2006-01-02") }

const (
	exceptionAdded   = "1"
	exceptionRemoved = "2"
)

// Resolver maps each service_id to its resolved set of active calendar dates:
// the weekly pattern of its calendar row expanded over the validity window,
// with calendar_dates exceptions applied on top. Exceptions always win over
// the weekly pattern for their date.
//
// All sets are resolved up front; afterwards the Resolver is read-only and
// safe to share across filter workers without locking.
type Resolver struct {
	active map[string][]Date // service_id -> sorted active dates
}

type calendarException struct {
	date Date
	kind string
	pos  int
}

// NewResolver resolves every service in the feed. A service_id appearing only
// in calendar_dates (no calendar row) starts from an empty candidate set.
func NewResolver(feed *Feed) (*Resolver, error) {
	exceptions := make(map[string][]calendarException)
	if t := feed.Table("calendar_dates"); t != nil && t.Len() > 0 {
		if err := t.requireColumns(gtfsSchema["calendar_dates"].Required...); err != nil {
			return nil, err
		}
		for i, row := range t.Rows {
			serviceID := t.Field(row, "service_id")
			date, err := ParseDate(t.Field(row, "date"))
			if err != nil {
				return nil, fmt.Errorf("calendar_dates.txt row %d: %w", i+2, err)
			}
			exceptions[serviceID] = append(exceptions[serviceID], calendarException{
				date: date,
				kind: t.Field(row, "exception_type"),
				pos:  i,
			})
		}
	}

	r := &Resolver{active: make(map[string][]Date)}

	if t := feed.Table("calendar"); t != nil && t.Len() > 0 {
		if err := t.requireColumns(gtfsSchema["calendar"].Required...); err != nil {
			return nil, err
		}
		for i, row := range t.Rows {
			serviceID := t.Field(row, "service_id")
			start, err := ParseDate(t.Field(row, "start_date"))
			if err != nil {
				return nil, fmt.Errorf("calendar.txt row %d: %w", i+2, err)
			}
			end, err := ParseDate(t.Field(row, "end_date"))
			if err != nil {
				return nil, fmt.Errorf("calendar.txt row %d: %w", i+2, err)
			}

			var weekdays [7]bool
			for w, col := range weekdayColumns {
				weekdays[w] = t.Field(row, col) == "1"
			}

			set := make(map[Date]struct{})
			// An inverted validity window yields an empty candidate set, not
			// an error.
			for d := start; d <= end; d = d.next() {
				if weekdays[d.Weekday()] {
					set[d] = struct{}{}
				}
			}
			r.active[serviceID] = applyExceptions(set, exceptions[serviceID])
			delete(exceptions, serviceID)
		}
	}

	// Services defined purely by exceptions.
	for serviceID, exs := range exceptions {
		r.active[serviceID] = applyExceptions(make(map[Date]struct{}), exs)
	}

	return r, nil
}

// applyExceptions applies exception rows in date order. Both kinds are
// idempotent; for duplicate rows on the same date the last one in input order
// wins. Unknown exception types are ignored.
func applyExceptions(set map[Date]struct{}, exs []calendarException) []Date {
	sort.SliceStable(exs, func(i, j int) bool {
		if exs[i].date != exs[j].date {
			return exs[i].date < exs[j].date
		}
		return exs[i].pos < exs[j].pos
	})
	for _, ex := range exs {
		switch ex.kind {
		case exceptionAdded:
			set[ex.date] = struct{}{}
		case exceptionRemoved:
			delete(set, ex.date)
		}
	}
	out := make([]Date, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ActiveDates returns the sorted active-date set of a service. The returned
// slice is shared; callers must not mutate it.
func (r *Resolver) ActiveDates(serviceID string) []Date {
	return r.active[serviceID]
}

// Overlaps reports whether the service is active on at least one date in
// [start, end].
func (r *Resolver) Overlaps(serviceID string, start, end Date) bool {
	dates := r.active[serviceID]
	i := sort.Search(len(dates), func(i int) bool { return dates[i] >= start })
	return i < len(dates) && dates[i] <= end
}

// ServiceIDs returns every resolved service_id, sorted.
func (r *Resolver) ServiceIDs() []string {
	out := make([]string, 0, len(r.active))
	for id := range r.active {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// GlobalRange returns the earliest and latest active date across all
// services. It fails with ErrEmptyFeed when no service has any active date.
func (r *Resolver) GlobalRange() (Date, Date, error) {
	var min, max Date
	for _, dates := range r.active {
		if len(dates) == 0 {
			continue
		}
		if min == 0 || dates[0] < min {
			min = dates[0]
		}
		if dates[len(dates)-1] > max {
			max = dates[len(dates)-1]
		}
	}
	if min == 0 {
		return 0, 0, ErrEmptyFeed
	}
	return min, max, nil
}

// latestStart returns the latest first-active-date across all services with
// at least one active date. Backs the metadata report.
func (r *Resolver) latestStart() (Date, bool) {
	var latest Date
	for _, dates := range r.active {
		if len(dates) > 0 && dates[0] > latest {
			latest = dates[0]
		}
	}
	return latest, latest != 0
}
