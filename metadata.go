package gtfsgeneral

import (
	"fmt"
	"sort"
	"strings"
)

// ServiceRange summarizes when a feed runs: the first and last active dates
// across all services, plus the latest date on which any single service
// starts. The latter tells a consumer how long the whole feed stays valid
// before some service has not yet begun.
type ServiceRange struct {
	Start       Date
	LatestStart Date
	End         Date
}

func (s ServiceRange) String() string {
	return fmt.Sprintf("%s (latest start %s) to %s", s.Start, s.LatestStart, s.End)
}

// Metadata is the summary reported without materializing any subset.
type Metadata struct {
	ServiceRange ServiceRange
	Services     int
	RowCounts    map[string]int
}

// FeedMetadata resolves every service calendar and reports the combined
// service range and per-table row counts. Returns ErrEmptyFeed when no
// service is active on any date.
func FeedMetadata(feed *Feed) (*Metadata, error) {
	resolver, err := NewResolver(feed)
	if err != nil {
		return nil, err
	}

	start, end, err := resolver.GlobalRange()
	if err != nil {
		return nil, err
	}
	latest, ok := resolver.latestStart()
	if !ok {
		return nil, ErrEmptyFeed
	}

	counts := make(map[string]int)
	for _, name := range feed.TableNames() {
		counts[name] = feed.Table(name).Len()
	}

	return &Metadata{
		ServiceRange: ServiceRange{Start: start, LatestStart: latest, End: end},
		Services:     len(resolver.ServiceIDs()),
		RowCounts:    counts,
	}, nil
}

// Render formats the metadata for the CLI, one line per fact.
func (m *Metadata) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "service range:\t%s\n", m.ServiceRange)
	fmt.Fprintf(&b, "services:\t%d\n", m.Services)
	names := make([]string, 0, len(m.RowCounts))
	for name := range m.RowCounts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "%s:\t%d rows\n", name, m.RowCounts[name])
	}
	return b.String()
}
