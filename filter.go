package gtfsgeneral

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/geojson"
)

var validate = validator.New()

// FilterOptions bounds the partition coordinator. The zero value means "use
// every core" with the default chunk size.
type FilterOptions struct {
	Cores     int `validate:"omitempty,min=1"`
	ChunkSize int `validate:"omitempty,min=1"`
}

// FilterReport aggregates the recoverable defects of a run: dangling
// references (counted per table.column, reported once) and tables left with
// zero surviving rows. Neither is an error.
type FilterReport struct {
	// Dangling maps "table.column" to the number of rows affected by a
	// foreign key with no matching parent in the input.
	Dangling map[string]int
	// Empty lists input tables that had rows but kept none.
	Empty []string
}

func newFilterReport() *FilterReport {
	return &FilterReport{Dangling: make(map[string]int)}
}

func (r *FilterReport) noteDangling(table, column string) {
	r.Dangling[table+"."+column]++
}

// Warnings renders the aggregated report, one line per defect class.
func (r *FilterReport) Warnings() []string {
	var out []string
	keys := make([]string, 0, len(r.Dangling))
	for k := range r.Dangling {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%d row(s) in %s reference a missing parent", r.Dangling[k], k))
	}
	for _, table := range r.Empty {
		out = append(out, fmt.Sprintf("no rows of %s survived the filter", table))
	}
	return out
}

type keepSet map[string]struct{}

func (s keepSet) has(id string) bool {
	_, found := s[id]
	return found
}

func (s keepSet) add(id string) { s[id] = struct{}{} }

// ExtractByDate keeps every trip whose service is active on at least one date
// in [start, end], then narrows all dependent tables top-down.
func ExtractByDate(ctx context.Context, feed *Feed, start, end Date, opts FilterOptions) (*Feed, *FilterReport, error) {
	if start == 0 || end == 0 {
		return nil, nil, &InvalidDateRangeError{Start: start.String(), End: end.String(), Reason: "both dates are required"}
	}
	if start > end {
		return nil, nil, &InvalidDateRangeError{Start: start.String(), End: end.String(), Reason: "start_date is after end_date"}
	}
	if err := validate.Struct(opts); err != nil {
		return nil, nil, fmt.Errorf("filter options: %w", err)
	}

	resolver, err := NewResolver(feed)
	if err != nil {
		return nil, nil, err
	}

	anchor := make(keepSet)
	for _, serviceID := range resolver.ServiceIDs() {
		if resolver.Overlaps(serviceID, start, end) {
			anchor.add(serviceID)
		}
	}
	slog.Info(fmt.Sprintf("Found %d of %d services active between %s and %s",
		len(anchor), len(resolver.ServiceIDs()), start, end))

	run := newFilterRun(ctx, feed, opts)
	if err := run.cascadeFromServices(anchor); err != nil {
		return nil, nil, err
	}
	return run.finish()
}

// ExtractByBbox keeps every trip with at least one stop inside the bounding
// box. Kept trips are retained whole: all of their stop times survive, and so
// do the stops they reference, even outside the box.
func ExtractByBbox(ctx context.Context, feed *Feed, bbox Bbox, opts FilterOptions) (*Feed, *FilterReport, error) {
	if err := validate.Struct(opts); err != nil {
		return nil, nil, fmt.Errorf("filter options: %w", err)
	}

	index := buildStopIndex(feed.Table("stops"))
	anchor := keepSet(index.within(bbox))
	slog.Info(fmt.Sprintf("%d of %d stops are inside bbox %s", len(anchor), index.total, bbox))

	run := newFilterRun(ctx, feed, opts)
	if err := run.cascadeFromStops(anchor); err != nil {
		return nil, nil, err
	}
	return run.finish()
}

// ExtractByFeature is ExtractByBbox with an arbitrary GeoJSON geometry as the
// spatial anchor predicate.
func ExtractByFeature(ctx context.Context, feed *Feed, feature geojson.Object, opts FilterOptions) (*Feed, *FilterReport, error) {
	if err := validate.Struct(opts); err != nil {
		return nil, nil, fmt.Errorf("filter options: %w", err)
	}

	index := buildStopIndex(feed.Table("stops"))
	anchor := keepSet(index.withinFeature(feature))
	slog.Info(fmt.Sprintf("%d of %d stops are inside the clip feature (%d points)",
		len(anchor), index.total, feature.NumPoints()))

	run := newFilterRun(ctx, feed, opts)
	if err := run.cascadeFromStops(anchor); err != nil {
		return nil, nil, err
	}
	return run.finish()
}

// filterRun holds the state of one cascade: the immutable input feed, the
// per-table keep-sets computed pass by pass, and the survivor tables.
type filterRun struct {
	ctx    context.Context
	in     *Feed
	opts   FilterOptions
	report *FilterReport
	out    map[string]*Table

	// Input id sets, used both as cascade parents and to tell "filtered out"
	// apart from "was never there" (dangling).
	tripIDs    map[string]struct{}
	stopIDs    map[string]struct{}
	routeIDs   map[string]struct{}
	agencyIDs  map[string]struct{}
	serviceIDs map[string]struct{}
	shapeIDs   map[string]struct{}
}

func newFilterRun(ctx context.Context, feed *Feed, opts FilterOptions) *filterRun {
	run := &filterRun{
		ctx:    ctx,
		in:     feed,
		opts:   opts,
		report: newFilterReport(),
		out:    make(map[string]*Table),

		tripIDs:   feed.ids("trips", "trip_id"),
		stopIDs:   feed.ids("stops", "stop_id"),
		routeIDs:  feed.ids("routes", "route_id"),
		agencyIDs: feed.ids("agency", "agency_id"),
		shapeIDs:  feed.ids("shapes", "shape_id"),
	}
	run.serviceIDs = feed.ids("calendar", "service_id")
	for id := range feed.ids("calendar_dates", "service_id") {
		run.serviceIDs[id] = struct{}{}
	}
	return run
}

// cascadeFromStops implements the bbox policy: bottom-up anchor through
// stop_times, then whole-trip retention and forward references.
func (run *filterRun) cascadeFromStops(anchorStops keepSet) error {
	stopTimes := run.in.Table("stop_times")

	// Pass 1: a trip is anchored iff any of its stop times visits an anchor
	// stop. Rows referencing a missing trip or stop never anchor anything.
	anchored := make(keepSet)
	for _, row := range stopTimes.Rows {
		tripID := stopTimes.Field(row, "trip_id")
		stopID := stopTimes.Field(row, "stop_id")
		if _, ok := run.tripIDs[tripID]; !ok {
			run.report.noteDangling("stop_times", "trip_id")
			continue
		}
		if _, ok := run.stopIDs[stopID]; !ok {
			run.report.noteDangling("stop_times", "stop_id")
			continue
		}
		if anchorStops.has(stopID) {
			anchored.add(tripID)
		}
	}
	slog.Info(fmt.Sprintf("%d trips visit an anchor stop", len(anchored)))

	keepTrips, keepRoutes, keepServices, keepShapes := run.tripKeepSets(func(tripID string) bool {
		return anchored.has(tripID)
	})

	return run.filterAll(keepTrips, keepRoutes, keepServices, keepShapes)
}

// cascadeFromServices implements the date policy: anchor services, then
// forward references only. Calendar rows are narrowed to the anchor itself so
// that exception-only services inside the window survive even when none of
// their trips do.
func (run *filterRun) cascadeFromServices(anchorServices keepSet) error {
	// Invariant: no trip survives with zero stop times. Rows with a dangling
	// trip or stop are dropped later anyway, so they must not count here or a
	// trip could survive on stop times that do not.
	tripsWithStopTimes := make(keepSet)
	stopTimes := run.in.Table("stop_times")
	for _, row := range stopTimes.Rows {
		tripID := stopTimes.Field(row, "trip_id")
		stopID := stopTimes.Field(row, "stop_id")
		if _, ok := run.tripIDs[tripID]; !ok {
			run.report.noteDangling("stop_times", "trip_id")
			continue
		}
		if _, ok := run.stopIDs[stopID]; !ok {
			run.report.noteDangling("stop_times", "stop_id")
			continue
		}
		tripsWithStopTimes.add(tripID)
	}

	trips := run.in.Table("trips")
	keepTrips, keepRoutes, _, keepShapes := run.tripKeepSets(func(tripID string) bool {
		return tripsWithStopTimes.has(tripID)
	}, func(row []string) bool {
		return anchorServices.has(trips.Field(row, "service_id"))
	})

	return run.filterAll(keepTrips, keepRoutes, anchorServices, keepShapes)
}

// tripKeepSets scans the trips table once and derives the keep-sets for trips
// and everything trips reference forward. A trip is kept iff every tripPred
// accepts it and its required references resolve; rows with a dangling
// route_id or service_id are dropped and counted.
func (run *filterRun) tripKeepSets(byID func(tripID string) bool, rowPreds ...func(row []string) bool) (keepTrips, keepRoutes, keepServices, keepShapes keepSet) {
	trips := run.in.Table("trips")
	keepTrips = make(keepSet)
	keepRoutes = make(keepSet)
	keepServices = make(keepSet)
	keepShapes = make(keepSet)

rows:
	for _, row := range trips.Rows {
		tripID := trips.Field(row, "trip_id")
		if !byID(tripID) {
			continue
		}
		for _, pred := range rowPreds {
			if !pred(row) {
				continue rows
			}
		}

		routeID := trips.Field(row, "route_id")
		if _, ok := run.routeIDs[routeID]; !ok {
			run.report.noteDangling("trips", "route_id")
			continue
		}
		serviceID := trips.Field(row, "service_id")
		if _, ok := run.serviceIDs[serviceID]; !ok {
			run.report.noteDangling("trips", "service_id")
			continue
		}

		keepTrips.add(tripID)
		keepRoutes.add(routeID)
		keepServices.add(serviceID)
		if shapeID := trips.Field(row, "shape_id"); shapeID != "" {
			if _, ok := run.shapeIDs[shapeID]; ok {
				keepShapes.add(shapeID)
			} else if run.in.Table("shapes") != nil {
				run.report.noteDangling("trips", "shape_id")
			}
		}
	}
	return keepTrips, keepRoutes, keepServices, keepShapes
}

// stopKeepSet collects the stops referenced by surviving stop times plus
// their parent-station closure. Kept trips keep their full stop sequence, so
// this includes stops outside any spatial anchor.
func (run *filterRun) stopKeepSet(keepTrips keepSet) keepSet {
	stopTimes := run.in.Table("stop_times")
	keepStops := make(keepSet)
	for _, row := range stopTimes.Rows {
		if !keepTrips.has(stopTimes.Field(row, "trip_id")) {
			continue
		}
		stopID := stopTimes.Field(row, "stop_id")
		if _, ok := run.stopIDs[stopID]; ok {
			keepStops.add(stopID)
		}
	}

	// Parent stations, transitively. The chain is at most a few levels deep;
	// iterate to a fixpoint anyway.
	stops := run.in.Table("stops")
	parents := make(map[string]string, stops.Len())
	for _, row := range stops.Rows {
		if parent := stops.Field(row, "parent_station"); parent != "" {
			parents[stops.Field(row, "stop_id")] = parent
		}
	}
	frontier := make(keepSet, len(keepStops))
	for stopID := range keepStops {
		frontier.add(stopID)
	}
	for len(frontier) > 0 {
		next := make(keepSet)
		for stopID := range frontier {
			parent, ok := parents[stopID]
			if !ok || keepStops.has(parent) {
				continue
			}
			if _, exists := run.stopIDs[parent]; !exists {
				run.report.noteDangling("stops", "parent_station")
				continue
			}
			keepStops.add(parent)
			next.add(parent)
		}
		frontier = next
	}
	return keepStops
}

// agencyKeepSet derives surviving agencies from surviving routes. Feeds that
// never fill agency_id (legal for single-agency feeds) keep the whole agency
// table as long as any route survives.
func (run *filterRun) agencyKeepSet(keepRoutes keepSet) (keepSet, bool) {
	routes := run.in.Table("routes")
	keepAgencies := make(keepSet)
	referenced := false
	for _, row := range routes.Rows {
		if !keepRoutes.has(routes.Field(row, "route_id")) {
			continue
		}
		agencyID := routes.Field(row, "agency_id")
		if agencyID == "" {
			continue
		}
		referenced = true
		if _, ok := run.agencyIDs[agencyID]; ok {
			keepAgencies.add(agencyID)
		} else {
			run.report.noteDangling("routes", "agency_id")
		}
	}
	keepAll := !referenced && len(keepRoutes) > 0
	return keepAgencies, keepAll
}

// filterAll executes the per-table filter passes over the partition
// coordinator. Passes are strictly sequential: each predicate closes over
// keep-sets that are complete before the pass starts.
func (run *filterRun) filterAll(keepTrips, keepRoutes, keepServices, keepShapes keepSet) error {
	keepStops := run.stopKeepSet(keepTrips)
	keepAgencies, allAgencies := run.agencyKeepSet(keepRoutes)

	// Orphan pruning. Construction already guarantees both invariants (routes
	// and services are only ever derived from surviving trips), so these
	// passes are cheap final checks rather than extra cascade rounds.
	tripsPerRoute := make(map[string]int)
	trips := run.in.Table("trips")
	for _, row := range trips.Rows {
		if keepTrips.has(trips.Field(row, "trip_id")) {
			tripsPerRoute[trips.Field(row, "route_id")]++
		}
	}
	for routeID := range keepRoutes {
		if tripsPerRoute[routeID] == 0 {
			delete(keepRoutes, routeID)
		}
	}

	type pass struct {
		table string
		keep  keepFunc
	}
	stopTimes := run.in.Table("stop_times")
	agency := run.in.Table("agency")
	transfers := run.in.Table("transfers")
	fareRules := run.in.Table("fare_rules")
	pathways := run.in.Table("pathways")
	attributions := run.in.Table("attributions")
	fareAttributes := run.in.Table("fare_attributes")

	agencyKept := func(agencyID string) bool {
		if allAgencies {
			_, ok := run.agencyIDs[agencyID]
			return ok
		}
		return keepAgencies.has(agencyID)
	}

	// fare_attributes are pruned by surviving fare_rules, so the fare keep-set
	// is derived up front with the same predicate the fare_rules pass uses.
	keepFares := make(keepSet)
	if fareRules != nil {
		for _, row := range fareRules.Rows {
			routeID := fareRules.Field(row, "route_id")
			if routeID == "" || keepRoutes.has(routeID) {
				keepFares.add(fareRules.Field(row, "fare_id"))
			}
		}
	}

	passes := []pass{
		{"trips", run.keepByID("trips", "trip_id", keepTrips)},
		{"stop_times", func(row []string) bool {
			if !keepTrips.has(stopTimes.Field(row, "trip_id")) {
				return false
			}
			_, stopExists := run.stopIDs[stopTimes.Field(row, "stop_id")]
			return stopExists
		}},
		{"stops", run.keepByID("stops", "stop_id", keepStops)},
		{"routes", run.keepByID("routes", "route_id", keepRoutes)},
		{"agency", func(row []string) bool {
			if allAgencies {
				return true
			}
			return keepAgencies.has(agency.Field(row, "agency_id"))
		}},
		{"calendar", run.keepByID("calendar", "service_id", keepServices)},
		{"calendar_dates", run.keepByID("calendar_dates", "service_id", keepServices)},
		{"shapes", run.keepByID("shapes", "shape_id", keepShapes)},
		{"frequencies", run.keepByID("frequencies", "trip_id", keepTrips)},
		{"transfers", func(row []string) bool {
			return keepStops.has(transfers.Field(row, "from_stop_id")) &&
				keepStops.has(transfers.Field(row, "to_stop_id"))
		}},
		{"fare_rules", func(row []string) bool {
			routeID := fareRules.Field(row, "route_id")
			return routeID == "" || keepRoutes.has(routeID)
		}},
		{"pathways", func(row []string) bool {
			from := pathways.Field(row, "from_stop_id")
			to := pathways.Field(row, "to_stop_id")
			return (from == "" || keepStops.has(from)) && (to == "" || keepStops.has(to))
		}},
		{"attributions", func(row []string) bool {
			if tripID := attributions.Field(row, "trip_id"); tripID != "" && !keepTrips.has(tripID) {
				return false
			}
			if routeID := attributions.Field(row, "route_id"); routeID != "" && !keepRoutes.has(routeID) {
				return false
			}
			if agencyID := attributions.Field(row, "agency_id"); agencyID != "" && !agencyKept(agencyID) {
				return false
			}
			return true
		}},
		{"fare_attributes", func(row []string) bool {
			if fareRules == nil {
				// Without a fare_rules table the relation is not in play.
				return true
			}
			if !keepFares.has(fareAttributes.Field(row, "fare_id")) {
				return false
			}
			agencyID := fareAttributes.Field(row, "agency_id")
			return agencyID == "" || agencyKept(agencyID)
		}},
	}

	for _, p := range passes {
		t := run.in.Table(p.table)
		if t == nil {
			continue
		}
		if err := run.ctx.Err(); err != nil {
			return err
		}
		filtered, err := mapFilter(run.ctx, t, p.keep, run.opts.Cores, run.opts.ChunkSize)
		if err != nil {
			return err
		}
		run.out[p.table] = filtered
		slog.Info(fmt.Sprintf("Kept %d of %d rows of %s", filtered.Len(), t.Len(), p.table))
	}

	// Dangling but optional references in survivors are cleared rather than
	// cascading the drop (dropping a stop over a bad parent_station would
	// truncate trips that visit it).
	run.clearDangling("stops", "parent_station", run.stopIDs)
	run.clearDangling("routes", "agency_id", run.agencyIDs)
	if run.in.Table("shapes") != nil {
		run.clearDangling("trips", "shape_id", run.shapeIDs)
	}

	// feed_info and tables this tool knows nothing about pass through whole.
	for _, name := range run.in.TableNames() {
		if _, done := run.out[name]; done {
			continue
		}
		run.out[name] = run.in.Table(name)
	}
	return nil
}

func (run *filterRun) keepByID(table, column string, keep keepSet) keepFunc {
	t := run.in.Table(table)
	return func(row []string) bool {
		return keep.has(t.Field(row, column))
	}
}

// clearDangling blanks optional foreign keys in survivor rows whose parent
// does not exist in the input. Rows are copied before mutation; the input
// feed is never written to.
func (run *filterRun) clearDangling(table, column string, parents map[string]struct{}) {
	t := run.out[table]
	if t == nil {
		return
	}
	col := t.Col(column)
	if col < 0 {
		return
	}
	for i, row := range t.Rows {
		if col >= len(row) || row[col] == "" {
			continue
		}
		if _, ok := parents[row[col]]; ok {
			continue
		}
		clone := make([]string, len(row))
		copy(clone, row)
		clone[col] = ""
		t.Rows[i] = clone
	}
}

// finish assembles the survivor feed and the empty-result part of the report.
func (run *filterRun) finish() (*Feed, *FilterReport, error) {
	if err := run.ctx.Err(); err != nil {
		return nil, nil, err
	}
	var empty []string
	for _, name := range run.in.TableNames() {
		in := run.in.Table(name)
		if in.Len() > 0 && run.out[name].Len() == 0 {
			empty = append(empty, name)
		}
	}
	sort.Strings(empty)
	run.report.Empty = empty

	for _, warning := range run.report.Warnings() {
		slog.Warn(warning)
	}

	out, err := NewFeed(run.out)
	if err != nil {
		return nil, nil, err
	}
	return out, run.report, nil
}
