package gtfsgeneral

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func columnValues(t *Table, col string) []string {
	var out []string
	for _, row := range t.Rows {
		out = append(out, t.Field(row, col))
	}
	return out
}

func TestExtractByBboxKeepsAnchoredTripsWhole(t *testing.T) {
	bbox, err := ParseBbox(testBboxArg)
	require.NoError(t, err)

	got, report, err := ExtractByBbox(context.Background(), sampleFeed(t), bbox, FilterOptions{})
	require.NoError(t, err)

	// T1 and T2 each visit a stop inside the box; T3 only visits Faraway.
	assert.Equal(t, []string{"T1", "T2"}, columnValues(got.Table("trips"), "trip_id"))

	// T1 keeps its full stop sequence, including the stop outside the box,
	// and that stop survives with it.
	assert.Equal(t, []string{"HBF", "FAR", "NORTH", "STAD"},
		columnValues(got.Table("stop_times"), "stop_id"))
	assert.Equal(t, []string{"HBF", "STAD", "FAR", "NORTH"},
		columnValues(got.Table("stops"), "stop_id"))

	// R2 has no surviving trips and is pruned; its agency survives via R1.
	assert.Equal(t, []string{"R1"}, columnValues(got.Table("routes"), "route_id"))
	assert.Equal(t, []string{"A1"}, columnValues(got.Table("agency"), "agency_id"))

	assert.Equal(t, []string{"WEEK"}, columnValues(got.Table("calendar"), "service_id"))
	assert.Equal(t, 0, got.Table("calendar_dates").Len())

	assert.Equal(t, []string{"SH1", "SH1"}, columnValues(got.Table("shapes"), "shape_id"))
	assert.Equal(t, 0, got.Table("frequencies").Len())
	assert.Equal(t, 2, got.Table("transfers").Len())
	assert.Equal(t, []string{"F1", "F3"}, columnValues(got.Table("fare_rules"), "fare_id"))
	assert.Equal(t, 1, got.Table("feed_info").Len())

	assert.Equal(t, []string{"calendar_dates", "frequencies"}, report.Empty)
	assert.Empty(t, report.Dangling)
}

func TestExtractByBboxNothingInside(t *testing.T) {
	bbox, err := ParseBbox("0,0,1,1")
	require.NoError(t, err)

	got, report, err := ExtractByBbox(context.Background(), sampleFeed(t), bbox, FilterOptions{})
	require.NoError(t, err)

	assert.Equal(t, 0, got.Table("trips").Len())
	assert.Equal(t, 0, got.Table("stop_times").Len())
	assert.Equal(t, 0, got.Table("stops").Len())
	assert.Equal(t, 0, got.Table("routes").Len())
	assert.Equal(t, 0, got.Table("agency").Len())
	assert.Contains(t, report.Empty, "trips")
	assert.Contains(t, report.Warnings(), "no rows of trips survived the filter")
}

func TestExtractByFeature(t *testing.T) {
	// Covers Hauptbahnhof and Stadium but not North Street (see the stop
	// index tests). T2 still survives because it visits Stadium.
	feature, err := ParseClipFeature(`{
		"type": "Polygon",
		"coordinates": [[[8.55, 49.35], [8.75, 49.35], [8.55, 49.47], [8.55, 49.35]]]
	}`)
	require.NoError(t, err)

	got, _, err := ExtractByFeature(context.Background(), sampleFeed(t), feature, FilterOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"T1", "T2"}, columnValues(got.Table("trips"), "trip_id"))
	assert.Equal(t, []string{"HBF", "STAD", "FAR", "NORTH"},
		columnValues(got.Table("stops"), "stop_id"))
}

func TestExtractByDate(t *testing.T) {
	got, report, err := ExtractByDate(context.Background(), sampleFeed(t),
		20240101, 20240105, FilterOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"T1", "T2"}, columnValues(got.Table("trips"), "trip_id"))
	assert.Equal(t, []string{"WEEK"}, columnValues(got.Table("calendar"), "service_id"))
	assert.Equal(t, 0, got.Table("calendar_dates").Len())
	assert.Equal(t, []string{"R1"}, columnValues(got.Table("routes"), "route_id"))
	assert.Contains(t, report.Empty, "frequencies")
}

func TestExtractByDateExceptionOnlyWindow(t *testing.T) {
	// 2024-01-20 is a Saturday outside WKND's calendar window; the service is
	// only active there through a calendar_dates addition.
	got, _, err := ExtractByDate(context.Background(), sampleFeed(t),
		20240120, 20240120, FilterOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"T3"}, columnValues(got.Table("trips"), "trip_id"))
	assert.Equal(t, []string{"R2"}, columnValues(got.Table("routes"), "route_id"))
	assert.Equal(t, []string{"FAR"}, columnValues(got.Table("stops"), "stop_id"))
	assert.Equal(t, []string{"WKND"}, columnValues(got.Table("calendar"), "service_id"))
	assert.Equal(t, 1, got.Table("calendar_dates").Len())
	assert.Equal(t, 1, got.Table("frequencies").Len())
	assert.Equal(t, 0, got.Table("transfers").Len())
	assert.Equal(t, []string{"F2", "F3"}, columnValues(got.Table("fare_rules"), "fare_id"))
}

func TestExtractByDateInvalidRange(t *testing.T) {
	var rangeErr *InvalidDateRangeError

	_, _, err := ExtractByDate(context.Background(), sampleFeed(t),
		20240131, 20240101, FilterOptions{})
	require.ErrorAs(t, err, &rangeErr)

	_, _, err = ExtractByDate(context.Background(), sampleFeed(t),
		0, 20240131, FilterOptions{})
	require.ErrorAs(t, err, &rangeErr)
}

func TestExtractByDateIdempotent(t *testing.T) {
	once, _, err := ExtractByDate(context.Background(), sampleFeed(t),
		20240101, 20240105, FilterOptions{})
	require.NoError(t, err)

	twice, _, err := ExtractByDate(context.Background(), once,
		20240101, 20240105, FilterOptions{})
	require.NoError(t, err)

	for _, name := range once.TableNames() {
		assert.Equal(t, once.Table(name).Rows, twice.Table(name).Rows, name)
	}
}

func TestExtractByBboxIdempotent(t *testing.T) {
	bbox, err := ParseBbox(testBboxArg)
	require.NoError(t, err)

	once, _, err := ExtractByBbox(context.Background(), sampleFeed(t), bbox, FilterOptions{})
	require.NoError(t, err)

	twice, _, err := ExtractByBbox(context.Background(), once, bbox, FilterOptions{})
	require.NoError(t, err)

	for _, name := range once.TableNames() {
		assert.Equal(t, once.Table(name).Rows, twice.Table(name).Rows, name)
	}
}

func TestExtractByDateDropsTripsWithOnlyDanglingStopTimes(t *testing.T) {
	files := sampleFiles()
	files["trips"] += "R1,WEEK,T4,\n"
	files["stop_times"] += "T4,11:00:00,11:00:00,GHOST,1\n" +
		"PHANTOM,12:00:00,12:00:00,HBF,1\n"
	feed := feedOf(t, files)

	got, report, err := ExtractByDate(context.Background(), feed,
		20240101, 20240105, FilterOptions{})
	require.NoError(t, err)

	// T4's only stop time references a missing stop, so the row is dropped
	// and T4 must go with it rather than survive with no stop times.
	assert.Equal(t, []string{"T1", "T2"}, columnValues(got.Table("trips"), "trip_id"))
	assert.Equal(t, []string{"T1", "T1", "T2", "T2"},
		columnValues(got.Table("stop_times"), "trip_id"))
	assert.Equal(t, 1, report.Dangling["stop_times.stop_id"])
	assert.Equal(t, 1, report.Dangling["stop_times.trip_id"])
}

func TestExtractDropsRowsWithDanglingRequiredRefs(t *testing.T) {
	files := sampleFiles()
	files["trips"] += "NOPE,WEEK,T4,\n"
	files["stop_times"] += "GHOST,11:00:00,11:00:00,HBF,1\n" +
		"T4,12:00:00,12:00:00,HBF,1\n"
	feed := feedOf(t, files)

	bbox, err := ParseBbox(testBboxArg)
	require.NoError(t, err)
	got, report, err := ExtractByBbox(context.Background(), feed, bbox, FilterOptions{})
	require.NoError(t, err)

	// T4 references a missing route and is dropped with its stop times; the
	// GHOST stop time never anchors anything.
	assert.Equal(t, []string{"T1", "T2"}, columnValues(got.Table("trips"), "trip_id"))
	assert.Equal(t, 4, got.Table("stop_times").Len())
	assert.Equal(t, 1, report.Dangling["trips.route_id"])
	assert.Equal(t, 1, report.Dangling["stop_times.trip_id"])
	assert.Contains(t, report.Warnings(),
		"1 row(s) in stop_times.trip_id reference a missing parent")
}

func TestExtractClearsDanglingOptionalRefs(t *testing.T) {
	files := sampleFiles()
	files["stops"] = `
stop_id,stop_name,stop_lat,stop_lon,parent_station
HBF,Hauptbahnhof,49.40,8.60,GHOST
STAD,Stadium,49.41,8.61,
FAR,Faraway,50.00,9.50,
NORTH,North Street,49.45,8.70,
`
	feed := feedOf(t, files)

	bbox, err := ParseBbox(testBboxArg)
	require.NoError(t, err)
	got, report, err := ExtractByBbox(context.Background(), feed, bbox, FilterOptions{})
	require.NoError(t, err)

	// A bad parent_station must not cascade into dropping the stop (trips
	// still visit it); the reference is cleared instead.
	stops := got.Table("stops")
	require.Equal(t, "HBF", stops.Field(stops.Rows[0], "stop_id"))
	assert.Equal(t, "", stops.Field(stops.Rows[0], "parent_station"))
	assert.Equal(t, 1, report.Dangling["stops.parent_station"])

	// The input feed is untouched.
	inStops := feed.Table("stops")
	assert.Equal(t, "GHOST", inStops.Field(inStops.Rows[0], "parent_station"))
}

func TestExtractKeepsParentStationClosure(t *testing.T) {
	files := sampleFiles()
	files["stops"] = `
stop_id,stop_name,stop_lat,stop_lon,parent_station
HBF,Hauptbahnhof,49.40,8.60,PLAZA
STAD,Stadium,49.41,8.61,
FAR,Faraway,50.00,9.50,
NORTH,North Street,49.45,8.70,
PLAZA,Station Plaza,49.399,8.599,
`
	feed := feedOf(t, files)

	got, _, err := ExtractByDate(context.Background(), feed, 20240101, 20240105, FilterOptions{})
	require.NoError(t, err)

	// PLAZA has no stop times of its own but is kept as HBF's parent.
	assert.Contains(t, columnValues(got.Table("stops"), "stop_id"), "PLAZA")
}

func TestExtractNarrowsCompanionTables(t *testing.T) {
	files := sampleFiles()
	files["pathways"] = `
pathway_id,from_stop_id,to_stop_id,pathway_mode,is_bidirectional
P1,HBF,STAD,1,1
P2,HBF,FAR,1,1
P3,FAR,FAR,1,1
`
	files["attributions"] = `
attribution_id,agency_id,route_id,trip_id,organization_name
AT1,A1,,,Metro GmbH
AT2,,R2,,Contractor
AT3,,,T1,Operator
`
	files["fare_attributes"] = `
fare_id,price,currency_type,payment_method,transfers
F1,2.50,EUR,0,0
F2,3.50,EUR,0,0
F3,1.50,EUR,0,0
`
	feed := feedOf(t, files)

	// The exception-only window keeps just T3/R2/FAR (see above), narrowing
	// everything that hangs off stops, routes, trips, and fares.
	got, _, err := ExtractByDate(context.Background(), feed,
		20240120, 20240120, FilterOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"P3"}, columnValues(got.Table("pathways"), "pathway_id"))
	assert.Equal(t, []string{"AT1", "AT2"},
		columnValues(got.Table("attributions"), "attribution_id"))
	assert.Equal(t, []string{"F2", "F3"},
		columnValues(got.Table("fare_attributes"), "fare_id"))
}

func TestExtractValidatesOptions(t *testing.T) {
	bbox, err := ParseBbox(testBboxArg)
	require.NoError(t, err)

	_, _, err = ExtractByBbox(context.Background(), sampleFeed(t), bbox, FilterOptions{Cores: -1})
	assert.ErrorContains(t, err, "filter options")
}

func TestExtractCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bbox, err := ParseBbox(testBboxArg)
	require.NoError(t, err)
	_, _, err = ExtractByBbox(ctx, sampleFeed(t), bbox, FilterOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}
