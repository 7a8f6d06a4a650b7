package gtfsgeneral

// NOTE: This describes only the slice of GTFS the resolver and filter engine
// depend on. Unknown tables and columns round-trip untouched.

type tableSchema struct {
	PrimaryKey []string
	// Required columns must be present before the table participates in a
	// filter run. Everything else is carried along verbatim.
	Required []string
	Refs     []reference
}

// reference is one foreign-key edge of the table graph. Optional references
// may be null/absent; a present value must still resolve.
type reference struct {
	Column   string
	Table    string
	Optional bool
}

var gtfsSchema = map[string]tableSchema{
	"agency": {
		PrimaryKey: []string{"agency_id"},
		Required:   []string{"agency_id"},
	},

	"stops": {
		PrimaryKey: []string{"stop_id"},
		Required:   []string{"stop_id", "stop_lat", "stop_lon"},
		Refs: []reference{
			{Column: "parent_station", Table: "stops", Optional: true},
		},
	},

	"routes": {
		PrimaryKey: []string{"route_id"},
		Required:   []string{"route_id"},
		Refs: []reference{
			{Column: "agency_id", Table: "agency", Optional: true},
		},
	},

	"trips": {
		PrimaryKey: []string{"trip_id"},
		Required:   []string{"trip_id", "route_id", "service_id"},
		Refs: []reference{
			{Column: "route_id", Table: "routes"},
			{Column: "shape_id", Table: "shapes", Optional: true},
		},
	},

	"stop_times": {
		PrimaryKey: []string{"trip_id", "stop_sequence"},
		Required:   []string{"trip_id", "stop_id", "stop_sequence"},
		Refs: []reference{
			{Column: "trip_id", Table: "trips"},
			{Column: "stop_id", Table: "stops"},
		},
	},

	"calendar": {
		PrimaryKey: []string{"service_id"},
		Required: []string{
			"service_id",
			"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
			"start_date", "end_date",
		},
	},

	"calendar_dates": {
		PrimaryKey: []string{"service_id", "date"},
		Required:   []string{"service_id", "date", "exception_type"},
	},

	"shapes": {
		PrimaryKey: []string{"shape_id", "shape_pt_sequence"},
		Required:   []string{"shape_id"},
	},

	"frequencies": {
		Required: []string{"trip_id"},
		Refs: []reference{
			{Column: "trip_id", Table: "trips"},
		},
	},

	"transfers": {
		Required: []string{"from_stop_id", "to_stop_id"},
		Refs: []reference{
			{Column: "from_stop_id", Table: "stops"},
			{Column: "to_stop_id", Table: "stops"},
		},
	},

	"fare_rules": {
		Refs: []reference{
			{Column: "route_id", Table: "routes", Optional: true},
		},
	},

	"fare_attributes": {
		PrimaryKey: []string{"fare_id"},
		Required:   []string{"fare_id"},
	},

	"pathways": {
		PrimaryKey: []string{"pathway_id"},
		Required:   []string{"pathway_id", "from_stop_id", "to_stop_id"},
		Refs: []reference{
			{Column: "from_stop_id", Table: "stops"},
			{Column: "to_stop_id", Table: "stops"},
		},
	},

	"attributions": {
		Refs: []reference{
			{Column: "agency_id", Table: "agency", Optional: true},
			{Column: "route_id", Table: "routes", Optional: true},
			{Column: "trip_id", Table: "trips", Optional: true},
		},
	},

	"feed_info": {},
}

// requiredTables must all exist in the input before any operation runs.
// calendar/calendar_dates are conditionally required: at least one of the two.
var requiredTables = []string{"agency", "stops", "routes", "trips", "stop_times"}

// weekdayColumns in time.Weekday order (Sunday first).
var weekdayColumns = [7]string{
	"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday",
}
