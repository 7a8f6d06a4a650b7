package gtfsgeneral

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/tidwall/geojson"
	"github.com/tidwall/geojson/geometry"
	"github.com/tidwall/rtree"
)

// Bbox is an axis-aligned lon/lat rectangle in WGS84 degrees. Containment is
// a closed-interval test on both axes; there is no antimeridian wraparound.
type Bbox struct {
	rect geometry.Rect
}

// NewBbox fails with InvalidBboxError when either axis is inverted.
func NewBbox(lonMin, latMin, lonMax, latMax float64) (Bbox, error) {
	value := fmt.Sprintf("%v,%v,%v,%v", lonMin, latMin, lonMax, latMax)
	if lonMin > lonMax {
		return Bbox{}, &InvalidBboxError{Value: value, Reason: "lon_min > lon_max"}
	}
	if latMin > latMax {
		return Bbox{}, &InvalidBboxError{Value: value, Reason: "lat_min > lat_max"}
	}
	return Bbox{rect: geometry.Rect{
		Min: geometry.Point{X: lonMin, Y: latMin},
		Max: geometry.Point{X: lonMax, Y: latMax},
	}}, nil
}

// ParseBbox parses the CLI form "lon_min,lat_min,lon_max,lat_max".
func ParseBbox(s string) (Bbox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Bbox{}, &InvalidBboxError{Value: s, Reason: "expected 4 comma-separated values"}
	}
	var vals [4]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return Bbox{}, &InvalidBboxError{Value: s, Reason: fmt.Sprintf("value %d is not a number", i+1)}
		}
		vals[i] = v
	}
	return NewBbox(vals[0], vals[1], vals[2], vals[3])
}

// Contains tests stop membership: closed interval on both axes independently.
func (b Bbox) Contains(lon, lat float64) bool {
	return b.rect.ContainsPoint(geometry.Point{X: lon, Y: lat})
}

func (b Bbox) String() string {
	return fmt.Sprintf("%v,%v,%v,%v", b.rect.Min.X, b.rect.Min.Y, b.rect.Max.X, b.rect.Max.Y)
}

// stopIndex is a point index over the stops table. Stops with missing or
// unparseable coordinates are left out of the index (and therefore outside
// every query); they are logged once each.
type stopIndex struct {
	tr    rtree.RTreeG[string]
	total int
}

func buildStopIndex(stops *Table) *stopIndex {
	ix := &stopIndex{}
	for _, row := range stops.Rows {
		stopID := stops.Field(row, "stop_id")
		lon, errLon := strconv.ParseFloat(strings.TrimSpace(stops.Field(row, "stop_lon")), 64)
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(stops.Field(row, "stop_lat")), 64)
		if errLon != nil || errLat != nil {
			slog.Warn("Stop has no usable coordinates, treating as outside", "stop_id", stopID)
			continue
		}
		ix.tr.Insert([2]float64{lon, lat}, [2]float64{lon, lat}, stopID)
		ix.total++
	}
	return ix
}

// within returns the set of stop_ids inside the bbox.
func (ix *stopIndex) within(b Bbox) map[string]struct{} {
	out := make(map[string]struct{})
	ix.tr.Search(
		[2]float64{b.rect.Min.X, b.rect.Min.Y},
		[2]float64{b.rect.Max.X, b.rect.Max.Y},
		func(min, max [2]float64, stopID string) bool {
			out[stopID] = struct{}{}
			return true
		})
	return out
}

// withinFeature returns the set of stop_ids contained in an arbitrary GeoJSON
// geometry. The index narrows candidates to the feature's bounding rect, then
// each candidate is tested precisely.
func (ix *stopIndex) withinFeature(feature geojson.Object) map[string]struct{} {
	out := make(map[string]struct{})
	rect := feature.Rect()
	ix.tr.Search(
		[2]float64{rect.Min.X, rect.Min.Y},
		[2]float64{rect.Max.X, rect.Max.Y},
		func(min, max [2]float64, stopID string) bool {
			point := geojson.NewPoint(geometry.Point{X: min[0], Y: min[1]})
			if feature.Contains(point) {
				out[stopID] = struct{}{}
			}
			return true
		})
	return out
}

// ParseClipFeature parses a GeoJSON feature used as a spatial anchor.
func ParseClipFeature(featureJSON string) (geojson.Object, error) {
	feature, err := geojson.Parse(featureJSON, &geojson.ParseOptions{RequireValid: true})
	if err != nil {
		return nil, fmt.Errorf("parse clip feature: %w", err)
	}
	return feature, nil
}
