package geofence

import (
	"bytes"
	"encoding/json"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"livestock-collar-backend/internal/apperr"
)

// ParseBoundary decodes a parcel boundary stored as a GeoJSON Feature,
// FeatureCollection, Polygon or MultiPolygon. An empty value yields a nil
// geometry and no error.
func ParseBoundary(raw []byte) (orb.Geometry, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, apperr.Geometry("boundary is not valid JSON: %v", err)
	}

	var geom orb.Geometry
	switch head.Type {
	case "Feature":
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return nil, apperr.Geometry("invalid feature: %v", err)
		}
		geom = f.Geometry
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(raw)
		if err != nil {
			return nil, apperr.Geometry("invalid feature collection: %v", err)
		}
		var mp orb.MultiPolygon
		for _, f := range fc.Features {
			switch g := f.Geometry.(type) {
			case orb.Polygon:
				mp = append(mp, g)
			case orb.MultiPolygon:
				mp = append(mp, g...)
			}
		}
		geom = mp
	default:
		g, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return nil, apperr.Geometry("invalid geometry: %v", err)
		}
		geom = g.Geometry()
	}

	switch g := geom.(type) {
	case orb.Polygon:
		if err := checkPolygon(g); err != nil {
			return nil, err
		}
		return g, nil
	case orb.MultiPolygon:
		if len(g) == 0 {
			return nil, apperr.Geometry("boundary contains no polygons")
		}
		for i, poly := range g {
			if err := checkPolygon(poly); err != nil {
				return nil, apperr.Geometry("polygon %d: %v", i, err)
			}
		}
		return g, nil
	default:
		return nil, apperr.Geometry("unsupported boundary type %q", head.Type)
	}
}

// checkPolygon requires an outer ring and every ring to be closed with at
// least four positions. planar indexes rings without bounds checks.
func checkPolygon(p orb.Polygon) error {
	if len(p) == 0 {
		return apperr.Geometry("polygon has no rings")
	}
	for _, ring := range p {
		if len(ring) < 4 {
			return apperr.Geometry("polygon needs closed rings of at least four positions")
		}
	}
	return nil
}

// Contains reports whether the point lies inside the geometry. Points on the
// boundary count as inside.
func Contains(geom orb.Geometry, p orb.Point) (bool, error) {
	switch g := geom.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, p), nil
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p), nil
	default:
		return false, apperr.Geometry("cannot test containment against %T", geom)
	}
}
