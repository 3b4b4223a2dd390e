// Package geometry reads the area of interest from a GeoJSON document and
// renders it as WKT for the catalog's geometry parameter.
package geometry

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"

	"eodl/internal/errs"
)

// Value is a parsed area of interest.
type Value struct {
	Geometry orb.Geometry
	WKT      string
}

// Load reads and parses a GeoJSON file.
func Load(path string) (*Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Configf("couldn't open geometry file %s: %w", path, err)
	}
	v, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("geometry file %s: %w", path, err)
	}
	return v, nil
}

// Parse accepts a FeatureCollection holding exactly one feature, a single
// Feature, or a bare geometry object.
func Parse(data []byte) (*Value, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, errs.Configf("geometry is not properly GeoJSON-encoded: %w", err)
	}

	var g orb.Geometry
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, errs.Configf("geometry is not properly GeoJSON-encoded: %w", err)
		}
		if len(fc.Features) != 1 {
			return nil, errs.Configf("expected exactly one feature, got %d", len(fc.Features))
		}
		g = fc.Features[0].Geometry
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, errs.Configf("geometry is not properly GeoJSON-encoded: %w", err)
		}
		g = f.Geometry
	case "":
		return nil, errs.Configf("GeoJSON document has no type")
	default:
		gg, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, errs.Configf("geometry is not properly GeoJSON-encoded: %w", err)
		}
		g = gg.Geometry()
	}

	g, err := simplify(g)
	if err != nil {
		return nil, err
	}
	return &Value{Geometry: g, WKT: wkt.MarshalString(g)}, nil
}

// simplify keeps the geometry kinds the catalog accepts, unwrapping a
// collection with a single member.
func simplify(g orb.Geometry) (orb.Geometry, error) {
	switch v := g.(type) {
	case orb.Point, orb.Polygon, orb.MultiPolygon:
		return v, nil
	case orb.Collection:
		if len(v) == 1 {
			return simplify(v[0])
		}
		return nil, errs.Configf("geometry collection must hold exactly one geometry, got %d", len(v))
	case nil:
		return nil, errs.Configf("feature has no geometry")
	default:
		return nil, errs.Configf("geometry is not a point, polygon or multipolygon (got %s)", g.GeoJSONType())
	}
}
