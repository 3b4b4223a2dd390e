package catalog

import (
	"eodl/internal/geometry"
	"eodl/internal/models"
)

// ApplyGeometry returns spec with its geometry replaced by g. Any geometry
// already present, e.g. from the configuration's query, is discarded. A nil
// g leaves spec untouched.
func ApplyGeometry(spec models.QuerySpec, g *geometry.Value) models.QuerySpec {
	if g == nil {
		return spec
	}
	out := spec.Clone()
	out.Geometry = g.WKT
	return out
}
