// Package geo places local simulation coordinates on the globe.
//
// Positions are stored as EPSG:3857 points with the height in Z, because
// SQLite has no spatial awareness and the WKB written by the point type can
// be read back on either database without reprojection.
package geo

import (
	"errors"
	"fmt"
	"math"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"

	"github.com/OCAP2/softbody/internal/vmath"
	"github.com/OCAP2/softbody/pkg/core"
)

// maxLat is the latitude limit of web mercator.
const maxLat = 85.05112878

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// Projector maps local metres around an origin onto EPSG:3857 and EPSG:4326.
// The mapping is a local tangent plane: exact at the origin and good to a
// few centimetres over the extent of a vehicle scene.
type Projector struct {
	origin core.GeoOrigin
	ox, oy float64
	// scale is mercator metres per ground metre at the origin latitude.
	scale    float64
	toLonLat func(a, b, c float64) (float64, float64, float64)
}

// NewProjector returns a projector anchored at o.
func NewProjector(o core.GeoOrigin) (*Projector, error) {
	if math.IsNaN(o.Lat) || math.IsNaN(o.Lon) || math.Abs(o.Lat) >= maxLat || math.Abs(o.Lon) > 180 {
		return nil, fmt.Errorf("origin %v,%v: %w", o.Lat, o.Lon, ErrInvalidCoordinates)
	}
	epsg := wgs84.EPSG()
	ox, oy, _ := epsg.Transform(4326, 3857)(o.Lon, o.Lat, 0)
	return &Projector{
		origin:   o,
		ox:       ox,
		oy:       oy,
		scale:    1 / math.Cos(o.Lat*math.Pi/180),
		toLonLat: epsg.Transform(3857, 4326),
	}, nil
}

// Origin returns the anchor of the projector.
func (p *Projector) Origin() core.GeoOrigin { return p.origin }

// Mercator returns the EPSG:3857 coordinates of a local position.
func (p *Projector) Mercator(pos vmath.Vec3) (x, y float64) {
	return p.ox + pos.X*p.scale, p.oy - pos.Z*p.scale
}

// LonLat returns the EPSG:4326 coordinates of a local position.
func (p *Projector) LonLat(pos vmath.Vec3) (lon, lat float64) {
	x, y := p.Mercator(pos)
	lon, lat, _ = p.toLonLat(x, y, 0)
	return lon, lat
}

// Point returns the EPSG:3857 point of a local position, height in Z.
func (p *Projector) Point(pos vmath.Vec3) geom.Point {
	x, y := p.Mercator(pos)
	return geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: x, Y: y},
			Z:    pos.Y,
			Type: geom.DimXYZ,
		},
	)
}

// Track returns the EPSG:3857 line through the local positions.
func (p *Projector) Track(positions []vmath.Vec3) (geom.LineString, error) {
	if len(positions) < 2 {
		return geom.LineString{}, fmt.Errorf("track must have at least 2 points, got %d", len(positions))
	}
	flat := make([]float64, 0, len(positions)*3)
	for _, pos := range positions {
		x, y := p.Mercator(pos)
		flat = append(flat, x, y, pos.Y)
	}
	return geom.NewLineString(geom.NewSequence(flat, geom.DimXYZ)), nil
}

// SnapshotPosition returns the position of the first node of s.
func SnapshotPosition(s *core.Snapshot) (vmath.Vec3, bool) {
	if s.NodeCount() == 0 {
		return vmath.Zero, false
	}
	return vmath.V(float64(s.Nodes[0]), float64(s.Nodes[1]), float64(s.Nodes[2])), true
}
