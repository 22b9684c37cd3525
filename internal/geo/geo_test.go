package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/softbody/internal/vmath"
	"github.com/OCAP2/softbody/pkg/core"
)

// metres per degree of latitude on the web mercator sphere
const degree = 6378137 * math.Pi / 180

func TestNewProjector_RejectsBadOrigin(t *testing.T) {
	for _, o := range []core.GeoOrigin{
		{Lat: 89, Lon: 0},
		{Lat: 0, Lon: 181},
		{Lat: math.NaN(), Lon: 0},
	} {
		_, err := NewProjector(o)
		assert.True(t, errors.Is(err, ErrInvalidCoordinates), "origin %v", o)
	}
}

func TestProjector_OriginRoundTrip(t *testing.T) {
	origin := core.GeoOrigin{Lat: 50.1, Lon: 8.6}
	p, err := NewProjector(origin)
	require.NoError(t, err)

	lon, lat := p.LonLat(vmath.Zero)
	assert.InDelta(t, origin.Lon, lon, 1e-9)
	assert.InDelta(t, origin.Lat, lat, 1e-9)
	assert.Equal(t, origin, p.Origin())
}

func TestProjector_AxesAtEquator(t *testing.T) {
	p, err := NewProjector(core.GeoOrigin{})
	require.NoError(t, err)

	// -z is north
	lon, lat := p.LonLat(vmath.V(0, 0, -1000))
	assert.InDelta(t, 0, lon, 1e-9)
	assert.InDelta(t, 1000/degree, lat, 1e-6)

	lon, lat = p.LonLat(vmath.V(1000, 0, 0))
	assert.InDelta(t, 1000/degree, lon, 1e-6)
	assert.InDelta(t, 0, lat, 1e-9)
}

func TestProjector_EastScalesWithLatitude(t *testing.T) {
	p, err := NewProjector(core.GeoOrigin{Lat: 60})
	require.NoError(t, err)

	lon, _ := p.LonLat(vmath.V(1000, 0, 0))
	// a degree of longitude is half as long at 60 degrees
	assert.InDelta(t, 2000/degree, lon, 1e-6)
}

func TestProjector_Point(t *testing.T) {
	p, err := NewProjector(core.GeoOrigin{})
	require.NoError(t, err)

	pt := p.Point(vmath.V(10, 2.5, -20))
	c, ok := pt.Coordinates()
	require.True(t, ok)
	assert.InDelta(t, 10, c.X, 1e-6)
	assert.InDelta(t, 20, c.Y, 1e-6)
	assert.Equal(t, 2.5, c.Z)
}

func TestProjector_Track(t *testing.T) {
	p, err := NewProjector(core.GeoOrigin{})
	require.NoError(t, err)

	ls, err := p.Track([]vmath.Vec3{vmath.V(0, 0, 0), vmath.V(3, 0, -4), vmath.V(3, 1, -8)})
	require.NoError(t, err)
	seq := ls.Coordinates()
	require.Equal(t, 3, seq.Length())
	assert.InDelta(t, 3, seq.GetXY(1).X, 1e-6)
	assert.InDelta(t, 8, seq.GetXY(2).Y, 1e-6)
	assert.InDelta(t, 9, ls.Length(), 1e-6)

	_, err = p.Track([]vmath.Vec3{vmath.Zero})
	assert.Error(t, err)
}

func TestSnapshotPosition(t *testing.T) {
	_, ok := SnapshotPosition(&core.Snapshot{})
	assert.False(t, ok)

	pos, ok := SnapshotPosition(&core.Snapshot{Nodes: []float32{1, 2, 3, 4, 5, 6}})
	require.True(t, ok)
	assert.Equal(t, vmath.V(1, 2, 3), pos)
}
