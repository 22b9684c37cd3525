package session

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/softbody/pkg/core"
)

func TestContext_Placeholder(t *testing.T) {
	ctx := NewContext()

	assert.Equal(t, "No session started", ctx.Get().Name)
	assert.False(t, ctx.Active())
	assert.False(t, ctx.End())
}

func TestContext_StartEnd(t *testing.T) {
	ctx := NewContext()
	origin := core.GeoOrigin{Lat: 47.5, Lon: 11.1}

	s := ctx.Start("proving ground", 60, origin)

	_, err := uuid.Parse(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "proving ground", s.Name)
	assert.Equal(t, 60, s.TickHz)
	assert.Equal(t, origin, s.Origin)
	assert.False(t, s.StartedAt.IsZero())
	assert.Same(t, s, ctx.Get())
	assert.True(t, ctx.Active())

	assert.True(t, ctx.End())
	assert.False(t, ctx.Active())
	assert.Same(t, s, ctx.Get())
}

func TestContext_FreshIDs(t *testing.T) {
	ctx := NewContext()
	a := ctx.Start("a", 60, core.GeoOrigin{})
	b := ctx.Start("b", 60, core.GeoOrigin{})
	assert.NotEqual(t, a.ID, b.ID)
}

func TestContext_ConcurrentAccess(t *testing.T) {
	ctx := NewContext()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ctx.Start("s", 60, core.GeoOrigin{})
		}()
		go func() {
			defer wg.Done()
			_ = ctx.Get().Name
			_ = ctx.Active()
		}()
	}
	wg.Wait()
	assert.True(t, ctx.Active())
}
