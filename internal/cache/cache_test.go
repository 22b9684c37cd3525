package cache

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/softbody/pkg/core"
)

func TestDefinitionCache_SetGet(t *testing.T) {
	c := NewDefinitionCache()

	c.Set("pickup", &core.Definition{Name: "pickup", DryMass: 1800})

	got, ok := c.Get("pickup")
	require.True(t, ok)
	assert.Equal(t, 1800.0, got.DryMass)
	assert.Equal(t, 1, c.Len())

	_, ok = c.Get("semi")
	assert.False(t, ok)
}

func TestDefinitionCache_DeleteAndReset(t *testing.T) {
	c := NewDefinitionCache()
	c.Set("a", &core.Definition{})
	c.Set("b", &core.Definition{})

	c.Delete("a")
	assert.Equal(t, []string{"b"}, c.Names())

	c.Reset()
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Names())
}

func TestDefinitionCache_NamesSorted(t *testing.T) {
	c := NewDefinitionCache()
	for _, n := range []string{"truck", "boat", "plane"} {
		c.Set(n, &core.Definition{Name: n})
	}
	assert.Equal(t, []string{"boat", "plane", "truck"}, c.Names())
}

func TestDefinitionCache_LoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "crate.json"), []byte(`{"dryMass": 50}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.json"), []byte(`{"name": "trailer"}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`ignored`), 0644))

	c := NewDefinitionCache()
	n, err := c.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"crate", "trailer"}, c.Names())

	crate, _ := c.Get("crate")
	assert.Equal(t, "crate", crate.Name)
	assert.Equal(t, 50.0, crate.DryMass)
}

func TestDefinitionCache_LoadDirBadJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{`), 0644))

	_, err := NewDefinitionCache().LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse definition")
}

func TestDefinitionCache_ConcurrentAccess(t *testing.T) {
	c := NewDefinitionCache()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Set("v", &core.Definition{})
		}()
		go func() {
			defer wg.Done()
			c.Get("v")
			c.Names()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, c.Len())
}

func TestSaveCache(t *testing.T) {
	c := NewSaveCache()

	_, ok := c.Get(3)
	assert.False(t, ok)

	c.Set(3, core.SaveState{Vehicle: 3, SimTime: 1.5})
	c.Set(3, core.SaveState{Vehicle: 3, SimTime: 2.5})
	got, ok := c.Get(3)
	require.True(t, ok)
	assert.Equal(t, 2.5, got.SimTime)

	c.Delete(3)
	_, ok = c.Get(3)
	assert.False(t, ok)

	c.Set(4, core.SaveState{})
	c.Reset()
	_, ok = c.Get(4)
	assert.False(t, ok)
}

// SafeCounter tests

func TestSafeCounter_InitialValue(t *testing.T) {
	c := &SafeCounter{}
	assert.Equal(t, int(0), c.Value())
}

func TestSafeCounter_Set(t *testing.T) {
	c := &SafeCounter{}

	c.Set(42)
	assert.Equal(t, int(42), c.Value())

	c.Set(0)
	assert.Equal(t, int(0), c.Value())
}

func TestSafeCounter_Concurrent(t *testing.T) {
	c := &SafeCounter{}
	var wg sync.WaitGroup

	for i := 0; i < 1000; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Inc()
		}()
	}
	wg.Wait()

	assert.Equal(t, int(1000), c.Value())
}
