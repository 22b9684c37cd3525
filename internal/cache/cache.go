// Package cache keeps the vehicle definitions and saves the host refers to
// by name, so spawn and restore requests do not round-trip to storage.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/OCAP2/softbody/pkg/core"
)

// DefinitionCache maps definition names to parsed vehicle definitions.
type DefinitionCache struct {
	mu   sync.RWMutex
	defs map[string]*core.Definition
}

func NewDefinitionCache() *DefinitionCache {
	return &DefinitionCache{defs: make(map[string]*core.Definition)}
}

// Get returns the definition stored under name.
func (c *DefinitionCache) Get(name string) (*core.Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.defs[name]
	return d, ok
}

// Set stores def under name, replacing any previous definition.
func (c *DefinitionCache) Set(name string, def *core.Definition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defs[name] = def
}

func (c *DefinitionCache) Delete(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.defs, name)
}

// Names lists the cached names in sorted order.
func (c *DefinitionCache) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.defs))
	for name := range c.defs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (c *DefinitionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.defs)
}

func (c *DefinitionCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defs = make(map[string]*core.Definition)
}

// LoadDir reads every *.json file of dir as a definition. A file is cached
// under the definition's name, or its base name when the name is empty.
// It returns the number of definitions loaded.
func (c *DefinitionCache) LoadDir(dir string) (int, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, err
	}
	loaded := 0
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return loaded, fmt.Errorf("read definition %s: %w", f, err)
		}
		def := &core.Definition{}
		if err := json.Unmarshal(data, def); err != nil {
			return loaded, fmt.Errorf("parse definition %s: %w", f, err)
		}
		name := def.Name
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(f), ".json")
			def.Name = name
		}
		c.Set(name, def)
		loaded++
	}
	return loaded, nil
}

// SaveCache keeps the latest save of every vehicle.
type SaveCache struct {
	mu    sync.Mutex
	saves map[core.VehicleID]core.SaveState
}

func NewSaveCache() *SaveCache {
	return &SaveCache{saves: make(map[core.VehicleID]core.SaveState)}
}

func (c *SaveCache) Get(id core.VehicleID) (core.SaveState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.saves[id]
	return s, ok
}

func (c *SaveCache) Set(id core.VehicleID, s core.SaveState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves[id] = s
}

func (c *SaveCache) Delete(id core.VehicleID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.saves, id)
}

func (c *SaveCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves = make(map[core.VehicleID]core.SaveState)
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
