package core

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// moduleRegistry holds every module compiled into the binary. Modules add
// themselves from init functions, so the registry is process-global.
type moduleRegistry struct {
	mu    sync.RWMutex
	infos map[ModuleID]ModuleInfo
}

var registry = &moduleRegistry{infos: make(map[ModuleID]ModuleInfo)}

// RegisterModule records instance's ModuleInfo. It panics on an empty ID,
// a nil constructor or a duplicate ID.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	switch {
	case info.ID == "":
		panic("core: module ID must not be empty")
	case info.New == nil:
		panic(fmt.Sprintf("core: module %s has no constructor", info.ID))
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, dup := registry.infos[info.ID]; dup {
		panic(fmt.Sprintf("core: module %s registered twice", info.ID))
	}
	registry.infos[info.ID] = info
}

// GetModule returns the ModuleInfo registered under id.
func GetModule(id string) (ModuleInfo, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	info, ok := registry.infos[ModuleID(id)]
	return info, ok
}

// GetModules returns every registered module ordered by ID.
func GetModules() []ModuleInfo {
	registry.mu.RLock()
	infos := slices.Collect(maps.Values(registry.infos))
	registry.mu.RUnlock()

	slices.SortFunc(infos, func(a, b ModuleInfo) int { return cmp.Compare(a.ID, b.ID) })
	return infos
}

// Namespaces groups the registered module IDs by namespace.
func Namespaces() map[string][]ModuleID {
	out := make(map[string][]ModuleID)
	for _, info := range GetModules() {
		ns := info.ID.Namespace()
		out[ns] = append(out[ns], info.ID)
	}
	return out
}

func resetRegistry() {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	clear(registry.infos)
}
