package core

import "strings"

// ModuleID is a dotted module identifier such as "storage.sqlite". The
// segment before the first dot is the module's namespace.
type ModuleID string

// Namespace returns the part of the ID before the first dot.
func (id ModuleID) Namespace() string {
	ns, _, _ := strings.Cut(string(id), ".")
	return ns
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	ID ModuleID

	// New returns a fresh, unconfigured instance.
	New func() Module
}

// Module is implemented by every module. Optional behaviour is discovered
// through the lifecycle interfaces.
type Module interface {
	ModuleInfo() ModuleInfo
}
