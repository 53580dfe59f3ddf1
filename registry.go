// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package membuf

import (
	"context"
	"sort"
	"sync"
)

// MemoryManagers is a registry of available MemoryManager implementations,
// keyed by ImplementationName. spec.md §9's "global state" design note
// rejects a thread-local override map in favor of an explicit context
// object: callers that need a scoped override thread a context built with
// WithMemoryManager through their call chain instead of mutating
// process-wide state.
type MemoryManagers struct {
	mu       sync.RWMutex
	managers map[string]MemoryManager
}

// DefaultMemoryManagers is the process-wide registry, pre-populated with
// HeapManager and (where the platform supports it) NativeManager.
var DefaultMemoryManagers = newDefaultRegistry()

func newDefaultRegistry() *MemoryManagers {
	r := &MemoryManagers{managers: make(map[string]MemoryManager)}
	r.Register(HeapManager)
	if _, err := NativeManager.AllocateShared(nil, 0, nil); err == nil {
		r.Register(NativeManager)
	}
	return r
}

// Register adds or replaces a manager under its ImplementationName.
func (r *MemoryManagers) Register(m MemoryManager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.managers[m.ImplementationName()] = m
}

// Lookup returns the manager registered under name.
func (r *MemoryManagers) Lookup(name string) (MemoryManager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.managers[name]
	return m, ok
}

// Names returns every registered implementation name, sorted.
func (r *MemoryManagers) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.managers))
	for name := range r.managers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type memoryManagerCtxKey struct{}

// WithMemoryManager returns a context carrying m as the scoped-override
// MemoryManager, which ManagerFromContext returns. No allocator constructor
// in this package takes a context or reads this override.
func WithMemoryManager(ctx context.Context, m MemoryManager) context.Context {
	return context.WithValue(ctx, memoryManagerCtxKey{}, m)
}

// ManagerFromContext returns the scoped-override manager carried by ctx, if
// any, falling back to def.
func ManagerFromContext(ctx context.Context, def MemoryManager) MemoryManager {
	if ctx == nil {
		return def
	}
	if m, ok := ctx.Value(memoryManagerCtxKey{}).(MemoryManager); ok {
		return m
	}
	return def
}
