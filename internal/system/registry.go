package system

import (
	"fmt"
	"sync"
)

// Module keys the core resolves through the registry.
const (
	ModulePlatformTreasury = "platform_treasury"
	ModuleReserveFund      = "reserve_fund"
	ModuleLenderPool       = "lender_pool"
	ModuleRewardSink       = "reward_sink"
)

// Registry is the module-lookup boundary. Resolution is fallible; callers
// either fail the enclosing call or fall back to an emergency path.
type Registry interface {
	Resolve(moduleKey string) (string, error)
}

// StaticRegistry is an in-process Registry backed by a mutable map. The
// upgrade-governance system that normally owns these bindings is out of
// scope; operators seed it at startup.
type StaticRegistry struct {
	mu      sync.RWMutex
	modules map[string]string
}

func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{modules: make(map[string]string)}
}

// Bind registers or replaces a module address.
func (r *StaticRegistry) Bind(moduleKey, addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[moduleKey] = addr
}

func (r *StaticRegistry) Resolve(moduleKey string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.modules[moduleKey]
	if !ok {
		return "", fmt.Errorf("registry: module %q not found", moduleKey)
	}
	return addr, nil
}
