package system

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Action keys guarded by access control. Every admin-style mutator checks
// its key before mutating state.
const (
	ActionUpdateThreshold  = "risk.update_threshold"
	ActionUpdateRecipients = "liquidation.update_recipients"
	ActionUpdateAllocation = "liquidation.update_allocation"
	ActionSubmitPrice      = "oracle.submit_price"
	ActionPause            = "system.pause"
)

var ErrUnauthorized = errors.New("access: unauthorized")

// AccessController is the role-based access boundary. The real RBAC system
// is out of scope; the core only requires this check.
type AccessController interface {
	RequirePermission(actionKey string, caller uuid.UUID) error
}

// StaticAccessController grants permissions from an in-memory grant table.
type StaticAccessController struct {
	mu     sync.RWMutex
	grants map[string]map[uuid.UUID]bool
}

func NewStaticAccessController() *StaticAccessController {
	return &StaticAccessController{grants: make(map[string]map[uuid.UUID]bool)}
}

// Grant allows caller to perform actionKey.
func (ac *StaticAccessController) Grant(actionKey string, caller uuid.UUID) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if ac.grants[actionKey] == nil {
		ac.grants[actionKey] = make(map[uuid.UUID]bool)
	}
	ac.grants[actionKey][caller] = true
}

func (ac *StaticAccessController) RequirePermission(actionKey string, caller uuid.UUID) error {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	if ac.grants[actionKey][caller] {
		return nil
	}
	return fmt.Errorf("%w: caller %s lacks %s", ErrUnauthorized, caller, actionKey)
}

// AllowAll is an AccessController that grants everything. Used in tests and
// single-operator deployments.
type AllowAll struct{}

func (AllowAll) RequirePermission(string, uuid.UUID) error { return nil }
