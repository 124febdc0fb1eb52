package auth

// Scope names understood by the API. Scopes arrive in the JWT "scope" claim;
// admin implicitly satisfies every check.
const (
	ScopeAdmin         = "admin"
	ScopeCruiseManager = "cruise_manager"
	ScopeEventManager  = "event_manager"
	ScopeEventLogger   = "event_logger"
	ScopeEventWatcher  = "event_watcher"
	ScopeReadEvents    = "read_events"
	ScopeWriteEvents   = "write_events"
)

// Principal is any authenticated caller.
type Principal interface {
	GetID() string
	GetScopes() []string
	// HasScope reports whether the principal carries the named scope.
	// Admin satisfies every scope.
	HasScope(scope string) bool
}

// BasePrincipal is the JWT-derived Principal implementation.
type BasePrincipal struct {
	ID     string
	Scopes []string
}

func (b *BasePrincipal) GetID() string { return b.ID }

func (b *BasePrincipal) GetScopes() []string { return b.Scopes }

func (b *BasePrincipal) HasScope(scope string) bool {
	for _, s := range b.Scopes {
		if s == ScopeAdmin || s == scope {
			return true
		}
	}
	return false
}

// HasAnyScope reports whether the principal carries at least one of the
// named scopes (or admin).
func HasAnyScope(p Principal, scopes ...string) bool {
	for _, s := range scopes {
		if p.HasScope(s) {
			return true
		}
	}
	return false
}
