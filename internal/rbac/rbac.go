package rbac

// Level is a person's access level. Levels form a small closed enumeration
// partitioned by policy into internal levels (unrestricted visibility) and
// external levels (visibility limited to the caller's own companies).
type Level string

const (
	LevelAdmin       Level = "admin"
	LevelCoordinator Level = "coordinator"
	LevelCustomer    Level = "customer"
)

// Internal reports whether a level belongs to the internal partition. The
// partition is policy, not a stored flag.
func Internal(level Level) bool {
	switch level {
	case LevelAdmin, LevelCoordinator:
		return true
	default:
		return false
	}
}

// Normalize maps unknown level strings to the most restricted level.
func Normalize(level string) Level {
	switch Level(level) {
	case LevelAdmin, LevelCoordinator, LevelCustomer:
		return Level(level)
	default:
		return LevelCustomer
	}
}

// Scope bounds which companies' resources a caller may read. Either
// Unrestricted is true, or Companies holds the caller's memberships.
type Scope struct {
	Unrestricted bool
	Companies    map[string]struct{}
}

// ScopeFor derives the read scope from a caller's level and memberships.
func ScopeFor(level Level, companyIDs []string) Scope {
	if Internal(level) {
		return Scope{Unrestricted: true}
	}
	companies := make(map[string]struct{}, len(companyIDs))
	for _, id := range companyIDs {
		companies[id] = struct{}{}
	}
	return Scope{Companies: companies}
}

// AllowsCompany reports whether resources owned by companyID are visible.
func (s Scope) AllowsCompany(companyID string) bool {
	if s.Unrestricted {
		return true
	}
	_, ok := s.Companies[companyID]
	return ok
}
