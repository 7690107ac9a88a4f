package rbac

import "testing"

func TestInternal(t *testing.T) {
	cases := []struct {
		name     string
		level    Level
		internal bool
	}{
		{name: "admin", level: LevelAdmin, internal: true},
		{name: "coordinator", level: LevelCoordinator, internal: true},
		{name: "customer", level: LevelCustomer, internal: false},
		{name: "unknown", level: Level("intern"), internal: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Internal(tc.level); got != tc.internal {
				t.Fatalf("Internal(%q) = %v, want %v", tc.level, got, tc.internal)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("coordinator"); got != LevelCoordinator {
		t.Fatalf("Normalize(coordinator) = %q", got)
	}
	if got := Normalize("superuser"); got != LevelCustomer {
		t.Fatalf("Normalize(superuser) = %q, want customer", got)
	}
}

func TestScopeFor(t *testing.T) {
	internal := ScopeFor(LevelCoordinator, nil)
	if !internal.Unrestricted {
		t.Fatalf("expected internal level to yield an unrestricted scope")
	}
	if !internal.AllowsCompany("cmp_anything") {
		t.Fatalf("unrestricted scope should allow every company")
	}

	external := ScopeFor(LevelCustomer, []string{"cmp_c"})
	if external.Unrestricted {
		t.Fatalf("expected external level to yield a company-bound scope")
	}
	if !external.AllowsCompany("cmp_c") {
		t.Fatalf("expected member company to be allowed")
	}
	if external.AllowsCompany("cmp_d") {
		t.Fatalf("expected non-member company to be denied")
	}
}
