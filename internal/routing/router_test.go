package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/scrypster/engram/internal/config"
	"github.com/scrypster/engram/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("config.Load() failed: %v", err)
	}
	cfg.Storage.Engine = "memory"
	cfg.Storage.DataDir = t.TempDir()
	return cfg
}

func TestParseScope(t *testing.T) {
	cases := []struct {
		in      string
		want    Scope
		wantErr bool
	}{
		{"project", ScopeProject, false},
		{"user", ScopeUser, false},
		{"org", ScopeOrg, false},
		{"", ScopeProject, false},
		{"global", "", true},
	}
	for _, tc := range cases {
		got, err := ParseScope(tc.in)
		if tc.wantErr {
			if !errors.Is(err, storage.ErrInvalidInput) {
				t.Errorf("ParseScope(%q) err = %v, want ErrInvalidInput", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseScope(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
	}
}

func TestParseOrgFromRemote(t *testing.T) {
	cases := []struct {
		remote string
		want   string
	}{
		{"https://github.com/acme/widgets.git", "acme"},
		{"https://github.com/acme/widgets", "acme"},
		{"git@github.com:acme/widgets.git", "acme"},
		{"ssh://git@github.com/acme/widgets", "acme"},
		{"https://gitlab.example.com/platform/tools/cli.git", "platform"},
		{"https://github.com/", ""},
		{"https://github.com/justuser", ""},
		{"not a url", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := parseOrgFromRemote(tc.remote); got != tc.want {
			t.Errorf("parseOrgFromRemote(%q) = %q, want %q", tc.remote, got, tc.want)
		}
	}
}

func TestResolve_OrgRequiresFeatureFlag(t *testing.T) {
	cfg := testConfig(t)
	cfg.Features.EnableOrg = false

	r := NewRouter(cfg)
	defer r.Close()

	_, err := r.Resolve(context.Background(), ScopeOrg)
	if !errors.Is(err, storage.ErrFeatureNotEnabled) {
		t.Errorf("err = %v, want ErrFeatureNotEnabled", err)
	}
}

func TestResolve_OrgWithFlagAndEnv(t *testing.T) {
	cfg := testConfig(t)
	cfg.Features.EnableOrg = true
	t.Setenv("ENGRAM_ORG", "acme")

	r := NewRouter(cfg)
	defer r.Close()

	set, err := r.Resolve(context.Background(), ScopeOrg)
	if err != nil {
		t.Fatalf("Resolve(org) failed: %v", err)
	}
	if set.Persistence == nil || set.Index == nil || set.Vector == nil {
		t.Error("org backend set has nil members")
	}
}

// Project and user scopes share storage until a project-local path splits
// them, so a memory captured in one is visible in the other.
func TestResolve_ProjectAndUserShareBackends(t *testing.T) {
	cfg := testConfig(t)
	r := NewRouter(cfg)
	defer r.Close()

	project, err := r.Resolve(context.Background(), ScopeProject)
	if err != nil {
		t.Fatalf("Resolve(project) failed: %v", err)
	}
	user, err := r.Resolve(context.Background(), ScopeUser)
	if err != nil {
		t.Fatalf("Resolve(user) failed: %v", err)
	}
	if project != user {
		t.Error("project and user scopes opened separate backend sets")
	}
}

func TestResolve_ProjectPathSplitsScopes(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Engine = "sqlite"
	cfg.Storage.ProjectPath = t.TempDir()

	r := NewRouter(cfg)
	defer r.Close()

	project, err := r.Resolve(context.Background(), ScopeProject)
	if err != nil {
		t.Fatalf("Resolve(project) failed: %v", err)
	}
	user, err := r.Resolve(context.Background(), ScopeUser)
	if err != nil {
		t.Fatalf("Resolve(user) failed: %v", err)
	}
	if project == user {
		t.Error("project-local path configured but scopes share a backend set")
	}
}

// The zero-value scope is the project scope: both must resolve to the same
// backend set, or a caller that omits the scope writes to one store and
// reads from another.
func TestResolve_EmptyScopeIsProject(t *testing.T) {
	cfg := testConfig(t)
	r := NewRouter(cfg)
	defer r.Close()

	empty, err := r.Resolve(context.Background(), Scope(""))
	if err != nil {
		t.Fatalf("Resolve(\"\") failed: %v", err)
	}
	project, err := r.Resolve(context.Background(), ScopeProject)
	if err != nil {
		t.Fatalf("Resolve(project) failed: %v", err)
	}
	if empty != project {
		t.Error("empty scope opened a different backend set than project")
	}
}

func TestResolve_EmptyScopeSQLite(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Engine = "sqlite"

	r := NewRouter(cfg)
	defer r.Close()

	set, err := r.Resolve(context.Background(), Scope(""))
	if err != nil {
		t.Fatalf("Resolve(\"\") failed under sqlite: %v", err)
	}
	if set.Persistence == nil || set.Index == nil || set.Vector == nil {
		t.Error("backend set has nil members")
	}
}

func TestResolve_CachesBackendSets(t *testing.T) {
	cfg := testConfig(t)
	r := NewRouter(cfg)
	defer r.Close()

	first, err := r.Resolve(context.Background(), ScopeProject)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	second, err := r.Resolve(context.Background(), ScopeProject)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if first != second {
		t.Error("repeated Resolve opened a new backend set")
	}
}

func TestResolve_InvalidScope(t *testing.T) {
	r := NewRouter(testConfig(t))
	defer r.Close()

	_, err := r.Resolve(context.Background(), Scope("galaxy"))
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}
