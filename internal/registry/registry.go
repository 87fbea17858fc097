// Package registry loads the Cortex service catalog from a YAML document and
// serves it as an immutable snapshot. Reload builds a fresh snapshot and
// swaps it in atomically, so concurrent lookups never observe a partially
// loaded catalog.
package registry

import (
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/rickchristie/snowflake-mcp/internal/errkind"
)

// DefaultModels is the Cortex Complete allow-list used when the catalog does
// not configure its own. The first entry doubles as the default model.
var DefaultModels = []string{
	"snowflake-llama-3.3-70b",
	"snowflake-llama-3.1-8b",
	"snowflake-llama-3.1-70b",
}

// SearchService is one Cortex Search service entry.
type SearchService struct {
	Name        string `yaml:"service_name" json:"service_name"`
	Database    string `yaml:"database_name" json:"database_name"`
	Schema      string `yaml:"schema_name" json:"schema_name"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// AnalystService is one Cortex Analyst service entry.
type AnalystService struct {
	Name          string `yaml:"service_name" json:"service_name"`
	SemanticModel string `yaml:"semantic_model" json:"semantic_model"`
	Description   string `yaml:"description" json:"description,omitempty"`
}

// CompleteConfig carries the Cortex Complete defaults.
type CompleteConfig struct {
	DefaultModel string   `yaml:"default_model" json:"default_model"`
	Models       []string `yaml:"models" json:"models"`
}

// Supported reports whether model is on the allow-list.
func (c CompleteConfig) Supported(model string) bool {
	for _, m := range c.Models {
		if m == model {
			return true
		}
	}
	return false
}

// Snapshot is one immutable view of the catalog. A malformed section poisons
// only its own lookups; the other sections keep working.
type Snapshot struct {
	path    string
	missing bool

	search   []SearchService
	analyst  []AnalystService
	complete CompleteConfig

	searchErr   error
	analystErr  error
	completeErr error
}

// Path returns the file this snapshot was loaded from.
func (s *Snapshot) Path() string { return s.path }

// Missing reports whether the catalog file was absent at load time.
func (s *Snapshot) Missing() bool { return s.missing }

// ResolveSearch finds a search service by exact, case-sensitive name.
func (s *Snapshot) ResolveSearch(name string) (SearchService, error) {
	if s.searchErr != nil {
		return SearchService{}, s.searchUnavailable()
	}
	for _, svc := range s.search {
		if svc.Name == name {
			if svc.Database == "" || svc.Schema == "" {
				return SearchService{}, errkind.Configurationf("search service %q is missing database or schema configuration", name)
			}
			return svc, nil
		}
	}
	return SearchService{}, errkind.NoSuchService("search", name, s.searchNames())
}

// ResolveAnalyst finds an analyst service by exact, case-sensitive name.
func (s *Snapshot) ResolveAnalyst(name string) (AnalystService, error) {
	if s.analystErr != nil {
		return AnalystService{}, s.analystUnavailable()
	}
	for _, svc := range s.analyst {
		if svc.Name == name {
			if svc.SemanticModel == "" {
				return AnalystService{}, errkind.Configurationf("analyst service %q is missing semantic model configuration", name)
			}
			return svc, nil
		}
	}
	return AnalystService{}, errkind.NoSuchService("analyst", name, s.analystNames())
}

// Complete returns the Cortex Complete defaults.
func (s *Snapshot) Complete() (CompleteConfig, error) {
	if s.completeErr != nil {
		return CompleteConfig{}, errkind.Configurationf("cortex complete configuration is unavailable: %v", s.completeErr)
	}
	return s.complete, nil
}

// ResolveModel picks the completion model for a request: the requested model
// when given, the configured default otherwise. The result is always on the
// allow-list.
func (s *Snapshot) ResolveModel(requested string) (string, error) {
	cfg, err := s.Complete()
	if err != nil {
		return "", err
	}
	model := requested
	if model == "" {
		model = cfg.DefaultModel
	}
	if !cfg.Supported(model) {
		return "", errkind.UnsupportedModel(model, cfg.Models)
	}
	return model, nil
}

// ListSearch returns the search services in catalog order.
func (s *Snapshot) ListSearch() ([]SearchService, error) {
	if s.searchErr != nil {
		return nil, s.searchUnavailable()
	}
	out := make([]SearchService, len(s.search))
	copy(out, s.search)
	return out, nil
}

// ListAnalyst returns the analyst services in catalog order.
func (s *Snapshot) ListAnalyst() ([]AnalystService, error) {
	if s.analystErr != nil {
		return nil, s.analystUnavailable()
	}
	out := make([]AnalystService, len(s.analyst))
	copy(out, s.analyst)
	return out, nil
}

func (s *Snapshot) searchUnavailable() error {
	return errkind.Configurationf("cortex search services are unavailable: %v", s.searchErr)
}

func (s *Snapshot) analystUnavailable() error {
	return errkind.Configurationf("cortex analyst services are unavailable: %v", s.analystErr)
}

func (s *Snapshot) searchNames() []string {
	names := make([]string, len(s.search))
	for i, svc := range s.search {
		names[i] = svc.Name
	}
	return names
}

func (s *Snapshot) analystNames() []string {
	names := make([]string, len(s.analyst))
	for i, svc := range s.analyst {
		names[i] = svc.Name
	}
	return names
}

// Registry holds the current catalog snapshot and the path to reload it from.
type Registry struct {
	path string
	snap atomic.Pointer[Snapshot]
}

// New loads the catalog at path. A missing file produces an empty catalog
// rather than an error; Snapshot().Missing() reports it so callers can warn.
func New(path string) *Registry {
	r := &Registry{path: path}
	r.snap.Store(load(path))
	return r
}

// Snapshot returns the current catalog view.
func (r *Registry) Snapshot() *Snapshot {
	return r.snap.Load()
}

// Reload re-reads the catalog file and atomically replaces the snapshot.
// In-flight lookups keep the snapshot they started with.
func (r *Registry) Reload() *Snapshot {
	s := load(r.path)
	r.snap.Store(s)
	return s
}

// document splits the top-level sections into raw nodes so each decodes
// independently of the others.
type document struct {
	Search   yaml.Node `yaml:"search_services"`
	Analyst  yaml.Node `yaml:"analyst_services"`
	Complete yaml.Node `yaml:"cortex_complete"`
}

func load(path string) *Snapshot {
	s := &Snapshot{path: path}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.missing = true
			s.complete = withCompleteDefaults(CompleteConfig{})
			return s
		}
		err = fmt.Errorf("read %s: %w", path, err)
		s.searchErr, s.analystErr, s.completeErr = err, err, err
		return s
	}

	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		err = fmt.Errorf("parse %s: %w", path, err)
		s.searchErr, s.analystErr, s.completeErr = err, err, err
		return s
	}

	if !doc.Search.IsZero() {
		if err := doc.Search.Decode(&s.search); err != nil {
			s.searchErr = fmt.Errorf("search_services: %w", err)
		}
	}
	if !doc.Analyst.IsZero() {
		if err := doc.Analyst.Decode(&s.analyst); err != nil {
			s.analystErr = fmt.Errorf("analyst_services: %w", err)
		}
	}
	if !doc.Complete.IsZero() {
		if err := doc.Complete.Decode(&s.complete); err != nil {
			s.completeErr = fmt.Errorf("cortex_complete: %w", err)
		}
	}
	if s.completeErr == nil {
		s.complete = withCompleteDefaults(s.complete)
	}
	return s
}

func withCompleteDefaults(c CompleteConfig) CompleteConfig {
	if len(c.Models) == 0 {
		c.Models = append([]string(nil), DefaultModels...)
	}
	if c.DefaultModel == "" {
		c.DefaultModel = c.Models[0]
	}
	return c
}
