package registry

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rickchristie/snowflake-mcp/internal/errkind"
)

const sampleCatalog = `
search_services:
  - service_name: products_search
    database_name: retail
    schema_name: public
    description: Product catalog search
  - service_name: docs_search
    database_name: knowledge
    schema_name: docs
analyst_services:
  - service_name: sales_analyst
    semantic_model: "@retail.public.models/sales.yaml"
    description: Sales metrics
cortex_complete:
  default_model: snowflake-llama-3.1-8b
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "service_config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func assertKind(t *testing.T, err error, kind errkind.Kind) *errkind.Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	var e *errkind.Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *errkind.Error, got %T: %v", err, err)
	}
	if e.Kind != kind {
		t.Fatalf("expected kind %q, got %q: %s", kind, e.Kind, e.Message)
	}
	return e
}

// --- Loading ---

func TestLoadFullCatalog(t *testing.T) {
	t.Parallel()
	snap := New(writeCatalog(t, sampleCatalog)).Snapshot()

	if snap.Missing() {
		t.Fatal("expected catalog to be found")
	}
	search, err := snap.ListSearch()
	if err != nil {
		t.Fatalf("ListSearch: %v", err)
	}
	if len(search) != 2 || search[0].Name != "products_search" || search[1].Name != "docs_search" {
		t.Fatalf("expected search services in catalog order, got %+v", search)
	}
	if search[0].Database != "retail" || search[0].Schema != "public" {
		t.Fatalf("unexpected search service location: %+v", search[0])
	}
	analyst, err := snap.ListAnalyst()
	if err != nil {
		t.Fatalf("ListAnalyst: %v", err)
	}
	if len(analyst) != 1 || analyst[0].SemanticModel != "@retail.public.models/sales.yaml" {
		t.Fatalf("unexpected analyst services: %+v", analyst)
	}
	complete, err := snap.Complete()
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if complete.DefaultModel != "snowflake-llama-3.1-8b" {
		t.Fatalf("expected configured default model, got %q", complete.DefaultModel)
	}
}

func TestMissingFileYieldsEmptyCatalog(t *testing.T) {
	t.Parallel()
	snap := New(filepath.Join(t.TempDir(), "absent.yaml")).Snapshot()

	if !snap.Missing() {
		t.Fatal("expected Missing() for absent file")
	}
	_, err := snap.ResolveSearch("products_search")
	e := assertKind(t, err, errkind.ServiceNotFound)
	if !strings.Contains(e.Message, "no search services are configured") {
		t.Fatalf("unexpected message: %s", e.Message)
	}
	complete, err := snap.Complete()
	if err != nil {
		t.Fatalf("Complete should work without a catalog file: %v", err)
	}
	if complete.DefaultModel != "snowflake-llama-3.3-70b" {
		t.Fatalf("expected built-in default model, got %q", complete.DefaultModel)
	}
	if len(complete.Models) != 3 {
		t.Fatalf("expected built-in model allow-list, got %v", complete.Models)
	}
}

func TestEmptyDocument(t *testing.T) {
	t.Parallel()
	snap := New(writeCatalog(t, "")).Snapshot()

	if snap.Missing() {
		t.Fatal("empty file is present, not missing")
	}
	search, err := snap.ListSearch()
	if err != nil {
		t.Fatalf("ListSearch: %v", err)
	}
	if len(search) != 0 {
		t.Fatalf("expected no search services, got %+v", search)
	}
	if _, err := snap.ResolveModel(""); err != nil {
		t.Fatalf("expected built-in complete defaults, got %v", err)
	}
}

// --- Resolution ---

func TestResolveSearch(t *testing.T) {
	t.Parallel()
	snap := New(writeCatalog(t, sampleCatalog)).Snapshot()

	svc, err := snap.ResolveSearch("products_search")
	if err != nil {
		t.Fatalf("ResolveSearch: %v", err)
	}
	if svc.Database != "retail" || svc.Schema != "public" {
		t.Fatalf("unexpected service: %+v", svc)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	t.Parallel()
	snap := New(writeCatalog(t, sampleCatalog)).Snapshot()

	first, err := snap.ResolveSearch("docs_search")
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	second, err := snap.ResolveSearch("docs_search")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if first != second {
		t.Fatalf("expected equal descriptors, got %+v and %+v", first, second)
	}
}

func TestResolveSearchIsCaseSensitive(t *testing.T) {
	t.Parallel()
	snap := New(writeCatalog(t, sampleCatalog)).Snapshot()

	_, err := snap.ResolveSearch("Products_Search")
	assertKind(t, err, errkind.ServiceNotFound)
}

func TestResolveUnknownListsConfiguredNames(t *testing.T) {
	t.Parallel()
	snap := New(writeCatalog(t, sampleCatalog)).Snapshot()

	_, err := snap.ResolveSearch("missing")
	e := assertKind(t, err, errkind.ServiceNotFound)
	if !strings.Contains(e.Message, "products_search") || !strings.Contains(e.Message, "docs_search") {
		t.Fatalf("expected configured names in message, got %s", e.Message)
	}
	if len(e.Choices) != 2 {
		t.Fatalf("expected choices with both names, got %v", e.Choices)
	}
}

func TestSameNameAcrossTypes(t *testing.T) {
	t.Parallel()
	snap := New(writeCatalog(t, `
search_services:
  - service_name: sales
    database_name: retail
    schema_name: public
analyst_services:
  - service_name: sales
    semantic_model: "@retail.public.models/sales.yaml"
`)).Snapshot()

	if _, err := snap.ResolveSearch("sales"); err != nil {
		t.Fatalf("search resolve: %v", err)
	}
	if _, err := snap.ResolveAnalyst("sales"); err != nil {
		t.Fatalf("analyst resolve: %v", err)
	}
}

func TestSearchServiceMissingLocation(t *testing.T) {
	t.Parallel()
	snap := New(writeCatalog(t, `
search_services:
  - service_name: half_configured
    database_name: retail
`)).Snapshot()

	_, err := snap.ResolveSearch("half_configured")
	e := assertKind(t, err, errkind.Configuration)
	if !strings.Contains(e.Message, "half_configured") {
		t.Fatalf("expected service name in message, got %s", e.Message)
	}
}

func TestAnalystServiceMissingSemanticModel(t *testing.T) {
	t.Parallel()
	snap := New(writeCatalog(t, `
analyst_services:
  - service_name: bare
`)).Snapshot()

	_, err := snap.ResolveAnalyst("bare")
	assertKind(t, err, errkind.Configuration)
}

// --- Model Resolution ---

func TestResolveModelDefaults(t *testing.T) {
	t.Parallel()
	snap := New(writeCatalog(t, sampleCatalog)).Snapshot()

	model, err := snap.ResolveModel("")
	if err != nil {
		t.Fatalf("ResolveModel: %v", err)
	}
	if model != "snowflake-llama-3.1-8b" {
		t.Fatalf("expected configured default, got %q", model)
	}
}

func TestResolveModelPassesRequested(t *testing.T) {
	t.Parallel()
	snap := New(writeCatalog(t, sampleCatalog)).Snapshot()

	model, err := snap.ResolveModel("snowflake-llama-3.1-70b")
	if err != nil {
		t.Fatalf("ResolveModel: %v", err)
	}
	if model != "snowflake-llama-3.1-70b" {
		t.Fatalf("expected requested model, got %q", model)
	}
}

func TestResolveModelRejectsUnknown(t *testing.T) {
	t.Parallel()
	snap := New(writeCatalog(t, sampleCatalog)).Snapshot()

	_, err := snap.ResolveModel("gpt-4o")
	e := assertKind(t, err, errkind.ModelNotSupported)
	if !strings.Contains(e.Message, "gpt-4o") || !strings.Contains(e.Message, "snowflake-llama-3.3-70b") {
		t.Fatalf("expected rejected model and allow-list in message, got %s", e.Message)
	}
}

func TestCustomModelAllowList(t *testing.T) {
	t.Parallel()
	snap := New(writeCatalog(t, `
cortex_complete:
  models:
    - my-finetuned-model
`)).Snapshot()

	model, err := snap.ResolveModel("")
	if err != nil {
		t.Fatalf("ResolveModel: %v", err)
	}
	if model != "my-finetuned-model" {
		t.Fatalf("expected first configured model as default, got %q", model)
	}
	if _, err := snap.ResolveModel("snowflake-llama-3.3-70b"); err == nil {
		t.Fatal("expected built-in model to be rejected under a custom allow-list")
	}
}

// --- Malformed Catalogs ---

func TestMalformedSectionPoisonsOnlyItself(t *testing.T) {
	t.Parallel()
	snap := New(writeCatalog(t, `
search_services: not a list
analyst_services:
  - service_name: sales_analyst
    semantic_model: "@retail.public.models/sales.yaml"
`)).Snapshot()

	_, err := snap.ResolveSearch("anything")
	assertKind(t, err, errkind.Configuration)
	if _, err := snap.ListSearch(); err == nil {
		t.Fatal("expected ListSearch to fail for poisoned section")
	}

	if _, err := snap.ResolveAnalyst("sales_analyst"); err != nil {
		t.Fatalf("analyst section should survive a broken search section: %v", err)
	}
	if _, err := snap.ResolveModel(""); err != nil {
		t.Fatalf("complete defaults should survive a broken search section: %v", err)
	}
}

func TestUnparseableDocumentPoisonsAllSections(t *testing.T) {
	t.Parallel()
	snap := New(writeCatalog(t, "search_services: [unclosed")).Snapshot()

	_, err := snap.ResolveSearch("x")
	assertKind(t, err, errkind.Configuration)
	_, err = snap.ResolveAnalyst("x")
	assertKind(t, err, errkind.Configuration)
	_, err = snap.Complete()
	assertKind(t, err, errkind.Configuration)
}

// --- Reload ---

func TestReloadSwapsSnapshot(t *testing.T) {
	t.Parallel()
	path := writeCatalog(t, sampleCatalog)
	reg := New(path)
	before := reg.Snapshot()

	updated := `
search_services:
  - service_name: fresh_search
    database_name: retail
    schema_name: public
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite catalog: %v", err)
	}
	after := reg.Reload()

	// The old snapshot keeps serving what it loaded.
	if _, err := before.ResolveSearch("products_search"); err != nil {
		t.Fatalf("held snapshot changed under reload: %v", err)
	}
	if _, err := after.ResolveSearch("fresh_search"); err != nil {
		t.Fatalf("reloaded snapshot missing new service: %v", err)
	}
	if _, err := after.ResolveSearch("products_search"); err == nil {
		t.Fatal("reloaded snapshot should not contain removed service")
	}
	if reg.Snapshot() != after {
		t.Fatal("Snapshot() should return the reloaded snapshot")
	}
}

func TestListReturnsCopy(t *testing.T) {
	t.Parallel()
	snap := New(writeCatalog(t, sampleCatalog)).Snapshot()

	list, err := snap.ListSearch()
	if err != nil {
		t.Fatalf("ListSearch: %v", err)
	}
	list[0].Name = "mutated"

	again, err := snap.ListSearch()
	if err != nil {
		t.Fatalf("ListSearch: %v", err)
	}
	if again[0].Name != "products_search" {
		t.Fatal("caller mutation leaked into the snapshot")
	}
}
