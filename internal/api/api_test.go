package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/featgraph/featgraph/internal/rbac"
	"github.com/featgraph/featgraph/internal/registry"
	"github.com/featgraph/featgraph/internal/testutil"
	"github.com/featgraph/featgraph/pkg/model"
)

func setupHandler(t *testing.T, withRBAC bool) http.Handler {
	t.Helper()
	ctx := context.Background()
	logger := testutil.NewTestLogger(t)

	reg, err := registry.NewRegistry(ctx, registry.Config{
		Backend:       "sql",
		Database:      "sqlite",
		ConnectionStr: filepath.Join(t.TempDir(), "registry.sqlite"),
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	t.Cleanup(func() { reg.Close() })

	cfg := Config{
		Registry: reg,
		APIBase:  "/api/v1",
		Logger:   logger,
	}
	if withRBAC {
		sqlReg, ok := reg.(*registry.SQLRegistry)
		if !ok {
			t.Fatal("expected SQL registry")
		}
		manager := rbac.NewManager(sqlReg.Store(), logger)
		if err := manager.EnsureDefaultAdmin(ctx, "admin@example.com"); err != nil {
			t.Fatalf("failed to seed admin: %v", err)
		}
		cfg.Manager = manager
		cfg.Resolver = rbac.NewResolver()
	}
	return NewServer(cfg).Routes()
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response %s: %v", rec.Body.String(), err)
	}
}

func createOK(t *testing.T, h http.Handler, path string, body any) string {
	t.Helper()
	rec := doRequest(t, h, http.MethodPost, path, body, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST %s returned %d: %s", path, rec.Code, rec.Body.String())
	}
	var resp guidResponse
	decodeInto(t, rec, &resp)
	if resp.GUID == "" {
		t.Fatalf("POST %s returned empty guid", path)
	}
	return resp.GUID
}

func sourceBody(name string) map[string]any {
	return map[string]any{
		"name": name,
		"type": "hdfs",
		"path": "wasbs://data/" + name,
	}
}

func featureBody(name, expr string) map[string]any {
	return map[string]any{
		"name": name,
		"featureType": map[string]any{
			"type":    "FEATURE",
			"valType": "DOUBLE",
		},
		"transformation": map[string]any{"transformExpr": expr},
	}
}

// seedGraph builds a small project over HTTP: one source, one anchor with a
// feature, and one derived feature on top of it.
type seededGraph struct {
	projectID string
	sourceID  string
	anchorID  string
	featureID string
	derivedID string
}

func seedGraph(t *testing.T, h http.Handler) seededGraph {
	t.Helper()
	var g seededGraph
	g.projectID = createOK(t, h, "/api/v1/projects", map[string]any{"name": "nyc_taxi"})
	g.sourceID = createOK(t, h, "/api/v1/projects/nyc_taxi/datasources", sourceBody("trips"))
	g.anchorID = createOK(t, h, "/api/v1/projects/nyc_taxi/anchors", map[string]any{
		"name":     "trip_anchor",
		"sourceId": g.sourceID,
	})
	g.featureID = createOK(t, h,
		"/api/v1/projects/nyc_taxi/anchors/"+g.anchorID+"/features",
		featureBody("f_trip_distance", "trip_distance"))
	derived := featureBody("f_trip_distance_km", "f_trip_distance * 1.6")
	derived["inputAnchorFeatures"] = []string{g.featureID}
	g.derivedID = createOK(t, h, "/api/v1/projects/nyc_taxi/derivedfeatures", derived)
	return g
}

func TestProjects(t *testing.T) {
	h := setupHandler(t, false)
	id := createOK(t, h, "/api/v1/projects", map[string]any{"name": "nyc_taxi"})

	// Re-creating a project is idempotent.
	if again := createOK(t, h, "/api/v1/projects", map[string]any{"name": "nyc_taxi"}); again != id {
		t.Errorf("expected idempotent create to return %s, got %s", id, again)
	}

	rec := doRequest(t, h, http.MethodGet, "/api/v1/projects", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list projects returned %d", rec.Code)
	}
	var names []string
	decodeInto(t, rec, &names)
	found := false
	for _, name := range names {
		if name == "nyc_taxi" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected nyc_taxi in project list %v", names)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/projects-ids", nil, "")
	var ids map[string]string
	decodeInto(t, rec, &ids)
	if ids[id] != "nyc_taxi" {
		t.Errorf("expected projects-ids to map %s to nyc_taxi, got %q", id, ids[id])
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/projects/nyc_taxi", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get project returned %d", rec.Code)
	}
	var project registry.EntitiesAndRelations
	decodeInto(t, rec, &project)
	if _, ok := project.Entities[id]; !ok {
		t.Error("expected project entity in guidEntityMap")
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/projects/no_such_project", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing project, got %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/v1/projects", map[string]any{"name": ""}, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty project name, got %d", rec.Code)
	}
}

func TestDataSources(t *testing.T) {
	h := setupHandler(t, false)
	g := seedGraph(t, h)
	createOK(t, h, "/api/v1/projects", map[string]any{"name": "other"})
	otherSource := createOK(t, h, "/api/v1/projects/other/datasources", sourceBody("clicks"))

	rec := doRequest(t, h, http.MethodGet, "/api/v1/projects/nyc_taxi/datasources", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list datasources returned %d", rec.Code)
	}
	var sources []model.Entity
	decodeInto(t, rec, &sources)
	if len(sources) != 1 || sources[0].ID != g.sourceID {
		t.Fatalf("expected the trips source, got %+v", sources)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/projects/nyc_taxi/datasources/"+g.sourceID, nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("get datasource returned %d", rec.Code)
	}

	// A source that belongs to a different project is not reachable here.
	rec = doRequest(t, h, http.MethodGet, "/api/v1/projects/nyc_taxi/datasources/"+otherSource, nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for foreign datasource, got %d", rec.Code)
	}

	// Registering the same definition again is idempotent, a changed one
	// conflicts.
	if again := createOK(t, h, "/api/v1/projects/nyc_taxi/datasources", sourceBody("trips")); again != g.sourceID {
		t.Errorf("expected idempotent source create to return %s, got %s", g.sourceID, again)
	}
	changed := sourceBody("trips")
	changed["eventTimestampColumn"] = "pickup_time"
	rec = doRequest(t, h, http.MethodPost, "/api/v1/projects/nyc_taxi/datasources", changed, "")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for conflicting source, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestFeatures(t *testing.T) {
	h := setupHandler(t, false)
	g := seedGraph(t, h)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/projects/nyc_taxi/features", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list features returned %d", rec.Code)
	}
	var features []model.Entity
	decodeInto(t, rec, &features)
	if len(features) != 2 {
		t.Fatalf("expected 2 features, got %d", len(features))
	}

	// Keyword search with paging.
	rec = doRequest(t, h, http.MethodGet,
		"/api/v1/projects/nyc_taxi/features?keyword=trip_distance&limit=1&page=2", nil, "")
	decodeInto(t, rec, &features)
	if len(features) != 1 {
		t.Fatalf("expected 1 feature on page 2, got %d", len(features))
	}

	rec = doRequest(t, h, http.MethodGet,
		"/api/v1/projects/nyc_taxi/features?keyword=x&limit=0", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-positive limit, got %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet,
		"/api/v1/features/nyc_taxi__trip_anchor__f_trip_distance", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get feature returned %d: %s", rec.Code, rec.Body.String())
	}
	var feature model.Entity
	decodeInto(t, rec, &feature)
	if feature.ID != g.featureID {
		t.Errorf("expected feature %s, got %s", g.featureID, feature.ID)
	}

	// Addressing a non-feature entity through the feature route is a 404.
	rec = doRequest(t, h, http.MethodGet, "/api/v1/features/"+g.sourceID, nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for non-feature entity, got %d", rec.Code)
	}
}

func TestLineageAndDependents(t *testing.T) {
	h := setupHandler(t, false)
	g := seedGraph(t, h)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/features/"+g.featureID+"/lineage", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("lineage returned %d", rec.Code)
	}
	var lineage registry.EntitiesAndRelations
	decodeInto(t, rec, &lineage)
	// Upstream source and downstream derived feature both appear.
	for _, id := range []string{g.sourceID, g.derivedID} {
		if _, ok := lineage.Entities[id]; !ok {
			t.Errorf("expected %s in lineage", id)
		}
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/dependent/"+g.sourceID, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("dependents returned %d", rec.Code)
	}
	var dependents []model.Entity
	decodeInto(t, rec, &dependents)
	if len(dependents) != 3 {
		t.Errorf("expected anchor, feature and derived feature as dependents, got %d", len(dependents))
	}
}

func TestEntityLifecycle(t *testing.T) {
	h := setupHandler(t, false)
	g := seedGraph(t, h)

	// A consumed source cannot be deleted.
	rec := doRequest(t, h, http.MethodDelete, "/api/v1/entity/"+g.sourceID, nil, "")
	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("expected 412 deleting a consumed source, got %d: %s", rec.Code, rec.Body.String())
	}

	// Update bumps the version and the history keeps both.
	rec = doRequest(t, h, http.MethodPut, "/api/v1/entity/"+g.derivedID,
		map[string]any{"name": "f_trip_distance_km", "qualifiedName": "nyc_taxi__f_trip_distance_km"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("update returned %d: %s", rec.Code, rec.Body.String())
	}
	var updated updateResponse
	decodeInto(t, rec, &updated)
	if updated.Version != 2 {
		t.Errorf("expected version 2 after update, got %d", updated.Version)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/entity/"+g.derivedID+"/versions", nil, "")
	var versions []model.EntityVersion
	decodeInto(t, rec, &versions)
	if len(versions) != 2 {
		t.Errorf("expected 2 versions, got %d", len(versions))
	}

	// Delete leaf first, then the rest of the chain unwinds.
	for _, id := range []string{g.derivedID, g.featureID, g.sourceID} {
		rec = doRequest(t, h, http.MethodDelete, "/api/v1/entity/"+id, nil, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("delete of %s returned %d: %s", id, rec.Code, rec.Body.String())
		}
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/features/"+g.featureID, nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for deleted feature, got %d", rec.Code)
	}
}

func TestMalformedBody(t *testing.T) {
	h := setupHandler(t, false)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects", bytes.NewBufferString("{broken"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestRBACIntegration(t *testing.T) {
	h := setupHandler(t, true)

	// The resolver accepts an opaque token as the username itself, which is
	// what these tests send.
	admin := "admin@example.com"

	rec := doRequest(t, h, http.MethodGet, "/api/v1/projects", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/v1/projects", map[string]any{"name": "nyc_taxi"}, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("project create as admin returned %d: %s", rec.Code, rec.Body.String())
	}

	// Grant alice read on the project, which lets her read but not write.
	rec = doRequest(t, h, http.MethodPost,
		"/api/v1/users/alice/userroles/add?project=nyc_taxi&role=consumer&reason=onboarding", nil, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("role grant returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/projects/nyc_taxi", nil, "alice")
	if rec.Code != http.StatusOK {
		t.Errorf("expected consumer read to pass, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, h, http.MethodPost, "/api/v1/projects/nyc_taxi/datasources", sourceBody("trips"), "alice")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected consumer write to be denied, got %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodGet, "/api/v1/projects/nyc_taxi", nil, "mallory")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected unknown user to be denied, got %d", rec.Code)
	}

	// A project creator becomes its admin and can manage roles there.
	rec = doRequest(t, h, http.MethodPost,
		"/api/v1/users/bob/userroles/add?project=global&role=producer&reason=bootstrap", nil, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("global producer grant returned %d: %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, h, http.MethodPost, "/api/v1/projects", map[string]any{"name": "bobs_project"}, "bob")
	if rec.Code != http.StatusOK {
		t.Fatalf("project create as bob returned %d: %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, h, http.MethodPost,
		"/api/v1/users/carol/userroles/add?project=bobs_project&role=consumer&reason=review", nil, "bob")
	if rec.Code != http.StatusOK {
		t.Errorf("expected project creator to manage roles, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/userroles", nil, "bob")
	if rec.Code != http.StatusOK {
		t.Fatalf("list userroles returned %d: %s", rec.Code, rec.Body.String())
	}
	var roles []model.UserRole
	decodeInto(t, rec, &roles)
	for _, role := range roles {
		if role.Project != "bobs_project" {
			t.Errorf("expected bob to only see bobs_project bindings, saw %+v", role)
		}
	}

	rec = doRequest(t, h, http.MethodDelete,
		"/api/v1/users/carol/userroles/delete?project=bobs_project&role=consumer&reason=done", nil, "bob")
	if rec.Code != http.StatusOK {
		t.Errorf("role revoke returned %d: %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, h, http.MethodGet, "/api/v1/projects/bobs_project", nil, "carol")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected revoked consumer to be denied, got %d", rec.Code)
	}
}

func TestServeShutdown(t *testing.T) {
	reg, err := registry.NewRegistry(context.Background(), registry.Config{
		Backend:       "sql",
		Database:      "sqlite",
		ConnectionStr: filepath.Join(t.TempDir(), "registry.sqlite"),
		Logger:        testutil.NewTestLogger(t),
	})
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	t.Cleanup(func() { reg.Close() })

	srv := NewServer(Config{
		Registry: reg,
		APIBase:  "/api/v1",
		Addr:     "127.0.0.1:0",
		Logger:   testutil.NewTestLogger(t),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
}
