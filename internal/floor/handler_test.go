package floor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiospace/plankit/internal/auth"
	"github.com/studiospace/plankit/internal/editor"
	"github.com/studiospace/plankit/internal/engine"
	"github.com/studiospace/plankit/internal/loader"
	"github.com/studiospace/plankit/internal/plan"
)

type memFloors struct {
	mu     sync.Mutex
	floors map[string]*plan.Floor
}

func (m *memFloors) LoadFloor(_ context.Context, id string) (*plan.Floor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.floors[id]
	if !ok {
		return nil, plan.ErrFloorNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *memFloors) SaveFloor(_ context.Context, f *plan.Floor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.floors[f.ID] = f
	return nil
}

type fixture struct {
	router *mux.Router
	svc    *Service
	floors *memFloors
	token  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	floors := &memFloors{floors: map[string]*plan.Floor{
		"f1": {
			ID: "f1", Name: "Level 1", Width: 100, Height: 100,
			Spaces: []plan.Space{
				{ID: "a", Label: "Lobby", Vertices: [][2]float64{{0, 0}, {50, 0}, {50, 50}, {0, 50}}},
				{ID: "b", Label: "Office", Vertices: [][2]float64{{50, 0}, {100, 0}, {100, 50}, {50, 50}}},
			},
		},
	}}
	reg := engine.NewRegistry(engine.DefaultConfig(), nil)
	ld := loader.New(floors, reg)
	ed := editor.New(editor.DefaultConfig())
	svc := NewService(context.Background(), reg, ld, ed, floors)
	require.NoError(t, <-svc.Load("f1"))

	authSvc := auth.NewService("test-secret")
	token, err := authSvc.IssueToken("user_1", time.Hour)
	require.NoError(t, err)

	r := mux.NewRouter()
	NewHandler(svc).Routes(r.PathPrefix("/api").Subrouter(), authSvc.AuthMiddleware)
	return &fixture{router: r, svc: svc, floors: floors, token: token}
}

func (f *fixture) do(t *testing.T, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if authed {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHandler_GetAndList(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/api/floors/f1", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[View](t, rec)
	assert.Equal(t, "Level 1", view.Name)
	assert.Equal(t, 2, view.Summary.Spaces)
	assert.Len(t, view.Outlines, 2)
	assert.Equal(t, uint64(1), view.Version)

	rec = f.do(t, "GET", "/api/floors", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]Summary](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "f1", list[0].ID)

	rec = f.do(t, "GET", "/api/floors/missing", nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_HitTest(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/api/floors/f1/hit?x=25&y=25", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	hit := decode[hitResponse](t, rec)
	require.NotNil(t, hit.SpaceID)
	assert.Equal(t, "a", *hit.SpaceID)

	// Screen (150, 50) under scale 2 is plan (75, 25).
	rec = f.do(t, "GET", "/api/floors/f1/hit?x=150&y=50&scale=2", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	hit = decode[hitResponse](t, rec)
	require.NotNil(t, hit.SpaceID)
	assert.Equal(t, "b", *hit.SpaceID)

	rec = f.do(t, "GET", "/api/floors/f1/hit?x=25&y=75", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `null`, string(decode[map[string]json.RawMessage](t, rec)["spaceId"]))

	rec = f.do(t, "GET", "/api/floors/f1/hit?x=abc&y=1", nil, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_SetTransform(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "PUT", "/api/floors/f1/transform", engine.Transform{Scale: 0.5, TranslateX: 10}, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.5, decode[engine.Transform](t, rec).Scale)

	// Screen (30, 10) maps to plan (40, 20).
	rec = f.do(t, "GET", "/api/floors/f1/hit?x=30&y=10", nil, false)
	hit := decode[hitResponse](t, rec)
	require.NotNil(t, hit.SpaceID)
	assert.Equal(t, "a", *hit.SpaceID)
}

func TestHandler_LoadWait(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "POST", "/api/floors/f1/load?wait=true", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(2), decode[Summary](t, rec).Version)

	rec = f.do(t, "POST", "/api/floors/nope/load?wait=true", nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, "POST", "/api/floors/f1/load", nil, false)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestHandler_Edit(t *testing.T) {
	f := newFixture(t)
	body := map[string]any{"ops": []map[string]any{
		{"type": "polygon.replace", "polygon": [][2]float64{{0, 0}, {80, 0}, {80, 50}, {0, 50}}},
	}}

	rec := f.do(t, "POST", "/api/floors/f1/spaces/a/edits", body, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, "POST", "/api/floors/f1/spaces/a/edits", body, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[editResponse](t, rec)
	assert.Equal(t, "a", out.Commit.SpaceID)
	assert.Equal(t, uint64(3), out.Commit.Revision)

	// a now overlaps b and was committed last.
	rec = f.do(t, "GET", "/api/floors/f1/hit?x=60&y=25", nil, false)
	hit := decode[hitResponse](t, rec)
	require.NotNil(t, hit.SpaceID)
	assert.Equal(t, "a", *hit.SpaceID)
}

func TestHandler_EditErrors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "POST", "/api/floors/f1/spaces/a/edits", map[string]any{"ops": []map[string]any{
		{"type": "polygon.replace", "polygon": [][2]float64{{0, 0}, {1, 1}}},
	}}, true)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, "POST", "/api/floors/f1/spaces/zz/edits", map[string]any{"ops": []map[string]any{
		{"type": "vertex.remove", "index": 0},
	}}, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, "POST", "/api/floors/f1/spaces/a/edits", map[string]any{"ops": []map[string]any{
		{"type": "vertex.move", "index": 9, "point": map[string]float64{"x": 1, "y": 1}},
	}}, true)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, "POST", "/api/floors/f1/spaces/a/edits", map[string]any{"ops": []any{}}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Import(t *testing.T) {
	f := newFixture(t)
	floor := plan.Floor{
		Name: "Annex", Width: 40, Height: 40,
		Spaces: []plan.Space{{ID: "x", Vertices: [][2]float64{{0, 0}, {40, 0}, {40, 40}, {0, 40}}}},
	}

	rec := f.do(t, "PUT", "/api/floors/f2", floor, true)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Eventually(t, func() bool {
		_, err := f.svc.Get("f2")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	floor.ID = "other"
	rec = f.do(t, "PUT", "/api/floors/f2", floor, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	floor.ID = "f3"
	floor.Spaces[0].Vertices = [][2]float64{{0, 0}, {1, 1}, {2, 2}}
	rec = f.do(t, "PUT", "/api/floors/f3", floor, true)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleServiceError(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{ErrNotLoaded, http.StatusNotFound},
		{editor.ErrSessionActive, http.StatusConflict},
		{engine.ErrStaleSnapshot, http.StatusConflict},
		{ErrImportDisabled, http.StatusNotImplemented},
		{&loader.LoadError{FloorID: "f", Err: context.DeadlineExceeded}, http.StatusBadGateway},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		handleServiceError(rec, tc.err)
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
	}
}
