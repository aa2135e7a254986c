package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/canvas-studio/engine/internal/api/middleware"
	"github.com/canvas-studio/engine/internal/api/types"
	"github.com/canvas-studio/engine/internal/canvas"
	"github.com/canvas-studio/engine/internal/services"
	"github.com/canvas-studio/engine/internal/store"
	appErr "github.com/canvas-studio/engine/pkg/errors"
	"github.com/canvas-studio/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("error", "json"); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

type mockCanvasService struct {
	mock.Mock
}

func record(args mock.Arguments) (*store.Record, error) {
	if v := args.Get(0); v != nil {
		return v.(*store.Record), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCanvasService) Load(ctx context.Context, q store.Query) (*store.Record, error) {
	return record(m.Called(ctx, q))
}

func (m *mockCanvasService) Upsert(ctx context.Context, in store.UpsertInput) (*store.Record, error) {
	return record(m.Called(ctx, in))
}

func (m *mockCanvasService) ListByOwnerAndName(ctx context.Context, ownerID, name string) ([]store.Record, error) {
	args := m.Called(ctx, ownerID, name)
	if v := args.Get(0); v != nil {
		return v.([]store.Record), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCanvasService) Delete(ctx context.Context, canvasID string) error {
	return m.Called(ctx, canvasID).Error(0)
}

func (m *mockCanvasService) Get(ctx context.Context, actorID, canvasID string) (*store.Record, error) {
	return record(m.Called(ctx, actorID, canvasID))
}

func (m *mockCanvasService) ListByOwner(ctx context.Context, ownerID string, filters *services.CanvasFilters) ([]store.Record, int64, error) {
	args := m.Called(ctx, ownerID, filters)
	if v := args.Get(0); v != nil {
		return v.([]store.Record), args.Get(1).(int64), args.Error(2)
	}
	return nil, 0, args.Error(2)
}

func (m *mockCanvasService) Rename(ctx context.Context, ownerID, canvasID, name string) (*store.Record, error) {
	return record(m.Called(ctx, ownerID, canvasID, name))
}

func (m *mockCanvasService) SetPublic(ctx context.Context, ownerID, canvasID string, public bool) (*store.Record, error) {
	return record(m.Called(ctx, ownerID, canvasID, public))
}

func (m *mockCanvasService) Share(ctx context.Context, ownerID, canvasID, userID string) error {
	return m.Called(ctx, ownerID, canvasID, userID).Error(0)
}

func (m *mockCanvasService) Unshare(ctx context.Context, ownerID, canvasID, userID string) error {
	return m.Called(ctx, ownerID, canvasID, userID).Error(0)
}

func (m *mockCanvasService) Remove(ctx context.Context, ownerID, canvasID string) error {
	return m.Called(ctx, ownerID, canvasID).Error(0)
}

func newServer(svc services.CanvasService) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.With(middleware.Owner).Route("/canvases", NewCanvasesHandler(svc, nil).Routes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, owner, body string) (*httptest.ResponseRecorder, types.APIResponse) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if owner != "" {
		req.Header.Set(middleware.OwnerHeader, owner)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var resp types.APIResponse
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	}
	return rr, resp
}

func TestUpsertFillsOwnerFromHeader(t *testing.T) {
	svc := new(mockCanvasService)
	svc.On("Upsert", mock.Anything, mock.MatchedBy(func(in store.UpsertInput) bool {
		return in.OwnerID == "u1" && in.Name == "Board" && len(in.Snapshot.Nodes) == 1
	})).Return(&store.Record{ID: "c1", OwnerID: "u1", Name: "Board"}, nil).Once()

	rr, resp := do(t, newServer(svc), http.MethodPut, "/canvases", "u1",
		`{"name":"Board","snapshot":{"nodes":[{"id":"node-1","type":"text","position":{"x":0,"y":0}}],"edges":[],"viewport":{"x":0,"y":0,"zoom":1}}}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Meta.RequestID)
	svc.AssertExpectations(t)
}

func TestUpsertRejectsForeignOwnerAndBadInput(t *testing.T) {
	svc := new(mockCanvasService)
	h := newServer(svc)

	rr, resp := do(t, h, http.MethodPut, "/canvases", "u1", `{"owner_id":"u2","name":"Board"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "forbidden", resp.Error.Code)

	rr, _ = do(t, h, http.MethodPut, "/canvases", "u1", `{"snapshot":{}}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = do(t, h, http.MethodPut, "/canvases", "u1", `{`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = do(t, h, http.MethodPut, "/canvases", "", `{"name":"Board"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	svc.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestLookupAndGet(t *testing.T) {
	svc := new(mockCanvasService)
	svc.On("Load", mock.Anything, store.Query{OwnerID: "u1", Name: "Board"}).Return(nil, nil).Once()
	svc.On("Get", mock.Anything, "u1", "c1").Return(&store.Record{
		ID: "c1", Snapshot: canvas.Snapshot{Viewport: canvas.DefaultViewport},
	}, nil).Once()
	svc.On("Get", mock.Anything, "u1", "c2").Return(nil, appErr.NotFound("canvas c2 not found")).Once()
	h := newServer(svc)

	rr, resp := do(t, h, http.MethodGet, "/canvases/lookup?name=Board", "u1", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not_found", resp.Error.Code)

	rr, _ = do(t, h, http.MethodGet, "/canvases/lookup", "u1", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, resp = do(t, h, http.MethodGet, "/canvases/c1", "u1", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "c1", resp.Data.(map[string]any)["id"])

	rr, _ = do(t, h, http.MethodGet, "/canvases/c2", "u1", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	svc.AssertExpectations(t)
}

func TestListPaginates(t *testing.T) {
	svc := new(mockCanvasService)
	svc.On("ListByOwner", mock.Anything, "u1", &services.CanvasFilters{Page: 2, PageSize: 20}).
		Return([]store.Record{{ID: "c3"}}, int64(21), nil).Once()

	rr, resp := do(t, newServer(svc), http.MethodGet, "/canvases?page=2&page_size=500", "u1", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, resp.Meta.Page)
	assert.Equal(t, 20, resp.Meta.PageSize)
	assert.EqualValues(t, 21, resp.Meta.Total)
	svc.AssertExpectations(t)
}

func TestDuplicatesNeverNull(t *testing.T) {
	svc := new(mockCanvasService)
	svc.On("ListByOwnerAndName", mock.Anything, "u1", "Board").Return(nil, nil).Once()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/canvases/duplicates?name=Board", nil)
	req.Header.Set(middleware.OwnerHeader, "u1")
	newServer(svc).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"data":[]`)
}

func TestPatchRenameAndVisibility(t *testing.T) {
	svc := new(mockCanvasService)
	svc.On("Rename", mock.Anything, "u1", "c1", "Plans").Return(&store.Record{ID: "c1", Name: "Plans"}, nil).Once()
	svc.On("SetPublic", mock.Anything, "u1", "c1", true).Return(&store.Record{ID: "c1", Name: "Plans", IsPublic: true}, nil).Once()
	svc.On("Rename", mock.Anything, "u1", "c1", "Taken").Return(nil, appErr.New(appErr.CodeConflict, "canvas name already in use")).Once()
	h := newServer(svc)

	rr, resp := do(t, h, http.MethodPatch, "/canvases/c1", "u1", `{"name":"Plans","is_public":true}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, resp.Data.(map[string]any)["is_public"])

	rr, _ = do(t, h, http.MethodPatch, "/canvases/c1", "u1", `{"name":"Taken"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr, _ = do(t, h, http.MethodPatch, "/canvases/c1", "u1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = do(t, h, http.MethodPatch, "/canvases/c1", "u1", `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	svc.AssertExpectations(t)
}

func TestDeleteAndShares(t *testing.T) {
	svc := new(mockCanvasService)
	svc.On("Remove", mock.Anything, "u1", "c1").Return(nil).Once()
	svc.On("Remove", mock.Anything, "u2", "c1").Return(appErr.New(appErr.CodeForbidden, "user does not own canvas")).Once()
	svc.On("Share", mock.Anything, "u1", "c1", "u3").Return(nil).Once()
	svc.On("Unshare", mock.Anything, "u1", "c1", "u3").Return(nil).Once()
	h := newServer(svc)

	rr, _ := do(t, h, http.MethodDelete, "/canvases/c1", "u2", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr, _ = do(t, h, http.MethodDelete, "/canvases/c1", "u1", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr, _ = do(t, h, http.MethodPost, "/canvases/c1/shares", "u1", `{"user_id":"u3"}`)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr, _ = do(t, h, http.MethodPost, "/canvases/c1/shares", "u1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr, _ = do(t, h, http.MethodDelete, "/canvases/c1/shares/u3", "u1", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	svc.AssertExpectations(t)
}
