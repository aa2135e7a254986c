package services

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/canvas-studio/engine/internal/canvas"
	"github.com/canvas-studio/engine/internal/models"
	"github.com/canvas-studio/engine/internal/repository"
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

type mockCanvasRepository struct {
	mock.Mock
}

func (m *mockCanvasRepository) GetByID(ctx context.Context, id any, dest *models.Canvas) error {
	args := m.Called(ctx, id, dest)
	if v, ok := args.Get(0).(*models.Canvas); ok && v != nil {
		*dest = *v
	}
	return args.Error(1)
}

func (m *mockCanvasRepository) Exists(ctx context.Context, id any) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockCanvasRepository) Patch(ctx context.Context, id any, fields map[string]any) error {
	return m.Called(ctx, id, fields).Error(0)
}

func (m *mockCanvasRepository) Delete(ctx context.Context, id any) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockCanvasRepository) GetByOwnerAndName(ctx context.Context, ownerID, name string, dest *models.Canvas) error {
	args := m.Called(ctx, ownerID, name, dest)
	if v, ok := args.Get(0).(*models.Canvas); ok && v != nil {
		*dest = *v
	}
	return args.Error(1)
}

func (m *mockCanvasRepository) GetWithShares(ctx context.Context, id uuid.UUID, dest *models.Canvas) error {
	args := m.Called(ctx, id, dest)
	if v, ok := args.Get(0).(*models.Canvas); ok && v != nil {
		*dest = *v
	}
	return args.Error(1)
}

func (m *mockCanvasRepository) ListByOwner(ctx context.Context, ownerID string, page repository.Page) ([]models.Canvas, int64, error) {
	args := m.Called(ctx, ownerID, page)
	if v := args.Get(0); v != nil {
		return v.([]models.Canvas), args.Get(1).(int64), args.Error(2)
	}
	return nil, 0, args.Error(2)
}

func (m *mockCanvasRepository) ListByOwnerAndName(ctx context.Context, ownerID, name string) ([]models.Canvas, error) {
	args := m.Called(ctx, ownerID, name)
	if v := args.Get(0); v != nil {
		return v.([]models.Canvas), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCanvasRepository) Upsert(ctx context.Context, c *models.Canvas) error {
	args := m.Called(ctx, c)
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *mockCanvasRepository) UpdateContent(ctx context.Context, c *models.Canvas) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockCanvasRepository) Rename(ctx context.Context, id uuid.UUID, name string) error {
	return m.Called(ctx, id, name).Error(0)
}

func (m *mockCanvasRepository) SetPublic(ctx context.Context, id uuid.UUID, public bool) error {
	return m.Called(ctx, id, public).Error(0)
}

func (m *mockCanvasRepository) AddShare(ctx context.Context, id uuid.UUID, userID string) error {
	return m.Called(ctx, id, userID).Error(0)
}

func (m *mockCanvasRepository) RemoveShare(ctx context.Context, id uuid.UUID, userID string) error {
	return m.Called(ctx, id, userID).Error(0)
}

func (m *mockCanvasRepository) HasShare(ctx context.Context, id uuid.UUID, userID string) (bool, error) {
	args := m.Called(ctx, id, userID)
	return args.Bool(0), args.Error(1)
}

func (m *mockCanvasRepository) DeleteCascade(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func row(id uuid.UUID, owner string) *models.Canvas {
	return &models.Canvas{
		ID:       id,
		OwnerID:  owner,
		Name:     "Board",
		Nodes:    datatypes.JSON(`[{"id":"node-1","type":"text","position":{"x":1,"y":2}}]`),
		Edges:    datatypes.JSON(`[{"id":"enode-1-node-9","source":"node-1","target":"node-9","style":{}}]`),
		Viewport: datatypes.JSON(`{"x":5,"y":6,"zoom":0.5}`),
	}
}

func TestLoadDecodesAndSanitizes(t *testing.T) {
	repo := new(mockCanvasRepository)
	svc := NewCanvasService(repo)
	id := uuid.New()
	repo.On("GetByID", mock.Anything, id, mock.Anything).Return(row(id, "u1"), nil)

	rec, err := svc.Load(context.Background(), store.Query{CanvasID: id.String()})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Len(t, rec.Snapshot.Nodes, 1)
	assert.Empty(t, rec.Snapshot.Edges, "dangling edge dropped")
	assert.Equal(t, canvas.Viewport{X: 5, Y: 6, Zoom: 0.5}, rec.Snapshot.Viewport)
}

func TestLoadMissingIsNil(t *testing.T) {
	repo := new(mockCanvasRepository)
	svc := NewCanvasService(repo)
	repo.On("GetByOwnerAndName", mock.Anything, "u1", "Board", mock.Anything).Return(nil, appErr.NotFound("nope"))

	rec, err := svc.Load(context.Background(), store.Query{OwnerID: "u1", Name: "Board"})
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = svc.Load(context.Background(), store.Query{CanvasID: "not-a-uuid"})
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestUpsertValidatesAndEncodes(t *testing.T) {
	repo := new(mockCanvasRepository)
	svc := NewCanvasService(repo)

	_, err := svc.Upsert(context.Background(), store.UpsertInput{Name: "Board"})
	assert.True(t, appErr.IsCode(err, appErr.CodeInvalid))

	repo.On("Upsert", mock.Anything, mock.MatchedBy(func(c *models.Canvas) bool {
		return c.OwnerID == "u1" && c.NextNodeID == 4 && string(c.Edges) == "[]"
	})).Return(nil).Once()

	rec, err := svc.Upsert(context.Background(), store.UpsertInput{
		OwnerID: "u1",
		Name:    "Board",
		Snapshot: canvas.Snapshot{
			Nodes:      []canvas.Node{{ID: "node-3", Type: canvas.NodeText}},
			Edges:      []canvas.Edge{{ID: "x", Source: "node-3", Target: "gone"}},
			Viewport:   canvas.DefaultViewport,
			NextNodeID: 4,
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Len(t, rec.Snapshot.Nodes, 1)
	repo.AssertExpectations(t)
}

func TestUpsertByIDChecksOwnership(t *testing.T) {
	repo := new(mockCanvasRepository)
	svc := NewCanvasService(repo)
	id := uuid.New()
	repo.On("GetByID", mock.Anything, id, mock.Anything).Return(row(id, "u2"), nil)

	_, err := svc.Upsert(context.Background(), store.UpsertInput{CanvasID: id.String(), OwnerID: "u1", Name: "Board"})
	assert.True(t, appErr.IsCode(err, appErr.CodeForbidden))
	repo.AssertNotCalled(t, "UpdateContent", mock.Anything, mock.Anything)

	_, err = svc.Upsert(context.Background(), store.UpsertInput{CanvasID: "stale", OwnerID: "u1", Name: "Board"})
	assert.True(t, appErr.IsCode(err, appErr.CodeNotFound))
}

func TestGetHonoursSharesAndVisibility(t *testing.T) {
	repo := new(mockCanvasRepository)
	svc := NewCanvasService(repo)
	ctx := context.Background()

	shared := uuid.New()
	c := row(shared, "u1")
	c.Shares = []models.CanvasShare{{CanvasID: shared, UserID: "u2"}}
	repo.On("GetWithShares", mock.Anything, shared, mock.Anything).Return(c, nil)

	rec, err := svc.Get(ctx, "u1", shared.String())
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, rec.SharedWith)

	rec, err = svc.Get(ctx, "u2", shared.String())
	require.NoError(t, err)
	assert.Nil(t, rec.SharedWith)

	_, err = svc.Get(ctx, "u3", shared.String())
	assert.True(t, appErr.IsCode(err, appErr.CodeNotFound))

	public := uuid.New()
	p := row(public, "u1")
	p.IsPublic = true
	repo.On("GetWithShares", mock.Anything, public, mock.Anything).Return(p, nil)
	_, err = svc.Get(ctx, "u3", public.String())
	assert.NoError(t, err)
}

func TestShareRules(t *testing.T) {
	repo := new(mockCanvasRepository)
	svc := NewCanvasService(repo)
	ctx := context.Background()
	id := uuid.New()
	repo.On("GetByID", mock.Anything, id, mock.Anything).Return(row(id, "u1"), nil)
	repo.On("AddShare", mock.Anything, id, "u2").Return(nil).Once()

	require.NoError(t, svc.Share(ctx, "u1", id.String(), "u2"))
	assert.True(t, appErr.IsCode(svc.Share(ctx, "u1", id.String(), "u1"), appErr.CodeInvalid))
	assert.True(t, appErr.IsCode(svc.Share(ctx, "u1", id.String(), ""), appErr.CodeInvalid))
	assert.True(t, appErr.IsCode(svc.Share(ctx, "u9", id.String(), "u2"), appErr.CodeForbidden))
	repo.AssertExpectations(t)
}

func TestRemoveCascades(t *testing.T) {
	repo := new(mockCanvasRepository)
	svc := NewCanvasService(repo)
	id := uuid.New()
	repo.On("GetByID", mock.Anything, id, mock.Anything).Return(row(id, "u1"), nil)
	repo.On("DeleteCascade", mock.Anything, id).Return(nil).Once()

	require.NoError(t, svc.Remove(context.Background(), "u1", id.String()))
	repo.AssertExpectations(t)
}

func TestRenameValidatesName(t *testing.T) {
	svc := NewCanvasService(new(mockCanvasRepository))
	_, err := svc.Rename(context.Background(), "u1", uuid.NewString(), "")
	assert.True(t, appErr.IsCode(err, appErr.CodeInvalid))
}
