package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-engine/internal/grid"
	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/mesh"
	"github.com/annel0/voxel-engine/internal/physics"
	"github.com/annel0/voxel-engine/internal/sim"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/worker"
	"github.com/annel0/voxel-engine/internal/world"
	"github.com/annel0/voxel-engine/internal/world/block"
	"github.com/annel0/voxel-engine/internal/world/entity"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fixture struct {
	server    *Server
	sim       *sim.Simulation
	scheduler *mesh.Scheduler
	field     *world.Field
	auth      *Authenticator
}

func newFixture(t *testing.T, secret string) *fixture {
	t.Helper()
	quiet := logging.NewWriterLogger("api", io.Discard, logging.ERROR)

	g := grid.MustNew(1, 2, 2)
	table := block.DefaultTable()
	field := world.NewField(g, table)

	resolver, err := physics.NewResolver(physics.DefaultConfig(), quiet, nil)
	require.NoError(t, err)

	pool := worker.New(1, 16, quiet)
	t.Cleanup(pool.Close)
	store := mesh.NewStore()
	scheduler := mesh.NewScheduler(mesh.NewMesher(table), g, pool, store, mesh.SchedulerOptions{Logger: quiet})

	s := sim.New(sim.Options{
		Field:      field,
		Population: entity.NewPopulation(entity.NewIDGenerator(1)),
		State:      physics.NewState(),
		Resolver:   resolver,
		Scheduler:  scheduler,
		Logger:     quiet,
	})

	auth, err := NewAuthenticator(secret, 0)
	require.NoError(t, err)

	server := New(Options{
		Sim:        s,
		Store:      store,
		Auth:       auth,
		Registerer: prometheus.NewRegistry(),
		Logger:     quiet,
	})
	return &fixture{server: server, sim: s, scheduler: scheduler, field: field, auth: auth}
}

func (fx *fixture) do(t *testing.T, method, path string, body interface{}, token string) (*httptest.ResponseRecorder, GenericResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(w, req)

	var resp GenericResponse
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func dataMap(t *testing.T, resp GenericResponse) map[string]interface{} {
	t.Helper()
	m, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data должен быть объектом: %#v", resp.Data)
	return m
}

func TestHealth(t *testing.T) {
	fx := newFixture(t, "")
	w, _ := fx.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, fx.sim.RunID(), body["run_id"])
	assert.NotEmpty(t, w.Header().Get("X-Trace-Id"))
}

func TestBlocks_SetRequiresToken(t *testing.T) {
	fx := newFixture(t, testSecret)
	req := SetBlockRequest{Position: [3]int{1, 0, 0}, Kind: "stone"}

	w, resp := fx.do(t, http.MethodPost, "/api/blocks", req, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, resp.Success)

	w, _ = fx.do(t, http.MethodPost, "/api/blocks", req, "не-токен")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := fx.auth.Issue("tester")
	require.NoError(t, err)
	w, resp = fx.do(t, http.MethodPost, "/api/blocks", req, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)

	kind, _ := fx.field.KindAt(vec.Vec3{X: 1})
	assert.Equal(t, block.Stone, kind)
}

func TestBlocks_GetSetRemove(t *testing.T) {
	fx := newFixture(t, "")

	w, _ := fx.do(t, http.MethodPost, "/api/blocks", SetBlockRequest{
		Position: [3]int{0, 1, 0},
		Kind:     "wood",
		Object:   &objectView{Kind: "door", Facing: "north", Open: true},
	}, "")
	require.Equal(t, http.StatusOK, w.Code)

	w, resp := fx.do(t, http.MethodGet, "/api/blocks?x=0&y=1&z=0", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, resp)
	assert.Equal(t, "wood", data["kind"])
	assert.Equal(t, true, data["solid"])
	obj, ok := data["object"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "door", obj["kind"])
	assert.Equal(t, "north", obj["facing"])
	assert.Equal(t, true, obj["open"])

	// Мировой индекс: (x+12) + 25*(y+12) + 625*(z+12) для радиуса мира 12
	assert.Equal(t, float64(7837), data["id"])
	w, resp = fx.do(t, http.MethodGet, "/api/blocks/7837", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "wood", dataMap(t, resp)["kind"])
	assert.Equal(t, []interface{}{float64(0), float64(1), float64(0)}, dataMap(t, resp)["position"])

	w, _ = fx.do(t, http.MethodGet, "/api/blocks/15625", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code, "индекс за пределами мира")
	w, _ = fx.do(t, http.MethodGet, "/api/blocks/abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = fx.do(t, http.MethodDelete, "/api/blocks?x=0&y=1&z=0", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	_, hasObject := fx.field.ObjectAt(vec.Vec3{Y: 1})
	assert.False(t, hasObject, "удаление блока убирает объект")

	w, _ = fx.do(t, http.MethodGet, "/api/blocks?x=0&y=1", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = fx.do(t, http.MethodGet, "/api/blocks?x=1000&y=0&z=0", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBlocks_InvalidRequests(t *testing.T) {
	fx := newFixture(t, "")

	w, _ := fx.do(t, http.MethodPost, "/api/blocks", SetBlockRequest{Kind: "obsidian"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = fx.do(t, http.MethodPost, "/api/blocks", SetBlockRequest{
		Kind:   "stone",
		Object: &objectView{Kind: "stairs", Facing: "up"},
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "объекты не смотрят вверх")

	w, _ = fx.do(t, http.MethodPost, "/api/blocks", SetBlockRequest{Position: [3]int{1000, 0, 0}, Kind: "stone"}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBodies_SpawnActAndStep(t *testing.T) {
	fx := newFixture(t, "")

	w, resp := fx.do(t, http.MethodPost, "/api/bodies", SpawnBodyRequest{
		Type:     "player",
		Position: [3]float64{0, 0, 5},
	}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	created := dataMap(t, resp)
	assert.Equal(t, float64(1), created["id"])
	assert.Equal(t, "player", created["type"])
	assert.Equal(t, "ground", created["mode"])

	w, _ = fx.do(t, http.MethodPost, "/api/bodies/1/actions", ActionRequest{
		Kind:     "move",
		Velocity: [3]float64{3, 0, 0},
	}, "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, fx.sim.Actions().Pending())

	_, err := fx.sim.Step(context.Background())
	require.NoError(t, err)

	w, resp = fx.do(t, http.MethodGet, "/api/bodies/1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	pos := dataMap(t, resp)["position"].([]interface{})
	assert.InDelta(t, 3.0/60, pos[0].(float64), 1e-9)

	w, resp = fx.do(t, http.MethodGet, "/api/bodies", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data, 1)

	w, _ = fx.do(t, http.MethodDelete, "/api/bodies/1", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = fx.do(t, http.MethodDelete, "/api/bodies/1", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBodies_InvalidRequests(t *testing.T) {
	fx := newFixture(t, "")

	w, _ := fx.do(t, http.MethodPost, "/api/bodies", SpawnBodyRequest{Type: "dragon"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = fx.do(t, http.MethodPost, "/api/bodies", SpawnBodyRequest{
		Type:   "npc",
		Radius: &[3]float64{0.3, 0, 0.9},
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = fx.do(t, http.MethodPost, "/api/bodies", SpawnBodyRequest{
		Type:     "npc",
		Position: [3]float64{1e6, 0, 0},
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp := fx.do(t, http.MethodPost, "/api/bodies", SpawnBodyRequest{
		Type:   "npc",
		Radius: &[3]float64{0.3, 4.5, 0.9},
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "тело больше четырёх ячеек")
	assert.Equal(t, "Тело больше допустимого размера", resp.Message)

	// Бесконечность не проходит разбор JSON
	w, _ = fx.do(t, http.MethodPost, "/api/bodies", json.RawMessage(`{"type":"npc","radius":[0.3,1e999,0.9]}`), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = fx.do(t, http.MethodPost, "/api/bodies/42/actions", ActionRequest{Kind: "jump"}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = fx.do(t, http.MethodPost, "/api/bodies/abc/actions", ActionRequest{Kind: "jump"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = fx.do(t, http.MethodPost, "/api/bodies", SpawnBodyRequest{Type: "npc"}, "")
	require.Equal(t, http.StatusCreated, w.Code)

	w, _ = fx.do(t, http.MethodPost, "/api/bodies/1/actions", ActionRequest{Kind: "teleport"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = fx.do(t, http.MethodPost, "/api/bodies/1/actions", ActionRequest{Kind: "mode", Mode: "swim"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, fx.sim.Actions().Pending())
}

func TestSectorMesh(t *testing.T) {
	fx := newFixture(t, "")
	ctx := context.Background()
	require.NoError(t, fx.field.SetBlock(vec.Vec3{}, block.Stone))

	_, err := fx.sim.Step(ctx)
	require.NoError(t, err)
	require.NoError(t, fx.scheduler.Wait(ctx))
	fx.scheduler.Commit()

	sid, _, _ := fx.field.Grid().Locate(vec.Vec3{})
	w, resp := fx.do(t, http.MethodGet, "/api/sectors/"+itoa(sid)+"/mesh", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, resp)
	assert.Equal(t, float64(6), data["quads"])
	assert.Equal(t, false, data["stale"])

	// Изменение без нового тика делает меш устаревшим
	require.NoError(t, fx.field.SetBlock(vec.Vec3{X: 1}, block.Stone))
	_, resp = fx.do(t, http.MethodGet, "/api/sectors/"+itoa(sid)+"/mesh", nil, "")
	assert.Equal(t, true, dataMap(t, resp)["stale"])

	w, _ = fx.do(t, http.MethodGet, "/api/sectors/99999/mesh", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = fx.do(t, http.MethodGet, "/api/sectors/-1/mesh", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStats(t *testing.T) {
	fx := newFixture(t, "")
	require.NoError(t, fx.field.SetBlock(vec.Vec3{}, block.Dirt))
	fx.do(t, http.MethodPost, "/api/bodies", SpawnBodyRequest{Type: "animal"}, "")

	w, resp := fx.do(t, http.MethodGet, "/api/stats", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, resp)
	assert.Equal(t, float64(1), data["bodies"])
	assert.Equal(t, float64(1), data["sectors"])
	assert.Equal(t, float64(1), data["dirty_sectors"])
	assert.Equal(t, float64(0), data["tick"])
	assert.Contains(t, data, "process")
}

func TestSave_WithoutStorage(t *testing.T) {
	fx := newFixture(t, "")
	w, resp := fx.do(t, http.MethodPost, "/api/save", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
}

func itoa(id grid.SectorID) string {
	return strconv.FormatUint(uint64(id), 10)
}
