package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/annel0/spawnkeeper/internal/auth"
	"github.com/annel0/spawnkeeper/internal/logging"
	"github.com/annel0/spawnkeeper/internal/spawn"
	"github.com/annel0/spawnkeeper/internal/vec"
	"github.com/annel0/spawnkeeper/internal/world"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	rs        *RestServer
	manager   *world.Manager
	store     *spawn.Store
	path      string
	backupDir string
	admin     string
	user      string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, nil)
}

// newTestEnvWith позволяет поправить Config перед созданием сервера.
func newTestEnvWith(t *testing.T, tweak func(*Config)) *testEnv {
	t.Helper()

	dir := t.TempDir()
	logger := logging.NewWriterLogger("api", io.Discard)

	m := world.NewManager()
	m.Load("world", vec.Vec3{Y: 64})
	m.Load("world_nether", vec.Vec3{Y: 32})

	path := filepath.Join(dir, "spawns.yml")
	store, err := spawn.NewStore(path, m, spawn.WithLogger(logger))
	require.NoError(t, err)

	secret, err := auth.GenerateSecureSecret()
	require.NoError(t, err)
	tokens, err := auth.NewTokenService(secret)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	cfg := Config{
		Store:      store,
		Server:     m,
		Tokens:     tokens,
		BackupDir:  filepath.Join(dir, "backups"),
		Logger:     logger,
		Registerer: reg,
		Gatherer:   reg,
	}
	if tweak != nil {
		tweak(&cfg)
	}
	rs, err := NewRestServer(cfg)
	require.NoError(t, err)

	admin, err := tokens.Generate("admin", true, time.Hour)
	require.NoError(t, err)
	user, err := tokens.Generate("viewer", false, time.Hour)
	require.NoError(t, err)

	return &testEnv{
		rs:        rs,
		manager:   m,
		store:     store,
		path:      path,
		backupDir: filepath.Join(dir, "backups"),
		admin:     admin,
		user:      user,
	}
}

func (e *testEnv) do(t *testing.T, method, target, token string, body interface{}) (*httptest.ResponseRecorder, GenericResponse) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.rs.Handler().ServeHTTP(rec, req)

	var resp GenericResponse
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func decodeSpawn(t *testing.T, data interface{}) SpawnDTO {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	var dto SpawnDTO
	require.NoError(t, json.Unmarshal(raw, &dto))
	return dto
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	lastLoad, ok := body["last_load"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "ok", lastLoad["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodGet, "/health", "", nil)
	rec, _ := env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "spawnkeeper_http_request_duration_seconds")
}

func TestAPIRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodGet, "/api/worlds", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, resp.Success)

	rec, _ = env.do(t, http.MethodGet, "/api/worlds", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListAndGetSpawns(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodGet, "/api/worlds", env.user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var list []SpawnDTO
	require.NoError(t, json.Unmarshal(raw, &list))
	assert.Equal(t, []SpawnDTO{
		{World: "world", Y: 64},
		{World: "world_nether", Y: 32},
	}, list)

	rec, resp = env.do(t, http.MethodGet, "/api/worlds/world_nether/spawn", env.user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, SpawnDTO{World: "world_nether", Y: 32}, decodeSpawn(t, resp.Data))

	rec, _ = env.do(t, http.MethodGet, "/api/worlds/world_the_end/spawn", env.user, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetSpawnRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	body := SetSpawnRequest{X: 10, Y: 64, Z: 10, Pitch: 45, Yaw: 90}

	rec, _ := env.do(t, http.MethodPut, "/api/worlds/world/spawn", env.user, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, resp := env.do(t, http.MethodPut, "/api/worlds/world/spawn", env.admin, body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, SpawnDTO{World: "world", X: 10, Y: 64, Z: 10, Pitch: 45, Yaw: 90}, decodeSpawn(t, resp.Data))

	data, err := os.ReadFile(env.path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "world:\n  pitch: 45.0\n  yaw: 90.0\n")
}

func TestSetSpawnValidation(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodPut, "/api/worlds/world/spawn", env.admin, SetSpawnRequest{Y: 1000})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodPut, "/api/worlds/world_the_end/spawn", env.admin, SetSpawnRequest{Y: 64})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodPut, "/api/worlds/world/spawn", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+env.admin)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	env.rs.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSetSpawnRejectsNonFiniteCoordinates(t *testing.T) {
	env := newTestEnv(t)
	w, ok := env.manager.World("world")
	require.True(t, ok)

	rec, resp := env.do(t, http.MethodPut, "/api/worlds/world/spawn", env.admin, SetSpawnRequest{X: 1e300, Y: 64, Pitch: 10})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)

	// Нативный спавн остался прежним
	assert.Equal(t, vec.Vec3{Y: 64}, w.SpawnLocation().Block())
	loc, err := env.store.GetSpawn(w)
	require.NoError(t, err)
	assert.Equal(t, float32(0), loc.Pitch)
}

func TestCORSCoversAllRoutes(t *testing.T) {
	env := newTestEnvWith(t, func(c *Config) { c.EnableCORS = true })

	for _, target := range []string{"/metrics", "/health", "/api/worlds"} {
		rec, _ := env.do(t, http.MethodGet, target, env.user, nil)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"), target)
	}

	rec, _ := env.do(t, http.MethodOptions, "/api/worlds/world/spawn", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestReloadEndpoint(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(env.path, []byte("world:\n  pitch: 5.0\n  yaw: 6.0\n"), 0644))

	rec, _ := env.do(t, http.MethodPost, "/api/spawn/reload", env.user, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, resp := env.do(t, http.MethodPost, "/api/spawn/reload", env.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	rec, resp = env.do(t, http.MethodGet, "/api/worlds/world/spawn", env.user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dto := decodeSpawn(t, resp.Data)
	assert.Equal(t, float32(5), dto.Pitch)
	assert.Equal(t, float32(6), dto.Yaw)

	require.NoError(t, os.WriteFile(env.path, []byte("world: [\n"), 0644))
	rec, resp = env.do(t, http.MethodPost, "/api/spawn/reload", env.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, resp.Success)
}

func TestBackupEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/api/spawn/backup", env.admin, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	path, _ := data["path"].(string)
	assert.FileExists(t, path)

	backups, err := spawn.ListBackups(env.backupDir)
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}
