package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/annel0/spawnkeeper/internal/auth"
	"github.com/annel0/spawnkeeper/internal/logging"
	"github.com/annel0/spawnkeeper/internal/middleware"
	"github.com/annel0/spawnkeeper/internal/spawn"
	"github.com/annel0/spawnkeeper/internal/world"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RestServer представляет REST API сервер спавнов
type RestServer struct {
	router    *gin.Engine
	http      *http.Server
	store     *spawn.Store
	server    world.Server
	tokens    *auth.TokenService
	backupDir string
	health    *healthProbe
	logger    *logging.Logger
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Addr       string             // адрес для запуска сервера, ":8088"
	Store      *spawn.Store       // хранилище ориентаций
	Server     world.Server       // загруженные миры
	Tokens     *auth.TokenService // проверка JWT
	BackupDir  string             // каталог для POST /api/spawn/backup
	Service    string             // namespace HTTP-метрик
	Logger     *logging.Logger    // nil: логгер компонента "api"
	EnableCORS bool

	// Registerer/Gatherer по умолчанию глобальные реестры Prometheus.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) (*RestServer, error) {
	if config.Store == nil || config.Server == nil || config.Tokens == nil {
		return nil, errors.New("api: store, server и tokens обязательны")
	}
	if config.Addr == "" {
		config.Addr = ":8088"
	}
	if config.Service == "" {
		config.Service = "spawnkeeper"
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}
	if config.Logger == nil {
		config.Logger = logging.GetAPILogger()
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(otelgin.Middleware(config.Service))
	router.Use(middleware.NewRequestLogger(config.Logger).Handler())
	if config.EnableCORS {
		router.Use(corsMiddleware())
	}

	promMw := middleware.NewPrometheusMiddleware(config.Service, config.Registerer)
	router.Use(promMw.Handler())
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{})))

	rs := &RestServer{
		router:    router,
		store:     config.Store,
		server:    config.Server,
		tokens:    config.Tokens,
		backupDir: config.BackupDir,
		health:    newHealthProbe(),
		logger:    config.Logger,
	}
	rs.http = &http.Server{
		Addr:              config.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	rs.setupRoutes()
	return rs, nil
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	// Все эндпоинты /api требуют JWT
	api := rs.router.Group("/api")
	api.Use(rs.jwtMiddleware())
	{
		api.GET("/worlds", rs.handleListSpawns)
		api.GET("/worlds/:world/spawn", rs.handleGetSpawn)

		// Административные эндпоинты (только для админов)
		admin := api.Group("/")
		admin.Use(rs.adminMiddleware())
		{
			admin.PUT("/worlds/:world/spawn", rs.handleSetSpawn)
			admin.POST("/spawn/reload", rs.handleReload)
			admin.POST("/spawn/backup", rs.handleBackup)
		}
	}
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// SpawnDTO точка спавна мира в ответах API.
type SpawnDTO struct {
	World string  `json:"world"`
	X     int     `json:"x"`
	Y     int     `json:"y"`
	Z     int     `json:"z"`
	Pitch float32 `json:"pitch"`
	Yaw   float32 `json:"yaw"`
}

func spawnDTO(loc world.Location) SpawnDTO {
	b := loc.Block()
	return SpawnDTO{
		World: loc.WorldName(),
		X:     b.X,
		Y:     b.Y,
		Z:     b.Z,
		Pitch: loc.Pitch,
		Yaw:   loc.Yaw,
	}
}

// SetSpawnRequest тело PUT /api/worlds/:world/spawn.
type SetSpawnRequest struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Pitch float32 `json:"pitch"`
	Yaw   float32 `json:"yaw"`
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, rs.health.report(rs.store.LastLoad()))
}

// handleListSpawns возвращает спавны всех загруженных миров
func (rs *RestServer) handleListSpawns(c *gin.Context) {
	worlds := rs.server.Worlds()
	spawns := make([]SpawnDTO, 0, len(worlds))
	for _, w := range worlds {
		loc, err := rs.store.GetSpawn(w)
		if err != nil {
			rs.internalError(c, err)
			return
		}
		spawns = append(spawns, spawnDTO(loc))
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Список спавнов",
		Data:    spawns,
	})
}

// handleGetSpawn возвращает спавн одного мира
func (rs *RestServer) handleGetSpawn(c *gin.Context) {
	w, ok := rs.lookupWorld(c)
	if !ok {
		return
	}

	loc, err := rs.store.GetSpawn(w)
	if err != nil {
		rs.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Спавн мира",
		Data:    spawnDTO(loc),
	})
}

// handleSetSpawn переносит спавн мира
func (rs *RestServer) handleSetSpawn(c *gin.Context) {
	w, ok := rs.lookupWorld(c)
	if !ok {
		return
	}

	var req SetSpawnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат запроса",
		})
		return
	}

	loc := world.NewLocation(w, req.X, req.Y, req.Z).WithOrientation(req.Pitch, req.Yaw)
	if _, err := rs.store.SetSpawn(c.Request.Context(), loc); err != nil {
		if errors.Is(err, spawn.ErrInvalidOrientation) || errors.Is(err, spawn.ErrInvalidLocation) ||
			errors.Is(err, world.ErrOutOfBounds) {
			c.JSON(http.StatusBadRequest, GenericResponse{
				Success: false,
				Message: err.Error(),
			})
			return
		}
		rs.internalError(c, err)
		return
	}

	updated, err := rs.store.GetSpawn(w)
	if err != nil {
		rs.internalError(c, err)
		return
	}

	rs.logger.Info("Спавн мира %s изменён через API пользователем %s", w.Name(), c.GetString(usernameKey))
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Спавн установлен",
		Data:    spawnDTO(updated),
	})
}

// handleReload перечитывает документ ориентаций
func (rs *RestServer) handleReload(c *gin.Context) {
	result := rs.store.Reload()

	c.JSON(http.StatusOK, GenericResponse{
		Success: result.Status != spawn.LoadCorrupt,
		Message: result.String(),
		Data:    result,
	})
}

// handleBackup делает резервную копию документа
func (rs *RestServer) handleBackup(c *gin.Context) {
	if rs.backupDir == "" {
		c.JSON(http.StatusServiceUnavailable, GenericResponse{
			Success: false,
			Message: "Каталог резервных копий не настроен",
		})
		return
	}

	path, err := rs.store.Backup(rs.backupDir)
	if err != nil {
		rs.internalError(c, err)
		return
	}

	c.JSON(http.StatusCreated, GenericResponse{
		Success: true,
		Message: "Резервная копия создана",
		Data:    gin.H{"path": path},
	})
}

func (rs *RestServer) lookupWorld(c *gin.Context) (world.World, bool) {
	name := c.Param("world")
	w, ok := rs.server.World(name)
	if !ok {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: fmt.Sprintf("Мир %s не загружен", name),
		})
		return nil, false
	}
	return w, true
}

func (rs *RestServer) internalError(c *gin.Context, err error) {
	rs.logger.Error("%s %s: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, GenericResponse{
		Success: false,
		Message: "Внутренняя ошибка сервера",
	})
}

// Handler возвращает http.Handler роутера.
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// Start запускает REST сервер и блокируется до Stop.
func (rs *RestServer) Start() error {
	rs.logger.Info("REST API слушает %s", rs.http.Addr)
	if err := rs.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop останавливает REST сервер, дожидаясь активных запросов.
func (rs *RestServer) Stop(ctx context.Context) error {
	return rs.http.Shutdown(ctx)
}
