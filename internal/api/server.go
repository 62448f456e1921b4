// Package api - отладочный HTTP API поверх симуляции: состояние мира,
// правка блоков, управление телами и просмотр готовых мешей.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/mesh"
	"github.com/annel0/voxel-engine/internal/middleware"
	"github.com/annel0/voxel-engine/internal/sim"
)

// Options - зависимости API. Auth, Registerer и Logger необязательны.
type Options struct {
	Sim         *sim.Simulation
	Store       *mesh.Store
	Auth        *Authenticator
	Registerer  prometheus.Registerer // nil - без HTTP-метрик
	Logger      *logging.Logger
	ServiceName string
}

// Server - HTTP API симуляции
type Server struct {
	router  *gin.Engine
	sim     *sim.Simulation
	store   *mesh.Store
	auth    *Authenticator
	logger  *logging.Logger
	started time.Time
}

// GenericResponse - общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// New создаёт сервер и регистрирует маршруты
func New(opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)

	logger := opts.Logger
	if logger == nil {
		logger = logging.GetAPILogger()
	}
	auth := opts.Auth
	if auth == nil {
		auth, _ = NewAuthenticator("", 0)
	}
	service := opts.ServiceName
	if service == "" {
		service = "voxel-engine"
	}

	s := &Server{
		router:  gin.New(),
		sim:     opts.Sim,
		store:   opts.Store,
		auth:    auth,
		logger:  logger,
		started: time.Now(),
	}

	s.router.Use(gin.Recovery())
	s.router.Use(otelgin.Middleware(service))
	s.router.Use(middleware.NewRequestLogger(logger).Handler())
	if opts.Registerer != nil {
		s.router.Use(middleware.NewPrometheusMiddleware("voxel_api", opts.Registerer).Handler())
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	api.GET("/stats", s.handleStats)
	api.GET("/blocks", s.handleGetBlock)
	api.GET("/blocks/:id", s.handleGetBlockByID)
	api.GET("/bodies", s.handleListBodies)
	api.GET("/bodies/:id", s.handleGetBody)
	api.GET("/sectors/:id/mesh", s.handleSectorMesh)

	protected := api.Group("")
	protected.Use(s.auth.Middleware())
	{
		protected.POST("/blocks", s.handleSetBlock)
		protected.DELETE("/blocks", s.handleRemoveBlock)
		protected.POST("/bodies", s.handleSpawnBody)
		protected.DELETE("/bodies/:id", s.handleDespawnBody)
		protected.POST("/bodies/:id/actions", s.handleBodyAction)
		protected.POST("/save", s.handleSave)
	}
}

// Handler возвращает http.Handler сервера
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start запускает сервер на addr. Метод неблокирующий; возвращает сервер для Shutdown.
func (s *Server) Start(addr string) *http.Server {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		s.logger.Info("🌐 API доступен по адресу %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Ошибка HTTP сервера API: %v", err)
		}
	}()
	return srv
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, GenericResponse{Success: false, Message: message})
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, GenericResponse{Success: true, Data: data})
}
