package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/voxel-engine/internal/ai"
	"github.com/annel0/voxel-engine/internal/api"
	"github.com/annel0/voxel-engine/internal/config"
	"github.com/annel0/voxel-engine/internal/eventbus"
	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/mesh"
	"github.com/annel0/voxel-engine/internal/metrics"
	"github.com/annel0/voxel-engine/internal/observability"
	"github.com/annel0/voxel-engine/internal/physics"
	"github.com/annel0/voxel-engine/internal/sim"
	"github.com/annel0/voxel-engine/internal/storage"
	"github.com/annel0/voxel-engine/internal/worker"
	"github.com/annel0/voxel-engine/internal/world"
	"github.com/annel0/voxel-engine/internal/world/block"
	"github.com/annel0/voxel-engine/internal/world/entity"
)

var bodyRadius = mgl64.Vec3{0.3, 0.3, 0.9}

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	if err := logging.InitDefaultLoggerIn("server", cfg.Logging.Dir); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	logging.GetLoggerManager().SetDirectory(cfg.Logging.Dir)
	defer logging.GetLoggerManager().CloseAll()

	if level, err := logging.ParseLevel(cfg.Logging.Level); err == nil {
		logging.SetDefaultLevel(level)
	} else {
		logging.Warn("Неизвестный уровень логов %q, используется INFO", cfg.Logging.Level)
	}

	if err := run(cfg); err != nil {
		logging.Error("❌ %v", err)
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
	logging.Info("👋 Сервер успешно остановлен")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runID := uuid.New()
	logging.Info("🎮 Запуск voxel-engine, run=%s", runID)

	if cfg.Telemetry.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Telemetry.SentryDSN, ServerName: runID.String()}); err != nil {
			logging.Warn("Sentry не инициализирован: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	shutdownTelemetry, err := observability.InitTelemetry(ctx, observability.Options{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		RunID:       runID.String(),
	})
	if err != nil {
		return fmt.Errorf("телеметрия: %w", err)
	}
	defer shutdownTelemetry(context.Background())

	m := metrics.NewDefault()
	metricsAddr := fmt.Sprintf(":%d", cfg.Server.GetMetricsPort())
	metricsSrv := m.StartHTTP(metricsAddr)
	defer metricsSrv.Shutdown(context.Background())
	logging.Info("📊 Метрики: http://localhost%s/metrics", metricsAddr)

	g, err := cfg.Grid.Build()
	if err != nil {
		return err
	}

	// Ошибка таблицы форм фатальна: без неё нет ни коллизий, ни мешей
	table := block.DefaultTable()
	if cfg.Blocks.Table != "" {
		if table, err = block.LoadTable(cfg.Blocks.Table); err != nil {
			return fmt.Errorf("таблица форм: %w", err)
		}
	}

	field := world.NewField(g, table)
	worldLogger := logging.GetWorldLogger()

	var ws *storage.WorldStorage
	loaded := 0
	if cfg.World.DataDir != "" {
		if ws, err = storage.NewWorldStorage(cfg.World.DataDir); err != nil {
			return err
		}
		defer ws.Close()
		if loaded, err = ws.LoadInto(field); err != nil {
			return fmt.Errorf("загрузка мира: %w", err)
		}
		worldLogger.Info("Загружено секторов: %d", loaded)
	}

	gen := world.NewGenerator(cfg.World.Seed, table)
	if loaded == 0 {
		start := time.Now()
		if err := gen.GenerateArea(field, cfg.World.GenerateRadius); err != nil {
			return fmt.Errorf("генерация мира: %w", err)
		}
		worldLogger.Info("Сгенерировано секторов: %d за %v", field.LoadedSectors(), time.Since(start))
	}

	pop := entity.NewPopulation(entity.NewIDGenerator(1))
	bodies, err := openBodyRepo(ctx, cfg.Bodies)
	if err != nil {
		return err
	}
	restored := 0
	if bodies != nil {
		defer bodies.Close()
		if restored, err = storage.LoadBodies(ctx, bodies, pop); err != nil {
			return fmt.Errorf("загрузка тел: %w", err)
		}
		worldLogger.Info("Загружено тел: %d", restored)
	}
	for i := 0; restored == 0 && i < cfg.World.SpawnBodies; i++ {
		x, y := 2*i, 0
		top, _ := gen.Height(x, y)
		center := mgl64.Vec3{float64(x), float64(y), float64(top) + 0.5 + bodyRadius[2] + 0.01}.Mul(g.CellSize())
		pop.Spawn(entity.EntityTypeNPC, center, bodyRadius)
	}

	resolver, err := physics.NewResolver(cfg.Physics.Resolver(), logging.GetPhysicsLogger(), m.Physics)
	if err != nil {
		return err
	}

	bus, err := openEventBus(cfg.Events)
	if err != nil {
		return err
	}
	var events *eventbus.Publisher
	if bus != nil {
		defer bus.Close()
		exporter := eventbus.NewMetricsExporter(bus, prometheus.DefaultRegisterer, time.Second)
		exporter.Start()
		defer exporter.Stop()
		if _, err := eventbus.StartLoggingListener(bus, nil); err != nil {
			logging.Warn("Слушатель событий не запущен: %v", err)
		}
		events = eventbus.NewPublisher(bus, runID.String(), nil)
	}

	pool := worker.New(cfg.Mesh.Workers, cfg.Mesh.QueueSize, logging.GetMeshLogger())
	defer pool.Close()

	opts := mesh.SchedulerOptions{Metrics: m.Mesh, Logger: logging.GetMeshLogger()}
	if events != nil {
		opts.OnCommit = events.MeshCommitted
	}
	switch cfg.Mesh.CacheBackend {
	case "badger":
		cache, err := storage.OpenMeshCache(cfg.Mesh.CacheDir, logging.GetMeshLogger())
		if err != nil {
			return err
		}
		defer cache.Close()
		opts.Cache = cache
	case "redis":
		r := cfg.Mesh.Redis
		cache, err := storage.NewRedisMeshCache(storage.RedisConfig{
			Addr:      r.Addr,
			Password:  r.Password,
			DB:        r.DB,
			KeyPrefix: r.KeyPrefix,
			TTL:       r.TTL,
		}, logging.GetMeshLogger())
		if err != nil {
			return err
		}
		defer cache.Close()
		opts.Cache = cache
	}
	store := mesh.NewStore()
	scheduler := mesh.NewScheduler(mesh.NewMesher(table), g, pool, store, opts)

	var agents *ai.Controller
	if cfg.World.AgentSpeed > 0 {
		agents = ai.NewController(cfg.World.Seed, cfg.World.AgentSpeed, entity.EntityTypeNPC, entity.EntityTypeAnimal)
	}

	s := sim.New(sim.Options{
		RunID:      runID,
		Field:      field,
		Population: pop,
		State:      physics.NewState(),
		Resolver:   resolver,
		Scheduler:  scheduler,
		Agents:     agents,
		Storage:    ws,
		Bodies:     bodies,
		Events:     events,
		Logger:     logging.GetSimLogger(),
	})

	if cfg.Server.APIEnabled {
		auth, err := api.NewAuthenticator(cfg.Server.GetJWTSecret(), 24*time.Hour)
		if err != nil {
			return err
		}
		if !auth.Enabled() {
			logging.Warn("⚠️ JWT секрет не задан, изменяющие запросы API доступны без токена")
		}
		apiSrv := api.New(api.Options{
			Sim:         s,
			Store:       store,
			Auth:        auth,
			Registerer:  prometheus.DefaultRegisterer,
			Logger:      logging.GetAPILogger(),
			ServiceName: cfg.Telemetry.ServiceName,
		}).Start(fmt.Sprintf(":%d", cfg.Server.GetAPIPort()))
		defer apiSrv.Shutdown(context.Background())
	}

	logging.Info("✅ Симуляция запущена: %d тел, сетка %d³ ячеек на сектор", pop.Len(), g.SectorSize())
	return s.Run(ctx)
}

// openEventBus создаёт шину событий по конфигурации. Для backend none возвращает nil.
func openEventBus(cfg config.EventsConfig) (eventbus.EventBus, error) {
	switch cfg.Backend {
	case "none":
		return nil, nil
	case "jetstream":
		bus, err := eventbus.NewJetStreamBus(cfg.NATSURL, cfg.Stream, cfg.Retention)
		if err != nil {
			return nil, fmt.Errorf("шина событий: %w", err)
		}
		logging.Info("📨 События публикуются в JetStream %s (стрим %s)", cfg.NATSURL, cfg.Stream)
		return bus, nil
	default:
		return eventbus.NewMemoryBus(cfg.BufferSize), nil
	}
}

// openBodyRepo открывает хранилище тел. Для backend none возвращает nil.
func openBodyRepo(ctx context.Context, cfg config.BodiesConfig) (storage.BodyRepo, error) {
	switch cfg.Backend {
	case "redis":
		r := cfg.Redis
		repo, err := storage.NewRedisBodyRepo(storage.RedisConfig{
			Addr:      r.Addr,
			Password:  r.Password,
			DB:        r.DB,
			KeyPrefix: r.KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("хранилище тел: %w", err)
		}
		return repo, nil
	case "mysql":
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		repo, err := storage.NewMariaBodyRepo(connectCtx, cfg.GetDSN())
		if err != nil {
			return nil, fmt.Errorf("хранилище тел: %w", err)
		}
		return repo, nil
	default:
		return nil, nil
	}
}
