package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/annel0/voxel-engine/internal/grid"
	"github.com/annel0/voxel-engine/internal/physics"
)

const minSecretLength = 32

// ErrInvalid возвращается Validate для некорректной конфигурации
var ErrInvalid = errors.New("config: invalid")

// Config корневая структура конфигурации движка
type Config struct {
	Grid      GridConfig      `yaml:"grid"`
	Physics   PhysicsConfig   `yaml:"physics"`
	Mesh      MeshConfig      `yaml:"mesh"`
	World     WorldConfig     `yaml:"world"`
	Bodies    BodiesConfig    `yaml:"bodies"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Events    EventsConfig    `yaml:"events"`
	Blocks    BlocksConfig    `yaml:"blocks"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type GridConfig struct {
	CellSize             float64 `yaml:"cell_size"`
	SectorRadiusInCells  int     `yaml:"sector_radius_in_cells"`
	WorldRadiusInSectors int     `yaml:"world_radius_in_sectors"`
}

type PhysicsConfig struct {
	TickRateHz      float64 `yaml:"tick_rate_hz"`
	Gravity         float64 `yaml:"gravity"`
	JumpSpeed       float64 `yaml:"jump_speed"`
	ClimbSpeed      float64 `yaml:"climb_speed"`
	PullBackEpsilon float64 `yaml:"pull_back_epsilon"`
	BisectionSteps  int     `yaml:"bisection_steps"`
	StepHeight      float64 `yaml:"step_height"` // в долях ячейки, 0 - без подъёма
}

type MeshConfig struct {
	Workers      int         `yaml:"workers"` // 0 - по числу CPU
	QueueSize    int         `yaml:"queue_size"`
	CacheBackend string      `yaml:"cache_backend"` // none, badger или redis
	CacheDir     string      `yaml:"cache_dir"`     // для badger; пусто - в памяти
	Redis        RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

type WorldConfig struct {
	Seed           int64   `yaml:"seed"`
	GenerateRadius int     `yaml:"generate_radius"` // радиус генерации в секторах
	DataDir        string  `yaml:"data_dir"`        // пусто - мир не сохраняется
	SpawnBodies    int     `yaml:"spawn_bodies"`    // тела, создаваемые при старте
	AgentSpeed     float64 `yaml:"agent_speed"`     // скорость ходьбы NPC; 0 - без автоматов
}

type BodiesConfig struct {
	Backend string      `yaml:"backend"` // none, redis или mysql
	DSN     string      `yaml:"dsn"`     // для mysql: user:pass@tcp(host:port)/dbname
	Redis   RedisConfig `yaml:"redis"`
}

type ServerConfig struct {
	MetricsPort int    `yaml:"metrics_port"`
	APIPort     int    `yaml:"api_port"`
	APIEnabled  bool   `yaml:"api_enabled"`
	JWTSecret   string `yaml:"jwt_secret"` // пусто - изменяющие запросы API без токена
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	SentryDSN   string `yaml:"sentry_dsn"`
}

type EventsConfig struct {
	Backend    string        `yaml:"backend"` // memory, jetstream или none
	BufferSize int           `yaml:"buffer_size"`
	NATSURL    string        `yaml:"nats_url"`
	Stream     string        `yaml:"stream"`
	Retention  time.Duration `yaml:"retention"`
}

type BlocksConfig struct {
	Table string `yaml:"table"` // путь к таблице форм; пусто - встроенная
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	p := physics.DefaultConfig()
	return &Config{
		Grid: GridConfig{
			CellSize:             1,
			SectorRadiusInCells:  4,
			WorldRadiusInSectors: 8,
		},
		Physics: PhysicsConfig{
			TickRateHz:      p.TickRate,
			Gravity:         p.Gravity,
			JumpSpeed:       p.JumpSpeed,
			ClimbSpeed:      p.ClimbSpeed,
			PullBackEpsilon: p.PullBackEpsilon,
			BisectionSteps:  p.BisectionSteps,
			StepHeight:      p.StepHeight,
		},
		Mesh: MeshConfig{
			QueueSize:    256,
			CacheBackend: "none",
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "voxel:",
				TTL:       time.Hour,
			},
		},
		World: WorldConfig{
			Seed:           1,
			GenerateRadius: 1,
			AgentSpeed:     1.5,
		},
		Bodies: BodiesConfig{
			Backend: "none",
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "voxel:",
			},
		},
		Server: ServerConfig{
			APIEnabled: true,
		},
		Events: EventsConfig{
			Backend:    "memory",
			BufferSize: 1024,
			NATSURL:    "nats://127.0.0.1:4222",
			Stream:     "VOXEL",
			Retention:  24 * time.Hour,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "voxel-engine",
			Insecure:    true,
		},
		Logging: LoggingConfig{
			Level: "INFO",
			Dir:   "logs",
		},
	}
}

// Validate проверяет согласованность параметров
func (c *Config) Validate() error {
	if _, err := c.Grid.Build(); err != nil {
		return fmt.Errorf("%w: grid: %v", ErrInvalid, err)
	}
	if err := c.Physics.Resolver().Validate(); err != nil {
		return fmt.Errorf("%w: physics: %v", ErrInvalid, err)
	}
	if c.Mesh.Workers < 0 || c.Mesh.QueueSize < 0 {
		return fmt.Errorf("%w: mesh: negative workers or queue size", ErrInvalid)
	}
	if c.World.SpawnBodies < 0 || c.World.AgentSpeed < 0 {
		return fmt.Errorf("%w: world: negative spawn_bodies or agent_speed", ErrInvalid)
	}
	if c.World.GenerateRadius < 0 || c.World.GenerateRadius > c.Grid.WorldRadiusInSectors {
		return fmt.Errorf("%w: world: generate radius %d outside [0, %d]",
			ErrInvalid, c.World.GenerateRadius, c.Grid.WorldRadiusInSectors)
	}
	switch c.Mesh.CacheBackend {
	case "none", "badger", "redis":
	default:
		return fmt.Errorf("%w: mesh: unknown cache backend %q", ErrInvalid, c.Mesh.CacheBackend)
	}
	switch c.Bodies.Backend {
	case "none", "redis":
	case "mysql":
		if c.Bodies.GetDSN() == "" {
			return fmt.Errorf("%w: bodies: mysql backend requires dsn", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: bodies: unknown backend %q", ErrInvalid, c.Bodies.Backend)
	}
	switch c.Events.Backend {
	case "memory", "jetstream", "none":
	default:
		return fmt.Errorf("%w: events: unknown backend %q", ErrInvalid, c.Events.Backend)
	}
	if c.Events.BufferSize < 0 {
		return fmt.Errorf("%w: events: negative buffer_size", ErrInvalid)
	}
	if secret := c.Server.GetJWTSecret(); secret != "" && len(secret) < minSecretLength {
		return fmt.Errorf("%w: server: jwt_secret shorter than %d bytes", ErrInvalid, minSecretLength)
	}
	return nil
}

// Build создаёт адресацию сетки
func (g GridConfig) Build() (grid.Grid, error) {
	return grid.New(g.CellSize, g.SectorRadiusInCells, g.WorldRadiusInSectors)
}

// Resolver возвращает параметры разрешения коллизий
func (p PhysicsConfig) Resolver() physics.Config {
	return physics.Config{
		TickRate:        p.TickRateHz,
		Gravity:         p.Gravity,
		JumpSpeed:       p.JumpSpeed,
		ClimbSpeed:      p.ClimbSpeed,
		PullBackEpsilon: p.PullBackEpsilon,
		BisectionSteps:  p.BisectionSteps,
		StepHeight:      p.StepHeight,
	}
}

// GetMetricsPort возвращает Prometheus метрики порт с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "VOXEL_METRICS_PORT", 2112)
}

// GetAPIPort возвращает порт HTTP API с поддержкой fallback значений
func (s *ServerConfig) GetAPIPort() int {
	return getPortWithEnvFallback(s.APIPort, "VOXEL_API_PORT", 8088)
}

// GetJWTSecret возвращает секрет подписи токенов: config -> ENV VOXEL_JWT_SECRET
func (s *ServerConfig) GetJWTSecret() string {
	if s.JWTSecret != "" {
		return s.JWTSecret
	}
	return os.Getenv("VOXEL_JWT_SECRET")
}

// GetDSN возвращает строку подключения к MySQL: config -> ENV VOXEL_MYSQL_DSN
func (b *BodiesConfig) GetDSN() string {
	if b.DSN != "" {
		return b.DSN
	}
	return os.Getenv("VOXEL_MYSQL_DSN")
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", используется ENV VOXEL_CONFIG; если не задан и он,
// возвращаются значения по умолчанию.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("VOXEL_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
