package mesh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/annel0/voxel-engine/internal/grid"
	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/metrics"
	"github.com/annel0/voxel-engine/internal/observability"
)

// Submitter выполняет задачу в фоне (пул воркеров)
type Submitter interface {
	Submit(ctx context.Context, f func()) error
}

// Cache хранит готовые меши по содержимому снимка
type Cache interface {
	Lookup(view *SectorView) (*SectorMesh, bool, error)
	Store(view *SectorView, mesh *SectorMesh) error
}

// Store - хранилище мешей, принадлежащее рендереру.
// Принимает меш только если его версия не старше уже зафиксированной.
type Store struct {
	mu     sync.RWMutex
	meshes map[grid.SectorID]*SectorMesh
}

// NewStore создаёт пустое хранилище
func NewStore() *Store {
	return &Store{meshes: make(map[grid.SectorID]*SectorMesh)}
}

// Commit фиксирует меш. Возвращает false, если уже есть более новая версия.
func (s *Store) Commit(m *SectorMesh) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.meshes[m.SectorID]; ok && m.Version < cur.Version {
		return false
	}
	s.meshes[m.SectorID] = m
	return true
}

// Get возвращает зафиксированный меш сектора
func (s *Store) Get(id grid.SectorID) (*SectorMesh, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meshes[id]
	return m, ok
}

// Len возвращает количество секторов с мешами
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.meshes)
}

// Scheduler отправляет снимки секторов на построение в пул и фиксирует
// результаты в Store, если их версия всё ещё актуальна. Отмены задач нет:
// устаревшие результаты просто отбрасываются.
type Scheduler struct {
	mesher   *Mesher
	grid     grid.Grid
	pool     Submitter
	cache    Cache
	store    *Store
	metrics  *metrics.Mesh
	logger   *logging.Logger
	onCommit func(*SectorMesh)

	mu       sync.Mutex
	latest   map[grid.SectorID]uint64 // последняя отправленная версия сектора
	finished []*SectorMesh
	pending  int
	notify   chan struct{}
}

// SchedulerOptions - необязательные зависимости планировщика
type SchedulerOptions struct {
	Cache   Cache
	Metrics *metrics.Mesh
	Logger  *logging.Logger
	// OnCommit вызывается в потоке Commit для каждого зафиксированного меша
	OnCommit func(*SectorMesh)
}

// NewScheduler создаёт планировщик
func NewScheduler(mesher *Mesher, g grid.Grid, pool Submitter, store *Store, opts SchedulerOptions) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetMeshLogger()
	}
	return &Scheduler{
		mesher:   mesher,
		grid:     g,
		pool:     pool,
		cache:    opts.Cache,
		store:    store,
		metrics:  opts.Metrics,
		logger:   logger,
		onCommit: opts.OnCommit,
		latest:   make(map[grid.SectorID]uint64),
		notify:   make(chan struct{}, 1),
	}
}

// Dispatch отправляет снимок на построение. Снимок старше уже отправленной
// версии того же сектора игнорируется.
func (s *Scheduler) Dispatch(ctx context.Context, view *SectorView) error {
	s.mu.Lock()
	if v, ok := s.latest[view.SectorID]; ok && view.Version < v {
		s.mu.Unlock()
		s.metrics.Stale()
		return nil
	}
	s.latest[view.SectorID] = view.Version
	s.pending++
	s.metrics.SetPending(s.pending)
	s.mu.Unlock()

	err := s.pool.Submit(ctx, func() {
		var m *SectorMesh
		// pending уменьшается и при панике в build, результата тогда нет
		defer func() { s.finish(m) }()
		m = s.build(ctx, view)
	})
	if err != nil {
		s.mu.Lock()
		s.pending--
		s.metrics.SetPending(s.pending)
		s.mu.Unlock()
		return fmt.Errorf("mesh: dispatch sector %d: %w", view.SectorID, err)
	}
	return nil
}

func (s *Scheduler) build(ctx context.Context, view *SectorView) *SectorMesh {
	_, span := observability.StartSpan(ctx, "mesh.build",
		attribute.Int64("sector.id", int64(view.SectorID)),
		attribute.Int64("sector.version", int64(view.Version)),
	)
	defer span.End()

	if s.cache != nil {
		cached, ok, err := s.cache.Lookup(view)
		if err != nil {
			s.logger.Warn("ошибка чтения кэша мешей для сектора %d: %v", view.SectorID, err)
		}
		s.metrics.CacheLookup(ok)
		if ok {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cached
		}
	}

	start := time.Now()
	m := s.mesher.Build(view, s.grid)
	s.metrics.ObserveBuild(time.Since(start), m.QuadCount())
	span.SetAttributes(attribute.Int("mesh.quads", m.QuadCount()))

	if s.cache != nil {
		if err := s.cache.Store(view, m); err != nil {
			s.logger.Warn("ошибка записи кэша мешей для сектора %d: %v", view.SectorID, err)
		}
	}
	return m
}

func (s *Scheduler) finish(m *SectorMesh) {
	s.mu.Lock()
	if m != nil {
		s.finished = append(s.finished, m)
	}
	s.pending--
	s.metrics.SetPending(s.pending)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Commit фиксирует готовые результаты в Store и возвращает число
// зафиксированных мешей. Результаты с устаревшей версией отбрасываются.
func (s *Scheduler) Commit() int {
	s.mu.Lock()
	batch := s.finished
	s.finished = nil
	s.mu.Unlock()

	committed := 0
	for _, m := range batch {
		s.mu.Lock()
		current := s.latest[m.SectorID]
		s.mu.Unlock()

		if m.Version < current || !s.store.Commit(m) {
			s.metrics.Stale()
			continue
		}
		s.metrics.Committed()
		committed++
		if s.onCommit != nil {
			s.onCommit(m)
		}
	}
	return committed
}

// Pending возвращает число задач, ещё не вернувших результат
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Wait ждёт завершения всех отправленных задач или отмены ctx
func (s *Scheduler) Wait(ctx context.Context) error {
	for {
		if s.Pending() == 0 {
			return nil
		}
		select {
		case <-s.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
