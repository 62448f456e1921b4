// Package sim ведёт мировой тик: физика, снимки изменённых секторов,
// фоновое построение мешей и фиксация готовых результатов.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/annel0/voxel-engine/internal/ai"
	"github.com/annel0/voxel-engine/internal/eventbus"
	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/mesh"
	"github.com/annel0/voxel-engine/internal/observability"
	"github.com/annel0/voxel-engine/internal/physics"
	"github.com/annel0/voxel-engine/internal/storage"
	"github.com/annel0/voxel-engine/internal/world"
	"github.com/annel0/voxel-engine/internal/world/entity"
)

// Options - зависимости симуляции. Agents, Storage, Bodies, Events, Logger и RunID необязательны.
type Options struct {
	RunID      uuid.UUID
	Field      *world.Field
	Population *entity.Population
	State      *physics.State
	Resolver   *physics.Resolver
	Scheduler  *mesh.Scheduler
	Agents     *ai.Controller
	Storage    *storage.WorldStorage
	Bodies     storage.BodyRepo
	Events     *eventbus.Publisher
	Logger     *logging.Logger
}

// StepResult - итог одного тика
type StepResult struct {
	Tick       uint64
	Dirty      int // изменённые сектора
	Dispatched int // снимки, отправленные на построение
	Committed  int // меши, зафиксированные в хранилище
}

// Simulation владеет полем и популяцией. Все изменения мира идут через
// Step и Exec, поэтому в каждый момент у состояния один писатель.
type Simulation struct {
	field     *world.Field
	pop       *entity.Population
	state     *physics.State
	resolver  *physics.Resolver
	scheduler *mesh.Scheduler
	agents    *ai.Controller
	storage   *storage.WorldStorage
	bodies    storage.BodyRepo
	events    *eventbus.Publisher
	logger    *logging.Logger
	runID     uuid.UUID

	mu sync.Mutex
}

// New создаёт симуляцию
func New(opts Options) *Simulation {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetSimLogger()
	}
	runID := opts.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}
	return &Simulation{
		field:     opts.Field,
		pop:       opts.Population,
		state:     opts.State,
		resolver:  opts.Resolver,
		scheduler: opts.Scheduler,
		agents:    opts.Agents,
		storage:   opts.Storage,
		bodies:    opts.Bodies,
		events:    opts.Events,
		logger:    logger,
		runID:     runID,
	}
}

// RunID возвращает идентификатор запуска
func (s *Simulation) RunID() string {
	return s.runID.String()
}

// Actions возвращает очередь действий для слоя ввода
func (s *Simulation) Actions() *physics.State {
	return s.state
}

// Exec выполняет fn между тиками с единоличным доступом к полю и популяции
func (s *Simulation) Exec(fn func(f *world.Field, pop *entity.Population) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.field, s.pop)
}

// Step выполняет один тик
func (s *Simulation) Step(ctx context.Context) (StepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := observability.StartSpan(ctx, "sim.tick", attribute.String("run.id", s.RunID()))
	defer span.End()

	if s.agents != nil {
		s.state.Enqueue(s.agents.Update(s.pop, s.resolver.Config().Step())...)
	}

	var res StepResult
	res.Tick = s.resolver.Tick(ctx, s.field, s.pop, s.state)

	dirty := s.field.DirtySectors()
	res.Dirty = len(dirty)
	for i, id := range dirty {
		view, ok := s.field.SnapshotSector(id)
		if !ok {
			continue
		}
		if err := s.scheduler.Dispatch(ctx, view); err != nil {
			// Неотправленные сектора остаются грязными до следующего тика
			s.field.MarkDirty(dirty[i:]...)
			return res, err
		}
		res.Dispatched++
	}

	res.Committed = s.scheduler.Commit()
	span.SetAttributes(
		attribute.Int64("tick", int64(res.Tick)),
		attribute.Int("sectors.dirty", res.Dirty),
		attribute.Int("meshes.committed", res.Committed),
	)
	return res, nil
}

// Run выполняет тики с интервалом резолвера до отмены ctx.
// При остановке дожидается фоновых мешей и сохраняет мир, если задано хранилище.
func (s *Simulation) Run(ctx context.Context) error {
	interval := s.resolver.Config().Interval()
	s.logger.Info("Симуляция %s запущена, тик %v", s.RunID(), interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.shutdown()
		case <-ticker.C:
			res, err := s.Step(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return s.shutdown()
				}
				return err
			}
			if res.Dirty > 0 {
				s.logger.Debug("Тик %d: изменено секторов %d, зафиксировано мешей %d",
					res.Tick, res.Dirty, res.Committed)
			}
		}
	}
}

func (s *Simulation) shutdown() error {
	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.scheduler.Wait(waitCtx); err != nil {
		s.logger.Warn("Не дождались фоновых мешей: %v", err)
	}
	committed := s.scheduler.Commit()
	s.logger.Info("Симуляция %s остановлена на тике %d, дофиксировано мешей %d",
		s.RunID(), s.state.Tick(), committed)

	return s.Save()
}

// Save сохраняет все загруженные сектора и тела.
// Без хранилищ ничего не делает.
func (s *Simulation) Save() error {
	if s.storage == nil && s.bodies == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	saved := 0
	if s.storage != nil {
		var err error
		if saved, err = s.storage.SaveSectors(s.field, s.field.SectorIDs()); err != nil {
			return err
		}
		s.logger.Info("Сохранено секторов: %d", saved)
	}
	if s.bodies != nil {
		n, err := storage.SaveBodies(ctx, s.bodies, s.pop)
		if err != nil {
			return fmt.Errorf("сохранение тел: %w", err)
		}
		s.logger.Info("Сохранено тел: %d", n)
	}
	s.events.WorldSaved(ctx, saved, s.state.Tick())
	return nil
}
