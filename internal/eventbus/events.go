package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/mesh"
)

// Типы событий движка
const (
	EventSectorMeshed = "SectorMeshed"
	EventWorldSaved   = "WorldSaved"
)

const payloadVersion = 1

// SectorMeshed - новый меш сектора зафиксирован и готов к выдаче рендереру
type SectorMeshed struct {
	SectorID uint32 `json:"sector_id"`
	Sector   [3]int `json:"sector"`
	Version  uint64 `json:"version"`
	Quads    int    `json:"quads"`
}

// WorldSaved - сектора мира записаны в хранилище
type WorldSaved struct {
	Sectors int    `json:"sectors"`
	Tick    uint64 `json:"tick"`
}

// NewEnvelope упаковывает полезную нагрузку в JSON-конверт
func NewEnvelope(source, eventType string, priority int, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("eventbus: encode %s: %w", eventType, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		EventType: eventType,
		Version:   payloadVersion,
		Priority:  priority,
		Payload:   data,
	}, nil
}

// Decode распаковывает полезную нагрузку конверта в out
func Decode(ev *Envelope, out interface{}) error {
	if ev.Version != payloadVersion {
		return fmt.Errorf("eventbus: %s payload version %d unsupported", ev.EventType, ev.Version)
	}
	return json.Unmarshal(ev.Payload, out)
}

// Publisher публикует события одного запуска
type Publisher struct {
	bus    EventBus
	source string
	logger *logging.Logger
}

// NewPublisher создаёт издателя. nil bus допустим: события тогда не отправляются.
func NewPublisher(bus EventBus, source string, logger *logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.GetComponentLogger("events")
	}
	return &Publisher{bus: bus, source: source, logger: logger}
}

func (p *Publisher) publish(ctx context.Context, eventType string, priority int, payload interface{}) {
	if p == nil || p.bus == nil {
		return
	}
	ev, err := NewEnvelope(p.source, eventType, priority, payload)
	if err == nil {
		err = p.bus.Publish(ctx, ev)
	}
	if err != nil {
		p.logger.Warn("Не удалось опубликовать %s: %v", eventType, err)
	}
}

// MeshCommitted сообщает о зафиксированном меше. Подходит как mesh.SchedulerOptions.OnCommit.
func (p *Publisher) MeshCommitted(m *mesh.SectorMesh) {
	p.publish(context.Background(), EventSectorMeshed, 1, SectorMeshed{
		SectorID: uint32(m.SectorID),
		Sector:   [3]int{m.Sector.X, m.Sector.Y, m.Sector.Z},
		Version:  m.Version,
		Quads:    m.QuadCount(),
	})
}

// WorldSaved сообщает о сохранении мира
func (p *Publisher) WorldSaved(ctx context.Context, sectors int, tick uint64) {
	p.publish(ctx, EventWorldSaved, 5, WorldSaved{Sectors: sectors, Tick: tick})
}
