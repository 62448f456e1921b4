package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/annel0/voxel-engine/internal/world/entity"
)

// BodyRecord - сохраняемое состояние тела. Контакты не сохраняются,
// резолвер пересчитывает их на первом тике после загрузки.
type BodyRecord struct {
	ID       uint64     `json:"id"`
	Type     string     `json:"type"`
	Center   mgl64.Vec3 `json:"center"`
	Radius   mgl64.Vec3 `json:"radius"`
	Velocity mgl64.Vec3 `json:"velocity"`
	Mode     string     `json:"mode"`
}

// RecordOf снимает состояние тела
func RecordOf(b *entity.Body) BodyRecord {
	return BodyRecord{
		ID:       uint64(b.ID),
		Type:     b.Type.String(),
		Center:   b.Position(),
		Radius:   b.Box.Radius(),
		Velocity: b.Velocity,
		Mode:     b.Mode.String(),
	}
}

// Body восстанавливает тело из записи
func (r BodyRecord) Body() (*entity.Body, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	typ, ok := entity.ParseEntityType(r.Type)
	if !ok {
		return nil, fmt.Errorf("неизвестный тип тела %d: %q", r.ID, r.Type)
	}
	mode, ok := entity.ParseMotionMode(r.Mode)
	if !ok {
		return nil, fmt.Errorf("неизвестный режим тела %d: %q", r.ID, r.Mode)
	}
	b := entity.NewBody(entity.ID(r.ID), typ, r.Center, r.Radius)
	b.Velocity = r.Velocity
	b.Mode = mode
	return b, nil
}

func (r BodyRecord) validate() error {
	if r.ID == 0 {
		return fmt.Errorf("недействительный ID тела: %d", r.ID)
	}
	for i := 0; i < 3; i++ {
		if r.Radius[i] <= 0 {
			return fmt.Errorf("недействительный радиус тела %d: %v", r.ID, r.Radius)
		}
	}
	return nil
}

// BodyRepo определяет интерфейс для сохранения тел между запусками.
// Тела привязаны к их ID в популяции.
type BodyRepo interface {
	// Save сохраняет или обновляет запись тела
	Save(ctx context.Context, rec BodyRecord) error

	// Load загружает тело по ID. bool - false, если записи нет.
	Load(ctx context.Context, id uint64) (BodyRecord, bool, error)

	// LoadAll возвращает все записи в порядке возрастания ID
	LoadAll(ctx context.Context) ([]BodyRecord, error)

	// Delete удаляет запись тела. Отсутствие записи ошибкой не считается.
	Delete(ctx context.Context, id uint64) error

	// BatchSave сохраняет несколько записей одной операцией
	BatchSave(ctx context.Context, recs []BodyRecord) error

	Close() error
}

// SaveBodies приводит содержимое репозитория к популяции:
// сохраняет все тела и удаляет записи исчезнувших.
func SaveBodies(ctx context.Context, repo BodyRepo, pop *entity.Population) (int, error) {
	recs := make([]BodyRecord, 0, pop.Len())
	alive := make(map[uint64]struct{}, pop.Len())
	pop.Each(func(b *entity.Body) bool {
		recs = append(recs, RecordOf(b))
		alive[uint64(b.ID)] = struct{}{}
		return true
	})

	stored, err := repo.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	for _, rec := range stored {
		if _, ok := alive[rec.ID]; ok {
			continue
		}
		if err := repo.Delete(ctx, rec.ID); err != nil {
			return 0, err
		}
	}

	if err := repo.BatchSave(ctx, recs); err != nil {
		return 0, err
	}
	return len(recs), nil
}

// LoadBodies добавляет в популяцию все тела из репозитория
func LoadBodies(ctx context.Context, repo BodyRepo, pop *entity.Population) (int, error) {
	recs, err := repo.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	for _, rec := range recs {
		b, err := rec.Body()
		if err != nil {
			return 0, err
		}
		pop.Restore(b)
	}
	return len(recs), nil
}

func sortRecords(recs []BodyRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
}

// MemoryBodyRepo реализует BodyRepo в памяти.
// Используется в тестах и когда внешнее хранилище не настроено.
type MemoryBodyRepo struct {
	mu   sync.RWMutex
	data map[uint64]BodyRecord
}

// NewMemoryBodyRepo создает пустой репозиторий
func NewMemoryBodyRepo() *MemoryBodyRepo {
	return &MemoryBodyRepo{data: make(map[uint64]BodyRecord)}
}

// Save сохраняет запись в памяти
func (r *MemoryBodyRepo) Save(ctx context.Context, rec BodyRecord) error {
	if err := rec.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[rec.ID] = rec
	return nil
}

// Load загружает запись из памяти
func (r *MemoryBodyRepo) Load(ctx context.Context, id uint64) (BodyRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return BodyRecord{}, false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.data[id]
	return rec, ok, nil
}

// LoadAll возвращает копию всех записей
func (r *MemoryBodyRepo) LoadAll(ctx context.Context) ([]BodyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	recs := make([]BodyRecord, 0, len(r.data))
	for _, rec := range r.data {
		recs = append(recs, rec)
	}
	r.mu.RUnlock()

	sortRecords(recs)
	return recs, nil
}

// Delete удаляет запись из памяти
func (r *MemoryBodyRepo) Delete(ctx context.Context, id uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, id)
	return nil
}

// BatchSave проверяет все записи и сохраняет их разом
func (r *MemoryBodyRepo) BatchSave(ctx context.Context, recs []BodyRecord) error {
	if len(recs) == 0 {
		return nil
	}
	for _, rec := range recs {
		if err := rec.validate(); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range recs {
		r.data[rec.ID] = rec
	}
	return nil
}

// Count возвращает количество записей
func (r *MemoryBodyRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

// Close ничего не делает
func (r *MemoryBodyRepo) Close() error {
	return nil
}
