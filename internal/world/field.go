package world

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/annel0/voxel-engine/internal/grid"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
)

var (
	// ErrOutOfBounds возвращается при изменении ячейки за пределами мира
	ErrOutOfBounds = errors.New("world: position out of bounds")
	// ErrUnknownKind возвращается при установке типа блока, отсутствующего в таблице
	ErrUnknownKind = errors.New("world: unknown block kind")
)

// sector хранит ячейки одного сектора. Массив типов создаётся лениво
// при первой записи непустого блока.
type sector struct {
	kinds   []block.Kind
	objects map[grid.CellID]block.Object
	epoch   uint64
	filled  int // число непустых ячеек
}

func (s *sector) kind(id grid.CellID) block.Kind {
	if s.kinds == nil {
		return block.Air
	}
	return s.kinds[id]
}

// Field - воксельное поле мира: блоки и объекты ячеек, разбитые по секторам.
// Каждое изменение увеличивает эпоху сектора и помечает его как грязный;
// изменение на границе сектора также затрагивает соседние сектора.
//
// Во время тика поле читает разрешатель коллизий, а изменяет только поток
// симуляции между тиками.
type Field struct {
	grid  grid.Grid
	table *block.Table

	mu      sync.RWMutex
	sectors map[grid.SectorID]*sector
	dirty   map[grid.SectorID]struct{}
}

// NewField создаёт пустое поле (везде воздух)
func NewField(g grid.Grid, table *block.Table) *Field {
	return &Field{
		grid:    g,
		table:   table,
		sectors: make(map[grid.SectorID]*sector),
		dirty:   make(map[grid.SectorID]struct{}),
	}
}

// Grid возвращает адресацию поля
func (f *Field) Grid() grid.Grid { return f.grid }

// Table возвращает таблицу форм
func (f *Field) Table() *block.Table { return f.table }

// BlockAt возвращает блок в позиции. Второе значение false за пределами мира.
func (f *Field) BlockAt(pos vec.Vec3) (block.Block, bool) {
	kind, ok := f.KindAt(pos)
	if !ok {
		return block.Block{}, false
	}
	return f.table.Block(kind), true
}

// KindAt возвращает тип блока в позиции
func (f *Field) KindAt(pos vec.Vec3) (block.Kind, bool) {
	sid, cid, ok := f.grid.Locate(pos)
	if !ok {
		return block.Air, false
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	s, exists := f.sectors[sid]
	if !exists {
		return block.Air, true
	}
	return s.kind(cid), true
}

// ObjectAt возвращает объект в позиции. Второе значение false, если объекта нет.
func (f *Field) ObjectAt(pos vec.Vec3) (block.Object, bool) {
	sid, cid, ok := f.grid.Locate(pos)
	if !ok {
		return block.Object{}, false
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	s, exists := f.sectors[sid]
	if !exists {
		return block.Object{}, false
	}
	obj, exists := s.objects[cid]
	return obj, exists
}

// SetBlock устанавливает тип блока в позиции
func (f *Field) SetBlock(pos vec.Vec3, kind block.Kind) error {
	if _, known := f.table.Spec(kind); !known {
		return fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}
	return f.edit(pos, func(s *sector, cid grid.CellID) bool {
		prev := s.kind(cid)
		if prev == kind {
			return false
		}
		if s.kinds == nil {
			s.kinds = make([]block.Kind, f.grid.CellsPerSector())
		}
		s.kinds[cid] = kind
		if prev == block.Air {
			s.filled++
		} else if kind == block.Air {
			s.filled--
		}
		return true
	})
}

// RemoveBlock заменяет блок воздухом и убирает объект ячейки
func (f *Field) RemoveBlock(pos vec.Vec3) error {
	return f.edit(pos, func(s *sector, cid grid.CellID) bool {
		changed := false
		if prev := s.kind(cid); prev != block.Air {
			s.kinds[cid] = block.Air
			s.filled--
			changed = true
		}
		if _, ok := s.objects[cid]; ok {
			delete(s.objects, cid)
			changed = true
		}
		return changed
	})
}

// SetObject размещает объект в ячейке. Объект с Kind == ObjectNone удаляет текущий.
// Объекты, смотрящие вверх или вниз, отклоняются с block.ErrInvalidFacing.
func (f *Field) SetObject(pos vec.Vec3, obj block.Object) error {
	if err := obj.Validate(); err != nil {
		return err
	}
	return f.edit(pos, func(s *sector, cid grid.CellID) bool {
		if obj.Kind == block.ObjectNone {
			if _, ok := s.objects[cid]; !ok {
				return false
			}
			delete(s.objects, cid)
			return true
		}
		if cur, ok := s.objects[cid]; ok && cur == obj {
			return false
		}
		s.objects[cid] = obj
		return true
	})
}

// edit применяет изменение к ячейке и, если оно что-то поменяло,
// продвигает эпохи затронутых секторов.
func (f *Field) edit(pos vec.Vec3, apply func(s *sector, cid grid.CellID) bool) error {
	sectorCoord, cellCoord, ok := f.grid.Decompose(pos)
	if !ok {
		return fmt.Errorf("%w: %v", ErrOutOfBounds, pos)
	}
	sid, _ := f.grid.SectorCoordinateToID(sectorCoord)
	cid, _ := f.grid.CellCoordinateToID(cellCoord)

	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.sectorLocked(sid)
	if !apply(s, cid) {
		return nil
	}
	f.touchLocked(sid, s)

	// Грань на границе сектора видна и из соседнего сектора
	if !f.grid.OnSectorEdge(cellCoord) {
		return nil
	}
	for _, d := range grid.Directions {
		if !f.grid.OnSectorBoundary(cellCoord, d) {
			continue
		}
		nid, ok := f.grid.SectorCoordinateToID(sectorCoord.Add(d.Offset()))
		if !ok {
			continue
		}
		if ns, exists := f.sectors[nid]; exists {
			f.touchLocked(nid, ns)
		}
	}
	return nil
}

func (f *Field) sectorLocked(id grid.SectorID) *sector {
	s, ok := f.sectors[id]
	if !ok {
		s = &sector{objects: make(map[grid.CellID]block.Object)}
		f.sectors[id] = s
	}
	return s
}

func (f *Field) touchLocked(id grid.SectorID, s *sector) {
	s.epoch++
	f.dirty[id] = struct{}{}
}

// Epoch возвращает текущую эпоху сектора (0 для нетронутого сектора)
func (f *Field) Epoch(id grid.SectorID) uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if s, ok := f.sectors[id]; ok {
		return s.epoch
	}
	return 0
}

// DirtySectors возвращает и сбрасывает множество изменённых секторов,
// упорядоченное по SectorID.
func (f *Field) DirtySectors() []grid.SectorID {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]grid.SectorID, 0, len(f.dirty))
	for id := range f.dirty {
		out = append(out, id)
	}
	f.dirty = make(map[grid.SectorID]struct{})

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarkDirty возвращает сектора в множество грязных, не меняя их эпох
func (f *Field) MarkDirty(ids ...grid.SectorID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.dirty[id] = struct{}{}
	}
}

// LoadedSectors возвращает количество секторов, в которые что-либо записывалось
func (f *Field) LoadedSectors() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.sectors)
}

// DirtyCount возвращает число изменённых секторов, не сбрасывая множество
func (f *Field) DirtyCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.dirty)
}
