package world

import (
	"fmt"
	"sort"

	"github.com/annel0/voxel-engine/internal/grid"
	"github.com/annel0/voxel-engine/internal/world/block"
)

// SectorData - содержимое сектора для сохранения и загрузки
type SectorData struct {
	ID      grid.SectorID                `json:"id"`
	Kinds   []block.Kind                 `json:"kinds,omitempty"` // nil - в секторе только воздух
	Objects map[grid.CellID]block.Object `json:"objects,omitempty"`
}

// SectorIDs возвращает идентификаторы загруженных секторов по возрастанию
func (f *Field) SectorIDs() []grid.SectorID {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]grid.SectorID, 0, len(f.sectors))
	for id := range f.sectors {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ExportSector копирует содержимое сектора
func (f *Field) ExportSector(id grid.SectorID) (SectorData, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	s, ok := f.sectors[id]
	if !ok {
		return SectorData{}, false
	}
	data := SectorData{ID: id}
	if s.kinds != nil && s.filled > 0 {
		data.Kinds = append([]block.Kind(nil), s.kinds...)
	}
	if len(s.objects) > 0 {
		data.Objects = make(map[grid.CellID]block.Object, len(s.objects))
		for cid, obj := range s.objects {
			data.Objects[cid] = obj
		}
	}
	return data, true
}

// ImportSector заменяет содержимое сектора сохранёнными данными.
// Эпохи сектора и его загруженных соседей продвигаются.
func (f *Field) ImportSector(data SectorData) error {
	coord, ok := f.grid.SectorIDToCoordinate(data.ID)
	if !ok {
		return fmt.Errorf("%w: sector %d", ErrOutOfBounds, data.ID)
	}
	cells := f.grid.CellsPerSector()
	if data.Kinds != nil && len(data.Kinds) != cells {
		return fmt.Errorf("world: sector %d has %d cells, want %d", data.ID, len(data.Kinds), cells)
	}

	filled := 0
	for _, k := range data.Kinds {
		if _, known := f.table.Spec(k); !known {
			return fmt.Errorf("%w: %d in sector %d", ErrUnknownKind, k, data.ID)
		}
		if k != block.Air {
			filled++
		}
	}
	objects := make(map[grid.CellID]block.Object, len(data.Objects))
	for cid, obj := range data.Objects {
		if int(cid) >= cells {
			return fmt.Errorf("%w: cell %d in sector %d", ErrOutOfBounds, cid, data.ID)
		}
		if err := obj.Validate(); err != nil {
			return err
		}
		if obj.Kind != block.ObjectNone {
			objects[cid] = obj
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.sectorLocked(data.ID)
	s.kinds = nil
	if filled > 0 {
		s.kinds = append([]block.Kind(nil), data.Kinds...)
	}
	s.filled = filled
	s.objects = objects
	f.touchLocked(data.ID, s)

	for _, d := range grid.Directions {
		nid, ok := f.grid.SectorCoordinateToID(coord.Add(d.Offset()))
		if !ok {
			continue
		}
		if ns, exists := f.sectors[nid]; exists {
			f.touchLocked(nid, ns)
		}
	}
	return nil
}
