package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v3"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/zeebo/xxh3"

	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/mesh"
)

// ErrCacheClosed возвращается при обращении к закрытому кэшу
var ErrCacheClosed = errors.New("storage: mesh cache closed")

// MeshCache - кэш готовых мешей в BadgerDB. Ключ - сектор и хэш содержимого
// снимка, поэтому одинаковое содержимое с новой версией не перестраивается.
type MeshCache struct {
	db     *badger.DB
	codec  *codec
	logger *logging.Logger

	mu     sync.RWMutex
	closed bool
}

// cachedMesh - сохраняемая часть меша. Версия не хранится: при выдаче
// меш получает версию запрошенного снимка.
type cachedMesh struct {
	Origin   mgl64.Vec3    `json:"origin"`
	Vertices []mesh.Vertex `json:"vertices"`
	Indices  []uint32      `json:"indices"`
}

// OpenMeshCache открывает кэш в каталоге dir. Пустой dir - кэш в памяти.
func OpenMeshCache(dir string, logger *logging.Logger) (*MeshCache, error) {
	if logger == nil {
		logger = logging.GetMeshLogger()
	}
	db, err := openBadger(dir)
	if err != nil {
		return nil, err
	}
	c, err := newCodec()
	if err != nil {
		db.Close()
		return nil, err
	}
	return &MeshCache{db: db, codec: c, logger: logger}, nil
}

// Close закрывает кэш
func (mc *MeshCache) Close() error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.closed {
		return nil
	}
	mc.closed = true
	mc.codec.close()
	return mc.db.Close()
}

// Lookup ищет меш для содержимого снимка
func (mc *MeshCache) Lookup(view *mesh.SectorView) (*mesh.SectorMesh, bool, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	if mc.closed {
		return nil, false, ErrCacheClosed
	}

	var data []byte
	err := mc.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(meshKey(view))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	var cm cachedMesh
	if err := mc.codec.unmarshal(data, &cm); err != nil {
		mc.logger.Warn("Повреждённая запись кэша сектора %d: %v", view.SectorID, err)
		return nil, false, nil
	}
	return cm.restore(view), true, nil
}

// restore собирает меш для снимка: идентификаторы и версия берутся из view
func (cm *cachedMesh) restore(view *mesh.SectorView) *mesh.SectorMesh {
	return &mesh.SectorMesh{
		SectorID: view.SectorID,
		Sector:   view.Sector,
		Origin:   cm.Origin,
		Version:  view.Version,
		Vertices: cm.Vertices,
		Indices:  cm.Indices,
	}
}

// Store сохраняет меш под ключом содержимого снимка
func (mc *MeshCache) Store(view *mesh.SectorView, m *mesh.SectorMesh) error {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	if mc.closed {
		return ErrCacheClosed
	}

	data, err := mc.codec.marshal(cachedMesh{Origin: m.Origin, Vertices: m.Vertices, Indices: m.Indices})
	if err != nil {
		return err
	}
	err = mc.db.Update(func(txn *badger.Txn) error {
		return txn.Set(meshKey(view), data)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	return nil
}

// meshKey - "mesh:" + SectorID + xxh3 содержимого снимка
func meshKey(view *mesh.SectorView) []byte {
	key := make([]byte, 0, 5+4+8)
	key = append(key, "mesh:"...)
	key = binary.BigEndian.AppendUint32(key, uint32(view.SectorID))
	key = binary.BigEndian.AppendUint64(key, ContentHash(view))
	return key
}

// ContentHash хэширует ячейки и граничные плоскости снимка без учёта версии
func ContentHash(view *mesh.SectorView) uint64 {
	h := xxh3.New()
	buf := make([]byte, 0, 2*len(view.Cells)+8)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(view.Radius))
	for _, k := range view.Cells {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(k))
	}
	h.Write(buf)

	for _, plane := range view.Borders {
		buf = buf[:0]
		if plane == nil {
			buf = append(buf, 0)
		} else {
			buf = append(buf, 1)
			for _, k := range plane {
				buf = binary.LittleEndian.AppendUint16(buf, uint16(k))
			}
		}
		h.Write(buf)
	}
	return h.Sum64()
}
