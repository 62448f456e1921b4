package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v3"

	"github.com/annel0/voxel-engine/internal/grid"
	"github.com/annel0/voxel-engine/internal/world"
)

var sectorPrefix = []byte("sector:")

// WorldStorage хранит изменённые сектора мира между запусками
type WorldStorage struct {
	db      *badger.DB
	codec   *codec
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
}

// NewWorldStorage создает хранилище мира в dataPath/world.
// Пустой dataPath - хранилище в памяти.
func NewWorldStorage(dataPath string) (*WorldStorage, error) {
	dbPath := ""
	if dataPath != "" {
		dbPath = filepath.Join(dataPath, "world")
	}
	db, err := openBadger(dbPath)
	if err != nil {
		return nil, err
	}
	c, err := newCodec()
	if err != nil {
		db.Close()
		return nil, err
	}

	return &WorldStorage{
		db:      db,
		codec:   c,
		dbPath:  dbPath,
		isReady: true,
	}, nil
}

// Close закрывает хранилище данных
func (ws *WorldStorage) Close() error {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	if !ws.isReady {
		return nil
	}

	ws.isReady = false
	ws.codec.close()
	return ws.db.Close()
}

func sectorKey(id grid.SectorID) []byte {
	return binary.BigEndian.AppendUint32(append([]byte(nil), sectorPrefix...), uint32(id))
}

// SaveSectors сохраняет указанные сектора поля одной транзакцией
func (ws *WorldStorage) SaveSectors(f *world.Field, ids []grid.SectorID) (int, error) {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return 0, fmt.Errorf("хранилище не готово")
	}

	saved := 0
	wb := ws.db.NewWriteBatch()
	defer wb.Cancel()

	for _, id := range ids {
		data, ok := f.ExportSector(id)
		if !ok {
			continue
		}
		value, err := ws.codec.marshal(data)
		if err != nil {
			return 0, fmt.Errorf("сектор %d: %w", id, err)
		}
		if err := wb.Set(sectorKey(id), value); err != nil {
			return 0, fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
		}
		saved++
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	return saved, nil
}

// LoadSector загружает сохранённый сектор. Второе значение false, если его нет.
func (ws *WorldStorage) LoadSector(id grid.SectorID) (world.SectorData, bool, error) {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return world.SectorData{}, false, fmt.Errorf("хранилище не готово")
	}

	var value []byte
	err := ws.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sectorKey(id))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return world.SectorData{}, false, nil
	}
	if err != nil {
		return world.SectorData{}, false, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	var data world.SectorData
	if err := ws.codec.unmarshal(value, &data); err != nil {
		return world.SectorData{}, false, fmt.Errorf("сектор %d: %w", id, err)
	}
	return data, true, nil
}

// LoadInto загружает все сохранённые сектора в поле
func (ws *WorldStorage) LoadInto(f *world.Field) (int, error) {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return 0, fmt.Errorf("хранилище не готово")
	}

	loaded := 0
	err := ws.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = sectorPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var data world.SectorData
			if err := ws.codec.unmarshal(value, &data); err != nil {
				return fmt.Errorf("ключ %x: %w", it.Item().Key(), err)
			}
			if err := f.ImportSector(data); err != nil {
				return err
			}
			loaded++
		}
		return nil
	})
	return loaded, err
}
