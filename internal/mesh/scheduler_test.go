package mesh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-engine/internal/grid"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/worker"
	"github.com/annel0/voxel-engine/internal/world/block"
)

// deferredPool копит задачи и выполняет их по команде, в любом порядке
type deferredPool struct {
	tasks []func()
	err   error
}

func (p *deferredPool) Submit(_ context.Context, f func()) error {
	if p.err != nil {
		return p.err
	}
	p.tasks = append(p.tasks, f)
	return nil
}

func (p *deferredPool) runReversed() {
	for i := len(p.tasks) - 1; i >= 0; i-- {
		p.tasks[i]()
	}
	p.tasks = nil
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[grid.SectorID]*SectorMesh
	lookups int
}

func (c *memoryCache) Lookup(view *SectorView) (*SectorMesh, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookups++
	m, ok := c.entries[view.SectorID]
	if !ok {
		return nil, false, nil
	}
	cp := *m
	cp.Version = view.Version
	return &cp, true, nil
}

func (c *memoryCache) Store(view *SectorView, m *SectorMesh) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[view.SectorID] = m
	return nil
}

func solidView(g grid.Grid, id grid.SectorID, version uint64) *SectorView {
	view := NewSectorView(id, vec.Vec3{}, g.SectorRadius(), version)
	view.Set(vec.Vec3{}, block.Stone)
	return view
}

func TestScheduler_DropsStaleResults(t *testing.T) {
	g := testGrid()
	pool := &deferredPool{}
	store := NewStore()
	var committed []uint64
	s := NewScheduler(NewMesher(block.DefaultTable()), g, pool, store, SchedulerOptions{
		OnCommit: func(m *SectorMesh) { committed = append(committed, m.Version) },
	})

	ctx := context.Background()
	require.NoError(t, s.Dispatch(ctx, solidView(g, 4, 1)))
	require.NoError(t, s.Dispatch(ctx, solidView(g, 4, 2)))
	assert.Equal(t, 2, s.Pending())

	// Новая версия завершается раньше старой
	pool.runReversed()
	assert.Equal(t, 0, s.Pending())

	assert.Equal(t, 1, s.Commit(), "зафиксирована только актуальная версия")
	m, ok := store.Get(4)
	require.True(t, ok)
	assert.Equal(t, uint64(2), m.Version)
	assert.Equal(t, []uint64{2}, committed, "OnCommit видит только зафиксированные меши")

	// Снимок старше уже отправленного игнорируется
	require.NoError(t, s.Dispatch(ctx, solidView(g, 4, 1)))
	assert.Empty(t, pool.tasks)
	assert.Equal(t, 0, s.Commit())
}

func TestScheduler_DispatchError(t *testing.T) {
	g := testGrid()
	pool := &deferredPool{err: errors.New("очередь закрыта")}
	s := NewScheduler(NewMesher(block.DefaultTable()), g, pool, NewStore(), SchedulerOptions{})

	err := s.Dispatch(context.Background(), solidView(g, 1, 1))
	assert.Error(t, err)
	assert.Equal(t, 0, s.Pending())
}

func TestScheduler_WithWorkerPool(t *testing.T) {
	g := testGrid()
	pool := worker.New(4, 16, nil)
	defer pool.Close()

	store := NewStore()
	s := NewScheduler(NewMesher(block.DefaultTable()), g, pool, store, SchedulerOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for id := grid.SectorID(0); id < 10; id++ {
		require.NoError(t, s.Dispatch(ctx, solidView(g, id, 1)))
	}
	require.NoError(t, s.Wait(ctx))

	assert.Equal(t, 10, s.Commit())
	assert.Equal(t, 10, store.Len())
	m, ok := store.Get(7)
	require.True(t, ok)
	assert.Equal(t, 6, m.QuadCount())
}

func TestScheduler_UsesCache(t *testing.T) {
	g := testGrid()
	pool := &deferredPool{}
	cache := &memoryCache{entries: make(map[grid.SectorID]*SectorMesh)}
	store := NewStore()
	s := NewScheduler(NewMesher(block.DefaultTable()), g, pool, store, SchedulerOptions{Cache: cache})

	ctx := context.Background()
	require.NoError(t, s.Dispatch(ctx, solidView(g, 2, 1)))
	pool.runReversed()
	require.Equal(t, 1, s.Commit())
	require.Len(t, cache.entries, 1)

	require.NoError(t, s.Dispatch(ctx, solidView(g, 2, 5)))
	pool.runReversed()
	require.Equal(t, 1, s.Commit())

	m, ok := store.Get(2)
	require.True(t, ok)
	assert.Equal(t, uint64(5), m.Version, "кэшированный меш получает версию снимка")
	assert.Equal(t, 2, cache.lookups)
}

// brokenCache паникует при чтении, как при повреждённой записи
type brokenCache struct{}

func (brokenCache) Lookup(*SectorView) (*SectorMesh, bool, error) {
	panic("повреждённая запись кэша")
}

func (brokenCache) Store(*SectorView, *SectorMesh) error { return nil }

func TestScheduler_PanicInBuildReleasesPending(t *testing.T) {
	g := testGrid()
	pool := worker.New(2, 4, nil)
	defer pool.Close()

	store := NewStore()
	s := NewScheduler(NewMesher(block.DefaultTable()), g, pool, store, SchedulerOptions{Cache: brokenCache{}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Dispatch(ctx, solidView(g, 3, 1)))
	require.NoError(t, s.Dispatch(ctx, solidView(g, 4, 1)))

	require.NoError(t, s.Wait(ctx), "Wait не зависает после паники в задаче")
	assert.Equal(t, 0, s.Pending())
	assert.Equal(t, 0, s.Commit(), "упавшая задача не даёт меша")
	assert.Equal(t, 0, store.Len())
}

func TestStore_RejectsOlderVersion(t *testing.T) {
	store := NewStore()
	assert.True(t, store.Commit(&SectorMesh{SectorID: 1, Version: 3}))
	assert.False(t, store.Commit(&SectorMesh{SectorID: 1, Version: 2}))
	assert.True(t, store.Commit(&SectorMesh{SectorID: 1, Version: 3}), "повторная фиксация той же версии допустима")

	m, ok := store.Get(1)
	require.True(t, ok)
	assert.Equal(t, uint64(3), m.Version)
}
