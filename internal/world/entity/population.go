package entity

import (
	"sync/atomic"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/go-gl/mathgl/mgl64"
)

// IDGenerator выдаёт идентификаторы тел. Передаётся в конструктор популяции
// явно, поэтому у каждого мира (и каждого теста) своя последовательность.
type IDGenerator struct {
	next atomic.Uint64
}

// NewIDGenerator создаёт генератор, первый выданный ID равен start
func NewIDGenerator(start uint64) *IDGenerator {
	g := &IDGenerator{}
	g.next.Store(start)
	return g
}

// Next возвращает следующий ID
func (g *IDGenerator) Next() ID {
	return ID(g.next.Add(1) - 1)
}

// Observe сдвигает генератор за id, чтобы восстановленные тела не получили повторный ID
func (g *IDGenerator) Observe(id ID) {
	for {
		cur := g.next.Load()
		if uint64(id) < cur || g.next.CompareAndSwap(cur, uint64(id)+1) {
			return
		}
	}
}

// Population - тела мира в порядке появления. Порядок обхода фиксирован,
// поэтому разрешение коллизий за тик детерминировано.
//
// Популяцию изменяет только поток симуляции; внутренней синхронизации нет.
type Population struct {
	ids    *IDGenerator
	bodies *orderedmap.OrderedMap[ID, *Body]
}

// NewPopulation создаёт пустую популяцию
func NewPopulation(ids *IDGenerator) *Population {
	return &Population{
		ids:    ids,
		bodies: orderedmap.NewOrderedMap[ID, *Body](),
	}
}

// Spawn создаёт тело с новым ID и добавляет его в конец порядка обхода
func (p *Population) Spawn(typ EntityType, center, radius mgl64.Vec3) *Body {
	b := NewBody(p.ids.Next(), typ, center, radius)
	p.bodies.Set(b.ID, b)
	return b
}

// Restore добавляет тело с уже выданным ID, например загруженное из хранилища.
// Тело с таким ID заменяется.
func (p *Population) Restore(b *Body) {
	p.ids.Observe(b.ID)
	p.bodies.Set(b.ID, b)
}

// Despawn удаляет тело. Возвращает false, если тела уже нет.
func (p *Population) Despawn(id ID) bool {
	return p.bodies.Delete(id)
}

// Get возвращает тело по ID
func (p *Population) Get(id ID) (*Body, bool) {
	return p.bodies.Get(id)
}

// Len возвращает количество тел
func (p *Population) Len() int {
	return p.bodies.Len()
}

// Each обходит тела в порядке появления, пока fn возвращает true
func (p *Population) Each(fn func(b *Body) bool) {
	for el := p.bodies.Front(); el != nil; el = el.Next() {
		if !fn(el.Value) {
			return
		}
	}
}

// IDs возвращает идентификаторы в порядке обхода
func (p *Population) IDs() []ID {
	return p.bodies.Keys()
}
