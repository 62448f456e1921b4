package ai

import (
	"github.com/annel0/voxel-engine/internal/physics"
	"github.com/annel0/voxel-engine/internal/world/entity"
)

// Controller держит автоматы тел управляемых типов. Агенты создаются
// при первой встрече тела и удаляются, когда тело исчезает из популяции.
// Не потокобезопасен: вызывается из потока симуляции.
type Controller struct {
	agents  map[entity.ID]*Agent
	types   map[entity.EntityType]struct{}
	speed   float64
	seed    int64
	visited map[entity.ID]struct{}
}

// NewController создаёт контроллер для тел типов types со скоростью ходьбы speed
func NewController(seed int64, speed float64, types ...entity.EntityType) *Controller {
	c := &Controller{
		agents:  make(map[entity.ID]*Agent),
		types:   make(map[entity.EntityType]struct{}, len(types)),
		speed:   speed,
		seed:    seed,
		visited: make(map[entity.ID]struct{}),
	}
	for _, t := range types {
		c.types[t] = struct{}{}
	}
	return c
}

// Len возвращает число активных агентов
func (c *Controller) Len() int {
	return len(c.agents)
}

// Agent возвращает агента тела
func (c *Controller) Agent(id entity.ID) (*Agent, bool) {
	a, ok := c.agents[id]
	return a, ok
}

// Update продвигает автоматы на dt и возвращает действия для очереди физики
func (c *Controller) Update(pop *entity.Population, dt float64) []physics.Action {
	var out []physics.Action
	for id := range c.visited {
		delete(c.visited, id)
	}

	pop.Each(func(b *entity.Body) bool {
		if _, controlled := c.types[b.Type]; !controlled {
			return true
		}
		agent, ok := c.agents[b.ID]
		if !ok {
			agent = newAgent(b.ID, c.speed, c.seed)
			c.agents[b.ID] = agent
		}
		c.visited[b.ID] = struct{}{}
		out = append(out, agent.update(b, dt)...)
		return true
	})

	for id := range c.agents {
		if _, alive := c.visited[id]; !alive {
			delete(c.agents, id)
		}
	}
	return out
}
