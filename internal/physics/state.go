package physics

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/annel0/voxel-engine/internal/world/entity"
)

// ActionKind - тип запрошенного действия
type ActionKind uint8

const (
	ActionMove    ActionKind = iota // задать горизонтальную скорость (в режиме Air - полную)
	ActionJump                      // прыжок, только с опоры
	ActionClimb                     // подъём или спуск по лестнице
	ActionSetMode                   // смена режима движения
)

// Action - намерение тела, поставленное в очередь слоем ввода
type Action struct {
	Body     entity.ID
	Kind     ActionKind
	Velocity mgl64.Vec3        // для ActionMove
	Climb    float64           // для ActionClimb: +1 вверх, -1 вниз, 0 остановка
	Mode     entity.MotionMode // для ActionSetMode
}

// Move возвращает действие движения
func Move(id entity.ID, velocity mgl64.Vec3) Action {
	return Action{Body: id, Kind: ActionMove, Velocity: velocity}
}

// Jump возвращает действие прыжка
func Jump(id entity.ID) Action {
	return Action{Body: id, Kind: ActionJump}
}

// Climb возвращает действие подъёма
func Climb(id entity.ID, dir float64) Action {
	return Action{Body: id, Kind: ActionClimb, Climb: dir}
}

// SetMode возвращает действие смены режима
func SetMode(id entity.ID, mode entity.MotionMode) Action {
	return Action{Body: id, Kind: ActionSetMode, Mode: mode}
}

// State - очередь действий между тиками и номер текущего тика.
// Enqueue можно вызывать из любой горутины.
type State struct {
	mu      sync.Mutex
	pending []Action
	tick    uint64
}

// NewState создаёт пустое состояние
func NewState() *State {
	return &State{}
}

// Enqueue ставит действие в очередь следующего тика
func (s *State) Enqueue(actions ...Action) {
	s.mu.Lock()
	s.pending = append(s.pending, actions...)
	s.mu.Unlock()
}

// Pending возвращает число действий в очереди
func (s *State) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Tick возвращает число завершённых тиков
func (s *State) Tick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// drain забирает очередь действий
func (s *State) drain() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}

func (s *State) advance() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick++
	return s.tick
}
