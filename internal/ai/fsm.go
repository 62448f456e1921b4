// Package ai управляет телами без игрока: конечный автомат на каждое тело
// выдаёт действия в очередь физики так же, как это делает слой ввода.
package ai

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/annel0/voxel-engine/internal/physics"
	"github.com/annel0/voxel-engine/internal/world/entity"
)

// State представляет состояние конечного автомата
type State interface {
	Enter(agent *Agent)
	Update(agent *Agent, dt float64) State
	Exit(agent *Agent)
}

// Agent - автомат одного тела. Body указывает на тело только на время Update.
type Agent struct {
	ID    entity.ID
	Body  *entity.Body
	Speed float64

	state   State
	rng     *rand.Rand
	actions []physics.Action
}

func newAgent(id entity.ID, speed float64, seed int64) *Agent {
	return &Agent{
		ID:    id,
		Speed: speed,
		rng:   rand.New(rand.NewSource(seed ^ int64(id))),
	}
}

// SetState устанавливает новое состояние агента
func (a *Agent) SetState(state State) {
	if a.state != nil {
		a.state.Exit(a)
	}
	a.state = state
	if a.state != nil {
		a.state.Enter(a)
	}
}

// State возвращает текущее состояние
func (a *Agent) State() State {
	return a.state
}

func (a *Agent) update(body *entity.Body, dt float64) []physics.Action {
	a.Body = body
	a.actions = a.actions[:0]
	if a.state == nil {
		a.SetState(NewIdleState(a.rng))
	}
	if next := a.state.Update(a, dt); next != a.state {
		a.SetState(next)
	}
	a.Body = nil
	return a.actions
}

func (a *Agent) emit(action physics.Action) {
	a.actions = append(a.actions, action)
}

// walk задаёт горизонтальную скорость тела
func (a *Agent) walk(v mgl64.Vec3) {
	a.emit(physics.Move(a.ID, v))
}

// === Конкретные состояния ===

// IdleState - состояние бездействия
type IdleState struct {
	TimeInState float64
	MaxIdleTime float64
}

// NewIdleState создаёт состояние бездействия на 2-5 секунд
func NewIdleState(rng *rand.Rand) *IdleState {
	return &IdleState{MaxIdleTime: 2.0 + rng.Float64()*3.0}
}

func (s *IdleState) Enter(agent *Agent) {
	s.TimeInState = 0
	agent.walk(mgl64.Vec3{})
}

func (s *IdleState) Update(agent *Agent, dt float64) State {
	s.TimeInState += dt
	if s.TimeInState >= s.MaxIdleTime {
		return NewWanderState(agent.rng)
	}
	return s
}

func (s *IdleState) Exit(*Agent) {}

// WanderState - блуждание к случайной точке на плоскости XY
type WanderState struct {
	Target        mgl64.Vec3
	TimeInState   float64
	MaxWanderTime float64
	StuckTime     float64

	last mgl64.Vec3
}

// NewWanderState создаёт состояние блуждания на 3-8 секунд
func NewWanderState(rng *rand.Rand) *WanderState {
	return &WanderState{MaxWanderTime: 3.0 + rng.Float64()*5.0}
}

const (
	arriveDistance = 0.25
	maxStuckTime   = 0.5
)

func (s *WanderState) Enter(agent *Agent) {
	s.TimeInState = 0
	s.StuckTime = 0

	angle := agent.rng.Float64() * 2 * math.Pi
	distance := 2.0 + agent.rng.Float64()*3.0
	pos := agent.Body.Position()
	s.Target = mgl64.Vec3{pos[0] + distance*math.Cos(angle), pos[1] + distance*math.Sin(angle), pos[2]}
	s.last = pos
}

func (s *WanderState) Update(agent *Agent, dt float64) State {
	s.TimeInState += dt
	pos := agent.Body.Position()

	toTarget := mgl64.Vec3{s.Target[0] - pos[0], s.Target[1] - pos[1], 0}
	if s.TimeInState >= s.MaxWanderTime || toTarget.Len() <= arriveDistance {
		return NewIdleState(agent.rng)
	}

	// Почти не сдвинулись за тик: упёрлись в стену
	moved := mgl64.Vec3{pos[0] - s.last[0], pos[1] - s.last[1], 0}.Len()
	s.last = pos
	if s.TimeInState > dt && moved < 0.1*agent.Speed*dt {
		s.StuckTime += dt
		if s.StuckTime >= maxStuckTime {
			return NewIdleState(agent.rng)
		}
		if agent.Body.Mode == entity.ModeGround && agent.Body.Contacts.Has(entity.ContactGround) {
			agent.emit(physics.Jump(agent.ID))
		}
	} else {
		s.StuckTime = 0
	}

	agent.walk(toTarget.Normalize().Mul(agent.Speed))
	return s
}

func (s *WanderState) Exit(agent *Agent) {
	agent.walk(mgl64.Vec3{})
}
