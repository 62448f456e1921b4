package physics

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel/attribute"

	"github.com/annel0/voxel-engine/internal/observability"
	"github.com/annel0/voxel-engine/internal/world/entity"
)

// Tick применяет очередь действий и перемещает все тела популяции на один шаг.
// Тела обрабатываются по одному в порядке появления. Вызывающий должен
// обеспечить единоличный доступ к популяции на время тика.
// Возвращает номер завершённого тика.
func (r *Resolver) Tick(ctx context.Context, field VoxelField, pop *entity.Population, state *State) uint64 {
	start := time.Now()
	_, span := observability.StartSpan(ctx, "physics.tick",
		attribute.Int("bodies", pop.Len()))
	defer span.End()

	actions := state.drain()
	for _, a := range actions {
		body, ok := pop.Get(a.Body)
		if !ok {
			// Тело исчезло раньше, чем пришло действие
			r.metrics.DroppedAction()
			continue
		}
		r.apply(body, a)
	}

	dt := r.cfg.Step()
	pop.Each(func(b *entity.Body) bool {
		r.safeStep(field, b, dt)
		return true
	})

	tick := state.advance()
	r.metrics.ObserveTick(time.Since(start), pop.Len())
	span.SetAttributes(attribute.Int("actions", len(actions)), attribute.Int64("tick", int64(tick)))
	return tick
}

// safeStep изолирует панику одного тела от остальных
func (r *Resolver) safeStep(field VoxelField, b *entity.Body, dt float64) {
	defer func() {
		if rec := recover(); rec != nil {
			r.metrics.RecoveredPanic()
			sentry.CurrentHub().Clone().Recover(rec)
			r.logger.Error("Паника при разрешении тела %d: %v", b.ID, rec)
		}
	}()
	r.Step(field, b, dt)
}

// apply применяет действие к телу. Действия, недопустимые в текущем
// состоянии тела, игнорируются.
func (r *Resolver) apply(b *entity.Body, a Action) {
	switch a.Kind {
	case ActionMove:
		b.Velocity[0] = a.Velocity[0]
		b.Velocity[1] = a.Velocity[1]
		if b.Mode == entity.ModeAir {
			b.Velocity[zAxis] = a.Velocity[zAxis]
		}
	case ActionJump:
		if b.Mode == entity.ModeGround && b.Contacts.Has(entity.ContactGround) {
			b.Velocity[zAxis] = r.cfg.JumpSpeed
		}
	case ActionClimb:
		switch {
		case b.Mode == entity.ModeClimb:
			b.Velocity[zAxis] = a.Climb * r.cfg.ClimbSpeed
		case a.Climb != 0 && b.Contacts.Has(entity.ContactLadder):
			b.Mode = entity.ModeClimb
			b.Velocity[zAxis] = a.Climb * r.cfg.ClimbSpeed
		}
	case ActionSetMode:
		if b.Mode != a.Mode {
			r.logger.Debug("Тело %d: режим %s -> %s", b.ID, b.Mode, a.Mode)
		}
		b.Mode = a.Mode
		if a.Mode != entity.ModeGround {
			b.Velocity[zAxis] = 0
		}
	default:
		r.logger.Warn("Неизвестное действие %d для тела %d", a.Kind, b.ID)
	}
}
