package physics

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig возвращается для некорректных параметров физики
var ErrInvalidConfig = errors.New("physics: invalid config")

// Config - параметры разрешения коллизий
type Config struct {
	TickRate        float64 // тиков в секунду
	Gravity         float64 // модуль ускорения свободного падения, направлено вниз по Z
	JumpSpeed       float64 // вертикальная скорость прыжка
	ClimbSpeed      float64 // скорость подъёма по лестнице
	PullBackEpsilon float64 // отступ от препятствия после столкновения
	BisectionSteps  int     // число шагов бисекции на ось
	StepHeight      float64 // высота подъёма на ступень, в долях ячейки
}

// DefaultConfig возвращает параметры по умолчанию
func DefaultConfig() Config {
	return Config{
		TickRate:        60,
		Gravity:         9.81,
		JumpSpeed:       5,
		ClimbSpeed:      2,
		PullBackEpsilon: 1e-4,
		BisectionSteps:  16,
		StepHeight:      0.55,
	}
}

// Validate проверяет параметры
func (c Config) Validate() error {
	switch {
	case c.TickRate <= 0:
		return fmt.Errorf("%w: tick rate %v", ErrInvalidConfig, c.TickRate)
	case c.Gravity < 0:
		return fmt.Errorf("%w: negative gravity %v", ErrInvalidConfig, c.Gravity)
	case c.PullBackEpsilon < 0:
		return fmt.Errorf("%w: negative pull-back epsilon %v", ErrInvalidConfig, c.PullBackEpsilon)
	case c.BisectionSteps <= 0:
		return fmt.Errorf("%w: bisection steps %d", ErrInvalidConfig, c.BisectionSteps)
	case c.StepHeight < 0 || c.StepHeight >= 1:
		return fmt.Errorf("%w: step height %v", ErrInvalidConfig, c.StepHeight)
	}
	return nil
}

// Step возвращает длительность одного тика в секундах
func (c Config) Step() float64 {
	return 1 / c.TickRate
}

// Interval возвращает длительность тика для тикера
func (c Config) Interval() time.Duration {
	return time.Duration(float64(time.Second) / c.TickRate)
}
