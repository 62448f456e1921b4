package world

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/annel0/voxel-engine/internal/grid"
	"github.com/annel0/voxel-engine/internal/util"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
)

// Константы слоёв ландшафта
const (
	DirtDepth      = 3    // Толщина слоя земли под травой
	SandLevel      = 0.35 // Ниже - песок вместо травы
	MountainStart  = 0.75 // Выше - голый камень
	structureTries = 4    // Попыток размещения структур на сектор
)

// Generator генерирует ландшафт мира по карте высот из шума Перлина
type Generator struct {
	Seed              int64   // Сид для генерации шума
	NoiseScale        float64 // Масштаб шума высоты
	BaseHeight        int     // Высота уровня моря в ячейках
	Amplitude         int     // Размах высот в ячейках
	StructureDensity  float64 // Вероятность попытки размещения структуры (от 0 до 1)
	noise             *util.Noise
	structureSequence []block.Structure
}

// NewGenerator создаёт генератор мира
func NewGenerator(seed int64, table *block.Table) *Generator {
	return &Generator{
		Seed:              seed,
		NoiseScale:        0.05, // Настройка сглаженности ландшафта
		BaseHeight:        0,
		Amplitude:         8,
		StructureDensity:  0.1,
		noise:             util.NewNoise(seed),
		structureSequence: table.Structures(),
	}
}

// Height возвращает высоту поверхности столбца (x, y) и значение шума
func (gen *Generator) Height(x, y int) (int, float64) {
	n := gen.noise.Noise2D(float64(x)*gen.NoiseScale, float64(y)*gen.NoiseScale)
	h := gen.BaseHeight + int(math.Round((n-0.5)*2*float64(gen.Amplitude)))
	return h, n
}

// GenerateSector заполняет сектор: камень, слой земли, трава (или песок/камень
// в зависимости от высоты). Результат детерминирован по сиду и координатам.
func (gen *Generator) GenerateSector(f *Field, sectorCoord vec.Vec3) error {
	g := f.Grid()
	if sectorCoord.MaxAbs() > g.WorldRadiusInSectors() {
		return fmt.Errorf("%w: sector %v", ErrOutOfBounds, sectorCoord)
	}

	r := g.SectorRadius()
	center := g.SectorCenter(sectorCoord)
	for y := center.Y - r; y <= center.Y+r; y++ {
		for x := center.X - r; x <= center.X+r; x++ {
			height, n := gen.Height(x, y)
			for z := center.Z - r; z <= center.Z+r && z <= height; z++ {
				kind := gen.kindFor(z, height, n)
				if err := f.SetBlock(vec.Vec3{X: x, Y: y, Z: z}, kind); err != nil {
					return fmt.Errorf("генерация сектора %v: %w", sectorCoord, err)
				}
			}
		}
	}

	return gen.placeStructures(f, sectorCoord)
}

// GenerateArea генерирует все сектора в кубе радиуса radius вокруг начала координат
func (gen *Generator) GenerateArea(f *Field, radius int) error {
	if limit := f.Grid().WorldRadiusInSectors(); radius > limit {
		radius = limit
	}
	for z := -radius; z <= radius; z++ {
		for y := -radius; y <= radius; y++ {
			for x := -radius; x <= radius; x++ {
				if err := gen.GenerateSector(f, vec.Vec3{X: x, Y: y, Z: z}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (gen *Generator) kindFor(z, height int, n float64) block.Kind {
	switch {
	case n > MountainStart:
		return block.Stone
	case z == height && n < SandLevel:
		return block.Sand
	case z == height:
		return block.Grass
	case z > height-DirtDepth:
		return block.Dirt
	default:
		return block.Stone
	}
}

// placeStructures ставит структуры таблицы на поверхность сектора
func (gen *Generator) placeStructures(f *Field, sectorCoord vec.Vec3) error {
	if len(gen.structureSequence) == 0 || gen.StructureDensity <= 0 {
		return nil
	}

	g := f.Grid()
	// Для каждого сектора создаём свой сид на основе глобального сида и координат
	sectorSeed := gen.Seed + int64(sectorCoord.X*31) + int64(sectorCoord.Y*17) + int64(sectorCoord.Z*13)
	rng := rand.New(rand.NewSource(sectorSeed))

	r := g.SectorRadius()
	center := g.SectorCenter(sectorCoord)
	for i := 0; i < structureTries; i++ {
		if rng.Float64() >= gen.StructureDensity {
			continue
		}
		x := center.X + rng.Intn(2*r+1) - r
		y := center.Y + rng.Intn(2*r+1) - r
		height, _ := gen.Height(x, y)
		base := vec.Vec3{X: x, Y: y, Z: height + 1}
		if !sameSector(g, base, sectorCoord) {
			continue
		}

		s := gen.structureSequence[rng.Intn(len(gen.structureSequence))]
		if err := f.PlaceStructure(s, base); err != nil {
			return err
		}
	}
	return nil
}

func sameSector(g grid.Grid, pos, sectorCoord vec.Vec3) bool {
	s, ok := g.GridToSectorCoordinate(pos)
	return ok && s == sectorCoord
}

// PlaceStructure размещает объекты структуры относительно origin.
// Позиции за пределами мира пропускаются.
func (f *Field) PlaceStructure(s block.Structure, origin vec.Vec3) error {
	for _, p := range s.Objects {
		pos := origin.Add(p.Offset)
		if !f.grid.IsValid(pos) {
			continue
		}
		if err := f.SetObject(pos, p.Object); err != nil {
			return fmt.Errorf("структура %q в %v: %w", s.Name, pos, err)
		}
	}
	return nil
}
