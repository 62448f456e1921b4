// Package mesh строит минимальные текстурированные меши секторов жадным
// слиянием граней и фиксирует их в хранилище рендерера по версии.
package mesh

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/annel0/voxel-engine/internal/grid"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
)

// Vertex - вершина квада. Позиция задана относительно центра сектора (Origin),
// UV - в единицах ячеек, чтобы текстура повторялась по слитому кваду.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	UV       mgl32.Vec2
	Layer    uint32
}

// SectorMesh - результат построения меша сектора.
// После выдачи принадлежит рендереру; построитель ссылок на него не хранит.
type SectorMesh struct {
	SectorID grid.SectorID
	Sector   vec.Vec3
	Origin   mgl64.Vec3
	Version  uint64
	Vertices []Vertex
	Indices  []uint32
}

// QuadCount возвращает количество квадов в меше
func (m *SectorMesh) QuadCount() int {
	return len(m.Vertices) / 4
}

// Empty сообщает, что сектор не имеет видимых граней. Это корректный результат.
func (m *SectorMesh) Empty() bool {
	return len(m.Vertices) == 0
}

// TextureLookup возвращает слой текстурного массива для типа блока
type TextureLookup interface {
	TextureLayer(kind block.Kind) uint32
}

// Mesher - жадный построитель мешей. Не имеет изменяемого состояния
// и может использоваться из нескольких горутин одновременно.
type Mesher struct {
	textures TextureLookup
}

// NewMesher создаёт построитель с таблицей текстур
func NewMesher(textures TextureLookup) *Mesher {
	return &Mesher{textures: textures}
}

// Build строит меш сектора по снимку. Для каждой из трёх осей перебираются
// плоскости между соседними слоями ячеек, для каждой строится знаковая маска:
// +kind, если твёрдая ближняя ячейка (меньший индекс) граничит с пустой дальней
// (нормаль +d), -kind в обратном случае, 0 - грани нет. Одинаковые значения
// маски сливаются в прямоугольники сначала по ширине (u), затем по высоте (v).
func (m *Mesher) Build(view *SectorView, g grid.Grid) *SectorMesh {
	out := &SectorMesh{
		SectorID: view.SectorID,
		Sector:   view.Sector,
		Origin:   g.SectorOrigin(view.Sector),
		Version:  view.Version,
	}

	n := view.Size()
	mask := make([]int32, n*n)
	b := builder{
		mesh:     out,
		textures: m.textures,
		cellSize: float32(g.CellSize()),
		radius:   view.Radius,
	}

	for d := 0; d < 3; d++ {
		u, v := (d+1)%3, (d+2)%3

		for k := 0; k <= n; k++ {
			var near, far [3]int
			near[d], far[d] = k-1, k

			for j := 0; j < n; j++ {
				for i := 0; i < n; i++ {
					near[u], near[v] = i, j
					far[u], far[v] = i, j
					a := view.kindAt(near)
					c := view.kindAt(far)

					var value int32
					switch {
					case a != block.Air && c == block.Air:
						value = int32(a)
					case a == block.Air && c != block.Air:
						value = -int32(c)
					}
					// Грани, принадлежащие соседнему сектору, не выводим
					if (k == 0 && value > 0) || (k == n && value < 0) {
						value = 0
					}
					mask[i+n*j] = value
				}
			}

			b.greedy(mask, n, d, u, v, k)
		}
	}

	return out
}

type builder struct {
	mesh     *SectorMesh
	textures TextureLookup
	cellSize float32
	radius   int
}

// greedy выбирает из маски максимальные прямоугольники одинаковых значений,
// выводит по кваду на каждый и обнуляет поглощённые ячейки.
func (b *builder) greedy(mask []int32, n, d, u, v, k int) {
	for j := 0; j < n; j++ {
		for i := 0; i < n; {
			c := mask[i+n*j]
			if c == 0 {
				i++
				continue
			}

			w := 1
			for i+w < n && mask[i+w+n*j] == c {
				w++
			}

			h := 1
		grow:
			for j+h < n {
				for q := 0; q < w; q++ {
					if mask[i+q+n*(j+h)] != c {
						break grow
					}
				}
				h++
			}

			var origin [3]int
			origin[d], origin[u], origin[v] = k, i, j
			b.emit(origin, d, u, v, w, h, c)

			for jj := j; jj < j+h; jj++ {
				for ii := i; ii < i+w; ii++ {
					mask[ii+n*jj] = 0
				}
			}
			i += w
		}
	}
}

// emit добавляет квад с углом origin (индексы границ ячеек), шириной w вдоль u
// и высотой h вдоль v. Обход против часовой стрелки при взгляде со стороны нормали.
func (b *builder) emit(origin [3]int, d, u, v, w, h int, c int32) {
	kind := block.Kind(c)
	sign := float32(1)
	if c < 0 {
		kind = block.Kind(-c)
		sign = -1
	}

	var layer uint32
	if b.textures != nil {
		layer = b.textures.TextureLayer(kind)
	}

	var normal mgl32.Vec3
	normal[d] = sign

	x := b.corner(origin)
	var du, dv mgl32.Vec3
	du[u] = float32(w) * b.cellSize
	dv[v] = float32(h) * b.cellSize

	fw, fh := float32(w), float32(h)
	var corners [4]Vertex
	if c > 0 {
		corners = [4]Vertex{
			{Position: x, UV: mgl32.Vec2{0, 0}},
			{Position: x.Add(du), UV: mgl32.Vec2{fw, 0}},
			{Position: x.Add(du).Add(dv), UV: mgl32.Vec2{fw, fh}},
			{Position: x.Add(dv), UV: mgl32.Vec2{0, fh}},
		}
	} else {
		corners = [4]Vertex{
			{Position: x, UV: mgl32.Vec2{0, 0}},
			{Position: x.Add(dv), UV: mgl32.Vec2{0, fh}},
			{Position: x.Add(du).Add(dv), UV: mgl32.Vec2{fw, fh}},
			{Position: x.Add(du), UV: mgl32.Vec2{fw, 0}},
		}
	}

	base := uint32(len(b.mesh.Vertices))
	for _, vert := range corners {
		vert.Normal = normal
		vert.Layer = layer
		b.mesh.Vertices = append(b.mesh.Vertices, vert)
	}
	b.mesh.Indices = append(b.mesh.Indices, base, base+1, base+2, base+2, base+3, base)
}

// corner переводит индексы границ ячеек в позицию относительно центра сектора
func (b *builder) corner(p [3]int) mgl32.Vec3 {
	var out mgl32.Vec3
	for axis := 0; axis < 3; axis++ {
		out[axis] = (float32(p[axis]-b.radius) - 0.5) * b.cellSize
	}
	return out
}
