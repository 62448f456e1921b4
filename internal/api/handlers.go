package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/annel0/voxel-engine/internal/grid"
	"github.com/annel0/voxel-engine/internal/physics"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world"
	"github.com/annel0/voxel-engine/internal/world/block"
	"github.com/annel0/voxel-engine/internal/world/entity"
)

var defaultBodyRadius = [3]float64{0.3, 0.3, 0.9}

// maxBodyRadiusInCells - наибольший полуразмер тела в ячейках
const maxBodyRadiusInCells = 4

var errBodyTooLarge = errors.New("api: body radius too large")

type cellQuery struct {
	X *int `form:"x" binding:"required"`
	Y *int `form:"y" binding:"required"`
	Z *int `form:"z" binding:"required"`
}

func (q cellQuery) cell() vec.Vec3 {
	return vec.Vec3{X: *q.X, Y: *q.Y, Z: *q.Z}
}

type objectView struct {
	Kind   string `json:"kind"`
	Facing string `json:"facing"`
	Open   bool   `json:"open,omitempty"`
}

type blockView struct {
	ID       grid.PositionID `json:"id"`
	Position [3]int          `json:"position"`
	Kind     string          `json:"kind"`
	Solid    bool            `json:"solid"`
	Object   *objectView     `json:"object,omitempty"`
}

// SetBlockRequest - запрос на установку блока и, опционально, объекта
type SetBlockRequest struct {
	Position [3]int      `json:"position"`
	Kind     string      `json:"kind" binding:"required"`
	Object   *objectView `json:"object,omitempty"`
}

// SpawnBodyRequest - запрос на создание тела
type SpawnBodyRequest struct {
	Type     string      `json:"type" binding:"required"`
	Position [3]float64  `json:"position"`
	Radius   *[3]float64 `json:"radius,omitempty"`
}

// ActionRequest - действие тела: move, jump, climb или mode
type ActionRequest struct {
	Kind     string     `json:"kind" binding:"required"`
	Velocity [3]float64 `json:"velocity"`
	Climb    float64    `json:"climb"`
	Mode     string     `json:"mode"`
}

type bodyView struct {
	ID       entity.ID  `json:"id"`
	Type     string     `json:"type"`
	Position [3]float64 `json:"position"`
	Radius   [3]float64 `json:"radius"`
	Velocity [3]float64 `json:"velocity"`
	Mode     string     `json:"mode"`
	Contacts string     `json:"contacts"`
}

func viewBody(b *entity.Body) bodyView {
	return bodyView{
		ID:       b.ID,
		Type:     b.Type.String(),
		Position: b.Position(),
		Radius:   b.Box.Radius(),
		Velocity: b.Velocity,
		Mode:     b.Mode.String(),
		Contacts: b.Contacts.String(),
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"run_id": s.sim.RunID(),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	stats := gin.H{
		"run_id":          s.sim.RunID(),
		"tick":            s.sim.Actions().Tick(),
		"pending_actions": s.sim.Actions().Pending(),
		"process":         collectProcessStats(s.started),
	}
	if s.store != nil {
		stats["meshes"] = s.store.Len()
	}
	_ = s.sim.Exec(func(f *world.Field, pop *entity.Population) error {
		stats["sectors"] = f.LoadedSectors()
		stats["dirty_sectors"] = f.DirtyCount()
		stats["bodies"] = pop.Len()
		return nil
	})
	ok(c, stats)
}

func (s *Server) handleGetBlock(c *gin.Context) {
	var q cellQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abort(c, http.StatusBadRequest, "Нужны параметры x, y, z")
		return
	}
	s.writeBlock(c, q.cell())
}

// handleGetBlockByID отдаёт блок по мировому индексу позиции
func (s *Server) handleGetBlockByID(c *gin.Context) {
	raw, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		abort(c, http.StatusBadRequest, "Неверный ID позиции")
		return
	}
	var pos vec.Vec3
	inWorld := false
	_ = s.sim.Exec(func(f *world.Field, _ *entity.Population) error {
		pos, inWorld = f.Grid().IDToGrid(grid.PositionID(raw))
		return nil
	})
	if !inWorld {
		abort(c, http.StatusNotFound, "Позиция вне мира")
		return
	}
	s.writeBlock(c, pos)
}

func (s *Server) writeBlock(c *gin.Context, pos vec.Vec3) {
	var view blockView
	err := s.sim.Exec(func(f *world.Field, _ *entity.Population) error {
		b, inWorld := f.BlockAt(pos)
		if !inWorld {
			return world.ErrOutOfBounds
		}
		id, _ := f.Grid().GridToID(pos)
		view = blockView{ID: id, Position: [3]int{pos.X, pos.Y, pos.Z}, Solid: b.Solid}
		if spec, known := f.Table().Spec(b.Kind); known {
			view.Kind = spec.Name
		}
		if obj, exists := f.ObjectAt(pos); exists {
			view.Object = &objectView{Kind: obj.Kind.String(), Facing: obj.Facing.String(), Open: obj.Open}
		}
		return nil
	})
	if err != nil {
		abort(c, http.StatusNotFound, "Позиция вне мира")
		return
	}
	ok(c, view)
}

func (s *Server) handleSetBlock(c *gin.Context) {
	var req SetBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}
	pos := vec.Vec3{X: req.Position[0], Y: req.Position[1], Z: req.Position[2]}

	var obj *block.Object
	if req.Object != nil {
		kind, known := block.ParseObjectKind(req.Object.Kind)
		facing, valid := grid.ParseDirection(req.Object.Facing)
		if !known || !valid {
			abort(c, http.StatusBadRequest, "Неизвестный объект или направление")
			return
		}
		obj = &block.Object{Kind: kind, Facing: facing, Open: req.Object.Open}
		if err := obj.Validate(); err != nil {
			abort(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	err := s.sim.Exec(func(f *world.Field, _ *entity.Population) error {
		kind, known := f.Table().KindByName(req.Kind)
		if !known {
			return world.ErrUnknownKind
		}
		if err := f.SetBlock(pos, kind); err != nil {
			return err
		}
		if obj != nil {
			return f.SetObject(pos, *obj)
		}
		return nil
	})
	if err != nil {
		s.editFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Блок установлен"})
}

func (s *Server) handleRemoveBlock(c *gin.Context) {
	var q cellQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abort(c, http.StatusBadRequest, "Нужны параметры x, y, z")
		return
	}
	err := s.sim.Exec(func(f *world.Field, _ *entity.Population) error {
		return f.RemoveBlock(q.cell())
	})
	if err != nil {
		s.editFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Блок удалён"})
}

func (s *Server) editFailed(c *gin.Context, err error) {
	switch {
	case errors.Is(err, world.ErrOutOfBounds):
		abort(c, http.StatusNotFound, "Позиция вне мира")
	case errors.Is(err, world.ErrUnknownKind), errors.Is(err, block.ErrInvalidFacing):
		abort(c, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("Ошибка изменения поля: %v", err)
		abort(c, http.StatusInternalServerError, "Внутренняя ошибка")
	}
}

func (s *Server) handleListBodies(c *gin.Context) {
	var bodies []bodyView
	_ = s.sim.Exec(func(_ *world.Field, pop *entity.Population) error {
		bodies = make([]bodyView, 0, pop.Len())
		pop.Each(func(b *entity.Body) bool {
			bodies = append(bodies, viewBody(b))
			return true
		})
		return nil
	})
	ok(c, bodies)
}

func (s *Server) handleGetBody(c *gin.Context) {
	id, valid := bodyID(c)
	if !valid {
		return
	}
	var view bodyView
	found := false
	_ = s.sim.Exec(func(_ *world.Field, pop *entity.Population) error {
		if b, exists := pop.Get(id); exists {
			view, found = viewBody(b), true
		}
		return nil
	})
	if !found {
		abort(c, http.StatusNotFound, "Тело не найдено")
		return
	}
	ok(c, view)
}

func (s *Server) handleSpawnBody(c *gin.Context) {
	var req SpawnBodyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}
	typ, known := entity.ParseEntityType(req.Type)
	if !known {
		abort(c, http.StatusBadRequest, "Неизвестный тип тела")
		return
	}
	radius := defaultBodyRadius
	if req.Radius != nil {
		radius = *req.Radius
	}
	for _, r := range radius {
		if math.IsNaN(r) || math.IsInf(r, 0) || r <= 0 {
			abort(c, http.StatusBadRequest, "Полуразмеры тела должны быть положительными")
			return
		}
	}

	var view bodyView
	err := s.sim.Exec(func(f *world.Field, pop *entity.Population) error {
		limit := maxBodyRadiusInCells * f.Grid().CellSize()
		for _, r := range radius {
			if r > limit {
				return errBodyTooLarge
			}
		}
		if _, inWorld := f.Grid().WorldToGrid(req.Position); !inWorld {
			return world.ErrOutOfBounds
		}
		view = viewBody(pop.Spawn(typ, req.Position, radius))
		return nil
	})
	switch {
	case errors.Is(err, errBodyTooLarge):
		abort(c, http.StatusBadRequest, "Тело больше допустимого размера")
		return
	case err != nil:
		abort(c, http.StatusBadRequest, "Позиция вне мира")
		return
	}
	c.JSON(http.StatusCreated, GenericResponse{Success: true, Data: view})
}

func (s *Server) handleDespawnBody(c *gin.Context) {
	id, valid := bodyID(c)
	if !valid {
		return
	}
	removed := false
	_ = s.sim.Exec(func(_ *world.Field, pop *entity.Population) error {
		removed = pop.Despawn(id)
		return nil
	})
	if !removed {
		abort(c, http.StatusNotFound, "Тело не найдено")
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Тело удалено"})
}

func (s *Server) handleBodyAction(c *gin.Context) {
	id, valid := bodyID(c)
	if !valid {
		return
	}
	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}

	var action physics.Action
	switch req.Kind {
	case "move":
		action = physics.Move(id, mgl64.Vec3(req.Velocity))
	case "jump":
		action = physics.Jump(id)
	case "climb":
		action = physics.Climb(id, req.Climb)
	case "mode":
		mode, known := entity.ParseMotionMode(req.Mode)
		if !known {
			abort(c, http.StatusBadRequest, "Неизвестный режим движения")
			return
		}
		action = physics.SetMode(id, mode)
	default:
		abort(c, http.StatusBadRequest, "Неизвестное действие")
		return
	}

	exists := false
	_ = s.sim.Exec(func(_ *world.Field, pop *entity.Population) error {
		_, exists = pop.Get(id)
		return nil
	})
	if !exists {
		abort(c, http.StatusNotFound, "Тело не найдено")
		return
	}

	s.sim.Actions().Enqueue(action)
	c.JSON(http.StatusAccepted, GenericResponse{
		Success: true,
		Data:    gin.H{"tick": s.sim.Actions().Tick() + 1},
	})
}

func (s *Server) handleSectorMesh(c *gin.Context) {
	raw, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		abort(c, http.StatusBadRequest, "Неверный идентификатор сектора")
		return
	}
	id := grid.SectorID(raw)
	if s.store == nil {
		abort(c, http.StatusNotFound, "Меши недоступны")
		return
	}
	m, found := s.store.Get(id)
	if !found {
		abort(c, http.StatusNotFound, "Меш сектора не построен")
		return
	}

	var epoch uint64
	_ = s.sim.Exec(func(f *world.Field, _ *entity.Population) error {
		epoch = f.Epoch(id)
		return nil
	})
	ok(c, gin.H{
		"sector_id": m.SectorID,
		"sector":    [3]int{m.Sector.X, m.Sector.Y, m.Sector.Z},
		"origin":    [3]float64(m.Origin),
		"version":   m.Version,
		"stale":     m.Version < epoch,
		"quads":     m.QuadCount(),
		"vertices":  len(m.Vertices),
		"indices":   len(m.Indices),
	})
}

func (s *Server) handleSave(c *gin.Context) {
	if err := s.sim.Save(); err != nil {
		s.logger.Error("Ошибка сохранения мира: %v", err)
		abort(c, http.StatusInternalServerError, "Не удалось сохранить мир")
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Мир сохранён"})
}

func bodyID(c *gin.Context) (entity.ID, bool) {
	raw, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		abort(c, http.StatusBadRequest, "Неверный идентификатор тела")
		return 0, false
	}
	return entity.ID(raw), true
}
