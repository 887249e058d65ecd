package world

import (
	"errors"

	"github.com/annel0/spawnkeeper/internal/vec"
)

// MaxBuildHeight верхняя граница координаты Y блока (включительно).
const MaxBuildHeight = 255

// ErrOutOfBounds возвращается, когда точка спавна выходит за высоту мира.
var ErrOutOfBounds = errors.New("координата вне границ мира")

// World описывает мир хост-платформы в объёме, нужном хранилищу спавнов.
type World interface {
	// Name уникальное имя мира.
	Name() string
	// SpawnLocation возвращает нативную точку спавна (без ориентации).
	SpawnLocation() Location
	// SetSpawnLocation сохраняет нативную точку спавна в координатах блока.
	SetSpawnLocation(x, y, z int) error
}

// Server перечисляет загруженные миры.
type Server interface {
	Worlds() []World
	World(name string) (World, bool)
}

// Location точка в мире с направлением взгляда (в градусах).
type Location struct {
	World World
	X     float64
	Y     float64
	Z     float64
	Pitch float32
	Yaw   float32
}

// NewLocation создаёт Location без ориентации.
func NewLocation(w World, x, y, z float64) Location {
	return Location{World: w, X: x, Y: y, Z: z}
}

// WithOrientation возвращает копию с заданными pitch/yaw.
func (l Location) WithOrientation(pitch, yaw float32) Location {
	l.Pitch = pitch
	l.Yaw = yaw
	return l
}

// Position координаты точки без мира и ориентации.
func (l Location) Position() vec.Vec3Float {
	return vec.Vec3Float{X: l.X, Y: l.Y, Z: l.Z}
}

// Block возвращает координаты блока, в котором находится точка.
func (l Location) Block() vec.Vec3 {
	return l.Position().Block()
}

func (l Location) BlockX() int { return l.Block().X }
func (l Location) BlockY() int { return l.Block().Y }
func (l Location) BlockZ() int { return l.Block().Z }

// WorldName возвращает имя мира или пустую строку, если мир не задан.
func (l Location) WorldName() string {
	if l.World == nil {
		return ""
	}
	return l.World.Name()
}
