package world

import (
	"fmt"
	"sort"
	"sync"

	"github.com/annel0/spawnkeeper/internal/vec"
)

// MemoryWorld in-memory реализация World.
type MemoryWorld struct {
	name  string
	mu    sync.RWMutex
	spawn vec.Vec3
}

// NewMemoryWorld создаёт мир с нативной точкой спавна spawn.
func NewMemoryWorld(name string, spawn vec.Vec3) *MemoryWorld {
	return &MemoryWorld{name: name, spawn: spawn}
}

func (w *MemoryWorld) Name() string {
	return w.name
}

// SpawnLocation возвращает угол блока спавна как Location с нулевой ориентацией.
func (w *MemoryWorld) SpawnLocation() Location {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p := w.spawn.ToFloat()
	return NewLocation(w, p.X, p.Y, p.Z)
}

// SetSpawnLocation обновляет нативную точку спавна.
func (w *MemoryWorld) SetSpawnLocation(x, y, z int) error {
	if y < 0 || y > MaxBuildHeight {
		return fmt.Errorf("%w: y=%d (должно быть 0-%d)", ErrOutOfBounds, y, MaxBuildHeight)
	}

	w.mu.Lock()
	w.spawn = vec.Vec3{X: x, Y: y, Z: z}
	w.mu.Unlock()
	return nil
}

// SpawnBlock возвращает координаты блока спавна.
func (w *MemoryWorld) SpawnBlock() vec.Vec3 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.spawn
}

// Manager хранит загруженные миры и реализует Server.
type Manager struct {
	mu     sync.RWMutex
	worlds map[string]*MemoryWorld
}

// NewManager создает пустой менеджер миров.
func NewManager() *Manager {
	return &Manager{
		worlds: make(map[string]*MemoryWorld),
	}
}

// Load добавляет мир (или возвращает уже загруженный с тем же именем).
func (m *Manager) Load(name string, spawn vec.Vec3) *MemoryWorld {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.worlds[name]; ok {
		return w
	}
	w := NewMemoryWorld(name, spawn)
	m.worlds[name] = w
	return w
}

// Unload выгружает мир. Возвращает false, если мир не был загружен.
func (m *Manager) Unload(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.worlds[name]; !ok {
		return false
	}
	delete(m.worlds, name)
	return true
}

// Worlds возвращает загруженные миры, отсортированные по имени.
func (m *Manager) Worlds() []World {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.worlds))
	for name := range m.worlds {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]World, 0, len(names))
	for _, name := range names {
		result = append(result, m.worlds[name])
	}
	return result
}

// World ищет загруженный мир по имени.
func (m *Manager) World(name string) (World, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.worlds[name]
	if !ok {
		return nil, false
	}
	return w, true
}
