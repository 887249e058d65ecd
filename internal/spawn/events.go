package spawn

import (
	"context"
	"encoding/json"

	"github.com/annel0/spawnkeeper/internal/eventbus"
)

// EventSource имя источника в конвертах событий хранилища.
const EventSource = "spawn"

// SpawnChangedEvent полезная нагрузка события SpawnChanged.
type SpawnChangedEvent struct {
	World string  `json:"world"`
	X     int     `json:"x"`
	Y     int     `json:"y"`
	Z     int     `json:"z"`
	Pitch float32 `json:"pitch"`
	Yaw   float32 `json:"yaw"`
}

// SpawnReloadedEvent полезная нагрузка события SpawnReloaded.
type SpawnReloadedEvent struct {
	Status string `json:"status"`
	Worlds int    `json:"worlds"`
	Reason string `json:"reason,omitempty"`
}

// publish отправляет событие в шину. Ошибки только логируются: событие
// вторично по отношению к уже сохранённому документу.
func (s *Store) publish(ctx context.Context, eventType string, payload interface{}) {
	if s.bus == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("Не удалось сериализовать событие %s: %v", eventType, err)
		return
	}

	if err := s.bus.Publish(ctx, eventbus.NewEnvelope(EventSource, eventType, data)); err != nil {
		s.logger.Warn("Не удалось опубликовать событие %s: %v", eventType, err)
	}
}
