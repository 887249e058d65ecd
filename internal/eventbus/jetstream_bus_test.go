package eventbus

import (
	"errors"
	"testing"

	nats "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "spawn.events.SpawnChanged", Subject(TypeSpawnChanged))
}

func TestStreamLookupError(t *testing.T) {
	err := streamLookupError("SPAWNS", nats.ErrStreamNotFound)
	assert.ErrorIs(t, err, ErrStreamNotFound)
	assert.Contains(t, err.Error(), "SPAWNS")

	other := errors.New("timeout")
	err = streamLookupError("SPAWNS", other)
	assert.ErrorIs(t, err, other)
	assert.NotErrorIs(t, err, ErrStreamNotFound)
}
