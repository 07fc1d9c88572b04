package server

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	env, err := decodeEnvelope([]byte(`{"event":"message","data":{"roomId":"r1",  "text":"hi"}}`))
	require.NoError(t, err)
	assert.Equal(t, "message", env.Event)
	assert.Equal(t, `{"roomId":"r1",  "text":"hi"}`, string(env.Data))

	env, err = decodeEnvelope([]byte(`{"event":"leave_room","data":"r1"}`))
	require.NoError(t, err)
	assert.Equal(t, `"r1"`, string(env.Data))
}

func TestDecodeEnvelopeErrors(t *testing.T) {
	_, err := decodeEnvelope([]byte(`not json`))
	assert.Error(t, err)

	_, err = decodeEnvelope([]byte(`{"data":{}}`))
	assert.True(t, errors.Is(err, errMissingEvent))
}

func TestEncodeEnvelopeKeepsPayloadBytes(t *testing.T) {
	frame, err := encodeEnvelope("message", json.RawMessage(`{"text": "안녕",  "roomId":"r1"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"event":"message","data":{"text": "안녕",  "roomId":"r1"}}`, string(frame))

	frame, err = encodeEnvelope("ping", nil)
	require.NoError(t, err)
	assert.Equal(t, `{"event":"ping"}`, string(frame))
}
