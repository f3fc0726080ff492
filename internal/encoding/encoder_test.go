package encoding

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxl-mqtt-bridge/internal/logger"
)

func newTestChain(t *testing.T) *Chain {
	t.Helper()
	log, err := logger.NewLogger(logger.Options{Level: "error"})
	require.NoError(t, err)
	return NewChain(log)
}

func TestTextEncoder(t *testing.T) {
	enc := NewTextEncoder()

	out, err := enc.Encode([]byte("8%"))
	require.NoError(t, err)
	assert.Equal(t, []byte("8%"), out)

	out, err = enc.Encode([]byte("hello world\n\x00\x00"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world\n"), out)

	_, err = enc.Encode([]byte{0xFF, 0xFE, 0x01})
	assert.Error(t, err)
}

func TestChainTextPassthrough(t *testing.T) {
	chain := newTestChain(t)
	out := chain.Encode("vvhub_aligned_vio", []byte("ARM"))
	assert.Equal(t, []byte("ARM"), out)
}

func TestChainMavlinkFirstForMatchingPipes(t *testing.T) {
	chain := newTestChain(t)
	data := buildV2Frame(0, 1, 1, 1, heartbeatPayload(9, 2, 0, 0, 0, 3))

	out := chain.Encode("mavlink_ap_heartbeat", data)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &got))
	assert.EqualValues(t, 9, got["custom_mode"])
}

func TestChainMavlinkFailureFallsBackToText(t *testing.T) {
	chain := newTestChain(t)
	out := chain.Encode("mavlink_ap_heartbeat", []byte("not a frame"))
	assert.Equal(t, []byte("not a frame"), out)
}

func TestChainRawFallbackForBinary(t *testing.T) {
	chain := newTestChain(t)
	binary := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	out := chain.Encode("imu", binary)
	assert.Equal(t, binary, out)
}
