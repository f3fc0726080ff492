package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxl-mqtt-bridge/config"
	"voxl-mqtt-bridge/internal/broker"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.FlushInterval = 1
	cfg.ReconnectDelay = 0
	cfg.PublishTopics = []config.TopicRoute{
		{Topic: "voxl/battery", PipeName: "battery"},
	}
	cfg.SubscribeTopics = []config.TopicRoute{
		{Topic: "voxl/offboard_cmd", PipeName: "offboard_mqtt_cmd"},
	}
	return cfg
}

func newTestBridge(t *testing.T, cfg *config.Config) (*Bridge, *fakeClient, *fakeTransport) {
	t.Helper()

	client := &fakeClient{}
	pipes := newFakeTransport()

	b, err := New(cfg, newTestLogger(t), nil, pipes, func(h broker.Handlers) (broker.Client, error) {
		client.handlers = h
		return client, nil
	})
	require.NoError(t, err)
	return b, client, pipes
}

func startBridge(t *testing.T, b *Bridge) {
	t.Helper()
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(b.Stop)
}

func TestBridgeConnectsAndSubscribes(t *testing.T) {
	b, client, _ := newTestBridge(t, testConfig())
	startBridge(t, b)

	require.Eventually(t, func() bool {
		return b.State() == StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		topics := client.subscribedTopics()
		return len(topics) == 1 && topics[0] == "voxl/offboard_cmd"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBridgeOpensConfiguredPipes(t *testing.T) {
	b, _, pipes := newTestBridge(t, testConfig())
	startBridge(t, b)

	pipes.mu.Lock()
	defer pipes.mu.Unlock()
	assert.Len(t, pipes.opened, 2)
}

func TestBridgePublishesCoalescedPipeData(t *testing.T) {
	b, client, _ := newTestBridge(t, testConfig())
	startBridge(t, b)

	require.Eventually(t, func() bool {
		return b.State() == StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	// three rapid updates must coalesce into one publish of the last value
	b.HandleChannelData(0, []byte("10%"))
	b.HandleChannelData(0, []byte("9%"))
	b.HandleChannelData(0, []byte("8%"))

	require.Eventually(t, func() bool {
		return len(client.publishedMsgs()) > 0
	}, 3*time.Second, 10*time.Millisecond)

	msgs := client.publishedMsgs()
	require.Len(t, msgs, 1)
	assert.Equal(t, "voxl/battery", msgs[0].topic)
	assert.Equal(t, []byte("8%"), msgs[0].payload)
}

func TestBridgeForwardsBrokerMessageToPipe(t *testing.T) {
	b, client, pipes := newTestBridge(t, testConfig())
	startBridge(t, b)

	require.Eventually(t, func() bool {
		return b.State() == StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	client.deliver("voxl/offboard_cmd", []byte("ARM"))

	// the subscribe route continues numbering after the publish routes
	require.Eventually(t, func() bool {
		return len(pipes.writesFor(1)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []byte("ARM"), pipes.writesFor(1)[0])
}

func TestBridgeDropsUnroutedMessage(t *testing.T) {
	b, client, pipes := newTestBridge(t, testConfig())
	startBridge(t, b)

	require.Eventually(t, func() bool {
		return b.State() == StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	client.deliver("voxl/unknown", []byte("x"))
	b.HandleChannelData(99, []byte("y"))

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, pipes.writesFor(1))
	assert.Empty(t, client.publishedMsgs())
}

func TestBridgeSupervisorWaitsReconnectDelay(t *testing.T) {
	cfg := testConfig()
	cfg.ReconnectDelay = 1
	b, client, _ := newTestBridge(t, cfg)
	startBridge(t, b)

	require.Eventually(t, func() bool {
		return b.State() == StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	client.loseConnection()

	// the supervisor must sit out the configured delay before redialing
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, 1, client.connectCount())

	require.Eventually(t, func() bool {
		return b.State() == StateConnected && client.connectCount() >= 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestBridgeSupervisorReconnects(t *testing.T) {
	b, client, _ := newTestBridge(t, testConfig())
	startBridge(t, b)

	require.Eventually(t, func() bool {
		return b.State() == StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	client.loseConnection()

	require.Eventually(t, func() bool {
		return b.State() == StateConnected && client.connectCount() >= 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestBridgeStopIsClean(t *testing.T) {
	b, client, pipes := newTestBridge(t, testConfig())
	require.NoError(t, b.Start(context.Background()))

	require.Eventually(t, func() bool {
		return b.State() == StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	b.Stop()

	assert.Equal(t, StateDisconnected, b.State())
	assert.Equal(t, 1, client.disconnects)
	pipes.mu.Lock()
	defer pipes.mu.Unlock()
	assert.True(t, pipes.closed)
}

func TestBridgeStartTwiceFails(t *testing.T) {
	b, _, _ := newTestBridge(t, testConfig())
	startBridge(t, b)
	assert.Error(t, b.Start(context.Background()))
}
