package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxl-mqtt-bridge/config"
)

func TestTableChannelNumbering(t *testing.T) {
	pub := []config.TopicRoute{
		{Topic: "voxl/vio", PipeName: "vvhub_aligned_vio"},
		{Topic: "voxl/battery", PipeName: "/run/mpa/mavlink_sys_status/", QoS: 1},
	}
	sub := []config.TopicRoute{
		{Topic: "voxl/offboard_cmd", PipeName: "offboard_mqtt_cmd"},
	}

	tbl := NewTable(pub, sub, newTestLogger(t))

	r0, ok := tbl.PublishRoute(0)
	require.True(t, ok)
	assert.Equal(t, "voxl/vio", r0.Topic)

	r1, ok := tbl.PublishRoute(1)
	require.True(t, ok)
	assert.Equal(t, byte(1), r1.QoS)

	// subscribe channels continue after the publish channels
	rs, ok := tbl.SubscribeRoute("voxl/offboard_cmd")
	require.True(t, ok)
	assert.Equal(t, 2, rs.Channel)
	assert.Equal(t, "offboard_mqtt_cmd", rs.PipeName)
}

func TestTableSkipsMalformedEntries(t *testing.T) {
	pub := []config.TopicRoute{
		{Topic: "", PipeName: "imu"},
		{Topic: "voxl/imu", PipeName: ""},
		{Topic: "voxl/battery", PipeName: "battery"},
	}

	tbl := NewTable(pub, nil, newTestLogger(t))

	require.Len(t, tbl.PublishRoutes(), 1)
	r, ok := tbl.PublishRoute(0)
	require.True(t, ok)
	assert.Equal(t, "voxl/battery", r.Topic)
}

func TestTableSkipsDuplicateSubscribeTopic(t *testing.T) {
	sub := []config.TopicRoute{
		{Topic: "voxl/cmd", PipeName: "cmd_a"},
		{Topic: "voxl/cmd", PipeName: "cmd_b"},
	}

	tbl := NewTable(nil, sub, newTestLogger(t))

	require.Len(t, tbl.SubscribeRoutes(), 1)
	r, ok := tbl.SubscribeRoute("voxl/cmd")
	require.True(t, ok)
	assert.Equal(t, "cmd_a", r.PipeName)
}

func TestTableUnknownLookups(t *testing.T) {
	tbl := NewTable(nil, nil, newTestLogger(t))

	_, ok := tbl.PublishRoute(0)
	assert.False(t, ok)
	_, ok = tbl.SubscribeRoute("voxl/nothing")
	assert.False(t, ok)
}
