package testutils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cirius1792/split-keeb-battery/internal/device"
)

func buildSplitKeyboard(t *testing.T) *FakePeripheral {
	t.Helper()
	return NewPeripheralBuilder().FromJSON(`{
		"name": "Corne",
		"address": "AA:BB:CC:DD:EE:FF",
		"services": [
			{
				"uuid": "180F",
				"characteristics": [
					{ "uuid": "2A19", "properties": "read,notify", "value": [81], "description": "LEFT" },
					{ "uuid": "2A19", "properties": "read,notify", "value": [74], "description": "RIGHT" }
				]
			}
		]
	}`).Build()
}

func TestPeripheralBuilder_ProfileFromJSON(t *testing.T) {
	p := buildSplitKeyboard(t)

	assert.Equal(t, "Corne", p.Name())
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", p.Address())
	assert.Equal(t, []string{"180f"}, p.AdvertisedServices())

	require.NoError(t, p.Connect(context.Background(), nil))
	conn := p.GetConnection()
	require.NotNil(t, conn)

	chars := conn.FindCharacteristics("180F", "2A19")
	require.Len(t, chars, 2, "both battery instances must be discoverable")
	assert.NotEqual(t, chars[0].Handle(), chars[1].Handle(), "instances need distinct handles")

	descs := chars[0].GetDescriptors()
	require.Len(t, descs, 1)
	assert.Equal(t, "2901", descs[0].UUID())
	assert.Equal(t, []byte("LEFT"), descs[0].Value())
}

func TestFakePeripheral_ReadAndPush(t *testing.T) {
	p := buildSplitKeyboard(t)
	require.NoError(t, p.Connect(context.Background(), nil))

	char := p.CharacteristicAt("180F", "2A19", 0)
	require.NotNil(t, char)

	data, err := char.Read(0)
	require.NoError(t, err)
	assert.Equal(t, []byte{81}, data)

	sub, err := char.Subscribe()
	require.NoError(t, err)
	defer sub.Cancel()

	assert.True(t, char.Push([]byte{79}))
	select {
	case v := <-sub.C():
		assert.Equal(t, []byte{79}, v.Data)
	case <-time.After(time.Second):
		t.Fatal("pushed value never arrived")
	}

	data, err = char.Read(0)
	require.NoError(t, err)
	assert.Equal(t, []byte{79}, data, "push must update the readable value too")
}

func TestFakePeripheral_DropLink(t *testing.T) {
	p := buildSplitKeyboard(t)
	require.NoError(t, p.Connect(context.Background(), nil))
	conn := p.GetConnection()

	char := p.CharacteristicAt("180F", "2A19", 1)
	sub, err := char.Subscribe()
	require.NoError(t, err)

	p.DropLink()

	select {
	case <-conn.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("connection context must end on link loss")
	}
	select {
	case _, ok := <-sub.C():
		assert.False(t, ok, "subscription stream must close on link loss")
	case <-time.After(time.Second):
		t.Fatal("subscription stream never closed")
	}

	assert.False(t, char.Push([]byte{10}), "push after link loss reaches nobody")
	assert.False(t, p.IsConnected())

	// A fresh connect works and keeps the characteristic state
	require.NoError(t, p.Connect(context.Background(), nil))
	data, err := p.CharacteristicAt("180F", "2A19", 1).Read(0)
	require.NoError(t, err)
	assert.Equal(t, []byte{74}, data)
}

func TestFakePeripheral_ScriptedConnectFailures(t *testing.T) {
	p := buildSplitKeyboard(t)
	p.FailNextConnect(device.ErrTimeout)

	err := p.Connect(context.Background(), nil)
	require.ErrorIs(t, err, device.ErrTimeout)

	require.NoError(t, p.Connect(context.Background(), nil))
	assert.Equal(t, 2, p.ConnectCount())
}

func TestFakeCharacteristic_SubscribeRequiresNotifySupport(t *testing.T) {
	p := NewPeripheralBuilder().
		WithService("180F").
		WithCharacteristic("2A19", "read", []byte{50}).
		Build()
	require.NoError(t, p.Connect(context.Background(), nil))

	char := p.CharacteristicAt("180F", "2A19", 0)
	require.NotNil(t, char)
	assert.False(t, device.SupportsNotifications(char))

	_, err := char.Subscribe()
	require.ErrorIs(t, err, device.ErrUnsupported)
}
