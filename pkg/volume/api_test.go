package volume

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/types"
)

// fakeLoopDevices hands out fake device names without touching the host
type fakeLoopDevices struct {
	mu       sync.Mutex
	devices  map[string]string
	attaches int
}

func newFakeLoopDevices() *fakeLoopDevices {
	return &fakeLoopDevices{devices: make(map[string]string)}
}

func (f *fakeLoopDevices) Find(ctx context.Context, backingFile string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devices[backingFile], nil
}

func (f *fakeLoopDevices) Attach(ctx context.Context, backingFile string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices[backingFile] = fmt.Sprintf("/dev/loop%d", f.attaches)
	f.attaches++
	return nil
}

// testBlockDeviceAPI runs the behaviour every BlockDeviceAPI must provide
func testBlockDeviceAPI(t *testing.T, factory func(t *testing.T) BlockDeviceAPI) {
	ctx := context.Background()

	t.Run("list empty", func(t *testing.T) {
		api := factory(t)
		volumes, err := api.ListVolumes(ctx)
		require.NoError(t, err)
		assert.Empty(t, volumes)
	})

	t.Run("created is listed", func(t *testing.T) {
		api := factory(t)
		vol, err := api.CreateVolume(ctx, 1000)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), vol.Size)
		assert.False(t, vol.Attached())

		volumes, err := api.ListVolumes(ctx)
		require.NoError(t, err)
		assert.Contains(t, volumes, vol)
	})

	t.Run("create rejects non-positive size", func(t *testing.T) {
		api := factory(t)
		for _, size := range []int64{0, -1} {
			_, err := api.CreateVolume(ctx, size)
			assert.ErrorIs(t, err, ErrInvalidSize)
		}
	})

	t.Run("attach unknown volume", func(t *testing.T) {
		api := factory(t)
		id := uuid.New().String()

		_, err := api.AttachVolume(ctx, id, "192.0.2.123")

		var unknown *UnknownVolumeError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, id, unknown.BlockDeviceID)
		assert.ErrorIs(t, err, ErrUnknownVolume)
	})

	t.Run("attach attached volume", func(t *testing.T) {
		api := factory(t)
		vol, err := api.CreateVolume(ctx, 1234)
		require.NoError(t, err)
		attached, err := api.AttachVolume(ctx, vol.BlockDeviceID, "192.0.2.123")
		require.NoError(t, err)

		_, err = api.AttachVolume(ctx, attached.BlockDeviceID, "192.0.2.123")

		var already *AlreadyAttachedVolumeError
		require.ErrorAs(t, err, &already)
		assert.Equal(t, vol.BlockDeviceID, already.BlockDeviceID)
	})

	t.Run("attach elsewhere attached volume", func(t *testing.T) {
		api := factory(t)
		vol, err := api.CreateVolume(ctx, 1234)
		require.NoError(t, err)
		_, err = api.AttachVolume(ctx, vol.BlockDeviceID, "192.0.2.123")
		require.NoError(t, err)

		_, err = api.AttachVolume(ctx, vol.BlockDeviceID, "192.0.2.124")
		assert.ErrorIs(t, err, ErrAlreadyAttached)

		// The owning host is unchanged
		volumes, err := api.ListVolumes(ctx)
		require.NoError(t, err)
		assert.Equal(t, []types.Volume{vol.WithHost("192.0.2.123")}, volumes)
	})

	t.Run("attach unattached volume", func(t *testing.T) {
		api := factory(t)
		vol, err := api.CreateVolume(ctx, 1000)
		require.NoError(t, err)

		attached, err := api.AttachVolume(ctx, vol.BlockDeviceID, "192.0.2.123")
		require.NoError(t, err)

		assert.Equal(t, types.Volume{
			BlockDeviceID: vol.BlockDeviceID,
			Size:          vol.Size,
			Host:          "192.0.2.123",
		}, attached)
	})

	t.Run("attached volume listed", func(t *testing.T) {
		api := factory(t)
		vol, err := api.CreateVolume(ctx, 1000)
		require.NoError(t, err)
		_, err = api.AttachVolume(ctx, vol.BlockDeviceID, "192.0.2.123")
		require.NoError(t, err)

		volumes, err := api.ListVolumes(ctx)
		require.NoError(t, err)
		assert.Equal(t, []types.Volume{vol.WithHost("192.0.2.123")}, volumes)
	})

	t.Run("device path unknown volume", func(t *testing.T) {
		api := factory(t)
		id := uuid.New().String()

		_, err := api.GetDevicePath(ctx, id)

		var unknown *UnknownVolumeError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, id, unknown.BlockDeviceID)
	})

	t.Run("device path unattached volume", func(t *testing.T) {
		api := factory(t)
		vol, err := api.CreateVolume(ctx, 1000)
		require.NoError(t, err)

		_, err = api.GetDevicePath(ctx, vol.BlockDeviceID)

		var unattached *UnattachedVolumeError
		require.ErrorAs(t, err, &unattached)
		assert.Equal(t, vol.BlockDeviceID, unattached.BlockDeviceID)
	})

	t.Run("device path is stable", func(t *testing.T) {
		api := factory(t)
		vol, err := api.CreateVolume(ctx, 1024*50)
		require.NoError(t, err)
		_, err = api.AttachVolume(ctx, vol.BlockDeviceID, "192.0.2.123")
		require.NoError(t, err)

		first, err := api.GetDevicePath(ctx, vol.BlockDeviceID)
		require.NoError(t, err)
		second, err := api.GetDevicePath(ctx, vol.BlockDeviceID)
		require.NoError(t, err)

		assert.NotEmpty(t, first)
		assert.Equal(t, first, second)
	})
}

func TestLoopbackAPIContract(t *testing.T) {
	testBlockDeviceAPI(t, func(t *testing.T) BlockDeviceAPI {
		api, err := NewLoopbackAPI(t.TempDir(), WithLoopDevices(newFakeLoopDevices()))
		require.NoError(t, err)
		return api
	})
}

func TestAllocationErrorUnwrap(t *testing.T) {
	cause := errors.New("no space left on device")
	err := fmt.Errorf("create: %w", &AllocationError{Size: 42, Err: cause})

	assert.ErrorIs(t, err, ErrAllocation)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "42 bytes")
}
