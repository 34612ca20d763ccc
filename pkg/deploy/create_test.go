package deploy

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/moby/sys/mountinfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/hostfs"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/cuemby/burrow/pkg/volume"
)

func TestCreateBlockDeviceDatasetRun(t *testing.T) {
	ctx := context.Background()
	api := newTestAPI(t)
	fs := &fakeFilesystem{}

	journal, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer journal.Close()

	broker := events.NewBroker()
	defer broker.Stop()
	sub := broker.Subscribe()

	d, err := NewDeployer(Config{
		Hostname:   testHost,
		API:        api,
		MountRoot:  t.TempDir(),
		Filesystem: fs,
		Events:     broker,
		Journal:    journal,
	})
	require.NoError(t, err)

	change := CreateBlockDeviceDataset{
		Dataset:    types.Dataset{DatasetID: "ds-1", MaximumSize: 10 * 1024 * 1024},
		Mountpoint: d.MountPath("ds-1"),
	}
	require.NoError(t, change.Run(ctx, d))

	// One volume of the dataset's size, attached here
	volumes, err := api.ListVolumes(ctx)
	require.NoError(t, err)
	require.Len(t, volumes, 1)
	assert.Equal(t, testHost, volumes[0].Host)
	assert.Equal(t, int64(10*1024*1024), volumes[0].Size)

	device, err := api.GetDevicePath(ctx, volumes[0].BlockDeviceID)
	require.NoError(t, err)

	info, err := os.Stat(change.Mountpoint)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	assert.Equal(t, []fsCall{
		{Op: "mkfs", Device: device, FSType: "ext4"},
		{Op: "mount", Device: device, Target: change.Mountpoint, FSType: "ext4"},
	}, fs.Calls())

	records, err := journal.ListChangesByDataset("ds-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, types.ChangeSucceeded, records[0].Status)
	assert.Equal(t, volumes[0].BlockDeviceID, records[0].BlockDeviceID)
	assert.Equal(t, device, records[0].Device)
	assert.Equal(t, ChangeTypeCreateDataset, records[0].Type)

	seen := map[events.EventType]bool{}
	timeout := time.After(time.Second)
	for !seen[events.EventDatasetCreated] {
		select {
		case ev := <-sub.Events:
			seen[ev.Type] = true
		case <-timeout:
			t.Fatalf("missing dataset.created event, saw %v", seen)
		}
	}
	assert.True(t, seen[events.EventVolumeCreated])
	assert.True(t, seen[events.EventVolumeAttached])
}

func TestCreateBlockDeviceDatasetMissingSize(t *testing.T) {
	ctx := context.Background()
	api := newTestAPI(t)
	fs := &fakeFilesystem{}
	d := newTestDeployer(t, api, fs)

	change := CreateBlockDeviceDataset{
		Dataset:    types.Dataset{DatasetID: "ds-1"},
		Mountpoint: d.MountPath("ds-1"),
	}
	err := change.Run(ctx, d)
	assert.ErrorIs(t, err, ErrMissingSize)

	volumes, err := api.ListVolumes(ctx)
	require.NoError(t, err)
	assert.Empty(t, volumes)
	assert.Empty(t, fs.Calls())
}

func TestCreateBlockDeviceDatasetInvalidID(t *testing.T) {
	ctx := context.Background()
	api := newTestAPI(t)
	fs := &fakeFilesystem{}
	d := newTestDeployer(t, api, fs)

	change := CreateBlockDeviceDataset{
		Dataset:    types.Dataset{DatasetID: "../etc", MaximumSize: 1024 * 1024},
		Mountpoint: "/etc",
	}
	err := change.Run(ctx, d)
	assert.ErrorIs(t, err, types.ErrInvalidDatasetID)

	volumes, err := api.ListVolumes(ctx)
	require.NoError(t, err)
	assert.Empty(t, volumes)
	assert.Empty(t, fs.Calls())
}

func TestCreateBlockDeviceDatasetNoRollback(t *testing.T) {
	ctx := context.Background()
	api := newTestAPI(t)
	mkfsErr := errors.New("mkfs exploded")
	fs := &fakeFilesystem{mkfsErr: mkfsErr}

	journal, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer journal.Close()

	d, err := NewDeployer(Config{
		Hostname:   testHost,
		API:        api,
		MountRoot:  t.TempDir(),
		Filesystem: fs,
		Journal:    journal,
	})
	require.NoError(t, err)

	change := CreateBlockDeviceDataset{
		Dataset:    types.Dataset{DatasetID: "ds-1", MaximumSize: 4096},
		Mountpoint: d.MountPath("ds-1"),
	}
	err = change.Run(ctx, d)
	assert.ErrorIs(t, err, mkfsErr)

	// The volume stays attached and nothing was mounted
	volumes, err := api.ListVolumes(ctx)
	require.NoError(t, err)
	require.Len(t, volumes, 1)
	assert.Equal(t, testHost, volumes[0].Host)
	assert.Len(t, fs.Calls(), 1)

	records, err := journal.ListChanges()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, types.ChangeFailed, records[0].Status)
	assert.Equal(t, volumes[0].BlockDeviceID, records[0].BlockDeviceID)
	assert.Contains(t, records[0].Error, "mkfs exploded")
}

func TestCreateBlockDeviceDatasetEquality(t *testing.T) {
	a := CreateBlockDeviceDataset{Dataset: types.Dataset{DatasetID: "x", MaximumSize: 1}, Mountpoint: "/flocker/x"}
	b := CreateBlockDeviceDataset{Dataset: types.Dataset{DatasetID: "x", MaximumSize: 1}, Mountpoint: "/flocker/x"}
	c := CreateBlockDeviceDataset{Dataset: types.Dataset{DatasetID: "x", MaximumSize: 1}, Mountpoint: "/elsewhere/x"}

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, "create dataset x (1B) at /flocker/x", a.String())
}

// TestCreateBlockDeviceDatasetMounts formats and mounts a real loop device
func TestCreateBlockDeviceDatasetMounts(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping mount test")
	}
	if os.Geteuid() != 0 {
		t.Skip("Mounting requires root")
	}
	for _, bin := range []string{"losetup", "mkfs.ext4"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not available: %v", bin, err)
		}
	}

	ctx := context.Background()
	api, err := volume.NewLoopbackAPI(t.TempDir())
	require.NoError(t, err)

	host := hostfs.NewHost()
	d, err := NewDeployer(Config{
		Hostname:   testHost,
		API:        api,
		MountRoot:  t.TempDir(),
		Filesystem: host,
	})
	require.NoError(t, err)

	mountpoint := d.MountPath("ds-e2e")
	change := CreateBlockDeviceDataset{
		Dataset:    types.Dataset{DatasetID: "ds-e2e", MaximumSize: 10 * 1024 * 1024},
		Mountpoint: mountpoint,
	}
	require.NoError(t, change.Run(ctx, d))

	volumes, err := api.ListVolumes(ctx)
	require.NoError(t, err)
	require.Len(t, volumes, 1)
	device, err := api.GetDevicePath(ctx, volumes[0].BlockDeviceID)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = host.Unmount(mountpoint)
		_ = exec.Command("losetup", "--detach", device).Run()
	})

	mounts, err := mountinfo.GetMounts(mountinfo.SingleEntryFilter(mountpoint))
	require.NoError(t, err)
	require.Len(t, mounts, 1)
	assert.Equal(t, device, mounts[0].Source)
	assert.Equal(t, "ext4", mounts[0].FSType)

	// The mounted filesystem is writable
	require.NoError(t, os.WriteFile(filepath.Join(mountpoint, "marker"), []byte("ok"), 0644))
}
