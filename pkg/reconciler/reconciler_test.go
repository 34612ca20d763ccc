package reconciler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/deploy"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/cuemby/burrow/pkg/volume"
)

const testHost = "192.0.2.1"

type fakeLoopDevices struct {
	mu      sync.Mutex
	devices map[string]string
}

func (f *fakeLoopDevices) Find(ctx context.Context, backingFile string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devices[backingFile], nil
}

func (f *fakeLoopDevices) Attach(ctx context.Context, backingFile string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices[backingFile] = fmt.Sprintf("/dev/loop%d", len(f.devices))
	return nil
}

type fakeFilesystem struct {
	mounts  int32
	mkfsErr error
}

func (f *fakeFilesystem) MakeFilesystem(ctx context.Context, device, fstype string) error {
	return f.mkfsErr
}

func (f *fakeFilesystem) Mount(ctx context.Context, device, target, fstype string) error {
	atomic.AddInt32(&f.mounts, 1)
	return nil
}

type failingSource struct{}

func (failingSource) Desired(ctx context.Context) (types.Deployment, error) {
	return types.Deployment{}, errors.New("control service unreachable")
}

type fixture struct {
	api      *volume.LoopbackAPI
	fs       *fakeFilesystem
	deployer *deploy.Deployer
	journal  *storage.BoltStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	api, err := volume.NewLoopbackAPI(t.TempDir(), volume.WithLoopDevices(&fakeLoopDevices{devices: map[string]string{}}))
	require.NoError(t, err)

	journal, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	fs := &fakeFilesystem{}
	d, err := deploy.NewDeployer(deploy.Config{
		Hostname:   testHost,
		API:        api,
		MountRoot:  t.TempDir(),
		Filesystem: fs,
		Journal:    journal,
	})
	require.NoError(t, err)

	return &fixture{api: api, fs: fs, deployer: d, journal: journal}
}

func desired(ids ...string) types.Deployment {
	node := types.Node{Hostname: testHost, Manifestations: map[string]types.Manifestation{}}
	for _, id := range ids {
		node.Manifestations[id] = types.Manifestation{
			Dataset: types.Dataset{DatasetID: id, MaximumSize: 1024 * 1024},
			Primary: true,
		}
	}
	return types.Deployment{Nodes: []types.Node{node}}
}

func TestNewReconciler(t *testing.T) {
	f := newFixture(t)

	_, err := NewReconciler(Config{Source: StaticSource{}})
	assert.Error(t, err)

	_, err = NewReconciler(Config{Deployer: f.deployer})
	assert.Error(t, err)

	r, err := NewReconciler(Config{Deployer: f.deployer, Source: StaticSource{}})
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, r.interval)
}

func TestReconcileCreatesDatasets(t *testing.T) {
	f := newFixture(t)
	r, err := NewReconciler(Config{
		Deployer: f.deployer,
		Source:   StaticSource{Deployment: desired("ds-1", "ds-2")},
		Journal:  f.journal,
	})
	require.NoError(t, err)

	result, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Planned)
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.fs.mounts))

	volumes, err := f.api.ListVolumes(context.Background())
	require.NoError(t, err)
	assert.Len(t, volumes, 2)

	last, ok := r.LastResult()
	require.True(t, ok)
	assert.False(t, last.Failed())
}

func TestReconcileDoesNotRecreate(t *testing.T) {
	f := newFixture(t)
	r, err := NewReconciler(Config{
		Deployer: f.deployer,
		Source:   StaticSource{Deployment: desired("ds-1")},
		Journal:  f.journal,
	})
	require.NoError(t, err)

	_, err = r.Reconcile(context.Background())
	require.NoError(t, err)

	result, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Planned)
	assert.Equal(t, 1, result.Skipped)

	volumes, err := f.api.ListVolumes(context.Background())
	require.NoError(t, err)
	assert.Len(t, volumes, 1)
}

func TestReconcileDoesNotRetryStuckVolume(t *testing.T) {
	f := newFixture(t)
	f.fs.mkfsErr = errors.New("mkfs failed")
	r, err := NewReconciler(Config{
		Deployer: f.deployer,
		Source:   StaticSource{Deployment: desired("ds-1")},
		Journal:  f.journal,
	})
	require.NoError(t, err)

	_, err = r.Reconcile(context.Background())
	require.Error(t, err)

	f.fs.mkfsErr = nil
	result, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Planned)

	records, err := f.journal.ListChangesByDataset("ds-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, types.ChangeFailed, records[0].Status)
	assert.NotEmpty(t, records[0].BlockDeviceID)
}

func TestReconcileSourceFailure(t *testing.T) {
	f := newFixture(t)

	var cycles []Result
	r, err := NewReconciler(Config{
		Deployer: f.deployer,
		Source:   failingSource{},
		OnCycle:  func(res Result) { cycles = append(cycles, res) },
	})
	require.NoError(t, err)

	_, err = r.Reconcile(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "control service unreachable")

	require.Len(t, cycles, 1)
	assert.True(t, cycles[0].Failed())
}

func TestReconcileSavesDesiredOnChange(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "desired.yaml")
	write := func(doc string) {
		require.NoError(t, os.WriteFile(path, []byte(doc), 0644))
	}

	r, err := NewReconciler(Config{
		Deployer: f.deployer,
		Source:   FileSource{Path: path},
		Journal:  f.journal,
	})
	require.NoError(t, err)

	write("nodes:\n  - hostname: 192.0.2.99\n")
	_, err = r.Reconcile(context.Background())
	require.NoError(t, err)
	_, err = r.Reconcile(context.Background())
	require.NoError(t, err)

	write("nodes:\n  - hostname: 192.0.2.98\n")
	_, err = r.Reconcile(context.Background())
	require.NoError(t, err)

	latest, err := f.journal.LatestDeployment()
	require.NoError(t, err)
	require.Len(t, latest.Nodes, 1)
	assert.Equal(t, "192.0.2.98", latest.Nodes[0].Hostname)
}

func TestReconcilerStartStop(t *testing.T) {
	f := newFixture(t)
	broker := events.NewBroker()
	defer broker.Stop()
	sub := broker.Subscribe()

	r, err := NewReconciler(Config{
		Deployer: f.deployer,
		Source:   StaticSource{Deployment: desired("ds-1")},
		Interval: 20 * time.Millisecond,
		Journal:  f.journal,
		Events:   broker,
	})
	require.NoError(t, err)

	r.Start()

	completed := 0
	timeout := time.After(2 * time.Second)
	for completed < 2 {
		select {
		case ev := <-sub.Events:
			if ev.Type == events.EventConvergenceCompleted {
				completed++
			}
		case <-timeout:
			t.Fatalf("only %d cycles completed", completed)
		}
	}

	r.Stop()
	r.Stop()

	volumes, err := f.api.ListVolumes(context.Background())
	require.NoError(t, err)
	assert.Len(t, volumes, 1)
}
