package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewBoltStoreCreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	store, err := NewBoltStore(dir)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, filepath.Join(dir, DatabaseFile), store.Path())
}

func TestRecordAndListChanges(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	records := []*types.ChangeRecord{
		{Type: "create_blockdevice_dataset", DatasetID: "b", Status: types.ChangeSucceeded, StartedAt: now},
		{Type: "create_blockdevice_dataset", DatasetID: "a", BlockDeviceID: "vol-1", Status: types.ChangeFailed, Error: "mkfs failed", StartedAt: now},
		{Type: "create_blockdevice_dataset", DatasetID: "b", Status: types.ChangeSucceeded, StartedAt: now},
	}
	for _, r := range records {
		require.NoError(t, store.RecordChange(r))
		assert.NotEmpty(t, r.ID)
	}

	got, err := store.ListChanges()
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range records {
		assert.Equal(t, records[i].ID, got[i].ID, "records out of order")
	}
	assert.Equal(t, "vol-1", got[1].BlockDeviceID)
	assert.Equal(t, "mkfs failed", got[1].Error)
	assert.True(t, now.Equal(got[1].StartedAt))
}

func TestListChangesByDataset(t *testing.T) {
	store := newTestStore(t)

	for _, id := range []string{"a", "b", "a", "c"} {
		require.NoError(t, store.RecordChange(&types.ChangeRecord{DatasetID: id, Status: types.ChangeSucceeded}))
	}

	tests := []struct {
		datasetID string
		want      int
	}{
		{"a", 2},
		{"b", 1},
		{"missing", 0},
	}

	for _, tt := range tests {
		t.Run(tt.datasetID, func(t *testing.T) {
			got, err := store.ListChangesByDataset(tt.datasetID)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
			for _, r := range got {
				assert.Equal(t, tt.datasetID, r.DatasetID)
			}
		})
	}
}

func TestRecordChangeKeepsID(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.RecordChange(&types.ChangeRecord{ID: "fixed", DatasetID: "a"}))

	got, err := store.ListChanges()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fixed", got[0].ID)
}

func TestLatestDeployment(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LatestDeployment()
	assert.ErrorIs(t, err, ErrNotFound)

	first := &types.Deployment{Nodes: []types.Node{{Hostname: "192.0.2.1"}}}
	second := &types.Deployment{Nodes: []types.Node{{
		Hostname: "192.0.2.2",
		Manifestations: map[string]types.Manifestation{
			"ds-1": {Dataset: types.Dataset{DatasetID: "ds-1", MaximumSize: 1024}, Primary: true},
		},
	}}}
	require.NoError(t, store.SaveDeployment(first))
	require.NoError(t, store.SaveDeployment(second))

	got, err := store.LatestDeployment()
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestJournalSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewBoltStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.RecordChange(&types.ChangeRecord{DatasetID: "a"}))
	require.NoError(t, store.Close())

	reopened, err := NewBoltStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.ListChanges()
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
