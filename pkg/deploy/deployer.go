package deploy

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/hostfs"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/cuemby/burrow/pkg/volume"
)

// DefaultMountRoot is the directory under which datasets are mounted
const DefaultMountRoot = "/flocker"

// StateChange is one action that moves the node towards its desired state
type StateChange interface {
	Run(ctx context.Context, d *Deployer) error
}

// Config configures a Deployer
type Config struct {
	// Hostname identifies this node in the backend and desired configuration
	Hostname string

	// API is the block device backend
	API volume.BlockDeviceAPI

	// MountRoot defaults to DefaultMountRoot
	MountRoot string

	// Filesystem defaults to the real host
	Filesystem hostfs.Filesystem

	// FilesystemType defaults to ext4
	FilesystemType string

	// Events and Journal are optional
	Events  *events.Broker
	Journal storage.Journal
}

// Deployer converges one node's datasets onto block devices
type Deployer struct {
	hostname  string
	api       volume.BlockDeviceAPI
	mountRoot string
	fs        hostfs.Filesystem
	fstype    string
	events    *events.Broker
	journal   storage.Journal
	logger    zerolog.Logger
}

// NewDeployer creates a deployer for cfg.Hostname
func NewDeployer(cfg Config) (*Deployer, error) {
	if cfg.Hostname == "" {
		return nil, errors.New("deployer requires a hostname")
	}
	if cfg.API == nil {
		return nil, errors.New("deployer requires a block device API")
	}

	d := &Deployer{
		hostname:  cfg.Hostname,
		api:       cfg.API,
		mountRoot: cfg.MountRoot,
		fs:        cfg.Filesystem,
		fstype:    cfg.FilesystemType,
		events:    cfg.Events,
		journal:   cfg.Journal,
		logger:    log.WithHostname(cfg.Hostname).With().Str("component", "deployer").Logger(),
	}
	if d.mountRoot == "" {
		d.mountRoot = DefaultMountRoot
	}
	if d.fs == nil {
		d.fs = hostfs.NewHost()
	}
	if d.fstype == "" {
		d.fstype = hostfs.DefaultFilesystemType
	}

	return d, nil
}

// Hostname returns the node this deployer manages
func (d *Deployer) Hostname() string {
	return d.hostname
}

// API returns the block device backend
func (d *Deployer) API() volume.BlockDeviceAPI {
	return d.api
}

// MountRoot returns the directory datasets are mounted under
func (d *Deployer) MountRoot() string {
	return d.mountRoot
}

// MountPath returns the mountpoint for a dataset
func (d *Deployer) MountPath(datasetID string) string {
	return filepath.Join(d.mountRoot, datasetID)
}

// DiscoverLocalState reports the datasets whose volumes are attached to this node.
// A volume attached here is reported as a primary manifestation of the dataset
// with the volume's id, whether or not it has been formatted or mounted.
func (d *Deployer) DiscoverLocalState(ctx context.Context) (types.NodeState, error) {
	volumes, err := d.api.ListVolumes(ctx)
	if err != nil {
		return types.NodeState{}, fmt.Errorf("failed to list volumes: %w", err)
	}

	state := types.NodeState{
		Hostname:       d.hostname,
		Manifestations: []types.Manifestation{},
		Paths:          map[string]string{},
	}

	for _, vol := range volumes {
		if vol.Host != d.hostname {
			continue
		}
		state.Manifestations = append(state.Manifestations, types.Manifestation{
			Dataset: types.Dataset{DatasetID: vol.BlockDeviceID},
			Primary: true,
		})
		state.Paths[vol.BlockDeviceID] = d.MountPath(vol.BlockDeviceID)
	}
	types.SortManifestations(state.Manifestations)

	metrics.ManifestationsDiscovered.Set(float64(len(state.Manifestations)))

	d.logger.Debug().
		Int("volumes", len(volumes)).
		Int("manifestations", len(state.Manifestations)).
		Msg("Discovered local state")

	return state, nil
}

// CalculateNecessaryStateChanges returns the changes that create every
// manifestation desired for this node but missing from local. The cluster
// state is accepted for interface compatibility and not consulted.
func (d *Deployer) CalculateNecessaryStateChanges(local types.NodeState, desired, cluster types.Deployment) *InParallel {
	node, _ := desired.NodeByHostname(d.hostname)
	metrics.ManifestationsDesired.Set(float64(len(node.Manifestations)))

	existing := make(map[types.ManifestationKey]bool, len(local.Manifestations))
	for _, m := range local.Manifestations {
		existing[m.Key()] = true
	}

	changes := []StateChange{}
	for _, m := range node.Manifestations {
		if existing[m.Key()] {
			continue
		}
		if err := types.CheckDatasetID(m.Dataset.DatasetID); err != nil {
			d.logger.Warn().Err(err).Msg("Skipping manifestation")
			continue
		}
		changes = append(changes, CreateBlockDeviceDataset{
			Dataset:    m.Dataset,
			Mountpoint: d.MountPath(m.Dataset.DatasetID),
		})
	}

	sort.Slice(changes, func(i, j int) bool {
		return changeKey(changes[i]) < changeKey(changes[j])
	})

	return &InParallel{Changes: changes}
}

func changeKey(change StateChange) string {
	if c, ok := change.(CreateBlockDeviceDataset); ok {
		return c.Dataset.DatasetID
	}
	return ""
}

func (d *Deployer) publish(eventType events.EventType, message string, metadata map[string]string) {
	if d.events == nil {
		return
	}
	d.events.Publish(events.NewEvent(eventType, message, metadata))
}

func (d *Deployer) record(rec *types.ChangeRecord) {
	if d.journal == nil {
		return
	}
	if err := d.journal.RecordChange(rec); err != nil {
		d.logger.Warn().Err(err).Str("dataset_id", rec.DatasetID).Msg("Failed to journal state change")
	}
}
