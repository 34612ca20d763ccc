package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	units "github.com/docker/go-units"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
)

// ChangeTypeCreateDataset identifies CreateBlockDeviceDataset in metrics and the journal
const ChangeTypeCreateDataset = "create_blockdevice_dataset"

// ErrMissingSize is returned when a dataset to be created has no maximum size
var ErrMissingSize = errors.New("dataset has no maximum size")

// CreateBlockDeviceDataset creates a volume for a dataset, attaches it to
// this node, formats it and mounts it at Mountpoint.
//
// Steps are not rolled back. A failure after the volume is attached leaves
// it attached to this node.
type CreateBlockDeviceDataset struct {
	Dataset    types.Dataset `json:"dataset"`
	Mountpoint string        `json:"mountpoint"`
}

func (c CreateBlockDeviceDataset) String() string {
	return fmt.Sprintf("create dataset %s (%s) at %s",
		c.Dataset.DatasetID, units.BytesSize(float64(c.Dataset.MaximumSize)), c.Mountpoint)
}

// Run performs the creation on behalf of d
func (c CreateBlockDeviceDataset) Run(ctx context.Context, d *Deployer) (err error) {
	logger := d.logger.With().
		Str("dataset_id", c.Dataset.DatasetID).
		Str("mountpoint", c.Mountpoint).
		Logger()

	rec := &types.ChangeRecord{
		Type:       ChangeTypeCreateDataset,
		Hostname:   d.hostname,
		DatasetID:  c.Dataset.DatasetID,
		Mountpoint: c.Mountpoint,
		StartedAt:  time.Now(),
	}

	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDurationVec(metrics.StateChangeDuration, ChangeTypeCreateDataset)
		metrics.StateChangesTotal.WithLabelValues(ChangeTypeCreateDataset, metrics.Status(err)).Inc()

		rec.FinishedAt = time.Now()
		meta := map[string]string{
			"dataset_id": c.Dataset.DatasetID,
			"mountpoint": c.Mountpoint,
			"hostname":   d.hostname,
		}
		if rec.BlockDeviceID != "" {
			meta["blockdevice_id"] = rec.BlockDeviceID
		}

		if err != nil {
			rec.Status = types.ChangeFailed
			rec.Error = err.Error()
			logger.Error().Err(err).Str("blockdevice_id", rec.BlockDeviceID).Msg("Failed to create dataset")
			d.publish(events.EventDatasetFailed, err.Error(), meta)
		} else {
			rec.Status = types.ChangeSucceeded
			logger.Info().Str("blockdevice_id", rec.BlockDeviceID).Str("device", rec.Device).Msg("Dataset created")
			d.publish(events.EventDatasetCreated, fmt.Sprintf("dataset %s mounted at %s", c.Dataset.DatasetID, c.Mountpoint), meta)
		}
		d.record(rec)
	}()

	if err := types.CheckDatasetID(c.Dataset.DatasetID); err != nil {
		return err
	}
	if c.Dataset.MaximumSize <= 0 {
		return fmt.Errorf("%w: %s", ErrMissingSize, c.Dataset.DatasetID)
	}

	vol, err := d.api.CreateVolume(ctx, c.Dataset.MaximumSize)
	if err != nil {
		return fmt.Errorf("failed to create volume: %w", err)
	}
	rec.BlockDeviceID = vol.BlockDeviceID
	logger.Debug().Str("blockdevice_id", vol.BlockDeviceID).Int64("size", vol.Size).Msg("Volume created")
	d.publish(events.EventVolumeCreated, "volume created", map[string]string{
		"dataset_id":     c.Dataset.DatasetID,
		"blockdevice_id": vol.BlockDeviceID,
	})

	vol, err = d.api.AttachVolume(ctx, vol.BlockDeviceID, d.hostname)
	if err != nil {
		return fmt.Errorf("failed to attach volume %s: %w", rec.BlockDeviceID, err)
	}
	logger.Debug().Str("blockdevice_id", vol.BlockDeviceID).Msg("Volume attached")
	d.publish(events.EventVolumeAttached, "volume attached", map[string]string{
		"dataset_id":     c.Dataset.DatasetID,
		"blockdevice_id": vol.BlockDeviceID,
		"hostname":       d.hostname,
	})

	device, err := d.api.GetDevicePath(ctx, vol.BlockDeviceID)
	if err != nil {
		return fmt.Errorf("failed to get device path for volume %s: %w", vol.BlockDeviceID, err)
	}
	rec.Device = device

	if err := os.MkdirAll(c.Mountpoint, 0755); err != nil {
		return fmt.Errorf("failed to create mountpoint: %w", err)
	}

	if err := d.fs.MakeFilesystem(ctx, device, d.fstype); err != nil {
		return err
	}

	if err := d.fs.Mount(ctx, device, c.Mountpoint, d.fstype); err != nil {
		return err
	}

	return nil
}
