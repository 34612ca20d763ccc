package volume

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/moby/locker"
	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
)

const (
	// DefaultLoopbackRoot is the base directory for loopback volumes
	DefaultLoopbackRoot = "/var/lib/burrow/loopback"

	attachedDirName   = "attached"
	unattachedDirName = "unattached"
)

// LoopbackAPI implements BlockDeviceAPI with sparse files under a directory tree:
//
//	<root>/unattached/<id>
//	<root>/attached/<host>/<id>
//
// The tree is the only record of volume state.
type LoopbackAPI struct {
	rootPath      string
	attachedDir   string
	unattachedDir string

	loops  LoopDevices
	locker *locker.Locker
	logger zerolog.Logger
}

// LoopbackOption configures a LoopbackAPI
type LoopbackOption func(*LoopbackAPI)

// WithLoopDevices replaces the losetup-based loop device manager
func WithLoopDevices(loops LoopDevices) LoopbackOption {
	return func(l *LoopbackAPI) {
		l.loops = loops
	}
}

// NewLoopbackAPI opens the loopback backend rooted at rootPath, creating the
// attached and unattached directories if they are missing
func NewLoopbackAPI(rootPath string, opts ...LoopbackOption) (*LoopbackAPI, error) {
	if rootPath == "" {
		rootPath = DefaultLoopbackRoot
	}

	l := &LoopbackAPI{
		rootPath:      rootPath,
		attachedDir:   filepath.Join(rootPath, attachedDirName),
		unattachedDir: filepath.Join(rootPath, unattachedDirName),
		loops:         &Losetup{},
		locker:        locker.New(),
		logger:        log.WithComponent("loopback"),
	}
	for _, opt := range opts {
		opt(l)
	}

	for _, dir := range []string{l.unattachedDir, l.attachedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create loopback directory: %w", err)
		}
	}

	return l, nil
}

// RootPath returns the backend's root directory
func (l *LoopbackAPI) RootPath() string {
	return l.rootPath
}

// CreateVolume writes a zero-filled sparse file of size bytes into the
// unattached directory
func (l *LoopbackAPI) CreateVolume(ctx context.Context, size int64) (vol types.Volume, err error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDurationVec(metrics.VolumeOperationDuration, "create")
		metrics.VolumeOperationsTotal.WithLabelValues("create", metrics.Status(err)).Inc()
	}()

	if size <= 0 {
		return types.Volume{}, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	if err := ctx.Err(); err != nil {
		return types.Volume{}, err
	}

	vol = types.Volume{
		BlockDeviceID: uuid.New().String(),
		Size:          size,
	}

	path := filepath.Join(l.unattachedDir, vol.BlockDeviceID)
	if err := writeSparseFile(path, size); err != nil {
		return types.Volume{}, &AllocationError{Size: size, Err: err}
	}

	l.logger.Debug().
		Str("blockdevice_id", vol.BlockDeviceID).
		Int64("size", size).
		Msg("Volume created")

	return vol, nil
}

func writeSparseFile(path string, size int64) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}

	if err := f.Truncate(size); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

// AttachVolume moves the volume file into the per-host attached directory
func (l *LoopbackAPI) AttachVolume(ctx context.Context, blockDeviceID, host string) (vol types.Volume, err error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDurationVec(metrics.VolumeOperationDuration, "attach")
		metrics.VolumeOperationsTotal.WithLabelValues("attach", metrics.Status(err)).Inc()
	}()

	l.locker.Lock(blockDeviceID)
	defer l.locker.Unlock(blockDeviceID)

	vol, err = l.get(ctx, blockDeviceID)
	if err != nil {
		return types.Volume{}, err
	}
	if vol.Attached() {
		return types.Volume{}, &AlreadyAttachedVolumeError{BlockDeviceID: blockDeviceID}
	}
	if err := validateHost(host); err != nil {
		return types.Volume{}, err
	}

	hostDir := filepath.Join(l.attachedDir, host)
	if err := os.MkdirAll(hostDir, 0755); err != nil {
		return types.Volume{}, fmt.Errorf("failed to create host directory: %w", err)
	}

	oldPath := filepath.Join(l.unattachedDir, blockDeviceID)
	newPath := filepath.Join(hostDir, blockDeviceID)
	if err := moveNoReplace(oldPath, newPath); err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// Another mover got there first
			current, getErr := l.get(ctx, blockDeviceID)
			if getErr != nil {
				return types.Volume{}, getErr
			}
			if current.Attached() {
				return types.Volume{}, &AlreadyAttachedVolumeError{BlockDeviceID: blockDeviceID}
			}
			return types.Volume{}, fmt.Errorf("failed to attach volume %s: %w", blockDeviceID, err)
		case errors.Is(err, fs.ErrExist):
			return types.Volume{}, &AlreadyAttachedVolumeError{BlockDeviceID: blockDeviceID}
		default:
			return types.Volume{}, fmt.Errorf("failed to attach volume %s: %w", blockDeviceID, err)
		}
	}

	attached := vol.WithHost(host)
	l.logger.Debug().
		Str("blockdevice_id", blockDeviceID).
		Str("host", host).
		Msg("Volume attached")

	return attached, nil
}

// ListVolumes reconstructs every volume by scanning the directory tree
func (l *LoopbackAPI) ListVolumes(ctx context.Context) ([]types.Volume, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	unattached, err := l.scanDir(l.unattachedDir, "")
	if err != nil {
		return nil, err
	}
	volumes := unattached

	hostDirs, err := os.ReadDir(l.attachedDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read attached directory: %w", err)
	}
	for _, entry := range hostDirs {
		if !entry.IsDir() {
			l.logger.Warn().Str("path", filepath.Join(l.attachedDir, entry.Name())).Msg("Ignoring non-directory in attached directory")
			continue
		}
		attached, err := l.scanDir(filepath.Join(l.attachedDir, entry.Name()), entry.Name())
		if err != nil {
			return nil, err
		}
		volumes = append(volumes, attached...)
	}

	return volumes, nil
}

func (l *LoopbackAPI) scanDir(dir, host string) ([]types.Volume, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read volume directory: %w", err)
	}

	volumes := make([]types.Volume, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// Moved by a concurrent attach
				continue
			}
			return nil, fmt.Errorf("failed to stat volume %s: %w", entry.Name(), err)
		}
		volumes = append(volumes, types.Volume{
			BlockDeviceID: entry.Name(),
			Size:          info.Size(),
			Host:          host,
		})
	}
	return volumes, nil
}

// GetDevicePath returns the loop device backing an attached volume,
// associating one on first use
func (l *LoopbackAPI) GetDevicePath(ctx context.Context, blockDeviceID string) (device string, err error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDurationVec(metrics.VolumeOperationDuration, "device_path")
		metrics.VolumeOperationsTotal.WithLabelValues("device_path", metrics.Status(err)).Inc()
	}()

	vol, err := l.get(ctx, blockDeviceID)
	if err != nil {
		return "", err
	}
	if !vol.Attached() {
		return "", &UnattachedVolumeError{BlockDeviceID: blockDeviceID}
	}

	// Serialize association so concurrent callers do not claim two devices
	lockKey := "device:" + blockDeviceID
	l.locker.Lock(lockKey)
	defer l.locker.Unlock(lockKey)

	backingFile := filepath.Join(l.attachedDir, vol.Host, blockDeviceID)

	device, err = l.loops.Find(ctx, backingFile)
	if err != nil {
		return "", fmt.Errorf("failed to look up loop device for %s: %w", blockDeviceID, err)
	}
	if device != "" {
		return device, nil
	}

	if err := l.loops.Attach(ctx, backingFile); err != nil {
		return "", fmt.Errorf("failed to associate loop device for %s: %w", blockDeviceID, err)
	}

	device, err = l.loops.Find(ctx, backingFile)
	if err != nil {
		return "", fmt.Errorf("failed to look up loop device for %s: %w", blockDeviceID, err)
	}
	if device == "" {
		return "", fmt.Errorf("no loop device associated with %s after attach", backingFile)
	}

	l.logger.Info().
		Str("blockdevice_id", blockDeviceID).
		Str("device", device).
		Msg("Loop device associated")

	return device, nil
}

func (l *LoopbackAPI) get(ctx context.Context, blockDeviceID string) (types.Volume, error) {
	volumes, err := l.ListVolumes(ctx)
	if err != nil {
		return types.Volume{}, err
	}
	for _, vol := range volumes {
		if vol.BlockDeviceID == blockDeviceID {
			return vol, nil
		}
	}
	return types.Volume{}, &UnknownVolumeError{BlockDeviceID: blockDeviceID}
}

// validateHost rejects host names that are not a single path component
func validateHost(host string) error {
	if host == "" || host == "." || host == ".." || strings.ContainsAny(host, `/\`) || strings.ContainsRune(host, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}
	return nil
}
