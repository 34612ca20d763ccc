package hostfs

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/moby/sys/mount"
	"github.com/moby/sys/mountinfo"
	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/log"
)

// DefaultFilesystemType is the filesystem written onto new datasets
const DefaultFilesystemType = "ext4"

// Filesystem formats and mounts block devices on the local host
type Filesystem interface {
	// MakeFilesystem writes a new empty filesystem of fstype onto device
	MakeFilesystem(ctx context.Context, device, fstype string) error

	// Mount mounts device at target
	Mount(ctx context.Context, device, target, fstype string) error
}

// MountEntry is one line of the host mount table
type MountEntry struct {
	Device     string `json:"device"`
	Mountpoint string `json:"mountpoint"`
	FSType     string `json:"fstype"`
}

// Host implements Filesystem against the real host
type Host struct {
	// MkfsPath is the mkfs binary, defaults to "mkfs" on $PATH
	MkfsPath string

	logger zerolog.Logger
}

// NewHost creates a Filesystem for the local host
func NewHost() *Host {
	return &Host{
		logger: log.WithComponent("hostfs"),
	}
}

// MakeFilesystem runs mkfs -t fstype device
func (h *Host) MakeFilesystem(ctx context.Context, device, fstype string) error {
	if fstype == "" {
		fstype = DefaultFilesystemType
	}

	mkfs := h.MkfsPath
	if mkfs == "" {
		mkfs = "mkfs"
	}

	cmd := exec.CommandContext(ctx, mkfs, "-t", fstype, device)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to create %s filesystem on %s: %w: %s", fstype, device, err, strings.TrimSpace(string(out)))
	}

	h.logger.Debug().
		Str("device", device).
		Str("fstype", fstype).
		Msg("Filesystem created")
	return nil
}

// Mount mounts device at target
func (h *Host) Mount(ctx context.Context, device, target, fstype string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if fstype == "" {
		fstype = DefaultFilesystemType
	}

	if err := mount.Mount(device, target, fstype, ""); err != nil {
		return fmt.Errorf("failed to mount %s at %s: %w", device, target, err)
	}

	h.logger.Debug().
		Str("device", device).
		Str("mountpoint", target).
		Msg("Filesystem mounted")
	return nil
}

// Unmount lazily detaches the filesystem at target
func (h *Host) Unmount(target string) error {
	if err := mount.Unmount(target); err != nil {
		return fmt.Errorf("failed to unmount %s: %w", target, err)
	}
	return nil
}

// Mounts returns the host mount table
func (h *Host) Mounts() ([]MountEntry, error) {
	infos, err := mountinfo.GetMounts(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read mount table: %w", err)
	}
	return toEntries(infos), nil
}

// FindMount returns the mount table entry for target
func (h *Host) FindMount(target string) (MountEntry, error) {
	infos, err := mountinfo.GetMounts(mountinfo.SingleEntryFilter(target))
	if err != nil {
		return MountEntry{}, fmt.Errorf("failed to read mount table: %w", err)
	}
	if len(infos) == 0 {
		return MountEntry{}, fmt.Errorf("%w: %s", ErrNotMounted, target)
	}
	return toEntries(infos)[0], nil
}

// IsMounted reports whether target is a mountpoint
func (h *Host) IsMounted(target string) (bool, error) {
	return mountinfo.Mounted(target)
}

// ErrNotMounted is returned by FindMount when nothing is mounted at the target
var ErrNotMounted = errors.New("not mounted")

func toEntries(infos []*mountinfo.Info) []MountEntry {
	entries := make([]MountEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, MountEntry{
			Device:     info.Source,
			Mountpoint: info.Mountpoint,
			FSType:     info.FSType,
		})
	}
	return entries
}
