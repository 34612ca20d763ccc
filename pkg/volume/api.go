package volume

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/burrow/pkg/types"
)

// BlockDeviceAPI is the capability set every storage backend exposes
type BlockDeviceAPI interface {
	// CreateVolume allocates a new unattached volume of exactly size bytes
	CreateVolume(ctx context.Context, size int64) (types.Volume, error)

	// AttachVolume attaches an unattached volume to host
	AttachVolume(ctx context.Context, blockDeviceID, host string) (types.Volume, error)

	// ListVolumes returns every volume the backend knows about
	ListVolumes(ctx context.Context) ([]types.Volume, error)

	// GetDevicePath returns the host-visible block device of an attached volume.
	// Repeated calls for the same volume return the same path.
	GetDevicePath(ctx context.Context, blockDeviceID string) (string, error)
}

var (
	ErrUnknownVolume    = errors.New("unknown volume")
	ErrAlreadyAttached  = errors.New("volume already attached")
	ErrUnattachedVolume = errors.New("volume not attached")
	ErrAllocation       = errors.New("volume allocation failed")
	ErrInvalidSize      = errors.New("volume size must be positive")
	ErrInvalidHost      = errors.New("invalid host name")
)

// UnknownVolumeError is returned when a volume id has no backend record
type UnknownVolumeError struct {
	BlockDeviceID string
}

func (e *UnknownVolumeError) Error() string {
	return fmt.Sprintf("unknown volume: %s", e.BlockDeviceID)
}

func (e *UnknownVolumeError) Is(target error) bool {
	return target == ErrUnknownVolume
}

// AlreadyAttachedVolumeError is returned when attaching a volume that
// already has an owning host, whichever host that is
type AlreadyAttachedVolumeError struct {
	BlockDeviceID string
}

func (e *AlreadyAttachedVolumeError) Error() string {
	return fmt.Sprintf("volume already attached: %s", e.BlockDeviceID)
}

func (e *AlreadyAttachedVolumeError) Is(target error) bool {
	return target == ErrAlreadyAttached
}

// UnattachedVolumeError is returned when resolving the device of a volume
// with no owning host
type UnattachedVolumeError struct {
	BlockDeviceID string
}

func (e *UnattachedVolumeError) Error() string {
	return fmt.Sprintf("volume not attached: %s", e.BlockDeviceID)
}

func (e *UnattachedVolumeError) Is(target error) bool {
	return target == ErrUnattachedVolume
}

// AllocationError is returned when a backend cannot provide the requested storage
type AllocationError struct {
	Size int64
	Err  error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("failed to allocate volume of %d bytes: %v", e.Size, e.Err)
}

func (e *AllocationError) Is(target error) bool {
	return target == ErrAllocation
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}
