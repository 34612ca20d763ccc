/*
Package volume provides the block device backends used by the burrow agent.

Every backend implements BlockDeviceAPI, a small capability set that the
deployer drives to turn desired datasets into mounted filesystems:

	┌──────────────────────────────────────────────┐
	│               BlockDeviceAPI                 │
	│  • CreateVolume(size)        → Volume        │
	│  • AttachVolume(id, host)    → Volume        │
	│  • ListVolumes()             → []Volume      │
	│  • GetDevicePath(id)         → /dev/...      │
	└────────┬─────────────────────────────────────┘
	         │
	    ┌────┴─────┐
	    ▼          ▼
	┌────────┐  ┌────────┐
	│Loopback│  │ Cloud  │  (Future backends)
	│Backend │  │Backend │
	└────────┘  └────────┘

Backends are selected by name through a Manager:

	mgr := volume.NewManager()
	api, err := mgr.Open(volume.BackendConfig{
		Name: volume.BackendLoopback,
		Root: "/var/lib/burrow/loopback",
	})

# Volume Lifecycle

A volume is created unattached, then attached to exactly one host. Attachment
is one-way: there is no detach or destroy operation, and a volume attached to
one host can never be attached to another.

	CreateVolume ──► unattached ──AttachVolume──► attached to host
	                                                  │
	                                          GetDevicePath
	                                                  ▼
	                                            /dev/loopN

# Errors

Operations fail with typed errors that carry the offending volume id:

  - UnknownVolumeError: no volume with that id exists
  - AlreadyAttachedVolumeError: the volume already has an owning host
  - UnattachedVolumeError: a device path was requested for an unattached volume
  - AllocationError: the backend could not provide the storage

Each matches a sentinel with errors.Is (ErrUnknownVolume, ErrAlreadyAttached,
ErrUnattachedVolume, ErrAllocation). The first three carry the offending
BlockDeviceID.

# Loopback Backend

LoopbackAPI keeps one sparse file per volume under a root directory:

	/var/lib/burrow/loopback/
	├── unattached/
	│   └── 3f0c...e1          (1 GiB sparse file)
	└── attached/
	    └── node-1/
	        └── 9a4b...07      (attached to node-1)

The tree is the only state. Listing rebuilds every volume from file names
and sizes, so several agents may share one root. Attaching is a rename from
unattached/ into attached/<host>/, done with renameat2(RENAME_NOREPLACE) on
Linux so that when two agents race for one volume exactly one succeeds.
Within a process, moby/locker serializes operations on the same volume id.

Device paths come from losetup(8). The first call associates the attached
file with a free loop device; later calls find the existing association and
return the same device.

Sizes are exact in bytes. Creating a 10 MiB volume produces a 10485760 byte
file that consumes almost no disk until written.
*/
package volume
