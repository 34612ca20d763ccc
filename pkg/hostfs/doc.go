/*
Package hostfs formats and mounts block devices on the local host.

The deployer depends only on the Filesystem interface, so tests can record
calls instead of touching the host. Host is the real implementation: it shells
out to mkfs(8) and mounts with github.com/moby/sys/mount. The mount table is
read through github.com/moby/sys/mountinfo.

	h := hostfs.NewHost()
	if err := h.MakeFilesystem(ctx, "/dev/loop3", "ext4"); err != nil {
		return err
	}
	if err := h.Mount(ctx, "/dev/loop3", "/flocker/<dataset>", "ext4"); err != nil {
		return err
	}

Formatting and mounting need root.
*/
package hostfs
