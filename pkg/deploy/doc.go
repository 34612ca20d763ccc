/*
Package deploy converges a single node's datasets onto block devices.

A Deployer is bound to one hostname and one BlockDeviceAPI backend. Each
convergence pass has three steps:

	┌──────────────────────┐     ┌──────────────────────────────┐
	│ DiscoverLocalState   │────►│ CalculateNecessaryStateChanges│
	│  list volumes,       │     │  desired − local, by          │
	│  keep host == self   │     │  (dataset id, primary)        │
	└──────────────────────┘     └──────────────┬───────────────┘
	                                            │ *InParallel
	                                            ▼
	                              ┌──────────────────────────────┐
	                              │ Run                          │
	                              │  one CreateBlockDeviceDataset│
	                              │  per missing dataset         │
	                              └──────────────────────────────┘

# Discovery

Every volume attached to this node becomes a primary manifestation whose
dataset id is the volume id. Unattached volumes and volumes attached to other
hosts are not part of this node's state. The mount path of each discovered
dataset is <mount-root>/<dataset-id>, with /flocker as the default root.

# Calculating Changes

The desired configuration entry for this hostname is compared with the local
state as sets of (dataset id, primary) keys. Each missing manifestation yields
a CreateBlockDeviceDataset targeting <mount-root>/<dataset-id>. Changes are
sorted by dataset id and wrapped in InParallel. No deletions are ever
produced, and the cluster state argument is not consulted.

# Creating a Dataset

CreateBlockDeviceDataset.Run performs, in order:

 1. CreateVolume with the dataset's maximum size
 2. AttachVolume to this node
 3. GetDevicePath
 4. create the mountpoint directory
 5. mkfs -t ext4
 6. mount

There is no rollback. If step 5 or 6 fails the volume stays attached to this
node. When a journal is configured every run is recorded with the volume id,
so such volumes can be found afterwards:

	burrow apply --desired desired.yaml
	# mkfs fails for ds-1
	burrow state   # the attached volume is listed under its own id

# Usage

	d, err := deploy.NewDeployer(deploy.Config{
		Hostname: "192.0.2.1",
		API:      api,
	})
	if err != nil {
		return err
	}

	local, err := d.DiscoverLocalState(ctx)
	if err != nil {
		return err
	}
	changes := d.CalculateNecessaryStateChanges(local, desired, types.Deployment{})
	if err := changes.Run(ctx, d); err != nil {
		// err aggregates every failed change
	}
*/
package deploy
