/*
Package types defines the records shared by every burrow component.

The agent works with two families of records. Volumes are produced by a
storage backend and describe what actually exists. Datasets, manifestations,
nodes and deployments describe what the cluster wants. Both are plain values:
nothing in this package is mutated after construction, and updates such as
attaching a volume produce a new value.

# Volumes

	Volume {
		BlockDeviceID: "6f1c...e2"   // opaque, never reused
		Size:          10485760      // bytes, fixed at creation
		Host:          "192.0.2.1"   // "" while unattached
	}

A volume is attached to at most one host. Volume.WithHost returns the
attached copy; the original value is left untouched so callers holding a
listing result never observe a change.

# Desired Configuration

	Deployment
	└── Node (hostname)
	    └── Manifestation (dataset id → {Dataset, Primary})
	        └── Dataset {DatasetID, MaximumSize, Metadata}

The agent only reads the Node whose hostname matches its own.

# Set Semantics

Manifestations are compared through Manifestation.Key, the pair of dataset id
and primary flag. Two manifestations of the same dataset that differ only in
dataset size or metadata are the same set member.

# Discovered State

NodeState is rebuilt from the backend on every discovery. Paths maps each
discovered dataset id to the mountpoint the agent uses for it.
*/
package types
