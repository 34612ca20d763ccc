package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrInvalidDatasetID is returned for dataset ids that cannot be used as a
// single mountpoint directory name
var ErrInvalidDatasetID = errors.New("invalid dataset id")

// CheckDatasetID verifies that id names exactly one path component
func CheckDatasetID(id string) error {
	switch {
	case id == "", id == ".", id == "..":
		return fmt.Errorf("%w: %q", ErrInvalidDatasetID, id)
	case strings.ContainsAny(id, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator or NUL", ErrInvalidDatasetID, id)
	}
	return nil
}

// Volume is a backend-managed unit of block storage.
// An empty Host means the volume is not attached anywhere.
type Volume struct {
	BlockDeviceID string `json:"blockdevice_id" yaml:"blockdevice_id"`
	Size          int64  `json:"size" yaml:"size"`
	Host          string `json:"host,omitempty" yaml:"host,omitempty"`
}

// Attached reports whether the volume has an owning host
func (v Volume) Attached() bool {
	return v.Host != ""
}

// WithHost returns a copy of the volume owned by host
func (v Volume) WithHost(host string) Volume {
	v.Host = host
	return v
}

// Dataset is the unit of data the cluster places on nodes
type Dataset struct {
	DatasetID   string            `json:"dataset_id" yaml:"dataset_id"`
	MaximumSize int64             `json:"maximum_size,omitempty" yaml:"maximum_size,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Manifestation binds a dataset to a node
type Manifestation struct {
	Dataset Dataset `json:"dataset" yaml:"dataset"`
	Primary bool    `json:"primary" yaml:"primary"`
}

// ManifestationKey is the comparable identity of a manifestation
type ManifestationKey struct {
	DatasetID string
	Primary   bool
}

// Key returns the value used to compare manifestations as set members.
// Only the dataset id and primary flag take part; size and metadata are
// attributes of the dataset, not of its placement.
func (m Manifestation) Key() ManifestationKey {
	return ManifestationKey{DatasetID: m.Dataset.DatasetID, Primary: m.Primary}
}

// Node is the desired configuration for a single host
type Node struct {
	Hostname       string                   `json:"hostname" yaml:"hostname"`
	Manifestations map[string]Manifestation `json:"manifestations,omitempty" yaml:"manifestations,omitempty"`
}

// ManifestationList returns the node's manifestations ordered by dataset id
func (n Node) ManifestationList() []Manifestation {
	list := make([]Manifestation, 0, len(n.Manifestations))
	for _, m := range n.Manifestations {
		list = append(list, m)
	}
	SortManifestations(list)
	return list
}

// NodeState is the discovered state of a single host
type NodeState struct {
	Hostname       string            `json:"hostname"`
	Manifestations []Manifestation   `json:"manifestations"`
	Paths          map[string]string `json:"paths,omitempty"`
}

// Deployment is a cluster-wide placement of datasets on nodes
type Deployment struct {
	Nodes []Node `json:"nodes" yaml:"nodes"`
}

// NodeByHostname returns the configuration for hostname, if present
func (d Deployment) NodeByHostname(hostname string) (Node, bool) {
	for _, node := range d.Nodes {
		if node.Hostname == hostname {
			return node, true
		}
	}
	return Node{Hostname: hostname}, false
}

// ChangeStatus is the outcome of a state change
type ChangeStatus string

const (
	ChangeSucceeded ChangeStatus = "succeeded"
	ChangeFailed    ChangeStatus = "failed"
)

// ChangeRecord is the journal entry for one state change run by an agent.
// BlockDeviceID is set as soon as a volume exists, so a failed record
// identifies volumes left behind part way through.
type ChangeRecord struct {
	ID            string       `json:"id"`
	Type          string       `json:"type"`
	Hostname      string       `json:"hostname"`
	DatasetID     string       `json:"dataset_id"`
	BlockDeviceID string       `json:"blockdevice_id,omitempty"`
	Device        string       `json:"device,omitempty"`
	Mountpoint    string       `json:"mountpoint,omitempty"`
	Status        ChangeStatus `json:"status"`
	Error         string       `json:"error,omitempty"`
	StartedAt     time.Time    `json:"started_at"`
	FinishedAt    time.Time    `json:"finished_at"`
}

// SortManifestations orders manifestations by dataset id, primaries first
func SortManifestations(list []Manifestation) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Dataset.DatasetID != list[j].Dataset.DatasetID {
			return list[i].Dataset.DatasetID < list[j].Dataset.DatasetID
		}
		return list[i].Primary && !list[j].Primary
	})
}

// SortVolumes orders volumes by host, then block device id
func SortVolumes(list []Volume) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Host != list[j].Host {
			return list[i].Host < list[j].Host
		}
		return list[i].BlockDeviceID < list[j].BlockDeviceID
	})
}
