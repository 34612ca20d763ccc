package config

import (
	"fmt"
	"os"

	units "github.com/docker/go-units"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/burrow/pkg/types"
)

// Size is a byte count that decodes from either an integer or a human
// readable binary size such as "10MiB" or "1G"
type Size int64

// UnmarshalYAML implements yaml.Unmarshaler
func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*s = Size(n)
		return nil
	}

	var str string
	if err := value.Decode(&str); err != nil {
		return fmt.Errorf("line %d: invalid size", value.Line)
	}
	n, err := units.RAMInBytes(str)
	if err != nil {
		return fmt.Errorf("line %d: invalid size %q: %w", value.Line, str, err)
	}
	*s = Size(n)
	return nil
}

type deploymentDoc struct {
	Nodes []nodeDoc `yaml:"nodes"`
}

type nodeDoc struct {
	Hostname       string             `yaml:"hostname"`
	Manifestations []manifestationDoc `yaml:"manifestations"`
}

type manifestationDoc struct {
	DatasetID   string            `yaml:"dataset_id"`
	MaximumSize Size              `yaml:"maximum_size"`
	Primary     *bool             `yaml:"primary"`
	Metadata    map[string]string `yaml:"metadata"`
}

// LoadDeployment reads a desired configuration document
func LoadDeployment(path string) (types.Deployment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Deployment{}, fmt.Errorf("failed to read desired configuration: %w", err)
	}
	return ParseDeployment(data)
}

// ParseDeployment decodes a desired configuration document:
//
//	nodes:
//	  - hostname: 192.0.2.1
//	    manifestations:
//	      - dataset_id: 4f6c...
//	        maximum_size: 10MiB
//	        primary: true
//
// Manifestations are primary unless primary is set to false.
func ParseDeployment(data []byte) (types.Deployment, error) {
	var doc deploymentDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return types.Deployment{}, fmt.Errorf("failed to parse desired configuration: %w", err)
	}

	deployment := types.Deployment{Nodes: make([]types.Node, 0, len(doc.Nodes))}
	hosts := make(map[string]bool, len(doc.Nodes))

	for i, nd := range doc.Nodes {
		if nd.Hostname == "" {
			return types.Deployment{}, fmt.Errorf("node %d: hostname is required", i)
		}
		if hosts[nd.Hostname] {
			return types.Deployment{}, fmt.Errorf("node %s: listed more than once", nd.Hostname)
		}
		hosts[nd.Hostname] = true

		node := types.Node{
			Hostname:       nd.Hostname,
			Manifestations: make(map[string]types.Manifestation, len(nd.Manifestations)),
		}
		for j, md := range nd.Manifestations {
			if md.DatasetID == "" {
				return types.Deployment{}, fmt.Errorf("node %s: manifestation %d: dataset_id is required", nd.Hostname, j)
			}
			if err := types.CheckDatasetID(md.DatasetID); err != nil {
				return types.Deployment{}, fmt.Errorf("node %s: manifestation %d: %w", nd.Hostname, j, err)
			}
			if _, dup := node.Manifestations[md.DatasetID]; dup {
				return types.Deployment{}, fmt.Errorf("node %s: dataset %s listed more than once", nd.Hostname, md.DatasetID)
			}
			if md.MaximumSize < 0 {
				return types.Deployment{}, fmt.Errorf("node %s: dataset %s: maximum_size must not be negative", nd.Hostname, md.DatasetID)
			}

			primary := true
			if md.Primary != nil {
				primary = *md.Primary
			}
			node.Manifestations[md.DatasetID] = types.Manifestation{
				Dataset: types.Dataset{
					DatasetID:   md.DatasetID,
					MaximumSize: int64(md.MaximumSize),
					Metadata:    md.Metadata,
				},
				Primary: primary,
			}
		}
		deployment.Nodes = append(deployment.Nodes, node)
	}

	return deployment, nil
}
