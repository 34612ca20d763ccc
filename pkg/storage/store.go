package storage

import (
	"errors"

	"github.com/cuemby/burrow/pkg/types"
)

// ErrNotFound is returned when a lookup has no result
var ErrNotFound = errors.New("not found")

// Journal records what the agent did and what it was asked to do.
// It never holds volume state; backends are the source of truth for that.
type Journal interface {
	// Changes
	RecordChange(record *types.ChangeRecord) error
	ListChanges() ([]*types.ChangeRecord, error)
	ListChangesByDataset(datasetID string) ([]*types.ChangeRecord, error)

	// Desired configuration
	SaveDeployment(deployment *types.Deployment) error
	LatestDeployment() (*types.Deployment, error)

	// Utility
	Close() error
}
