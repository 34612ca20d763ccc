package deploy

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

var (
	_ StateChange = (*InParallel)(nil)
	_ StateChange = CreateBlockDeviceDataset{}
)

// InParallel runs independent state changes concurrently
type InParallel struct {
	Changes []StateChange `json:"changes"`
}

// Run starts every change and waits for all of them. A failing change does
// not cancel its siblings; all failures are returned together.
func (p *InParallel) Run(ctx context.Context, d *Deployer) error {
	var g multierror.Group
	for _, change := range p.Changes {
		change := change
		g.Go(func() error {
			return change.Run(ctx, d)
		})
	}
	return g.Wait().ErrorOrNil()
}

// Len returns the number of changes
func (p *InParallel) Len() int {
	return len(p.Changes)
}

func (p *InParallel) String() string {
	if len(p.Changes) == 0 {
		return "no changes"
	}
	lines := make([]string, 0, len(p.Changes))
	for _, change := range p.Changes {
		lines = append(lines, fmt.Sprint(change))
	}
	return strings.Join(lines, "\n")
}
