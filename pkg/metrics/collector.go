package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/types"
)

// VolumeLister is the part of a block device backend the collector needs
type VolumeLister interface {
	ListVolumes(ctx context.Context) ([]types.Volume, error)
}

// Collector periodically samples the backend's volumes
type Collector struct {
	lister     VolumeLister
	hostname   string
	components *Components
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCollector creates a collector that classifies volumes relative to hostname
// and reports the backend component to components, which may be nil
func NewCollector(lister VolumeLister, hostname string, interval time.Duration, components *Components) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		lister:     lister,
		hostname:   hostname,
		components: components,
		interval:   interval,
		stopCh:     make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		defer ticker.Stop()

		// Collect immediately on start
		c.Collect(context.Background())

		for {
			select {
			case <-ticker.C:
				c.Collect(context.Background())
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

// Collect samples the backend once
func (c *Collector) Collect(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.interval)
	defer cancel()

	volumes, err := c.lister.ListVolumes(ctx)
	c.components.Report(ComponentBackend, err)
	if err != nil {
		return
	}

	counts := map[string]int{"local": 0, "remote": 0, "unattached": 0}
	for _, vol := range volumes {
		switch {
		case !vol.Attached():
			counts["unattached"]++
		case vol.Host == c.hostname:
			counts["local"]++
		default:
			counts["remote"]++
		}
	}
	for placement, n := range counts {
		VolumesTotal.WithLabelValues(placement).Set(float64(n))
	}
}
