package reconciler

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/deploy"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

// DesiredSource supplies the desired configuration for each cycle
type DesiredSource interface {
	Desired(ctx context.Context) (types.Deployment, error)
}

// FileSource re-reads a desired configuration document every cycle
type FileSource struct {
	Path string
}

// Desired implements DesiredSource
func (s FileSource) Desired(ctx context.Context) (types.Deployment, error) {
	return config.LoadDeployment(s.Path)
}

// StaticSource always returns the same desired configuration
type StaticSource struct {
	Deployment types.Deployment
}

// Desired implements DesiredSource
func (s StaticSource) Desired(ctx context.Context) (types.Deployment, error) {
	return s.Deployment, nil
}

// Result summarizes one reconciliation cycle
type Result struct {
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Planned  int           `json:"planned"`
	Skipped  int           `json:"skipped"`
	Err      error         `json:"-"`
}

// Failed reports whether the cycle ended in an error
func (r Result) Failed() bool {
	return r.Err != nil
}

// Config configures a Reconciler
type Config struct {
	Deployer *deploy.Deployer
	Source   DesiredSource
	Interval time.Duration

	// Optional
	Journal storage.Journal
	Events  *events.Broker
	OnCycle func(Result)
}

// Reconciler periodically converges this node towards the desired configuration
type Reconciler struct {
	deployer *deploy.Deployer
	source   DesiredSource
	interval time.Duration
	journal  storage.Journal
	events   *events.Broker
	onCycle  func(Result)
	logger   zerolog.Logger

	mu          sync.Mutex
	last        *Result
	lastDesired *types.Deployment

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewReconciler creates a new reconciler
func NewReconciler(cfg Config) (*Reconciler, error) {
	if cfg.Deployer == nil {
		return nil, errors.New("reconciler requires a deployer")
	}
	if cfg.Source == nil {
		return nil, errors.New("reconciler requires a desired configuration source")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = config.DefaultPollInterval
	}

	return &Reconciler{
		deployer: cfg.Deployer,
		source:   cfg.Source,
		interval: cfg.Interval,
		journal:  cfg.Journal,
		events:   cfg.Events,
		onCycle:  cfg.OnCycle,
		logger:   log.WithComponent("reconciler"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins the reconciliation loop. The first cycle runs immediately.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop stops the loop and waits for the running cycle to finish.
// It must only be called after Start.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	<-r.doneCh
}

// run is the main reconciliation loop
func (r *Reconciler) run() {
	defer close(r.doneCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-r.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		// Failures are logged and reported by finish
		_, _ = r.Reconcile(ctx)

		select {
		case <-ticker.C:
		case <-r.stopCh:
			return
		}
	}
}

// Reconcile performs one convergence cycle
func (r *Reconciler) Reconcile(ctx context.Context) (result Result, err error) {
	result.Started = time.Now()
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
		result.Duration = timer.Duration()
		result.Err = err
		r.finish(result)
	}()

	desired, err := r.source.Desired(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to load desired configuration: %w", err)
	}
	r.saveDesired(desired)

	local, err := r.deployer.DiscoverLocalState(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to discover local state: %w", err)
	}

	changes := r.deployer.CalculateNecessaryStateChanges(local, desired, types.Deployment{})
	changes, result.Skipped = r.withoutStarted(changes)
	result.Planned = changes.Len()

	if changes.Len() == 0 {
		return result, nil
	}

	r.logger.Info().Int("changes", changes.Len()).Msg("Converging")
	if err := changes.Run(ctx, r.deployer); err != nil {
		return result, fmt.Errorf("failed to apply state changes: %w", err)
	}
	return result, nil
}

// LastResult returns the outcome of the most recent cycle
func (r *Reconciler) LastResult() (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return Result{}, false
	}
	return *r.last, true
}

func (r *Reconciler) finish(result Result) {
	r.mu.Lock()
	r.last = &result
	r.mu.Unlock()

	if result.Err != nil {
		metrics.ReconciliationErrorsTotal.Inc()
		r.logger.Error().Err(result.Err).Dur("duration", result.Duration).Msg("Reconciliation failed")
	} else {
		r.logger.Debug().
			Int("planned", result.Planned).
			Int("skipped", result.Skipped).
			Dur("duration", result.Duration).
			Msg("Reconciliation completed")
	}

	if r.events != nil {
		meta := map[string]string{
			"hostname": r.deployer.Hostname(),
			"planned":  fmt.Sprint(result.Planned),
			"status":   metrics.Status(result.Err),
		}
		r.events.Publish(events.NewEvent(events.EventConvergenceCompleted, "convergence cycle finished", meta))
	}

	if r.onCycle != nil {
		r.onCycle(result)
	}
}

// saveDesired journals the desired configuration when it changes
func (r *Reconciler) saveDesired(desired types.Deployment) {
	if r.journal == nil {
		return
	}

	r.mu.Lock()
	unchanged := r.lastDesired != nil && reflect.DeepEqual(*r.lastDesired, desired)
	r.mu.Unlock()
	if unchanged {
		return
	}

	if err := r.journal.SaveDeployment(&desired); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to journal desired configuration")
		return
	}

	r.mu.Lock()
	r.lastDesired = &desired
	r.mu.Unlock()
}

// withoutStarted drops creations for datasets that already have a volume on
// this node according to the journal. Discovery reports volumes under their
// own ids, so the journal is the only link from a dataset to its volume.
func (r *Reconciler) withoutStarted(changes *deploy.InParallel) (*deploy.InParallel, int) {
	if r.journal == nil || changes.Len() == 0 {
		return changes, 0
	}

	records, err := r.journal.ListChanges()
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to read change journal")
		return changes, 0
	}

	started := make(map[string]bool)
	for _, rec := range records {
		if rec.Hostname == r.deployer.Hostname() && rec.BlockDeviceID != "" {
			started[rec.DatasetID] = true
		}
	}

	kept := make([]deploy.StateChange, 0, changes.Len())
	for _, change := range changes.Changes {
		if c, ok := change.(deploy.CreateBlockDeviceDataset); ok && started[c.Dataset.DatasetID] {
			r.logger.Debug().Str("dataset_id", c.Dataset.DatasetID).Msg("Dataset already has a volume, skipping")
			continue
		}
		kept = append(kept, change)
	}
	return &deploy.InParallel{Changes: kept}, changes.Len() - len(kept)
}
