package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/reconciler"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

// StateDiscoverer reports the node's current state
type StateDiscoverer interface {
	DiscoverLocalState(ctx context.Context) (types.NodeState, error)
}

// CycleReporter reports the outcome of the last convergence cycle
type CycleReporter interface {
	LastResult() (reconciler.Result, bool)
}

// JournalReader reads the change journal and desired configuration history
type JournalReader interface {
	ListChanges() ([]*types.ChangeRecord, error)
	ListChangesByDataset(datasetID string) ([]*types.ChangeRecord, error)
	LatestDeployment() (*types.Deployment, error)
}

// HealthServerConfig configures the HTTP server. Nil collaborators disable
// the checks and endpoints that depend on them.
type HealthServerConfig struct {
	Discoverer StateDiscoverer
	Reconciler CycleReporter
	Journal    JournalReader
	Components *metrics.Components
	Version    string
}

// HealthServer provides the agent's HTTP endpoints
type HealthServer struct {
	cfg    HealthServerConfig
	mux    *http.ServeMux
	server *http.Server
}

// NewHealthServer creates a new HTTP server
func NewHealthServer(cfg HealthServerConfig) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		cfg: cfg,
		mux: mux,
	}

	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readyHandler)
	mux.HandleFunc("/state", hs.stateHandler)
	mux.HandleFunc("/changes", hs.changesHandler)
	mux.HandleFunc("/deployment", hs.deploymentHandler)
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// Start serves on addr until Shutdown is called
func (hs *HealthServer) Start(addr string) error {
	hs.server = &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	err := hs.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server started by Start
func (hs *HealthServer) Shutdown(ctx context.Context) error {
	if hs.server == nil {
		return nil
	}
	return hs.server.Shutdown(ctx)
}

// GetHandler returns the HTTP handler for embedding in other servers
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string                             `json:"status"`
	Timestamp  time.Time                          `json:"timestamp"`
	Version    string                             `json:"version,omitempty"`
	Components map[string]metrics.ComponentStatus `json:"components,omitempty"`
}

// ReadyResponse represents the readiness check response
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// healthHandler implements the /health endpoint
// This is a simple liveness check - returns 200 if the process is alive
func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "healthy",
		Timestamp:  time.Now(),
		Version:    hs.cfg.Version,
		Components: hs.cfg.Components.Snapshot(),
	})
}

// readyHandler implements the /ready endpoint
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	checks := make(map[string]string)
	ready := true
	var message string

	// Check 1: backend reachable
	if hs.cfg.Discoverer != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		_, err := hs.cfg.Discoverer.DiscoverLocalState(ctx)
		cancel()
		if err != nil {
			checks["backend"] = fmt.Sprintf("error: %v", err)
			ready = false
			message = "Backend not accessible"
		} else {
			checks["backend"] = "ok"
		}
	} else {
		checks["backend"] = "not initialized"
		ready = false
		message = "Deployer not initialized"
	}

	// Check 2: last convergence cycle
	if hs.cfg.Reconciler != nil {
		result, ok := hs.cfg.Reconciler.LastResult()
		switch {
		case !ok:
			checks["reconciler"] = "no cycle completed"
			ready = false
			if message == "" {
				message = "Waiting for first convergence cycle"
			}
		case result.Failed():
			checks["reconciler"] = fmt.Sprintf("error: %v", result.Err)
			ready = false
			if message == "" {
				message = "Last convergence cycle failed"
			}
		default:
			checks["reconciler"] = "ok"
		}
	}

	// Check 3: anything else that last reported a failure, such as the journal
	for _, name := range hs.cfg.Components.Unhealthy() {
		if _, checked := checks[name]; checked {
			continue
		}
		st, _ := hs.cfg.Components.Status(name)
		checks[name] = fmt.Sprintf("error: %s", st.Message)
		ready = false
		if message == "" {
			message = fmt.Sprintf("Component %s unhealthy", name)
		}
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, ReadyResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
		Message:   message,
	})
}

// stateHandler implements the /state endpoint with a fresh discovery
func (hs *HealthServer) stateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if hs.cfg.Discoverer == nil {
		http.Error(w, "Deployer not initialized", http.StatusServiceUnavailable)
		return
	}

	state, err := hs.cfg.Discoverer.DiscoverLocalState(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// changesHandler implements the /changes endpoint, optionally filtered by ?dataset=
func (hs *HealthServer) changesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if hs.cfg.Journal == nil {
		http.Error(w, "Journal not configured", http.StatusNotFound)
		return
	}

	var (
		records []*types.ChangeRecord
		err     error
	)
	if id := r.URL.Query().Get("dataset"); id != "" {
		records, err = hs.cfg.Journal.ListChangesByDataset(id)
	} else {
		records, err = hs.cfg.Journal.ListChanges()
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*types.ChangeRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// deploymentHandler implements the /deployment endpoint: the desired
// configuration the agent last converged towards
func (hs *HealthServer) deploymentHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if hs.cfg.Journal == nil {
		http.Error(w, "Journal not configured", http.StatusNotFound)
		return
	}

	deployment, err := hs.cfg.Journal.LatestDeployment()
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "No desired configuration recorded", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, deployment)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
