// Package cluster defines the capability a batch backend must offer
// the engine and a registry that selects one by name at startup.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Completion is the state reported for a dispatched work unit.
type Completion string

const (
	// Finished means the job left the cluster and its directory may
	// be gathered.
	Finished Completion = "finished"
	// Running means the job is queued or executing.
	Running Completion = "running"
	// Unknown means the backend could not tell. Callers retry later.
	Unknown Completion = "unknown"
)

// ErrUnknownBackend is returned by New for an unregistered name.
var ErrUnknownBackend = errors.New("unknown cluster backend")

// Job is one work unit to dispatch.
type Job struct {
	WorkUnitID int64
	Name       string
	// Bundle is the path of the unit's configuration file.
	Bundle string
	// Dest is the directory the executor leaves its results in.
	Dest string
}

// PrepareRequest describes the files a backend may need to write
// before submission.
type PrepareRequest struct {
	Study      string
	Stage      string
	Executable string
	InputDir   string
	OutputDir  string
	Jobs       []Job
}

// SubmitRequest dispatches a prepared set of jobs as one batch.
type SubmitRequest struct {
	Study      string
	Stage      string
	Executable string
	InputDir   string
	OutputDir  string
	BatchName  string
	Jobs       []Job
}

// Cluster is the capability the engine needs from a batch system.
type Cluster interface {
	Prepare(ctx context.Context, req *PrepareRequest) error
	// Submit returns the backend identifier of every dispatched
	// work unit keyed by wu_id.
	Submit(ctx context.Context, req *SubmitRequest) (map[int64]string, error)
	CheckCompletion(ctx context.Context, uniqueID string) (Completion, error)
}

// Config carries backend settings.
type Config struct {
	BinDir     string
	KubeConfig string
	Namespace  string
	Image      string
	// Parallelism bounds concurrent submissions where the backend
	// dispatches jobs one by one.
	Parallelism int
}

// Factory builds a backend.
type Factory func(Config) (Cluster, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under name. Backends call it
// from init; registering a name twice panics.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("cluster backend %q registered twice", name))
	}
	factories[name] = f
}

// New builds the backend registered under name.
func New(name string, cfg Config) (Cluster, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, name, Names())
	}
	return f(cfg)
}

// Names lists the registered backends.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
