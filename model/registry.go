package model

import (
	"io"
	"sort"
	"sync"

	"github.com/juju/errors"
	"github.com/samber/lo"

	"github.com/tsawler/go-lpne/checkpoints"
	"github.com/tsawler/go-lpne/engine"
)

// Factory builds an unfitted estimator with default hyper-parameters.
type Factory func(ctx *engine.Context) Estimator

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a model variant available to New and Load. It panics on a
// duplicate name.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("model: Register called twice for " + name)
	}
	registry[name] = factory
}

// Names lists the registered model variants.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := lo.Keys(registry)
	sort.Strings(names)
	return names
}

// New builds an unfitted estimator of the named variant.
func New(name string, ctx *engine.Context) (Estimator, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.NotFoundf("model %q", name)
	}
	if ctx == nil {
		ctx = engine.Default()
	}
	return factory(ctx), nil
}

// Restore rebuilds a fitted estimator from a checkpoint.
func Restore(cp *checkpoints.Checkpoint, ctx *engine.Context) (Estimator, error) {
	est, err := New(cp.Model, ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := est.SetState(cp); err != nil {
		return nil, errors.Trace(err)
	}
	return est, nil
}

// Save writes the state of est to path. Files ending in ".pb" are written as
// protobuf and everything else as JSON.
func Save(est Estimator, path string) error {
	cp, err := est.State()
	if err != nil {
		return errors.Trace(err)
	}
	saver := checkpoints.NewCheckpointSaver(checkpoints.FormatFromPath(path))
	return errors.Trace(saver.SaveCheckpoint(cp, path))
}

// Load reads a model saved with Save.
func Load(path string, ctx *engine.Context) (Estimator, error) {
	saver := checkpoints.NewCheckpointSaver(checkpoints.FormatFromPath(path))
	cp, err := saver.LoadCheckpoint(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return Restore(cp, ctx)
}

// Marshal writes the state of est to w in the given format.
func Marshal(est Estimator, w io.Writer, format checkpoints.CheckpointFormat) error {
	cp, err := est.State()
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(checkpoints.NewCheckpointSaver(format).Encode(cp, w))
}

// Unmarshal reads a model written by Marshal.
func Unmarshal(r io.Reader, format checkpoints.CheckpointFormat, ctx *engine.Context) (Estimator, error) {
	cp, err := checkpoints.NewCheckpointSaver(format).Decode(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return Restore(cp, ctx)
}
