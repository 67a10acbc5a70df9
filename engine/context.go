// Package engine holds the execution context shared by model fitting and
// inference: the compute device, the random source, the inference chunk size
// and the logger. Nothing in it is global; every model receives a Context.
package engine

import (
	"math/rand"
	"strings"

	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/tsawler/go-lpne/tensor"
)

const (
	DeviceAuto = "auto"
	DeviceCPU  = "cpu"

	// DefaultChunkSize bounds the number of samples evaluated at once during
	// inference.
	DefaultChunkSize = 256
)

// Options configures a Context. Zero values select defaults.
type Options struct {
	Device    string
	Seed      int64
	ChunkSize int
	Logger    *zap.Logger
}

// Context is the explicit execution environment for one model instance. It
// is not safe for concurrent use because the random source is not.
type Context struct {
	device    tensor.DeviceType
	name      string
	seed      int64
	chunkSize int
	rng       *rand.Rand
	logger    *zap.Logger
}

// New resolves the requested device and builds a Context. "auto" resolves to
// the host CPU since no accelerator backend is compiled in.
func New(opts Options) (*Context, error) {
	name := strings.ToLower(strings.TrimSpace(opts.Device))
	switch name {
	case "", DeviceAuto, DeviceCPU:
		name = DeviceCPU
	case "gpu", "cuda", "mps", "metal":
		return nil, errors.NotSupportedf("device %q", opts.Device)
	default:
		return nil, errors.NotValidf("device %q", opts.Device)
	}
	if opts.ChunkSize < 0 {
		return nil, errors.NotValidf("chunk size %d", opts.ChunkSize)
	}
	chunk := opts.ChunkSize
	if chunk == 0 {
		chunk = DefaultChunkSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{
		device:    tensor.CPU,
		name:      name,
		seed:      opts.Seed,
		chunkSize: chunk,
		rng:       rand.New(rand.NewSource(opts.Seed)),
		logger:    logger,
	}, nil
}

// Default returns a CPU context with seed 0 and a no-op logger.
func Default() *Context {
	ctx, _ := New(Options{})
	return ctx
}

func (c *Context) Device() tensor.DeviceType { return c.device }

// DeviceName is the resolved device string, as persisted with models.
func (c *Context) DeviceName() string { return c.name }

func (c *Context) Seed() int64 { return c.seed }

func (c *Context) ChunkSize() int { return c.chunkSize }

func (c *Context) Rng() *rand.Rand { return c.rng }

func (c *Context) Logger() *zap.Logger { return c.logger }

// WithLogger returns a copy of c that logs to l. The random source is shared.
func (c *Context) WithLogger(l *zap.Logger) *Context {
	cp := *c
	cp.logger = l
	return &cp
}

// Reseed restarts the random source from seed.
func (c *Context) Reseed(seed int64) {
	c.seed = seed
	c.rng = rand.New(rand.NewSource(seed))
}
