package glue

import (
	"fmt"
	"github.com/notargets/glue/devices"
	"github.com/notargets/glue/glue/builder"
	"github.com/notargets/gocca"
	"log/slog"
	"strings"
	"sync"
)

// Environment is one opened device with its command queue
type Environment struct {
	id       int
	deviceID int
	kind     devices.Kind
	mode     string

	rt     *Runtime
	log    *slog.Logger
	device *gocca.OCCADevice
	queue  *queue

	mu       sync.Mutex
	released bool
	buffers  map[*Buffer]struct{}
	programs map[*Program]struct{}
}

func openEnvironment(rt *Runtime, id int, backend devices.Backend, deviceID int) (*Environment, error) {
	q := newQueue(defaultQueueDepth)

	var device *gocca.OCCADevice
	props := backend.Properties(deviceID)
	err := q.do("NewDevice", func() error {
		d, err := gocca.NewDevice(props)
		if err != nil {
			return err
		}
		device = d
		return nil
	})
	if err != nil {
		q.close()
		return nil, wrapError(DeviceNotFound, "NewDevice", err, "cannot open %s", props)
	}

	var mode string
	modeErr := q.do("Mode", func() error {
		mode = device.Mode()
		return nil
	})
	if err := verifyMode(backend, mode, modeErr); err != nil {
		if freeErr := q.do("Free", func() error {
			device.Free()
			return nil
		}); freeErr != nil {
			rt.log.Warn("freeing rejected device", "mode", backend.Mode, "error", freeErr)
		}
		q.close()
		return nil, err
	}

	env := &Environment{
		id:       id,
		deviceID: deviceID,
		kind:     devices.KindOfMode(mode),
		mode:     mode,
		rt:       rt,
		device:   device,
		queue:    q,
		buffers:  make(map[*Buffer]struct{}),
		programs: make(map[*Program]struct{}),
	}
	env.log = rt.log.With("env", id, "mode", mode)
	return env, nil
}

// verifyMode rejects a device whose mode could not be read or differs from
// the requested one; OCCA falls back to Serial for modes it was not built with
func verifyMode(backend devices.Backend, mode string, modeErr error) error {
	if modeErr != nil {
		return wrapError(DeviceNotFound, "NewDevice", modeErr, "cannot read the mode of %s", backend.Mode)
	}
	if !strings.EqualFold(mode, backend.Mode) {
		return newError(DeviceNotFound, "NewDevice", "requested %s but OCCA opened %s", backend.Mode, mode)
	}
	return nil
}

// ID is the position of this environment in Runtime.Environments
func (env *Environment) ID() int {
	return env.id
}

func (env *Environment) Kind() devices.Kind {
	return env.kind
}

// Mode is the OCCA mode reported by the device, e.g. "CUDA" or "Serial"
func (env *Environment) Mode() string {
	return env.mode
}

// Info returns a one-line human readable description
func (env *Environment) Info() string {
	if env.kind == devices.CPU {
		return fmt.Sprintf("env %d: %s %s [%s]", env.id, env.kind, env.mode, devices.DetectCPU())
	}
	return fmt.Sprintf("env %d: %s %s device %d", env.id, env.kind, env.mode, env.deviceID)
}

// Runtime returns the owning runtime
func (env *Environment) Runtime() *Runtime {
	return env.rt
}

func (env *Environment) checkLive(op string) error {
	env.mu.Lock()
	defer env.mu.Unlock()
	if env.released {
		return newError(Released, op, "environment %d has been released", env.id)
	}
	return nil
}

// NewBuffer allocates n values of type dt in device memory
func (env *Environment) NewBuffer(dt builder.DataType, n int) (*Buffer, error) {
	const op = "NewBuffer"
	if !dt.Valid() {
		return nil, newError(InvalidArgument, op, "invalid data type %v", dt)
	}
	if n <= 0 {
		return nil, newError(InvalidArgument, op, "buffer length must be positive, got %d", n)
	}
	if err := env.checkLive(op); err != nil {
		return nil, err
	}

	bytes := int64(n) * dt.Size()
	var mem *gocca.OCCAMemory
	err := env.queue.do(op, func() error {
		mem = env.device.Malloc(bytes, nil, nil)
		if mem == nil {
			return newError(OutOfResources, op, "device allocation of %d bytes failed", bytes)
		}
		return nil
	})
	if err != nil {
		if CodeOf(err) == ExecutionFailure {
			return nil, wrapError(OutOfResources, op, err, "device allocation of %d bytes failed", bytes)
		}
		return nil, err
	}

	b := &Buffer{env: env, dataType: dt, n: n, mem: mem}
	env.mu.Lock()
	env.buffers[b] = struct{}{}
	env.mu.Unlock()
	env.rt.trackAlloc(bytes)
	env.log.Debug("allocated buffer", "type", dt, "len", n, "bytes", bytes)
	return b, nil
}

// NewProgram creates an unbuilt program from OKL source
func (env *Environment) NewProgram(source string) (*Program, error) {
	const op = "NewProgram"
	if source == "" {
		return nil, newError(InvalidArgument, op, "program source is empty")
	}
	if err := env.checkLive(op); err != nil {
		return nil, err
	}
	p := &Program{env: env, source: source, kernels: make(map[string]*Kernel)}
	env.mu.Lock()
	env.programs[p] = struct{}{}
	env.mu.Unlock()
	return p, nil
}

// Finish waits for every queued command and for the device to go idle. It
// returns the first failure of a non-blocking command since the last Finish.
func (env *Environment) Finish() error {
	const op = "Finish"
	if err := env.checkLive(op); err != nil {
		return err
	}
	if err := env.queue.do(op, func() error {
		env.device.Finish()
		return nil
	}); err != nil {
		return err
	}
	return env.queue.takeAsyncError()
}

func (env *Environment) untrackBuffer(b *Buffer) {
	env.mu.Lock()
	delete(env.buffers, b)
	env.mu.Unlock()
}

func (env *Environment) untrackProgram(p *Program) {
	env.mu.Lock()
	delete(env.programs, p)
	env.mu.Unlock()
}

// release frees programs, then buffers, then the device itself
func (env *Environment) release() error {
	env.mu.Lock()
	if env.released {
		env.mu.Unlock()
		return nil
	}
	env.released = true
	programs := make([]*Program, 0, len(env.programs))
	for p := range env.programs {
		programs = append(programs, p)
	}
	buffers := make([]*Buffer, 0, len(env.buffers))
	for b := range env.buffers {
		buffers = append(buffers, b)
	}
	env.programs = make(map[*Program]struct{})
	env.buffers = make(map[*Buffer]struct{})
	env.mu.Unlock()

	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	for _, p := range programs {
		env.log.Warn("releasing leaked program", "kernels", len(p.kernelNames()))
		keep(p.free())
	}
	for _, b := range buffers {
		env.log.Warn("releasing leaked buffer", "type", b.dataType, "len", b.n)
		keep(b.free())
	}

	keep(env.queue.do("Free", func() error {
		env.device.Finish()
		env.device.Free()
		return nil
	}))
	env.queue.close()
	env.log.Debug("released environment")
	return first
}
