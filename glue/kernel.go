package glue

import (
	"github.com/notargets/glue/glue/builder"
	"github.com/notargets/gocca"
	"gonum.org/v1/gonum/mat"
	"math"
	"sync"
)

// Kernel is one compiled entry point of a Program
type Kernel struct {
	program   *Program
	name      string
	kernel    *gocca.OCCAKernel
	floatType builder.DataType
	intType   builder.DataType

	mu       sync.Mutex
	released bool
	// worker-only, see Buffer.freed
	freed bool
}

func (k *Kernel) Name() string {
	return k.name
}

func (k *Kernel) Program() *Program {
	return k.program
}

// Enqueue runs the kernel with args in declaration order, then synchronises
// the device. Arguments are *Buffer values of the kernel's environment or
// int32, int64, float32 and float64 scalars; a plain int is passed with the
// width of the program's int_t.
func (k *Kernel) Enqueue(blocking bool, args ...interface{}) (*Event, error) {
	const op = "Enqueue"
	k.mu.Lock()
	released := k.released
	k.mu.Unlock()
	if released {
		return nil, newError(Released, op, "kernel %s has been released", k.name)
	}

	occaArgs, buffers, err := k.buildArguments(args)
	if err != nil {
		return nil, err
	}
	return k.program.env.queue.enqueue(op, blocking, k.runCommand(occaArgs, buffers))
}

// runCommand is the queued half of Enqueue. Liveness is checked again on the
// worker since a Release may have been queued after the arguments were built.
func (k *Kernel) runCommand(occaArgs []interface{}, buffers []*Buffer) func() error {
	const op = "Enqueue"
	env := k.program.env
	return func() error {
		if k.freed {
			return newError(Released, op, "kernel %s was released before it ran", k.name)
		}
		for _, b := range buffers {
			if b.freed {
				return newError(Released, op, "an argument of %s was released before it ran", k.name)
			}
		}
		if err := k.kernel.RunWithArgs(occaArgs...); err != nil {
			return wrapError(ExecutionFailure, op, err, "kernel %s execution failed", k.name)
		}
		env.device.Finish()
		return nil
	}
}

// buildArguments maps runtime handles onto the values gocca expects
func (k *Kernel) buildArguments(args []interface{}) ([]interface{}, []*Buffer, error) {
	const op = "Enqueue"
	env := k.program.env
	out := make([]interface{}, 0, len(args))
	var buffers []*Buffer
	for i, arg := range args {
		switch v := arg.(type) {
		case *Buffer:
			if v == nil {
				return nil, nil, newError(InvalidArgument, op, "argument %d of %s is a nil buffer", i, k.name)
			}
			if v.env != env {
				return nil, nil, newError(InvalidArgument, op,
					"argument %d of %s belongs to environment %d, kernel runs on %d",
					i, k.name, v.env.id, env.id)
			}
			if err := v.checkLive(op); err != nil {
				return nil, nil, err
			}
			out = append(out, v.mem)
			buffers = append(buffers, v)
		case int32, int64, float32, float64:
			out = append(out, v)
		case int:
			if k.intType == builder.INT64 {
				out = append(out, int64(v))
				continue
			}
			if v < math.MinInt32 || v > math.MaxInt32 {
				return nil, nil, newError(InvalidArgument, op,
					"argument %d of %s is %d, outside the range of a 32-bit int_t", i, k.name, v)
			}
			out = append(out, int32(v))
		default:
			return nil, nil, newError(InvalidArgument, op,
				"argument %d of %s has unsupported type %T", i, k.name, arg)
		}
	}
	return out, buffers, nil
}

type copyBack struct {
	buf  *Buffer
	host interface{}
}

// Launch runs the kernel on bound host data. Each parameter, in declaration
// order, carries its value through Bind. Scalars are passed by value and
// *Buffer bindings are used as they are. Slices and matrices are staged
// through a temporary buffer: uploaded before the run and copied back after
// it as ParamSpec.Transfers decides, so an Output is never uploaded and an
// Input is never copied back. Launch blocks until the copies back are done.
func (k *Kernel) Launch(params ...*builder.ParamBuilder) error {
	const op = "Launch"
	env := k.program.env

	args := make([]interface{}, 0, len(params))
	var temps []*Buffer
	var backs []copyBack
	defer func() {
		for _, b := range temps {
			_ = b.Release()
		}
	}()

	for _, pb := range params {
		if pb == nil {
			return newError(InvalidArgument, op, "nil parameter for %s", k.name)
		}
		p := &pb.Spec
		if err := p.Validate(); err != nil {
			return wrapError(InvalidArgument, op, err, "invalid parameter for %s", k.name)
		}
		if p.HostBinding == nil {
			return newError(InvalidArgument, op, "parameter %s of %s is not bound", p.Name, k.name)
		}
		if p.Direction == builder.DirectionScalar {
			args = append(args, p.HostBinding)
			continue
		}
		if b, ok := p.HostBinding.(*Buffer); ok {
			args = append(args, b)
			continue
		}

		dt, n, err := k.stagingLayout(p)
		if err != nil {
			return err
		}
		b, err := env.NewBuffer(dt, n)
		if err != nil {
			return err
		}
		temps = append(temps, b)

		toDevice, toHost := p.Transfers()
		if toDevice {
			if _, err := b.Write(p.HostBinding, true); err != nil {
				return err
			}
		}
		if toHost {
			backs = append(backs, copyBack{buf: b, host: p.HostBinding})
		}
		args = append(args, b)
	}

	if _, err := k.Enqueue(true, args...); err != nil {
		return err
	}
	for _, cb := range backs {
		if _, err := cb.buf.Read(cb.host, true); err != nil {
			return err
		}
	}
	return nil
}

// stagingLayout picks the device type and length of the temporary buffer
// for a bound slice or matrix. An explicit Type wins; otherwise floats use
// the program's real_t and integers its int_t.
func (k *Kernel) stagingLayout(p *builder.ParamSpec) (builder.DataType, int, error) {
	const op = "Launch"
	var hostType builder.DataType
	var n int
	if m, ok := p.HostBinding.(mat.Matrix); ok {
		rows, cols := m.Dims()
		hostType, n = builder.Float64, rows*cols
	} else {
		var err error
		hostType, n, err = hostDataType(p.HostBinding)
		if err != nil {
			return 0, 0, wrapError(InvalidArgument, op, err, "parameter %s of %s", p.Name, k.name)
		}
	}
	if n == 0 {
		return 0, 0, newError(InvalidArgument, op, "parameter %s of %s is bound to empty data", p.Name, k.name)
	}

	dt := p.DataType
	switch {
	case dt != 0:
	case hostType.IsFloat():
		dt = k.floatType
	default:
		dt = k.intType
	}
	return dt, n, nil
}

// Release frees the compiled kernel
func (k *Kernel) Release() error {
	if err := k.free(); err != nil {
		return err
	}
	k.program.untrackKernel(k)
	return nil
}

func (k *Kernel) free() error {
	k.mu.Lock()
	if k.released {
		k.mu.Unlock()
		return newError(Released, "Release", "kernel %s has already been released", k.name)
	}
	k.released = true
	k.mu.Unlock()

	return k.program.env.queue.do("Release", func() error {
		k.kernel.Free()
		k.freed = true
		return nil
	})
}
