package glue

import (
	"github.com/notargets/glue/glue/builder"
	"github.com/notargets/gocca"
	"gonum.org/v1/gonum/mat"
	"runtime"
	"sync"
)

// Buffer is a region of device memory holding Len values of one DataType
type Buffer struct {
	env      *Environment
	dataType builder.DataType
	n        int
	mem      *gocca.OCCAMemory

	mu       sync.Mutex
	released bool
	// freed is only touched by the queue worker; it is set once mem.Free has
	// run, so commands queued behind a Release see it
	freed bool
}

func (b *Buffer) Len() int {
	return b.n
}

func (b *Buffer) DataType() builder.DataType {
	return b.dataType
}

// Bytes is the size of the device allocation
func (b *Buffer) Bytes() int64 {
	return int64(b.n) * b.dataType.Size()
}

func (b *Buffer) Environment() *Environment {
	return b.env
}

func (b *Buffer) checkLive(op string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return newError(Released, op, "buffer has been released")
	}
	return nil
}

// Write copies host data to the device. src is a []float32, []float64,
// []int32 or []int64 of length Len, or a mat.Matrix with Len entries which
// is stored column-major. With blocking false the call returns once the
// copy is queued and src must stay untouched until the event completes.
func (b *Buffer) Write(src interface{}, blocking bool) (*Event, error) {
	const op = "Write"
	if err := b.checkLive(op); err != nil {
		return nil, err
	}

	var staged interface{}
	var err error
	if m, ok := src.(mat.Matrix); ok {
		staged, err = stageMatrix(m, b.dataType, b.n)
	} else {
		staged, err = stageForDevice(src, b.dataType, b.n)
	}
	if err != nil {
		return nil, wrapError(InvalidArgument, op, err, "cannot write %T to %v buffer", src, b.dataType)
	}

	return b.env.queue.enqueue(op, blocking, b.copyFromHost(staged))
}

// copyFromHost is the queued half of Write
func (b *Buffer) copyFromHost(staged interface{}) func() error {
	bytes := b.Bytes()
	return func() error {
		if b.freed {
			return newError(Released, "Write", "buffer was released before the copy ran")
		}
		b.mem.CopyFrom(slicePointer(staged), bytes)
		runtime.KeepAlive(staged)
		b.env.rt.uploaded.Add(bytes)
		return nil
	}
}

// Read copies device data into dst, which follows the same rules as the
// source of Write; a *mat.Dense receives the column-major data transposed
// back. With blocking false dst is only valid once the event completes.
func (b *Buffer) Read(dst interface{}, blocking bool) (*Event, error) {
	const op = "Read"
	if err := b.checkLive(op); err != nil {
		return nil, err
	}

	var stage interface{}
	var finish func() error
	if m, ok := dst.(*mat.Dense); ok {
		rows, cols := m.Dims()
		if rows*cols != b.n {
			return nil, newError(InvalidArgument, op,
				"matrix has %d entries, buffer holds %d", rows*cols, b.n)
		}
		if !b.dataType.IsFloat() {
			return nil, newError(InvalidArgument, op, "cannot read %v buffer into a matrix", b.dataType)
		}
		stage = newDeviceSlice(b.dataType, b.n)
		finish = func() error { return unstageMatrix(stage, m) }
	} else {
		hostType, n, err := hostDataType(dst)
		if err != nil {
			return nil, wrapError(InvalidArgument, op, err, "cannot read into %T", dst)
		}
		if n != b.n {
			return nil, newError(InvalidArgument, op, "destination has %d values, buffer holds %d", n, b.n)
		}
		if !compatible(hostType, b.dataType) {
			return nil, newError(InvalidArgument, op, "cannot convert %v buffer to %v", b.dataType, hostType)
		}
		if hostType == b.dataType {
			stage = dst
		} else {
			stage = newDeviceSlice(b.dataType, b.n)
			finish = func() error { return convertInto(stage, dst) }
		}
	}

	return b.env.queue.enqueue(op, blocking, b.copyToHost(stage, finish))
}

// copyToHost is the queued half of Read
func (b *Buffer) copyToHost(stage interface{}, finish func() error) func() error {
	bytes := b.Bytes()
	return func() error {
		if b.freed {
			return newError(Released, "Read", "buffer was released before the copy ran")
		}
		b.mem.CopyTo(slicePointer(stage), bytes)
		runtime.KeepAlive(stage)
		b.env.rt.downloaded.Add(bytes)
		if finish != nil {
			if err := finish(); err != nil {
				return wrapError(TransferFailure, "Read", err, "host conversion failed")
			}
		}
		return nil
	}
}

// Release frees the device memory. Commands queued before Release complete
// first.
func (b *Buffer) Release() error {
	if err := b.free(); err != nil {
		return err
	}
	b.env.untrackBuffer(b)
	return nil
}

func (b *Buffer) free() error {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return newError(Released, "Release", "buffer has already been released")
	}
	b.released = true
	b.mu.Unlock()

	err := b.env.queue.do("Release", func() error {
		b.mem.Free()
		b.freed = true
		return nil
	})
	b.env.rt.trackFree(b.Bytes())
	return err
}
