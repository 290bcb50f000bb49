package partitions

import (
	"fmt"
	"github.com/notargets/glue/glue/builder"
)

// Layout describes a contiguous decomposition of a 1-D index space into
// partitions that execute together as one @outer iteration of an OCCA kernel
type Layout struct {
	// Number of items in each partition
	K []int

	// Partition p owns items [Offsets[p], Offsets[p+1])
	Offsets []int

	KpartMax      int // max(K), the @inner extent
	NumPartitions int
	Total         int
}

// Split decomposes n items into partitions of at most maxPart items.
// Every partition is full except possibly the last one.
func Split(n, maxPart int) (*Layout, error) {
	if n <= 0 {
		return nil, fmt.Errorf("item count must be positive, got %d", n)
	}
	if maxPart <= 0 || maxPart > builder.MaxInner {
		return nil, fmt.Errorf("partition size must be in [1, %d], got %d",
			builder.MaxInner, maxPart)
	}

	numPartitions := (n + maxPart - 1) / maxPart
	l := &Layout{
		K:             make([]int, numPartitions),
		Offsets:       make([]int, numPartitions+1),
		NumPartitions: numPartitions,
		Total:         n,
	}
	remaining := n
	for p := 0; p < numPartitions; p++ {
		k := maxPart
		if remaining < k {
			k = remaining
		}
		l.K[p] = k
		l.Offsets[p+1] = l.Offsets[p] + k
		remaining -= k
		if k > l.KpartMax {
			l.KpartMax = k
		}
	}
	return l, nil
}

// Partition returns the partition containing item idx, or -1
func (l *Layout) Partition(idx int) int {
	if idx < 0 || idx >= l.Total {
		return -1
	}
	// Only the last partition may be short, so division is exact for the rest
	p := idx / l.KpartMax
	if p >= l.NumPartitions {
		p = l.NumPartitions - 1
	}
	return p
}

// BuilderConfig returns a builder configuration sized for this layout
func (l *Layout) BuilderConfig(floatType, intType builder.DataType) builder.Config {
	k := make([]int, len(l.K))
	copy(k, l.K)
	return builder.Config{
		K:         k,
		FloatType: floatType,
		IntType:   intType,
	}
}

// Validate checks partition consistency
func (l *Layout) Validate() error {
	if l.NumPartitions != len(l.K) || len(l.Offsets) != l.NumPartitions+1 {
		return fmt.Errorf("layout has %d partitions but %d sizes and %d offsets",
			l.NumPartitions, len(l.K), len(l.Offsets))
	}
	if l.Offsets[0] != 0 {
		return fmt.Errorf("first offset must be 0, got %d", l.Offsets[0])
	}
	actualMax := 0
	for p, k := range l.K {
		if l.Offsets[p+1]-l.Offsets[p] != k {
			return fmt.Errorf("partition %d: offsets span %d items but K=%d",
				p, l.Offsets[p+1]-l.Offsets[p], k)
		}
		if k > actualMax {
			actualMax = k
		}
	}
	if actualMax != l.KpartMax {
		return fmt.Errorf("computed KpartMax %d != stored KpartMax %d",
			actualMax, l.KpartMax)
	}
	if l.Offsets[l.NumPartitions] != l.Total {
		return fmt.Errorf("partitions cover %d items, expected %d",
			l.Offsets[l.NumPartitions], l.Total)
	}
	return nil
}
