package builder

import (
	"fmt"
)

// Direction indicates parameter data flow
type Direction int

const (
	DirectionInput Direction = iota
	DirectionOutput
	DirectionInOut
	DirectionScalar
)

// ParamBuilder provides a fluent interface for declaring kernel parameters
type ParamBuilder struct {
	Spec ParamSpec
}

// ParamSpec describes one kernel parameter
type ParamSpec struct {
	Name      string
	Direction Direction
	// Zero means the builder's real_t for arrays and int_t for scalars
	DataType DataType

	// Host value the parameter is launched with: a slice, a mat.Matrix,
	// a device buffer or, for scalars, the value itself
	HostBinding interface{}

	// Data movement around a launch, see Transfers
	DoCopyTo   bool
	DoCopyBack bool
	copySet    bool
}

// Input creates a parameter for a const input array
func Input(name string) *ParamBuilder {
	return &ParamBuilder{Spec: ParamSpec{Name: name, Direction: DirectionInput}}
}

// Output creates a parameter for a non-const output array
func Output(name string) *ParamBuilder {
	return &ParamBuilder{Spec: ParamSpec{Name: name, Direction: DirectionOutput}}
}

// InOut creates a parameter for a non-const input/output array
func InOut(name string) *ParamBuilder {
	return &ParamBuilder{Spec: ParamSpec{Name: name, Direction: DirectionInOut}}
}

// Scalar creates a parameter for a scalar passed by value
func Scalar(name string) *ParamBuilder {
	return &ParamBuilder{Spec: ParamSpec{Name: name, Direction: DirectionScalar}}
}

// Type sets an explicit element type
func (p *ParamBuilder) Type(dataType DataType) *ParamBuilder {
	p.Spec.DataType = dataType
	return p
}

// Bind associates a host value with this parameter
func (p *ParamBuilder) Bind(hostVar interface{}) *ParamBuilder {
	p.Spec.HostBinding = hostVar
	return p
}

// Copy sets bidirectional copy (host→device before, device→host after)
func (p *ParamBuilder) Copy() *ParamBuilder {
	p.Spec.DoCopyTo = true
	p.Spec.DoCopyBack = true
	p.Spec.copySet = true
	return p
}

// CopyTo sets host→device copy before kernel execution
func (p *ParamBuilder) CopyTo() *ParamBuilder {
	p.Spec.DoCopyTo = true
	p.Spec.copySet = true
	return p
}

// CopyBack sets device→host copy after kernel execution
func (p *ParamBuilder) CopyBack() *ParamBuilder {
	p.Spec.DoCopyBack = true
	p.Spec.copySet = true
	return p
}

// NoCopy explicitly disables data movement
func (p *ParamBuilder) NoCopy() *ParamBuilder {
	p.Spec.DoCopyTo = false
	p.Spec.DoCopyBack = false
	p.Spec.copySet = true
	return p
}

// Transfers reports whether host data is uploaded before and downloaded after
// a launch. Without Copy, CopyTo, CopyBack or NoCopy the direction decides:
// inputs are uploaded only, outputs are downloaded only and never uploaded,
// in/out parameters move both ways. Scalars never move.
func (p *ParamSpec) Transfers() (copyTo, copyBack bool) {
	if p.Direction == DirectionScalar {
		return false, false
	}
	if p.copySet {
		return p.DoCopyTo, p.DoCopyBack
	}
	switch p.Direction {
	case DirectionInput:
		return true, false
	case DirectionOutput:
		return false, true
	default:
		return true, true
	}
}

// Validate checks that the parameter is complete and valid
func (p *ParamSpec) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("parameter name cannot be empty")
	}
	if p.DataType != 0 && !p.DataType.Valid() {
		return fmt.Errorf("parameter %s has invalid type %v", p.Name, p.DataType)
	}
	if p.Direction < DirectionInput || p.Direction > DirectionScalar {
		return fmt.Errorf("parameter %s has invalid direction %d", p.Name, p.Direction)
	}
	return nil
}

// IsConst returns whether this parameter should be const in the kernel signature
func (p *ParamSpec) IsConst() bool {
	switch p.Direction {
	case DirectionOutput, DirectionInOut:
		return false
	default:
		return true
	}
}
