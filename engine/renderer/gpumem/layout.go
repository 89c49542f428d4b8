package gpumem

import (
	"fmt"

	"github.com/lumen-engine/lumen/engine/core"
	m "github.com/lumen-engine/lumen/engine/math"
	"github.com/lumen-engine/lumen/engine/renderer/driver"
)

// Attribute describes one vertex attribute within an interleaved record.
// ByteOffset is computed by NewLayout, never set by callers.
type Attribute struct {
	Name           string
	Type           driver.ComponentType
	ComponentCount int
	Normalized     bool
	// Per-instance advance for instanced rendering. Zero means per-vertex.
	InstanceDivisor uint32

	ByteOffset int
}

// Layout is an ordered attribute list plus the computed record stride.
// Each attribute's offset is the aligned end of the previous one; the
// stride is padded so every record starts aligned for its widest component.
type Layout struct {
	Attributes []Attribute
	Stride     int
}

// NewLayout validates the attributes and computes offsets and stride.
func NewLayout(attributes ...Attribute) (*Layout, error) {
	if len(attributes) == 0 {
		return nil, fmt.Errorf("%w: layout needs at least one attribute", core.ErrInvalidValue)
	}

	offset := 0
	maxAlign := 1
	for i := range attributes {
		a := &attributes[i]
		if a.ComponentCount < 1 || a.ComponentCount > 4 {
			return nil, fmt.Errorf("%w: attribute %q component count %d (want 1..4)",
				core.ErrInvalidValue, a.Name, a.ComponentCount)
		}
		size := a.Type.ByteSize()
		if size == 0 {
			return nil, fmt.Errorf("%w: attribute %q has unknown component type",
				core.ErrInvalidValue, a.Name)
		}
		offset = alignUp(offset, size)
		a.ByteOffset = offset
		offset += size * a.ComponentCount
		maxAlign = m.Max(maxAlign, size)
	}

	return &Layout{
		Attributes: attributes,
		Stride:     alignUp(offset, maxAlign),
	}, nil
}

// ComponentsPerVertex is the flat number of scalar values one vertex row
// carries across all attributes.
func (l *Layout) ComponentsPerVertex() int {
	n := 0
	for i := range l.Attributes {
		n += l.Attributes[i].ComponentCount
	}
	return n
}

// AttributeByName returns the named attribute, or false.
func (l *Layout) AttributeByName(name string) (Attribute, bool) {
	for i := range l.Attributes {
		if l.Attributes[i].Name == name {
			return l.Attributes[i], true
		}
	}
	return Attribute{}, false
}

func alignUp(v, align int) int {
	rem := v % align
	if rem == 0 {
		return v
	}
	return v + align - rem
}
