// Package target describes the backend a graph is compiled for.
package target

import (
	"fmt"
	"strings"

	"github.com/born-ml/kiln/internal/tensor"
)

// Kind selects the family of backend.
type Kind int

// Supported target kinds.
const (
	Host Kind = iota
	Accelerator
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case Host:
		return "host"
	case Accelerator:
		return "accelerator"
	default:
		return "unknown"
	}
}

// Target fixes kernel selection and tensor placement for one compilation.
type Target struct {
	Kind Kind
	Arch string // e.g. "x86_64", "arm64", "sm_80"
	Bits int
}

// DefaultHostTarget returns the CPU target.
func DefaultHostTarget() Target {
	return Target{Kind: Host, Arch: "generic", Bits: 64}
}

// DefaultAcceleratorTarget returns the GPU target.
func DefaultAcceleratorTarget() Target {
	return Target{Kind: Accelerator, Arch: "gpu", Bits: 64}
}

// Device returns where tensors for this target are placed.
func (t Target) Device() tensor.Device {
	if t.Kind == Accelerator {
		return tensor.Accelerator
	}
	return tensor.Host
}

// String renders the target as "host/generic".
func (t Target) String() string {
	return t.Kind.String() + "/" + t.Arch
}

// Parse accepts "host", "cpu", "accelerator", "gpu" and "cuda",
// optionally followed by "/arch".
func Parse(s string) (Target, error) {
	kind, arch, _ := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "/")
	var t Target
	switch kind {
	case "host", "cpu", "x86", "x86_64", "arm64":
		t = DefaultHostTarget()
	case "accelerator", "gpu", "cuda", "nvgpu":
		t = DefaultAcceleratorTarget()
	default:
		return Target{}, fmt.Errorf("unknown target %q", s)
	}
	if arch != "" {
		t.Arch = arch
	}
	return t, nil
}
