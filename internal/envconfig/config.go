// Package envconfig reads KILN_* environment variables.
package envconfig

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"k8s.io/klog/v2"
)

// Var returns an environment variable with surrounding spaces and quotes removed.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// BoolWithDefault returns a getter for a boolean variable. A set but
// unparsable value counts as true.
func BoolWithDefault(key string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(key); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool returns a getter for a boolean variable defaulting to false.
func Bool(key string) func() bool {
	withDefault := BoolWithDefault(key)
	return func() bool { return withDefault(false) }
}

// String returns a getter for a string variable.
func String(key string) func() string {
	return func() string { return Var(key) }
}

// Uint returns a getter for an unsigned variable with a default.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			n, err := strconv.ParseUint(s, 10, 64)
			if err == nil {
				return uint(n)
			}
			klog.Warningf("invalid %s=%q, using default %d", key, s, defaultValue)
		}
		return defaultValue
	}
}

var (
	// NoParallel disables data-parallel kernel loops.
	NoParallel = Bool("KILN_NO_PARALLEL")
	// TargetName selects the default compilation target.
	TargetName = String("KILN_TARGET")
)

// Debug returns the klog verbosity requested through KILN_DEBUG.
// true means 1; an integer is used as is.
func Debug() int {
	s := Var("KILN_DEBUG")
	if s == "" {
		return 0
	}
	if b, err := strconv.ParseBool(s); err == nil {
		if b {
			return 1
		}
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	klog.Warningf("invalid KILN_DEBUG=%q, ignoring", s)
	return 0
}

// NumThreads is the worker count for data-parallel kernel loops.
// Default: the number of CPUs.
func NumThreads() uint {
	return Uint("KILN_NUM_THREADS", uint(runtime.NumCPU()))()
}

// CompileWorkers bounds the goroutines resolving kernels during compilation.
// Default: the number of CPUs.
func CompileWorkers() uint {
	return Uint("KILN_COMPILE_WORKERS", uint(runtime.NumCPU()))()
}

// MemoryLimit is the byte budget of a scope. Zero means unlimited.
// Accepts plain bytes or a KB/MB/GB (powers of 1000) or KiB/MiB/GiB suffix.
func MemoryLimit() uint64 {
	s := Var("KILN_MEMORY_LIMIT")
	if s == "" {
		return 0
	}
	n, err := ParseBytes(s)
	if err != nil {
		klog.Warningf("invalid KILN_MEMORY_LIMIT=%q, using unlimited: %v", s, err)
		return 0
	}
	return n
}

// Passes returns the default pass list from KILN_PASSES (comma separated).
func Passes() []string {
	s := Var("KILN_PASSES")
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var byteUnits = []struct {
	suffix string
	mult   uint64
}{
	// Longest suffixes first so "KiB" is not read as "B".
	{"KiB", 1 << 10}, {"MiB", 1 << 20}, {"GiB", 1 << 30},
	{"KB", 1000}, {"MB", 1000 * 1000}, {"GB", 1000 * 1000 * 1000},
	{"B", 1},
}

// ParseBytes parses a byte count such as "512MiB", "2GB" or "1024".
func ParseBytes(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	mult := uint64(1)
	for _, u := range byteUnits {
		if rest, ok := strings.CutSuffix(s, u.suffix); ok {
			s, mult = strings.TrimSpace(rest), u.mult
			break
		}
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse byte count: %w", err)
	}
	return n * mult, nil
}

// EnvVar describes one variable for display.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every variable with its current value.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"KILN_DEBUG":           {"KILN_DEBUG", Debug(), "Log verbosity (e.g. KILN_DEBUG=1, KILN_DEBUG=3)"},
		"KILN_NUM_THREADS":     {"KILN_NUM_THREADS", NumThreads(), "Workers for data-parallel kernel loops"},
		"KILN_NO_PARALLEL":     {"KILN_NO_PARALLEL", NoParallel(), "Run kernel loops sequentially"},
		"KILN_COMPILE_WORKERS": {"KILN_COMPILE_WORKERS", CompileWorkers(), "Goroutines resolving kernels during compilation"},
		"KILN_MEMORY_LIMIT":    {"KILN_MEMORY_LIMIT", MemoryLimit(), "Scope memory budget in bytes, 0 for unlimited (e.g. 512MiB)"},
		"KILN_TARGET":          {"KILN_TARGET", TargetName(), "Default compilation target (default \"host\")"},
		"KILN_PASSES":          {"KILN_PASSES", Passes(), "Default comma separated pass list"},
	}
}

// Values returns AsMap rendered as strings.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
