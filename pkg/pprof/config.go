// Package pprof profiles the gcsim process itself while it drives the
// collector.
//
// In file mode a CPU profile covers the whole command and the other
// profiles are written once when the collector stops. In http mode the
// standard /debug/pprof endpoints are served for the lifetime of the
// command, for attaching `go tool pprof` to a long bench.
package pprof

import (
	"fmt"
	"slices"
	"strings"

	apperrors "github.com/engine-gc/pkg/errors"
)

// ModeType selects between profile files and a live endpoint.
type ModeType string

const (
	ModeFile ModeType = "file"
	ModeHTTP ModeType = "http"
)

// ProfileType names a runtime/pprof profile.
type ProfileType string

const (
	ProfileCPU       ProfileType = "cpu"
	ProfileHeap      ProfileType = "heap"
	ProfileGoroutine ProfileType = "goroutine"
	ProfileBlock     ProfileType = "block"
	ProfileMutex     ProfileType = "mutex"
	ProfileAllocs    ProfileType = "allocs"
)

// AllProfileTypes lists every profile the collector can write.
func AllProfileTypes() []ProfileType {
	return []ProfileType{ProfileCPU, ProfileHeap, ProfileGoroutine, ProfileBlock, ProfileMutex, ProfileAllocs}
}

// DefaultProfileTypes is what a bare --pprof collects: where the simulator
// spends its time and what the arena bookkeeping allocates.
func DefaultProfileTypes() []ProfileType {
	return []ProfileType{ProfileCPU, ProfileHeap, ProfileAllocs}
}

// ParseProfileTypes reads a comma separated list such as "cpu,heap".
// Names are case-insensitive and repeats collapse. An empty list yields
// the defaults.
func ParseProfileTypes(s string) ([]ProfileType, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultProfileTypes(), nil
	}
	var types []ProfileType
	for _, field := range strings.Split(s, ",") {
		pt := ProfileType(strings.ToLower(strings.TrimSpace(field)))
		if !slices.Contains(AllProfileTypes(), pt) {
			return nil, apperrors.Newf(apperrors.CodeConfigError, "unknown profile type: %q", field)
		}
		if !slices.Contains(types, pt) {
			types = append(types, pt)
		}
	}
	return types, nil
}

// Config selects what is profiled and where it goes.
type Config struct {
	Mode     ModeType
	Profiles []ProfileType
	// OutputDir receives <profile>_<stamp>.pprof files in file mode.
	OutputDir string
	// CPURate is the CPU sampling rate in Hz; 0 keeps the runtime default.
	CPURate int
	// Addr is the listen address in http mode.
	Addr string
}

func DefaultConfig() *Config {
	return &Config{
		Mode:      ModeFile,
		Profiles:  DefaultProfileTypes(),
		OutputDir: "./pprof",
		Addr:      "localhost:6060",
	}
}

// Validate returns a CONFIG_ERROR naming the first bad field.
func (c *Config) Validate() error {
	var problem string
	switch {
	case c.Mode != ModeFile && c.Mode != ModeHTTP:
		problem = fmt.Sprintf("invalid pprof mode: %q (valid: file, http)", c.Mode)
	case c.Mode == ModeFile && c.OutputDir == "":
		problem = "pprof output directory is required"
	case c.Mode == ModeHTTP && c.Addr == "":
		problem = "pprof listen address is required"
	case len(c.Profiles) == 0:
		problem = "at least one profile type must be specified"
	case c.CPURate < 0:
		problem = fmt.Sprintf("invalid CPU rate %d", c.CPURate)
	default:
		return nil
	}
	return apperrors.New(apperrors.CodeConfigError, problem)
}

// HasProfile reports whether pt is enabled.
func (c *Config) HasProfile(pt ProfileType) bool {
	return slices.Contains(c.Profiles, pt)
}
