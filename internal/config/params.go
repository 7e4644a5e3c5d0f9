// Package config defines the Publisher/Subscriber Params bundle (spec §6)
// and loads it the way the teacher's pkg/config loads service configuration:
// YAML by default, JSON by extension, environment overrides on top.
package config

import (
	"os"

	"github.com/fluxorio/flowqueue/pkg/config"
)

const (
	defaultSyncThrottleMS = 1
	defaultWindowSize     = 80 << 20 // 80 MiB
	defaultMaxFileSize    = 1 << 30  // 1 GiB

	minSyncThrottleMS = 1
	maxSyncThrottleMS = 60_000
	minWindowOrFile   = 4096
	maxWindowOrFile   = 1 << 40
	minPageSize       = 1
	maxPageSize       = 1 << 20
)

// Params mirrors spec §6's Configuration table. Zero values are replaced by
// defaults in Normalize.
type Params struct {
	SyncThrottleMS int64 `yaml:"sync_throttle_ms" json:"sync_throttle_ms"`
	WindowSize     int64 `yaml:"window_size" json:"window_size"`
	MaxFileSize    int64 `yaml:"max_file_size" json:"max_file_size"`
	PageSize       int64 `yaml:"page_size" json:"page_size"`
}

// DefaultParams returns the documented defaults, page size resolved from the
// host.
func DefaultParams() Params {
	return Params{
		SyncThrottleMS: defaultSyncThrottleMS,
		WindowSize:     defaultWindowSize,
		MaxFileSize:    defaultMaxFileSize,
		PageSize:       int64(os.Getpagesize()),
	}
}

// Normalize fills in zero fields with defaults and enforces the invariant
// that MaxFileSize must exceed WindowSize (spec §4.6 step 4).
func (p Params) Normalize() Params {
	d := DefaultParams()
	if p.SyncThrottleMS <= 0 {
		p.SyncThrottleMS = d.SyncThrottleMS
	}
	if p.WindowSize <= 0 {
		p.WindowSize = d.WindowSize
	}
	if p.MaxFileSize <= 0 {
		p.MaxFileSize = d.MaxFileSize
	}
	if p.PageSize <= 0 {
		p.PageSize = d.PageSize
	}
	if p.MaxFileSize <= p.WindowSize {
		p.MaxFileSize = p.WindowSize + p.WindowSize
	}
	return p
}

// Load reads Params from a YAML or JSON file (by extension, defaulting to
// YAML) via the shared config.Load loader, applies MQ_-prefixed environment
// overrides, normalizes defaults, and validates the result with a
// config.Manager so a malformed file or env override fails at startup rather
// than surfacing as a confusing mmap or segment error later.
func Load(path string) (Params, error) {
	var p Params
	if path != "" {
		if err := config.Load(path, &p); err != nil {
			return Params{}, err
		}
	}
	if err := config.ApplyEnvOverrides("MQ", &p); err != nil {
		return Params{}, err
	}
	p = p.Normalize()

	mgr := config.NewManager(&p)
	mgr.AddValidator(config.RangeValidator("SyncThrottleMS", minSyncThrottleMS, maxSyncThrottleMS))
	mgr.AddValidator(config.RangeValidator("WindowSize", minWindowOrFile, maxWindowOrFile))
	mgr.AddValidator(config.RangeValidator("MaxFileSize", minWindowOrFile, maxWindowOrFile))
	mgr.AddValidator(config.RangeValidator("PageSize", minPageSize, maxPageSize))
	if err := mgr.Validate(); err != nil {
		return Params{}, err
	}

	return p, nil
}

// ShouldRoll reports whether a segment whose writer has reached
// lastPosition bytes should roll to a new segment, per spec §4.6 step 4:
// both max_file_size and window_size must be exceeded.
func (p Params) ShouldRoll(lastPosition int64) bool {
	return lastPosition > p.MaxFileSize && lastPosition > p.WindowSize
}
