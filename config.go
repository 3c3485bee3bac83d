package solcore

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cast"
)

// ConnectionConfig carries the tunables a Connection needs at creation
// time. Zero values fall back to the package defaults
// (DefaultReaperInterval, DefaultDestroyWait).
type ConnectionConfig struct {
	// ReaperIntervalSeconds is how often the reaper sweeps the
	// destroyed-pending session list, in seconds.
	ReaperIntervalSeconds float64 `toml:"reaper_interval_seconds"`

	// DestroyWaitSeconds bounds how long Connection.Destroy polls for
	// sessions to become finalizable before giving up.
	DestroyWaitSeconds float64 `toml:"destroy_wait_seconds"`

	// QueueBufferSize sizes each Queue's delivery channel, for Bridge
	// drivers that back Queue with a Go channel (the in-process
	// reference driver accepts it via its WithQueueBuffer option).
	QueueBufferSize int `toml:"queue_buffer_size"`
}

// DefaultQueueBufferSize is the channel depth drivers fall back to when
// QueueBufferSize is unset.
const DefaultQueueBufferSize = 256

// ReaperInterval returns the configured reaper interval, or
// DefaultReaperInterval if unset.
func (c ConnectionConfig) ReaperInterval() time.Duration {
	if c.ReaperIntervalSeconds <= 0 {
		return DefaultReaperInterval
	}
	return time.Duration(c.ReaperIntervalSeconds * float64(time.Second))
}

// DestroyWait returns the configured destroy-wait deadline, or
// DefaultDestroyWait if unset.
func (c ConnectionConfig) DestroyWait() time.Duration {
	if c.DestroyWaitSeconds <= 0 {
		return DefaultDestroyWait
	}
	return time.Duration(c.DestroyWaitSeconds * float64(time.Second))
}

// LoadConnectionConfigTOML reads a ConnectionConfig from a TOML file.
// Scalars are re-cast through spf13/cast so callers may write
// durations as either a bare number of seconds or a quoted numeric
// string ("5") without the load failing.
func LoadConnectionConfigTOML(path string) (ConnectionConfig, error) {
	var raw map[string]interface{}
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return ConnectionConfig{}, fmt.Errorf("decode config %s: %w", path, err)
	}

	cfg := ConnectionConfig{}
	if v, ok := raw["reaper_interval_seconds"]; ok {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return cfg, fmt.Errorf("reaper_interval_seconds: %w", err)
		}
		cfg.ReaperIntervalSeconds = f
	}
	if v, ok := raw["destroy_wait_seconds"]; ok {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return cfg, fmt.Errorf("destroy_wait_seconds: %w", err)
		}
		cfg.DestroyWaitSeconds = f
	}
	if v, ok := raw["queue_buffer_size"]; ok {
		n, err := cast.ToIntE(v)
		if err != nil {
			return cfg, fmt.Errorf("queue_buffer_size: %w", err)
		}
		cfg.QueueBufferSize = n
	}
	return cfg, nil
}

// QueueBuffer returns the configured queue channel depth, or
// DefaultQueueBufferSize if unset.
func (c ConnectionConfig) QueueBuffer() int {
	if c.QueueBufferSize <= 0 {
		return DefaultQueueBufferSize
	}
	return c.QueueBufferSize
}

// WithConfig applies cfg's reaper interval and destroy wait to a
// Connection being created.
func WithConfig(cfg ConnectionConfig) ConnectionOption {
	return func(c *Connection) {
		c.reaperInterval = cfg.ReaperInterval()
		c.destroyWait = cfg.DestroyWait()
	}
}
