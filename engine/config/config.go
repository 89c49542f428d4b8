package config

import (
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"

	"github.com/lumen-engine/lumen/engine/core"
)

// Config drives the tunable policy knobs of the resource layer. None of
// these are load-bearing for correctness; defaults are used whenever the
// file is absent or a field is zero.
type Config struct {
	LogLevel string     `toml:"log_level"`
	Pool     PoolPolicy `toml:"pool"`
}

// PoolPolicy controls the buffer pool's background eviction sweep.
type PoolPolicy struct {
	// Idle time after which a pooled buffer becomes eligible for eviction.
	ReleaseAfterSeconds int `toml:"release_after_seconds"`
	// Interval between eviction sweeps.
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"`
}

const (
	DefaultReleaseAfter  = 30 * time.Second
	DefaultSweepInterval = 60 * time.Second
)

// Default returns the built-in policy.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Pool: PoolPolicy{
			ReleaseAfterSeconds:  int(DefaultReleaseAfter / time.Second),
			SweepIntervalSeconds: int(DefaultSweepInterval / time.Second),
		},
	}
}

// Load reads a TOML config file, falling back to defaults on any error.
func Load(path string) *Config {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		core.LogDebug("config: %s not found, using defaults", path)
		return cfg
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		core.LogWarn("config: failed to parse %s: %s", path, err)
		return Default()
	}
	if cfg.LogLevel != "" {
		core.SetLogLevel(cfg.LogLevel)
	}
	return cfg
}

// ReleaseAfter returns the idle threshold as a duration.
func (p PoolPolicy) ReleaseAfter() time.Duration {
	if p.ReleaseAfterSeconds <= 0 {
		return DefaultReleaseAfter
	}
	return time.Duration(p.ReleaseAfterSeconds) * time.Second
}

// SweepInterval returns the sweep cadence as a duration.
func (p PoolPolicy) SweepInterval() time.Duration {
	if p.SweepIntervalSeconds <= 0 {
		return DefaultSweepInterval
	}
	return time.Duration(p.SweepIntervalSeconds) * time.Second
}

// Watcher re-reads the config whenever the file changes and hands the
// parsed result to onChange. Close the returned watcher to stop.
type Watcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

func Watch(path string, onChange func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		watcher: fw,
		done:    make(chan struct{}),
	}

	go func() {
		for {
			select {
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					core.LogInfo("config: reloading %s", path)
					onChange(Load(path))
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				core.LogWarn("config: watcher error: %s", err)
			case <-w.done:
				return
			}
		}
	}()

	return w, nil
}

func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
