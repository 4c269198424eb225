// Package config loads linkd's runtime configuration from a YAML file and
// optionally watches it for changes, pushing reloaded values to
// subscribers. The watch loop follows fsnotify's own documented idiom: a
// goroutine selecting on Watcher.Events/Errors.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/radicle-link/linkd/p2p"
	"github.com/radicle-link/linkd/ratelimit"
)

// Config is linkd's on-disk configuration: the replication/fetch
// parameters threaded into p2p.State, the rate-limit quotas, and the
// upgrade timeout knob.
type Config struct {
	Listen         []string        `yaml:"listen"`
	UpgradeTimeout time.Duration   `yaml:"upgrade_timeout"`
	Replication    ReplicationCfg  `yaml:"replication"`
	Fetch          FetchCfg        `yaml:"fetch"`
	RateLimits     ratelimit.Config `yaml:"rate_limits"`
}

type ReplicationCfg struct {
	Factor int `yaml:"factor"`
}

type FetchCfg struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the configuration this module ships with absent an
// on-disk override: a 23s upgrade timeout and the ratelimit package's
// default quotas.
func Default() Config {
	return Config{
		UpgradeTimeout: 23 * time.Second,
		Replication:    ReplicationCfg{Factor: 3},
		Fetch:          FetchCfg{Timeout: 30 * time.Second},
		RateLimits:     ratelimit.DefaultConfig(),
	}
}

// ToP2P projects the subset of Config that p2p.Config carries.
func (c Config) ToP2P() p2p.Config {
	return p2p.Config{
		Replication: p2p.ReplicationConfig{Factor: c.Replication.Factor},
		Fetch:       p2p.FetchConfig{Timeout: c.Fetch.Timeout},
	}
}

// Load reads and parses path, filling in Default()'s values for anything
// the file omits.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(f, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Watcher reloads Config from disk whenever the backing file changes and
// publishes each successful reload to Subscribe'd channels. A failed
// reload is logged and otherwise ignored: the last good Config stays
// live.
type Watcher struct {
	path string
	log  log.Logger

	mu   sync.RWMutex
	cur  Config
	subs []chan<- Config
}

// NewWatcher loads path once and returns a Watcher serving that value
// until Run reloads it.
func NewWatcher(path string, logger log.Logger) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Root()
	}
	return &Watcher{path: path, log: logger, cur: cfg}, nil
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cur
}

// Subscribe registers ch to receive every successful reload. Sends are
// best-effort: a subscriber that isn't ready to receive misses that
// update rather than blocking the watch loop.
func (w *Watcher) Subscribe(ch chan<- Config) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subs = append(w.subs, ch)
}

// Run watches the config file for writes until stop is closed, reloading
// and republishing on every change.
func (w *Watcher) Run(stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: new watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.path); err != nil {
		return fmt.Errorf("config: watch %s: %w", w.path, err)
	}

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("config: watch error", "err", err)
		case <-stop:
			return nil
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Warn("config: reload failed, keeping previous config", "path", w.path, "err", err)
		return
	}
	w.mu.Lock()
	w.cur = cfg
	subs := append([]chan<- Config(nil), w.subs...)
	w.mu.Unlock()

	w.log.Info("config: reloaded", "path", w.path)
	for _, ch := range subs {
		select {
		case ch <- cfg:
		default:
		}
	}
}
