// Package daemon runs background sync work for a long-lived ledger process.
//
// The daemon:
//  1. Pulls from the remote on a fixed interval (when configured)
//  2. Watches the config file and hot-reloads the remote base URL
//  3. Shuts down cleanly, leaving the final push to PushOnShutdown
package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	ledgersync "github.com/vertexads/ledger/internal/ledger/sync"
)

// Engine is the sync engine surface the daemon drives.
type Engine interface {
	ledgersync.Syncer
	SetBaseURL(url string)
	BaseURL() string
}

// Config holds configuration for the daemon.
type Config struct {
	// PullInterval between periodic pulls. Zero disables them.
	PullInterval time.Duration

	// ConfigFile to watch. Empty disables hot reload.
	ConfigFile string

	// Reload re-reads configuration and returns the remote base URL.
	// Required when ConfigFile is set.
	Reload func() (string, error)

	// DebounceInterval batches rapid writes to the config file.
	DebounceInterval time.Duration

	// OnSync is called after every daemon-initiated flow.
	OnSync func(res ledgersync.Result, err error)

	Logger logrus.FieldLogger
}

// DefaultConfig returns a config with hot reload and periodic pull disabled.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 200 * time.Millisecond,
		Logger:           logrus.StandardLogger(),
	}
}

// Daemon runs periodic pulls and config reloads against an Engine.
type Daemon struct {
	engine Engine
	config *Config
	logger logrus.FieldLogger

	watcher *FileWatcher

	pendingMu sync.Mutex
	pending   time.Time // zero when no reload is queued

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a daemon for engine. Use Start to run it.
//
// When ConfigFile is set the watch is established here, so a bad path
// fails before anything else starts. Stop releases it even if Start is
// never called.
func New(engine Engine, config *Config) (*Daemon, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.PullInterval < 0 {
		return nil, fmt.Errorf("pull interval cannot be negative")
	}
	if config.ConfigFile != "" && config.Reload == nil {
		return nil, fmt.Errorf("reload func is required to watch %s", config.ConfigFile)
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultConfig().DebounceInterval
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}

	d := &Daemon{
		engine: engine,
		config: config,
		logger: config.Logger.WithField("component", "daemon"),
	}

	if config.ConfigFile != "" {
		w, err := NewFileWatcher()
		if err != nil {
			return nil, err
		}
		if err := w.Start(config.ConfigFile); err != nil {
			_ = w.Stop()
			return nil, err
		}
		d.watcher = w
	}

	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// Start runs the daemon. It blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.logger.Info("Starting daemon")

	if d.watcher != nil {
		d.logger.WithField("file", d.watcher.Path()).Info("Watching config")

		d.wg.Add(2)
		go d.watchConfig()
		go d.processReloads()
	}

	if d.config.PullInterval > 0 {
		d.logger.WithField("interval", d.config.PullInterval.String()).Info("Periodic pull enabled")
		d.wg.Add(1)
		go d.pullLoop()
	}

	select {
	case <-ctx.Done():
		d.logger.Info("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop shuts the daemon down and waits for its goroutines. A pull already
// in flight finishes first. Stop is safe to call more than once.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.logger.Info("Stopping daemon")
		d.cancel()

		if d.watcher != nil {
			if err := d.watcher.Stop(); err != nil {
				d.logger.WithError(err).Warn("Error closing watcher")
			}
		}

		d.wg.Wait()
		d.logger.Info("Daemon stopped")
	})
	return nil
}

// PullNow runs one pull and reports it through OnSync.
func (d *Daemon) PullNow(ctx context.Context) (ledgersync.Result, error) {
	res, err := d.engine.Pull(ctx)
	if err != nil {
		d.logger.WithError(err).Warn("Periodic pull failed")
	}
	if d.config.OnSync != nil {
		d.config.OnSync(res, err)
	}
	return res, err
}

func (d *Daemon) pullLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.PullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if d.engine.BaseURL() == "" {
				continue
			}
			_, _ = d.PullNow(d.ctx)
		}
	}
}

// watchConfig queues a reload for every change to the config file.
func (d *Daemon) watchConfig() {
	defer d.wg.Done()

	events := d.watcher.Events()
	errs := d.watcher.Errors()
	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Op == OpDelete {
				continue
			}
			d.logger.WithField("op", event.Op.String()).Debug("Config file changed")
			d.pendingMu.Lock()
			d.pending = time.Now()
			d.pendingMu.Unlock()

		case err, ok := <-errs:
			if !ok {
				return
			}
			d.logger.WithError(err).Warn("Watcher error")
		}
	}
}

// processReloads applies a queued reload once writes have settled.
func (d *Daemon) processReloads() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.pendingMu.Lock()
			due := !d.pending.IsZero() && time.Since(d.pending) >= d.config.DebounceInterval
			if due {
				d.pending = time.Time{}
			}
			d.pendingMu.Unlock()

			if due {
				d.reload()
			}
		}
	}
}

func (d *Daemon) reload() {
	url, err := d.config.Reload()
	if err != nil {
		d.logger.WithError(err).Warn("Config reload failed; keeping current remote")
		return
	}
	if url == d.engine.BaseURL() {
		return
	}
	d.engine.SetBaseURL(url)
	d.logger.WithField("api_url", d.engine.BaseURL()).Info("Remote URL reloaded")
}
