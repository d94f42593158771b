package daemon

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vertexads/ledger/internal/ledger/db"
	ledgersync "github.com/vertexads/ledger/internal/ledger/sync"
	"github.com/vertexads/ledger/internal/logging"
)

type fakeEngine struct {
	mu      sync.Mutex
	url     string
	pulls   int
	pushErr error
	release chan struct{} // when set, Push blocks until closed
}

func (f *fakeEngine) Pull(ctx context.Context) (ledgersync.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls++
	return ledgersync.Result{Op: ledgersync.OpPull, Cursor: "1"}, nil
}

func (f *fakeEngine) Push(ctx context.Context) (ledgersync.Result, error) {
	if f.release != nil {
		<-f.release
	}
	return ledgersync.Result{Op: ledgersync.OpPush}, f.pushErr
}

func (f *fakeEngine) Restore(ctx context.Context) (ledgersync.Result, error) {
	return ledgersync.Result{Op: ledgersync.OpRestore}, nil
}

func (f *fakeEngine) SetBaseURL(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url = strings.TrimRight(url, "/")
}

func (f *fakeEngine) BaseURL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url
}

func (f *fakeEngine) pullCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pulls
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func quietConfig() *Config {
	cfg := DefaultConfig()
	cfg.Logger = logging.Discard()
	return cfg
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Error("Expected error for nil engine")
	}

	cfg := quietConfig()
	cfg.PullInterval = -time.Second
	if _, err := New(&fakeEngine{}, cfg); err == nil {
		t.Error("Expected error for negative interval")
	}

	cfg = quietConfig()
	cfg.ConfigFile = "ledger.toml"
	if _, err := New(&fakeEngine{}, cfg); err == nil {
		t.Error("Expected error for config file without reload func")
	}
}

func TestDaemon_PeriodicPull(t *testing.T) {
	engine := &fakeEngine{url: "http://remote"}
	var reported atomic.Int32

	cfg := quietConfig()
	cfg.PullInterval = 10 * time.Millisecond
	cfg.OnSync = func(res ledgersync.Result, err error) {
		if err == nil && res.Op == ledgersync.OpPull {
			reported.Add(1)
		}
	}

	d, err := New(engine, cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- d.Start(ctx) }()

	waitFor(t, "two pulls", func() bool { return reported.Load() >= 2 })

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Start() returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}

	if engine.pullCount() < 2 {
		t.Errorf("Expected at least 2 pulls, got %d", engine.pullCount())
	}
}

func TestDaemon_NoPullWithoutRemote(t *testing.T) {
	engine := &fakeEngine{}

	cfg := quietConfig()
	cfg.PullInterval = 5 * time.Millisecond

	d, err := New(engine, cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	go func() { _ = d.Start(context.Background()) }()
	time.Sleep(50 * time.Millisecond)
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}

	if n := engine.pullCount(); n != 0 {
		t.Errorf("Expected no pulls without a remote, got %d", n)
	}
}

func TestDaemon_ReloadsBaseURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api_url")
	if err := os.WriteFile(path, []byte("http://old"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	engine := &fakeEngine{url: "http://old"}
	cfg := quietConfig()
	cfg.ConfigFile = path
	cfg.DebounceInterval = 10 * time.Millisecond
	cfg.Reload = func() (string, error) {
		data, err := os.ReadFile(path)
		return strings.TrimSpace(string(data)), err
	}

	d, err := New(engine, cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer d.Stop()

	go func() { _ = d.Start(context.Background()) }()
	waitFor(t, "watcher start", d.watcher.IsRunning)

	if err := os.WriteFile(path, []byte("http://new/\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	waitFor(t, "base URL reload", func() bool { return engine.BaseURL() == "http://new" })
}

func TestDaemon_ReloadErrorKeepsURL(t *testing.T) {
	engine := &fakeEngine{url: "http://old"}
	cfg := quietConfig()
	cfg.ConfigFile = filepath.Join(t.TempDir(), "ledger.toml")
	cfg.Reload = func() (string, error) { return "", errors.New("bad toml") }

	d, err := New(engine, cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer d.Stop()

	d.reload()
	if got := engine.BaseURL(); got != "http://old" {
		t.Errorf("BaseURL = %q, want http://old", got)
	}
}

func TestNew_UnwatchableConfigFile(t *testing.T) {
	cfg := quietConfig()
	cfg.ConfigFile = filepath.Join(t.TempDir(), "missing", "ledger.toml")
	cfg.Reload = func() (string, error) { return "", nil }

	d, err := New(&fakeEngine{}, cfg)
	if err == nil {
		d.Stop()
		t.Fatal("Expected error for config file in a missing directory")
	}
	if d != nil {
		t.Error("Expected nil daemon on error")
	}
}

func TestDaemon_StopWithoutStart(t *testing.T) {
	cfg := quietConfig()
	cfg.ConfigFile = filepath.Join(t.TempDir(), "ledger.toml")
	cfg.Reload = func() (string, error) { return "", nil }

	d, err := New(&fakeEngine{}, cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if !d.watcher.IsRunning() {
		t.Fatal("Expected watcher to be running after New")
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if d.watcher.IsRunning() {
		t.Error("Expected watcher to be stopped")
	}
}

func TestDaemon_StopTwice(t *testing.T) {
	d, err := New(&fakeEngine{}, quietConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("first Stop() failed: %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("second Stop() failed: %v", err)
	}
}

func TestPushOnShutdown(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		done := PushOnShutdown(&fakeEngine{}, logging.Discard())
		if !WaitGrace(done, time.Second) {
			t.Fatal("push did not finish within grace")
		}
	})

	t.Run("failure is reported not raised", func(t *testing.T) {
		engine := &fakeEngine{pushErr: errors.New("sync push failed: 500 Internal Server Error")}
		done := PushOnShutdown(engine, logging.Discard())
		select {
		case err := <-done:
			if err == nil {
				t.Fatal("expected push error on channel")
			}
		case <-time.After(time.Second):
			t.Fatal("push did not finish")
		}
	})

	t.Run("grace bounds the wait", func(t *testing.T) {
		engine := &fakeEngine{release: make(chan struct{})}
		done := PushOnShutdown(engine, logging.Discard())

		start := time.Now()
		if WaitGrace(done, 20*time.Millisecond) {
			t.Fatal("blocked push reported as finished")
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("WaitGrace waited %v", elapsed)
		}

		close(engine.release)
		if !WaitGrace(done, time.Second) {
			t.Error("push did not finish after release")
		}
	})

	t.Run("zero grace does not wait", func(t *testing.T) {
		engine := &fakeEngine{release: make(chan struct{})}
		defer close(engine.release)
		if WaitGrace(PushOnShutdown(engine, logging.Discard()), 0) {
			t.Error("expected unfinished push")
		}
	})
}

func TestPushOnShutdown_Engine(t *testing.T) {
	var got atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/sync" {
			got.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer database.Close()
	if err := database.InitSchema(); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	engine := ledgersync.New(database, ledgersync.Options{BaseURL: srv.URL, Logger: logging.Discard()})

	// Hold the guard so the push has to wait for it.
	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = database.Do(context.Background(), func(*db.Session) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	done := PushOnShutdown(engine, logging.Discard())
	if WaitGrace(done, 20*time.Millisecond) {
		t.Fatal("push finished while the guard was held")
	}
	close(release)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("push failed: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("push did not finish")
	}
	if got.Load() != 1 {
		t.Errorf("remote received %d pushes, want 1", got.Load())
	}
}
