package pprof

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	httppprof "net/http/pprof"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"sync"
	"time"

	apperrors "github.com/engine-gc/pkg/errors"
	"github.com/engine-gc/pkg/utils"
)

// Collector profiles the running process.
type Collector struct {
	config *Config
	log    utils.Logger
	clock  utils.Clock

	mu      sync.Mutex
	running bool
	stamp   string
	cpuFile *os.File
	files   []string

	server   *http.Server
	listener net.Listener
	served   chan struct{}
}

// NewCollector creates a new Collector. log may be nil.
func NewCollector(cfg *Config, log utils.Logger) (*Collector, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = &utils.NullLogger{}
	}
	return &Collector{config: cfg, log: log, clock: utils.NewRealClock()}, nil
}

// Start begins collection.
func (c *Collector) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("collector is already running")
	}

	if c.config.HasProfile(ProfileBlock) {
		runtime.SetBlockProfileRate(1)
	}
	if c.config.HasProfile(ProfileMutex) {
		runtime.SetMutexProfileFraction(1)
	}

	var err error
	switch c.config.Mode {
	case ModeHTTP:
		err = c.startHTTP()
	default:
		err = c.startFile()
	}
	if err != nil {
		return err
	}
	c.running = true
	return nil
}

func (c *Collector) startFile() error {
	if err := os.MkdirAll(c.config.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	c.stamp = c.clock.Now().Format("20060102_150405")
	if !c.config.HasProfile(ProfileCPU) {
		return nil
	}

	path := c.path(ProfileCPU)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CPU profile: %w", err)
	}
	if c.config.CPURate > 0 {
		runtime.SetCPUProfileRate(c.config.CPURate)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to start CPU profile: %w", err)
	}
	c.cpuFile = f
	return nil
}

func (c *Collector) startHTTP() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", httppprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", httppprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", httppprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", httppprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", httppprof.Trace)

	ln, err := net.Listen("tcp", c.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", c.config.Addr, err)
	}
	c.listener = ln
	c.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	c.served = make(chan struct{})
	go func() {
		defer close(c.served)
		if err := c.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.log.Error("pprof HTTP server error: %v", err)
		}
	}()
	c.log.Info("pprof endpoints at http://%s/debug/pprof/", ln.Addr())
	return nil
}

// Addr returns the address the HTTP endpoints listen on, or "" in file mode.
func (c *Collector) Addr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

// Stop ends collection. In file mode the remaining profiles are written
// now. Stopping a stopped collector is a no-op.
func (c *Collector) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.running = false

	if c.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := c.server.Shutdown(ctx)
		<-c.served
		c.server, c.listener = nil, nil
		return err
	}

	var errs []error
	if c.cpuFile != nil {
		pprof.StopCPUProfile()
		if err := c.cpuFile.Close(); err != nil {
			errs = append(errs, err)
		} else {
			c.files = append(c.files, c.cpuFile.Name())
		}
		c.cpuFile = nil
	}
	for _, pt := range c.config.Profiles {
		if pt == ProfileCPU {
			continue
		}
		if err := c.writeProfile(pt); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return apperrors.Wrap(apperrors.CodeUnknown, "write profiles", err)
	}
	return nil
}

func (c *Collector) writeProfile(pt ProfileType) error {
	p := pprof.Lookup(string(pt))
	if p == nil {
		return fmt.Errorf("%s profile not found", pt)
	}
	if pt == ProfileHeap {
		runtime.GC()
	}
	path := c.path(pt)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.WriteTo(f, 0); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s profile: %w", pt, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	c.files = append(c.files, path)
	return nil
}

func (c *Collector) path(pt ProfileType) string {
	return filepath.Join(c.config.OutputDir, fmt.Sprintf("%s_%s.pprof", pt, c.stamp))
}

// Files lists the profiles written so far.
func (c *Collector) Files() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.files...)
}
