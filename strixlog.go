// Package strixlog assembles an asynchronous log manager, its default stream
// and a Prometheus registry exporting the pipeline counters.
package strixlog

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/linchenxuan/strixlog/log"
	"github.com/linchenxuan/strixlog/metrics"
)

var (
	// ErrInvalidConfigFormat is returned when a stream entry is not a map.
	ErrInvalidConfigFormat = errors.New("invalid config format")
	// ErrConfigDecode is returned when a stream entry cannot be decoded.
	ErrConfigDecode = errors.New("config decode error")
)

// Service is the core logging struct, holding the manager, the default
// stream and the metrics registry.
type Service struct {
	Manager  *log.Manager
	Stream   *log.Stream
	Registry *prometheus.Registry

	lock    sync.RWMutex
	streams map[string]*log.Stream
}

// New creates a Service, starts its drain goroutine and makes its stream the
// package-level default of the log package, stopping the manager that was the
// default before. A nil cfg uses log.DefaultCfg.
func New(cfg *log.LogCfg, opts ...log.ManagerOption) (*Service, error) {
	if cfg == nil {
		cfg = log.DefaultCfg()
	}
	c := *cfg
	c.CheckCfgValid()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	// 1. Initialize manager and default stream
	mgr := log.NewManager(&c.ManagerCfg, opts...)
	stream, err := mgr.CreateStream(&c.StreamCfg)
	if err != nil {
		_ = mgr.Stop()
		return nil, err
	}

	// 2. Initialize metrics
	reg := prometheus.NewRegistry()
	if _, err := metrics.Register(reg, mgr); err != nil {
		_ = mgr.Stop()
		return nil, fmt.Errorf("register log metrics: %w", err)
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// 3. Start draining and publish as the global default for convenient access.
	// The service owns the default from now on: a previous default manager is
	// stopped, as log.Initialize does.
	mgr.Start()
	if prev := log.SetDefault(stream); prev != nil && prev != mgr {
		if err := prev.Stop(); err != nil {
			stream.Warn().Str("stop previous default manager: ").Err(err).End()
		}
	}

	s := &Service{
		Manager:  mgr,
		Stream:   stream,
		Registry: reg,
		streams:  map[string]*log.Stream{stream.Name(): stream},
	}

	stream.Info().Msg("strixlog service initialized")
	return s, nil
}

// SetupStreams creates additional streams from a configuration map keyed by
// stream name, e.g. the [log.streams] part parsed from TOML. The key is used
// as the stream name unless the entry sets "name".
func (s *Service) SetupStreams(conf map[string]any) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	names := make([]string, 0, len(conf))
	for name := range conf {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		raw, ok := conf[name].(map[string]any)
		if !ok {
			return fmt.Errorf("%w for stream '%s'", ErrInvalidConfigFormat, name)
		}
		if _, ok := raw["name"]; !ok {
			withName := make(map[string]any, len(raw)+1)
			for k, v := range raw {
				withName[k] = v
			}
			withName["name"] = name
			raw = withName
		}

		cfg, err := log.DecodeStreamCfg(raw)
		if err != nil {
			return fmt.Errorf("%w: stream '%s': %v", ErrConfigDecode, name, err)
		}
		stream, err := s.Manager.CreateStream(cfg)
		if err != nil {
			return fmt.Errorf("create stream '%s': %w", name, err)
		}
		s.streams[stream.Name()] = stream
	}
	return nil
}

// GetStream returns the stream registered under name, or nil.
func (s *Service) GetStream(name string) *log.Stream {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.streams[name]
}

// Handler serves the metrics registry in the Prometheus exposition format.
func (s *Service) Handler() http.Handler {
	return promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{Registry: s.Registry})
}

// Refresh blocks until every staged record is written and synced.
func (s *Service) Refresh() {
	s.Manager.Refresh()
}

// Stop gracefully shuts down the service, writing every staged record and
// closing all files.
func (s *Service) Stop() error {
	s.Stream.Info().Msg("strixlog service shutting down")
	log.ResetDefault(s.Stream)
	return s.Manager.Stop()
}
