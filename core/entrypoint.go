package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"reflect"
	"runtime"
	"syscall"
	"time"

	"github.com/encodeous/station/perf"
	"github.com/encodeous/station/state"
	"github.com/encodeous/tint"
	"github.com/goccy/go-yaml"
	slogmulti "github.com/samber/slog-multi"
)

func ReadStationConfig(cfgPath string) (*state.StationCfg, error) {
	var cfg state.StationCfg
	file, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, err
	}
	err = yaml.Unmarshal(file, &cfg)
	if err != nil {
		return nil, err
	}
	// timetable paths are relative to the config file
	if cfg.Timetable != "" && !filepath.IsAbs(cfg.Timetable) {
		cfg.Timetable = filepath.Join(filepath.Dir(cfgPath), cfg.Timetable)
	}
	return &cfg, nil
}

// Bootstrap manages the lifetime of the whole application.
func Bootstrap(cfg state.StationCfg, logPath string, verbose bool) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if logPath != "" {
		cfg.LogPath = logPath
	}
	state.ExpandStationConfig(&cfg)
	if err := state.StationConfigValidator(&cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return Start(ctx, cfg, level, nil)
}

func NewLogger(name, logPath string, logLevel slog.Level) (*slog.Logger, func(), error) {
	handlers := make([]slog.Handler, 0)
	handlers = append(handlers,
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        logLevel,
			AddSource:    false,
			CustomPrefix: name,
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
		}))

	closer := func() {}
	if logPath != "" {
		err := os.MkdirAll(filepath.Dir(logPath), 0700)
		if err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
		if err != nil {
			return nil, nil, err
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: logLevel}))
		closer = func() { f.Close() }
	}
	return slog.New(slogmulti.Fanout(handlers...)), closer, nil
}

// Start runs a station until ctx is done or a fatal error occurs.
func Start(parent context.Context, cfg state.StationCfg, logLevel slog.Level, initState **state.State) error {
	state.ExpandStationConfig(&cfg)
	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)

	dispatch := make(chan func(env *state.State) error, state.DispatchBufferSize)

	logger, closeLog, err := NewLogger(cfg.Name, cfg.LogPath, logLevel)
	if err != nil {
		return err
	}
	defer closeLog()

	s := state.State{
		Modules: make(map[string]state.StationModule),
		Env: &state.Env{
			Context:         ctx,
			Cancel:          cancel,
			DispatchChannel: dispatch,
			StationCfg:      cfg,
			Log:             logger,
		},
	}
	if initState != nil {
		*initState = &s
	}

	s.Log.Info("init modules")
	err = initModules(&s)
	if err != nil {
		Stop(&s)
		return err
	}
	s.Log.Info("init modules complete")

	s.Log.Info("Station has been initialized. To gracefully exit, send SIGINT or Ctrl+C.", "name", cfg.Name)

	err = MainLoop(&s, dispatch)
	if err != nil {
		return err
	}
	cause := context.Cause(ctx)
	if state.IsFatal(cause) {
		return cause
	}
	return nil
}

func initModules(s *state.State) error {
	var modules []state.StationModule
	modules = append(modules, &StationTrace{})
	modules = append(modules, &QueryRouter{})
	modules = append(modules, &TimetableWatch{})
	modules = append(modules, &StationLink{})
	modules = append(modules, &ClientLink{})
	modules = append(modules, &DebugEndpoint{})

	for _, module := range modules {
		s.Modules[reflect.TypeOf(module).String()] = module
		if err := module.Init(s); err != nil {
			return fmt.Errorf("init %T: %w", module, err)
		}
	}
	return nil
}

func MainLoop(s *state.State, dispatch <-chan func(*state.State) error) error {
	s.Log.Debug("started main loop")
	s.Started.Store(true)
	for {
		select {
		case fun := <-dispatch:
			if fun == nil {
				goto endLoop
			}
			start := time.Now()
			err := fun(s)
			if err != nil {
				s.Log.Error("error occurred during dispatch: ", "error", err)
				s.Cancel(err)
			}
			elapsed := time.Since(start)
			perf.DispatchLatency.Add(float64(elapsed.Microseconds()))
			if elapsed > state.SlowDispatchThreshold {
				s.Log.Warn("dispatch took a long time!", "fun", runtime.FuncForPC(reflect.ValueOf(fun).Pointer()).Name(), "elapsed", elapsed, "len", len(dispatch))
			}
		case <-s.Context.Done():
			goto endLoop
		}
	}
endLoop:
	s.Log.Info("stopped main loop", "reason", context.Cause(s.Context).Error())
	Stop(s)
	return nil
}

func Stop(s *state.State) {
	if s.Stopping.Swap(true) {
		return // don't stop twice
	}
	s.Cancel(context.Canceled)
	if s.DispatchChannel != nil {
		close(s.DispatchChannel)
	}
	s.Log.Info("cleaning up modules")
	for moduleName, module := range s.Modules {
		err := module.Cleanup(s)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.Log.Error("error occurred during Stop: ", "module", moduleName, "error", err)
		}
	}
	s.Log.Info("stopped")
}
