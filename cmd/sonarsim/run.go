package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rjboer/GoSonar/internal/acoustic"
	"github.com/rjboer/GoSonar/internal/app"
	"github.com/rjboer/GoSonar/internal/audio"
	"github.com/rjboer/GoSonar/internal/config"
	"github.com/rjboer/GoSonar/internal/logging"
	"github.com/rjboer/GoSonar/internal/mdns"
	"github.com/rjboer/GoSonar/internal/sim"
	"github.com/rjboer/GoSonar/internal/telemetry"
)

var runFlagKeys = map[string]string{
	"addr":         "web.addr",
	"web":          "web.enabled",
	"audio":        "audio.enabled",
	"scenario":     "sim.scenario",
	"seed":         "sim.seed",
	"tick":         "sim.tick_interval",
	"lofar-mode":   "analysis.lofar_mode",
	"live-samples": "analysis.use_live_samples",
	"advertise":    "discovery.enabled",
}

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation with the web console",
		Example: `  sonarsim run --audio
  sonarsim run --scenario configs/scenario.yaml --addr :9090
  SONAR_ANALYSIS_LOFAR_MODE=fft sonarsim run`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(cmd, v, runFlagKeys)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logger)
		},
	}

	d := config.Defaults()
	f := cmd.Flags()
	f.String("addr", d.Web.Addr, "web console listen address")
	f.Bool("web", d.Web.Enabled, "serve the web console and API")
	f.Bool("audio", d.Audio.Enabled, "play contacts through the audio device")
	f.String("scenario", "", "scenario YAML file (default built-in two-contact picture)")
	f.Int64("seed", 0, "random seed (0 seeds from the clock)")
	f.Duration("tick", d.Sim.TickInterval, "simulation tick interval")
	f.String("lofar-mode", d.Analysis.LofarMode, "LOFAR source (procedural, fft)")
	f.Bool("live-samples", d.Analysis.UseLiveSamples, "analyze the audio output instead of a parallel generator")
	f.Bool("advertise", d.Discovery.Enabled, "advertise the console over mDNS")
	return cmd
}

func run(ctx context.Context, cfg config.Config, logger logging.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sc := sim.DefaultScenario()
	if cfg.Sim.Scenario != "" {
		loaded, err := sim.LoadScenario(cfg.Sim.Scenario)
		if err != nil {
			return err
		}
		sc = loaded
	}
	seed := cfg.Sim.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s, err := sim.New(sc, rand.New(rand.NewSource(seed)), logger)
	if err != nil {
		return err
	}
	logger.Info("scenario loaded",
		logging.F("name", sc.Name),
		logging.F("targets", len(sc.Targets)),
		logging.F("seed", seed))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(reg)

	var (
		sink   acoustic.Sink
		device *audio.Device
	)
	if cfg.Audio.Enabled {
		device, err = audio.Open(cfg.Audio.SampleRate, cfg.Audio.Buffer, logger)
		if err != nil {
			logger.Warn("audio unavailable, continuing muted", logging.F("error", err))
		} else {
			sink = device
		}
	}
	engine := acoustic.NewEngine(sink, logger)
	if sink != nil {
		if err := engine.Initialize(); err != nil {
			return fmt.Errorf("initialize audio: %w", err)
		}
	}

	reporters := telemetry.MultiReporter{telemetry.NewStdoutReporter(logger)}
	var hub *telemetry.Hub
	if cfg.Web.Enabled {
		hub, err = telemetry.NewHub(telemetry.Config{
			AnalysisPeriodMs: int(cfg.Analysis.Period.Milliseconds()),
			LofarHistory:     cfg.Analysis.LofarHistory,
			BearingBucketMs:  cfg.Analysis.BearingBucket.Milliseconds(),
		}, logger)
		if err != nil {
			return fmt.Errorf("telemetry hub: %w", err)
		}
		hub.SetMetrics(metrics)
		reporters = append(reporters, hub)
	}

	driver := app.NewDriver(s, engine, reporters, metrics, logger, app.Config{
		TickInterval:       cfg.Sim.TickInterval,
		AnalysisPeriod:     cfg.Analysis.Period,
		AnalysisSampleRate: cfg.Analysis.SampleRate,
		DemonBuffer:        cfg.Analysis.DemonBuffer,
		LofarMode:          cfg.Analysis.LofarMode,
		FFTSize:            cfg.Analysis.FFTSize,
		Seed:               seed,
	})
	defer func() {
		if err := driver.Close(); err != nil {
			logger.Warn("shutdown", logging.F("error", err))
		}
	}()
	if device != nil && cfg.Analysis.UseLiveSamples {
		driver.SetTapper(device)
	}

	errc := make(chan error, 1)
	if hub != nil {
		hub.OnConfigChange(func(c telemetry.Config) {
			driver.SetAnalysisPeriod(time.Duration(c.AnalysisPeriodMs) * time.Millisecond)
		})
		ln, err := net.Listen("tcp", cfg.Web.Addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Web.Addr, err)
		}
		server := telemetry.NewWebServer(telemetry.ServerOptions{
			Addr:        cfg.Web.Addr,
			CORSOrigins: cfg.Web.CORSOrigins,
			Gatherer:    reg,
		}, hub, driver, logger)
		go func() { errc <- server.Serve(ctx, ln) }()

		if cfg.Discovery.Enabled {
			port := ln.Addr().(*net.TCPAddr).Port
			adv, err := mdns.Advertise(cfg.Discovery.Instance, cfg.Discovery.Service, cfg.Discovery.Domain, port,
				[]string{"path=/api", "scenario=" + sc.Name})
			if err != nil {
				logger.Warn("mdns advertisement failed", logging.F("error", err))
			} else {
				defer adv.Shutdown()
				logger.Info("advertising console", logging.F("service", cfg.Discovery.Service), logging.F("port", port))
			}
		}
	} else if cfg.Discovery.Enabled {
		logger.Warn("discovery needs the web console; not advertising")
	}

	logger.Info("simulation running (Ctrl+C to stop)", logging.F("tick", cfg.Sim.TickInterval.String()))
	runErr := make(chan error, 1)
	go func() { runErr <- driver.Run(ctx) }()

	var serveErr error
	select {
	case err = <-runErr:
	case serveErr = <-errc:
		cancel()
		err = <-runErr
	}
	if serveErr != nil {
		return serveErr
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run simulation: %w", err)
	}
	return nil
}
