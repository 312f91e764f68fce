package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"weekcal/internal/bridge"
	"weekcal/internal/capture"
	"weekcal/internal/config"
	appLog "weekcal/internal/log"
	"weekcal/internal/metrics"
	"weekcal/internal/render"
	"weekcal/internal/shell"
	"weekcal/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	verbose    bool
	snapshot   string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		if conf == nil {
			appLog.Error("failed to load config", err, "config_path", flags.configPath)
			os.Exit(1)
		}
		appLog.Warn("could not write default config; continuing with defaults", "config_path", flags.configPath, "err", err)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	if flags.verbose {
		appLog.SetLevel(appLog.LevelDebug)
	}

	appLog.Info("weekcal starting",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"locale", conf.Locale,
		"sources", len(conf.Bridge.Sources),
		"snapshot_cron", conf.Snapshot.Cron,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, flags); err != nil {
		appLog.Error("weekcal exited with error", err)
		os.Exit(1)
	}
	appLog.Info("weekcal exiting")
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	loc := resolveLocationOrLocal(conf.Timezone)

	// Bind first so the redirect URL carries the real port when listen
	// uses :0.
	ln, err := net.Listen("tcp", conf.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", conf.Listen, err)
	}
	baseURL := viewerURL(ln.Addr())

	host, err := bridge.NewHost(ctx, conf.Bridge, baseURL, bridge.WithLocation(loc))
	if err != nil {
		ln.Close()
		return err
	}

	renderer := render.NewRenderer(
		render.NewColorTable(conf.EventColors, conf.FallbackColor),
		render.ResolveLocale(conf.Locale),
		loc,
	)
	list := render.NewList(renderer)

	state := shell.NewState(conf.Locked)
	state.OnChange(func(locked bool) {
		list.ToggleClass(render.DragRegionClass, !locked)
		if locked == conf.Locked {
			return
		}
		conf.Locked = locked
		if err := conf.Save(flags.configPath); err != nil {
			appLog.Error("failed to persist lock flag", err)
		}
	})

	srv := web.NewServer(conf, host, list, state, metrics.New(), web.WithLocation(loc))

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(serveCtx, ln) }()

	if flags.snapshot != "" {
		err := snapshot(ctx, conf.Snapshot, baseURL, flags.snapshot)
		cancel()
		return errors.Join(err, <-errCh)
	}

	if conf.Snapshot.Cron != "" {
		c := cron.New()
		_, err := c.AddFunc(conf.Snapshot.Cron, func() {
			if err := snapshot(ctx, conf.Snapshot, baseURL, conf.Snapshot.Output); err != nil {
				appLog.Error("scheduled snapshot failed", err)
			}
		})
		if err != nil {
			cancel()
			<-errCh
			return fmt.Errorf("snapshot cron %q: %w", conf.Snapshot.Cron, err)
		}
		c.Start()
		defer func() { <-c.Stop().Done() }()
		appLog.Info("snapshot schedule started", "cron", conf.Snapshot.Cron, "output", conf.Snapshot.Output)
	}

	return <-errCh
}

func snapshot(ctx context.Context, sc config.SnapshotConfig, url, output string) error {
	start := time.Now()
	err := capture.CaptureSchedulePNG(ctx, capture.Options{
		URL:        url,
		OutputPath: output,
		Width:      sc.Width,
		Height:     sc.Height,
	})
	if err != nil {
		return err
	}
	appLog.Info("snapshot written", "output", output, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/weekcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.verbose, "v", false, "Enable debug logging")
	flag.StringVar(&cfg.snapshot, "snapshot", "", "Capture the rendered week to this PNG path and exit")

	flag.Parse()

	return cfg
}

// viewerURL is the URL the browser and the SSO redirect use. Wildcard binds
// are reached through localhost.
func viewerURL(addr net.Addr) string {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "http://" + addr.String() + "/"
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}
