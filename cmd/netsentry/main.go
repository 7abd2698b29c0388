package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"netsentry/internal/config"
	"netsentry/internal/database"
	"netsentry/internal/metrics"
	"netsentry/internal/monitoring"
	"netsentry/internal/notifications"
	"netsentry/internal/routeros"
	"netsentry/internal/web"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Configuration file path")
	envFile := flag.String("env", ".env", "Optional environment file holding router and sink credentials")
	version := flag.Bool("version", false, "Show version information")
	once := flag.Bool("once", false, "Print the devices currently on the network and exit")
	flag.Parse()

	if *version {
		fmt.Printf("netsentry %s\nCommit: %s\nBuilt: %s\n", web.Version, web.GitCommit, web.BuildTime)
		os.Exit(0)
	}

	if _, err := os.Stat(*envFile); err == nil {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", *envFile, err)
			os.Exit(1)
		}
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg.Logging)

	logrus.WithFields(logrus.Fields{
		"config_file": *configFile,
		"router":      cfg.Router.BaseURL(),
		"interval":    cfg.Monitoring.PollInterval,
	}).Info("Starting netsentry")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsCollector := metrics.NewCollector()

	var store database.Store
	if config.Enabled(cfg.Database.Enabled) && !*once {
		boltStore, err := database.NewBoltStore(cfg.Database.Path)
		if err != nil {
			logrus.Fatalf("Failed to initialize database: %v", err)
		}
		defer boltStore.Close()
		store = boltStore

		retention := database.NewRetention(store, cfg.Database.HistoryRetention)
		retention.SchedulePeriodicPurge(ctx, cfg.Database.CleanupInterval)
	}

	client, err := routeros.NewClient(cfg.Router, cfg.Monitoring.FetchTimeout)
	if err != nil {
		logrus.Fatalf("Failed to initialize router client: %v", err)
	}

	var hub *web.Hub
	if config.Enabled(cfg.Server.Enabled) && !*once {
		hub = web.NewHub(metricsCollector)
	}

	sinks, closeSinks := buildSinks(ctx, cfg, store, hub, metricsCollector)
	defer closeSinks()

	dispatcher := notifications.NewDispatcher(cfg.Notifications, metricsCollector, sinks...)
	dispatcher.Start()
	defer dispatcher.Close()

	engine, err := monitoring.NewEngine(cfg, client, dispatcher, store, metricsCollector)
	if err != nil {
		logrus.Fatalf("Failed to initialize monitoring engine: %v", err)
	}

	if *once {
		if err := runOnce(ctx, engine); err != nil {
			logrus.WithError(err).Error("Device listing failed")
			dispatcher.Close()
			os.Exit(1)
		}
		return
	}

	var webServer *web.Server
	if hub != nil {
		webServer = web.NewServer(cfg, store, engine, dispatcher, hub, metricsCollector)
		if err := webServer.Start(ctx); err != nil {
			logrus.Fatalf("Failed to start web server: %v", err)
		}
	}

	runErr := engine.Run(ctx)
	logrus.Info("Shutting down")

	if webServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := webServer.Stop(shutdownCtx); err != nil {
			logrus.WithError(err).Warn("Web server shutdown failed")
		}
	}

	logrus.Info("Shutdown complete")
	if runErr != nil {
		dispatcher.Close()
		os.Exit(1)
	}
}

// buildSinks assembles the enabled notification sinks. The returned func
// releases any connections they hold.
func buildSinks(ctx context.Context, cfg *config.Config, store database.Store, hub *web.Hub, collector *metrics.Collector) ([]notifications.Sink, func()) {
	sinks := []notifications.Sink{notifications.LogSink{}}
	var closers []func() error

	if cfg.Notifications.Desktop.Enabled {
		sinks = append(sinks, notifications.NewDesktopSink(cfg.Notifications.Desktop))
	}

	if cfg.Notifications.Pushover.Enabled {
		pushover, err := notifications.NewPushoverSink(cfg.Notifications.Pushover, &http.Client{Timeout: cfg.Notifications.Timeout})
		if err != nil {
			logrus.Fatalf("Failed to initialize Pushover: %v", err)
		}
		sinks = append(sinks, pushover)
	}

	if cfg.Notifications.Redis.Enabled {
		redisSink := notifications.NewRedisSink(cfg.Notifications.Redis)
		pingCtx, cancel := context.WithTimeout(ctx, cfg.Notifications.Timeout)
		if err := redisSink.Ping(pingCtx); err != nil {
			logrus.WithError(err).WithField("addr", cfg.Notifications.Redis.Addr).Warn("Redis unreachable, alerts will be retried per event")
		}
		cancel()
		sinks = append(sinks, redisSink)
		closers = append(closers, redisSink.Close)
	}

	if store != nil {
		sinks = append(sinks, notifications.NewJournalSink(store, collector))
	}

	if hub != nil {
		sinks = append(sinks, hub)
	}

	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = s.Name()
	}
	logrus.WithField("sinks", names).Info("Notification sinks configured")

	return sinks, func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logrus.WithError(err).Warn("Failed to close notification sink")
			}
		}
	}
}

func runOnce(ctx context.Context, engine *monitoring.Engine) error {
	statuses, err := engine.Once(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MAC\tADDRESS\tINTERFACE\tNAME\tCATEGORY\tSEVERITY")
	for _, s := range statuses {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", s.MAC, s.Address, s.Interface, s.DisplayName, s.Category, s.Severity)
	}
	return w.Flush()
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
}
