package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/nerrad567/orderlink/internal/api"
	"github.com/nerrad567/orderlink/internal/infrastructure/config"
	"github.com/nerrad567/orderlink/internal/infrastructure/influxdb"
	"github.com/nerrad567/orderlink/internal/infrastructure/logging"
	"github.com/nerrad567/orderlink/internal/messaging"
)

// app holds the long-lived services shared by every command.
type app struct {
	cfg    *config.Config
	log    *logging.Logger
	client *messaging.Client
	influx *influxdb.Client
	status *api.Server
}

// getConfigPath returns the configuration file path.
// Uses the flag value if set, then ORDERLINK_CONFIG, otherwise built-in defaults.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("ORDERLINK_CONFIG")
}

// openApp loads configuration, builds the messaging client and starts the
// status endpoint when an address is configured. A non-empty statusAddr
// overrides the configured address. Logs go to logOut so that command
// output on stdout stays clean.
func openApp(ctx context.Context, configPath, statusAddr string, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(getConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if statusAddr != "" {
		cfg.Status.Address = statusAddr
	}

	log := logging.NewWithWriter(logOut, cfg.Logging, version)
	log.Debug("configuration loaded",
		"broker", cfg.Broker.URL,
		"commit", commit,
		"build_date", date,
	)

	a := &app{cfg: cfg, log: log}

	opts := []messaging.Option{messaging.WithLogger(log.With("component", "messaging"))}
	if cfg.InfluxDB.Enabled {
		a.influx, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		a.influx.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		opts = append(opts, messaging.WithMetrics(a.influx))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	a.client, err = messaging.New(cfg, nil, opts...)
	if err != nil {
		a.closeInflux()
		return nil, fmt.Errorf("creating messaging client: %w", err)
	}

	if cfg.Status.Address != "" {
		a.status, err = api.New(api.Deps{
			Config:  cfg.Status,
			Logger:  log,
			Source:  a.client,
			Version: version,
		})
		if err == nil {
			err = a.status.Start(ctx)
		}
		if err != nil {
			a.status = nil
			a.Close()
			return nil, fmt.Errorf("starting status endpoint: %w", err)
		}
	}
	return a, nil
}

// Close disconnects from the broker and flushes telemetry.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Broker.DisconnectTimeout+a.cfg.Broker.WriteTimeout)
	defer cancel()

	if a.status != nil {
		if err := a.status.Close(); err != nil {
			a.log.Warn("error closing status endpoint", "error", err)
		}
	}
	if err := a.client.Close(ctx); err != nil {
		a.log.Warn("error closing messaging client", "error", err)
	}
	a.closeInflux()
}

func (a *app) closeInflux() {
	if a.influx == nil {
		return
	}
	if err := a.influx.Close(); err != nil {
		a.log.Error("error closing InfluxDB", "error", err)
	}
}
