package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"oatcontrol/pkg/api"
	"oatcontrol/pkg/config"
	"oatcontrol/pkg/devices"
	"oatcontrol/pkg/indi"
	"oatcontrol/pkg/phd2"
	"oatcontrol/pkg/telemetry"

	log "github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"
	bolt "go.etcd.io/bbolt"
	"gopkg.in/natefinch/lumberjack.v2"
)

var version = "dev"

// loadConfig reads the YAML file, if any, and lets flags override it.
func loadConfig(c *cli.Context) (config.ServerConfig, error) {
	cfg, err := config.LoadServerConfig(c.String("config"))
	if err != nil {
		return cfg, err
	}

	if c.IsSet("debug") {
		cfg.Log.Debug = c.Bool("debug")
	}
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if c.IsSet("db") {
		cfg.DBPath = c.String("db")
	}
	if c.IsSet("log-file") {
		cfg.Log.File = c.String("log-file")
	}
	if c.IsSet("indi-host") {
		cfg.INDI.Host = c.String("indi-host")
	}
	if c.IsSet("indi-port") {
		cfg.INDI.Port = c.Int("indi-port")
	}
	if c.IsSet("indi-driver") {
		cfg.INDI.Driver = c.String("indi-driver")
	}
	if c.IsSet("phd2-host") {
		cfg.PHD2.Host = c.String("phd2-host")
	}
	if c.IsSet("phd2-port") {
		cfg.PHD2.Port = c.Int("phd2-port")
	}
	if c.IsSet("mqtt-broker") {
		cfg.MQTT.Broker = c.String("mqtt-broker")
	}
	if c.IsSet("mqtt-username") {
		cfg.MQTT.Username = c.String("mqtt-username")
	}
	if c.IsSet("mqtt-password") {
		cfg.MQTT.Password = c.String("mqtt-password")
	}
	if c.IsSet("discovery") {
		cfg.Discovery.Enabled = c.Bool("discovery")
	}

	return cfg, cfg.Validate()
}

func setupLogging(cfg config.LogConfig) {
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	if cfg.File == "" {
		return
	}

	log.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	}))
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("invalid configuration: %v", err)
	}
	setupLogging(cfg.Log)

	log.Infof("OAT Control Server %s", version)

	db, err := bolt.Open(cfg.DBPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return fmt.Errorf("failed to open database: %v", err)
	}
	defer db.Close()

	store, err := config.NewStore(db)
	if err != nil {
		return fmt.Errorf("failed to create store: %v", err)
	}

	rig := api.Rig{
		INDIHost:    cfg.INDI.Host,
		INDIPort:    cfg.INDI.Port,
		INDIDriver:  cfg.INDI.Driver,
		INDIOptions: []indi.Option{indi.WithLogger(log.WithField("device", "indi"))},
		PHD2URL:     phd2.BaseURL(cfg.PHD2.Host, cfg.PHD2.Port),
		PHD2Options: []phd2.Option{phd2.WithLogger(log.WithField("device", "phd2"))},
	}

	serverDesc := api.ServerDescription{
		Name:         "OAT Control Server",
		Manufacturer: "OpenAstroTech",
		Version:      version,
	}
	server := api.NewServer(serverDesc, store, rig, devices.NewLister(), log.WithField("component", "api"))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: server.AddRoutes(),
	}

	// Channel to listen for interrupt or terminate signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Infof("Server started on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Could not listen on %s: %v", srv.Addr, err)
			stop()
		}
	}()

	if cfg.Discovery.Enabled {
		dr := api.NewDiscoveryResponder(cfg.Discovery.Addr, cfg.Discovery.Port, cfg.Port, log.WithField("component", "discovery"))

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dr.Run(ctx); err != nil {
				log.Errorf("Discovery responder failed: %v", err)
			}
			log.Debug("Discovery responder stopped")
		}()
	}

	if cfg.MQTT.Broker != "" {
		client, err := telemetry.NewMQTTClient(cfg.MQTT, "oatcontrol")
		if err != nil {
			log.Errorf("Telemetry disabled: %v", err)
		} else {
			defer client.Disconnect(250)

			newINDI := func() *indi.Client {
				return indi.NewClient(rig.INDIHost, rig.INDIPort, rig.INDIOptions...)
			}
			newGuider := func() *phd2.Client {
				return phd2.NewClient(rig.PHD2URL, rig.PHD2Options...)
			}
			publisher := telemetry.NewPublisher(client, cfg.MQTT, newINDI, cfg.INDI.Driver, newGuider, log.WithField("component", "telemetry"))

			wg.Add(1)
			go func() {
				defer wg.Done()
				publisher.Run(ctx)
				log.Debug("Telemetry publisher stopped")
			}()
		}
	}

	<-ctx.Done()

	log.Info("Shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx2); err != nil {
		return fmt.Errorf("server forced to shutdown: %v", err)
	}

	wg.Wait()
	log.Info("Server stopped")
	return nil
}

func main() {
	app := cli.App{
		Name:    "oatcontrol",
		Usage:   "REST server for an OpenAstroTech mount, INDI and PHD2",
		Version: version,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "Enable debug logging",
				EnvVars: []string{"DEBUG"},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
				EnvVars: []string{"OAT_CONFIG"},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on",
				Value:   5000,
				EnvVars: []string{"OAT_PORT"},
			},
			&cli.StringFlag{
				Name:    "db",
				Usage:   "Database file for the device configuration",
				Value:   "oatcontrol.db",
				EnvVars: []string{"OAT_DB"},
			},
			&cli.StringFlag{
				Name:    "log-file",
				Usage:   "Also write logs to this file, rotated",
				EnvVars: []string{"OAT_LOG_FILE"},
			},
			&cli.StringFlag{
				Name:    "indi-host",
				Usage:   "INDI server host",
				Value:   indi.DefaultHost,
				EnvVars: []string{"INDI_HOST"},
			},
			&cli.IntFlag{
				Name:    "indi-port",
				Usage:   "INDI server port",
				Value:   indi.DefaultPort,
				EnvVars: []string{"INDI_PORT"},
			},
			&cli.StringFlag{
				Name:    "indi-driver",
				Usage:   "INDI driver of the mount",
				Value:   indi.DefaultDriver,
				EnvVars: []string{"INDI_DRIVER"},
			},
			&cli.StringFlag{
				Name:    "phd2-host",
				Usage:   "PHD2 host",
				Value:   "localhost",
				EnvVars: []string{"PHD2_HOST"},
			},
			&cli.IntFlag{
				Name:    "phd2-port",
				Usage:   "PHD2 JSON-RPC port",
				Value:   4400,
				EnvVars: []string{"PHD2_PORT"},
			},
			&cli.StringFlag{
				Name:    "mqtt-broker",
				Usage:   "MQTT broker for telemetry, e.g. tcp://localhost:1883",
				EnvVars: []string{"MQTT_BROKER"},
			},
			&cli.StringFlag{
				Name:    "mqtt-username",
				Usage:   "MQTT username",
				EnvVars: []string{"MQTT_USERNAME"},
			},
			&cli.StringFlag{
				Name:    "mqtt-password",
				Usage:   "MQTT password",
				EnvVars: []string{"MQTT_PASSWORD"},
			},
			&cli.BoolFlag{
				Name:    "discovery",
				Usage:   "Answer LAN discovery requests",
				EnvVars: []string{"OAT_DISCOVERY"},
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
