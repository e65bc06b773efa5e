package main

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/bcsanches/DCCLite-sub001/internal/api"
	"github.com/bcsanches/DCCLite-sub001/internal/audit"
	"github.com/bcsanches/DCCLite-sub001/internal/bridge"
	"github.com/bcsanches/DCCLite-sub001/internal/broker"
	"github.com/bcsanches/DCCLite-sub001/internal/decoder"
	"github.com/bcsanches/DCCLite-sub001/internal/device"
	"github.com/bcsanches/DCCLite-sub001/internal/infrastructure/config"
	"github.com/bcsanches/DCCLite-sub001/internal/infrastructure/database"
	"github.com/bcsanches/DCCLite-sub001/internal/infrastructure/discovery"
	"github.com/bcsanches/DCCLite-sub001/internal/infrastructure/influxdb"
	"github.com/bcsanches/DCCLite-sub001/internal/infrastructure/logging"
	"github.com/bcsanches/DCCLite-sub001/internal/infrastructure/metrics"
	"github.com/bcsanches/DCCLite-sub001/internal/infrastructure/mqtt"
	"github.com/bcsanches/DCCLite-sub001/internal/network"
	"github.com/bcsanches/DCCLite-sub001/internal/protocol/packet"
	"github.com/bcsanches/DCCLite-sub001/internal/trace"
	"github.com/bcsanches/DCCLite-sub001/migrations"
)

// run loads the configuration, starts every component and blocks until ctx
// is cancelled. Components are torn down in reverse start order by the
// deferred calls.
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting DCCLite broker",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	defer log.Close()
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	devices, err := config.LoadDevices(cfg.Broker.DevicesFile)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	store := device.NewSQLiteStore(db.DB, log.With("component", "store"))
	commands := audit.NewSQLiteRepository(db.DB)
	defer store.Close()

	m := metrics.New()

	var tracer network.Tracer
	if cfg.Trace.Enabled {
		rec, traceErr := trace.NewRecorder(cfg.Trace.Path)
		if traceErr != nil {
			return fmt.Errorf("opening packet trace: %w", traceErr)
		}
		defer func() {
			if closeErr := rec.Close(); closeErr != nil {
				log.Error("error closing packet trace", "error", closeErr)
			}
			log.Info("packet trace closed", "records", rec.Count())
		}()
		tracer = rec
		log.Info("recording packet trace", "path", cfg.Trace.Path)
	}

	disp, err := network.Listen(ctx, network.Config{
		Address:   fmt.Sprintf(":%d", cfg.Broker.Port),
		QueueSize: cfg.Broker.QueueSize,
		Logger:    log.With("component", "network"),
		Tracer:    tracer,
	})
	if err != nil {
		return fmt.Errorf("starting UDP listener: %w", err)
	}
	defer disp.Close()
	log.Info("listening for devices", "address", disp.LocalAddr().String())

	m.RegisterPacketSource(func() metrics.PacketCounters {
		st := disp.Stats()
		return metrics.PacketCounters{
			Rx:        st.PacketsRx,
			Tx:        st.PacketsTx,
			Dropped:   st.PacketsDropped,
			Invalid:   st.PacketsInvalid,
			Truncated: st.PacketsTruncated,
			Discovery: st.DiscoveryReplies,
			Errors:    st.ErrorsTotal,
		}
	})

	// The service is created after its observers; the MQTT bridge reaches
	// it through svc once it exists.
	var svc *broker.Service

	observers := device.Observers{bridge.NewMetricsObserver(m)}
	var async []*broker.AsyncObserver
	addAsync := func(o device.Observer) {
		a := broker.NewAsyncObserver(o, 0, log)
		async = append(async, a)
		observers = append(observers, a)
	}

	hub := api.NewHub(cfg.API.WS, log.With("component", "events"))
	go hub.Run(ctx)
	addAsync(hub)

	var mqttClient *mqtt.Client
	var mqttBridge *bridge.MQTTBridge
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() { log.Info("MQTT connected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttBridge = bridge.NewMQTTBridge(bridge.MQTTConfig{
			Topics:    mqttClient.Topics(),
			QoS:       mqttClient.QoS(),
			Publisher: mqttClient,
			Commander: bridge.CommanderFunc(func(ctx context.Context, dev, dec string, st decoder.State) error {
				return svc.SetDecoderStateByName(ctx, dev, dec, st)
			}),
			Logger: log.With("component", "mqtt_bridge"),
			Audit:  commands,
		})
		addAsync(mqttBridge)
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		addAsync(bridge.NewTelemetryObserver(influxClient))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Drain queued notifications before the sinks above close.
	defer func() {
		for _, a := range async {
			a.Close()
			if n := a.Dropped(); n > 0 {
				log.Warn("observer dropped notifications", "count", n)
			}
		}
	}()

	svc, err = broker.New(broker.Config{
		TickInterval:     cfg.Broker.TickInterval,
		CommandQueueSize: cfg.Broker.QueueSize,
		Timing:           cfg.Broker.Timing.Merge(device.DefaultTiming()),
	}, broker.Deps{
		Sender:   disp,
		Events:   disp.Events(),
		Store:    store,
		Observer: observers,
		Logger:   log.With("component", "broker"),
		Metrics:  m,
	})
	if err != nil {
		return fmt.Errorf("creating broker: %w", err)
	}
	if err := svc.LoadDevices(devices); err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}
	log.Info("devices loaded", "count", len(devices), "path", cfg.Broker.DevicesFile)

	runCtx, stopRun := context.WithCancel(ctx)
	runErr := make(chan error, 1)
	go func() { runErr <- svc.Run(runCtx) }()
	defer func() {
		stopRun()
		<-svc.Done()
	}()

	if mqttBridge != nil {
		if err := mqttBridge.Subscribe(mqttClient); err != nil {
			return err
		}
		health := bridge.NewHealthReporter(bridge.HealthConfig{
			Broker:    cfg.Broker.Name,
			Version:   version,
			Topic:     mqttClient.Topics().BrokerHealth(),
			QoS:       mqttClient.QoS(),
			Interval:  cfg.MQTT.HealthInterval,
			Publisher: mqttClient,
			Stats:     statsFunc(svc, disp),
			Logger:    log.With("component", "health"),
		})
		health.Start(ctx)
		defer health.Stop()
	}

	if cfg.Discovery.Enabled {
		adv := discovery.NewAdvertiser()
		instance := cfg.Discovery.Instance
		if instance == "" {
			instance = cfg.Broker.Name
		}
		if advErr := adv.Start(discovery.Info{
			Instance:        instance,
			Port:            cfg.Broker.Port,
			Version:         version,
			ProtocolVersion: packet.ProtocolVersion,
		}); advErr != nil {
			log.Warn("mDNS advertisement failed, devices must be configured with the broker address", "error", advErr)
		} else {
			defer adv.Stop()
			log.Info("advertising broker", "instance", adv.Instance(), "service", discovery.ServiceType)
		}
	}

	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log.With("component", "api"),
			Broker:  svc,
			Hub:     hub,
			Metrics: m.Handler(),
			Audit:   commands,
			Version: version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if apiErr := srv.Start(ctx); apiErr != nil {
			return fmt.Errorf("starting API server: %w", apiErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
	case err := <-runErr:
		return fmt.Errorf("broker stopped: %w", err)
	}

	log.Info("DCCLite broker stopped")
	return nil
}

// statsFunc gathers health statistics from the broker and the dispatcher.
func statsFunc(svc *broker.Service, disp *network.Dispatcher) bridge.StatsFunc {
	return func(ctx context.Context) (bridge.Statistics, error) {
		infos, err := svc.Snapshot(ctx)
		if err != nil {
			return bridge.Statistics{}, err
		}
		st := disp.Stats()
		stats := bridge.Statistics{
			DevicesTotal:   len(infos),
			PacketsRx:      st.PacketsRx,
			PacketsTx:      st.PacketsTx,
			PacketsDropped: st.PacketsDropped,
			PacketsInvalid: st.PacketsInvalid,
		}
		for _, info := range infos {
			if info.Status == device.StatusOnline {
				stats.DevicesOnline++
			}
		}
		return stats, nil
	}
}

// discardSender accepts packets without sending them, for validation runs.
type discardSender struct{}

func (discardSender) SendTo(netip.AddrPort, *packet.Packet) error { return nil }
