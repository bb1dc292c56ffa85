package main

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-lite/agent"
	"github.com/dtn7/dtn7-lite/bundle"
	"github.com/dtn7/dtn7-lite/cla"
	"github.com/dtn7/dtn7-lite/cla/quicl"
	"github.com/dtn7/dtn7-lite/cla/rf95"
	"github.com/dtn7/dtn7-lite/cla/udpbcast"
	"github.com/dtn7/dtn7-lite/core"
	"github.com/dtn7/dtn7-lite/discovery"
	"github.com/dtn7/dtn7-lite/routing"
	"github.com/dtn7/dtn7-lite/storage"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Core      coreConf
	Logging   logConf
	Routing   routingConf
	Discovery discoveryConf
	Listen    []listenConf
	Agent     agentConf
}

// coreConf describes the Core-configuration block.
type coreConf struct {
	NodeId string `toml:"node-id"`
	Store  string

	StorageDir          string `toml:"storage-dir"`
	MaxStoredBundles    int    `toml:"max-stored-bundles"`
	TargetFreeHeapBytes int    `toml:"target-free-heap-bytes"`
	MaxRemovedBundles   int    `toml:"max-removed-bundles"`
	RetryBatchSize      int    `toml:"retry-batch-size"`
	RetryIntervalMs     uint64 `toml:"retry-interval-ms"`
	PollIntervalMs      uint64 `toml:"poll-interval-ms"`
	MaxPeerAgeMs        uint64 `toml:"max-peer-age-ms"`
	HasAccurateClock    bool   `toml:"has-accurate-clock"`
	AttachHopCount      bool   `toml:"attach-hop-count"`
	HopLimit            uint64 `toml:"hop-limit"`
	DefaultLifetimeMs   uint64 `toml:"default-lifetime-ms"`
	OverrideLifetimeMs  uint64 `toml:"override-lifetime-ms"`
	KeepBetweenRestart  bool   `toml:"keep-between-restart"`
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// routingConf describes the Routing-configuration block.
type routingConf struct {
	Algorithm            string
	MinForwards          int    `toml:"min-forwards"`
	MaxBroadcasts        uint32 `toml:"max-broadcasts"`
	MsBetweenBroadcastMs uint64 `toml:"ms-between-broadcast"`
	RequiredForwards     int    `toml:"required-forwards"`
	UseReceivedSet       bool   `toml:"use-received-set"`
}

// discoveryConf describes the Discovery-configuration block.
type discoveryConf struct {
	IPv4       bool
	IPv6       bool
	IntervalMs uint `toml:"interval-ms"`
}

// listenConf describes a single registered CLA under the "listen" array.
type listenConf struct {
	Protocol    string
	Endpoint    string
	DutyCycleMs uint64 `toml:"duty-cycle-ms"`
	Announce    bool
}

// agentConf describes the application-agent block.
type agentConf struct {
	Ping      *pingAgentConf      `toml:"ping"`
	REST      *restAgentConf      `toml:"rest"`
	WebSocket *websocketAgentConf `toml:"websocket"`
}

type pingAgentConf struct {
	Node string
}

type restAgentConf struct {
	Node   string
	Listen string
}

type websocketAgentConf struct {
	Node   string
	Listen string
}

// daemon bundles everything a running dtn-lited instance owns, so main can
// shut it all down in one place.
type daemon struct {
	bpa       *core.BPA
	manager   *cla.Manager
	discovery *discovery.Manager
	closers   []func() error
}

func (d *daemon) Close() {
	if d.discovery != nil {
		d.discovery.Close()
	}
	d.bpa.Close()
	d.manager.Close()
	for _, c := range d.closers {
		if err := c(); err != nil {
			log.WithFields(log.Fields{"error": err}).Warn("Error while closing an agent")
		}
	}
	if err := d.bpa.Storage().Close(); err != nil {
		log.WithFields(log.Fields{"error": err}).Warn("Error while closing storage")
	}
}

func setupLogging(conf logConf) {
	if conf.Level != "" {
		if lvl, err := log.ParseLevel(conf.Level); err != nil {
			log.WithFields(log.Fields{
				"level":    conf.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.Warn("Unknown logging format")
	}
}

func parseStorage(conf coreConf) (storage.Storage, error) {
	switch conf.Store {
	case "memory":
		return storage.NewMemory(conf.MaxStoredBundles, conf.RetryBatchSize), nil

	case "memory-serialized":
		return storage.NewMemorySerialized(conf.MaxStoredBundles, conf.RetryBatchSize), nil

	case "badger":
		if conf.StorageDir == "" {
			return nil, fmt.Errorf("core.storage-dir is empty, required for the badger backend")
		}
		return storage.NewBadger(conf.StorageDir, conf.MaxStoredBundles, conf.RetryBatchSize, conf.KeepBetweenRestart)

	case "dummy":
		return storage.NewDummy(), nil

	default:
		return nil, &core.ConfigurationError{Component: "storage", Name: conf.Store}
	}
}

func parseRouter(conf routingConf, localEID bundle.EndpointID) (routing.Router, error) {
	switch conf.Algorithm {
	case "", "broadcast":
		return &routing.SimpleBroadcastRouter{
			LocalEID:             localEID,
			MinForwards:          conf.MinForwards,
			MaxBroadcasts:        conf.MaxBroadcasts,
			MsBetweenBroadcastMs: conf.MsBetweenBroadcastMs,
		}, nil

	case "epidemic":
		return &routing.EpidemicRouter{
			LocalEID:         localEID,
			RequiredForwards: conf.RequiredForwards,
			UseReceivedSet:   conf.UseReceivedSet,
		}, nil

	default:
		return nil, &core.ConfigurationError{Component: "router", Name: conf.Algorithm}
	}
}

func parsePort(endpoint string) (uint, error) {
	_, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(portStr)
	return uint(port), err
}

// parseListen builds a single CLA from a listenConf entry, and, if the
// caller asked for it to be announced, the discovery.Announcement to
// broadcast on its behalf.
func parseListen(conv listenConf, localEID bundle.EndpointID) (cla.CLA, *discovery.Announcement, error) {
	switch conv.Protocol {
	case "loopback":
		return cla.NewLoopback(conv.Endpoint), nil, nil

	case "udpbcast":
		bcast, err := udpbcast.NewBroadcast(conv.Endpoint)
		if err != nil {
			return nil, nil, err
		}
		return bcast, nil, nil

	case "rf95":
		dutyCycle := time.Duration(conv.DutyCycleMs) * time.Millisecond
		modem, err := rf95.NewModem(conv.Endpoint, dutyCycle)
		if err != nil {
			return nil, nil, err
		}
		return modem, nil, nil

	case "quicl":
		c := quicl.NewCLA(conv.Endpoint)

		var announcement *discovery.Announcement
		if conv.Announce {
			port, err := parsePort(conv.Endpoint)
			if err != nil {
				return nil, nil, fmt.Errorf("listen.endpoint %q must include a port to be announced: %w", conv.Endpoint, err)
			}
			announcement = &discovery.Announcement{Endpoint: localEID, CLAName: "quicl", Port: port}
		}
		return c, announcement, nil

	default:
		return nil, nil, &core.ConfigurationError{Component: "cla", Name: conv.Protocol}
	}
}

func parseAgents(conf agentConf, bpa *core.BPA) ([]func() error, error) {
	var closers []func() error

	if conf.Ping != nil {
		eid, err := bundle.NewEndpointID(conf.Ping.Node)
		if err != nil {
			return nil, fmt.Errorf("agent.ping.node: %w", err)
		}
		if _, err := agent.NewPing(bpa, eid); err != nil {
			return nil, fmt.Errorf("agent.ping: %w", err)
		}
	}

	if conf.REST != nil {
		eid, err := bundle.NewEndpointID(conf.REST.Node)
		if err != nil {
			return nil, fmt.Errorf("agent.rest.node: %w", err)
		}

		r, err := agent.NewREST(bpa, eid, conf.REST.Listen)
		if err != nil {
			return nil, fmt.Errorf("agent.rest: %w", err)
		}
		r.Start()
		closers = append(closers, r.Close)
	}

	if conf.WebSocket != nil {
		eid, err := bundle.NewEndpointID(conf.WebSocket.Node)
		if err != nil {
			return nil, fmt.Errorf("agent.websocket.node: %w", err)
		}

		ws, err := agent.NewWebSocket(bpa, eid)
		if err != nil {
			return nil, fmt.Errorf("agent.websocket: %w", err)
		}

		server := newHTTPServer(conf.WebSocket.Listen, ws.Handler())
		go func() {
			if err := server.ListenAndServe(); err != nil && err.Error() != "http: Server closed" {
				log.WithFields(log.Fields{"error": err}).Error("WebSocket agent stopped")
			}
		}()
		closers = append(closers, func() error { return closeHTTPServer(server) })
	}

	return closers, nil
}

// decodeConfig re-reads and parses filename, used both at startup and by
// the fsnotify-driven reload path.
func decodeConfig(filename string) (tomlConfig, error) {
	var conf tomlConfig
	_, err := toml.DecodeFile(filename, &conf)
	return conf, err
}

// parseDaemon reads filename and builds every component of a running node
// around it.
func parseDaemon(filename string) (*daemon, error) {
	conf, err := decodeConfig(filename)
	if err != nil {
		return nil, err
	}

	setupLogging(conf.Logging)

	if conf.Core.NodeId == "" {
		return nil, fmt.Errorf("core.node-id is empty")
	}
	localEID, err := bundle.NewEndpointID(conf.Core.NodeId)
	if err != nil {
		return nil, err
	}

	store, err := parseStorage(conf.Core)
	if err != nil {
		return nil, err
	}

	router, err := parseRouter(conf.Routing, localEID)
	if err != nil {
		return nil, err
	}

	pollInterval := time.Duration(conf.Core.PollIntervalMs) * time.Millisecond
	if pollInterval == 0 {
		pollInterval = time.Duration(core.DefaultOptions().PollIntervalMs) * time.Millisecond
	}
	manager := cla.NewManager(pollInterval)

	opts := core.DefaultOptions()
	opts.LocalURI = conf.Core.NodeId
	if conf.Core.MaxStoredBundles != 0 {
		opts.MaxStoredBundles = conf.Core.MaxStoredBundles
	}
	if conf.Core.TargetFreeHeapBytes != 0 {
		opts.TargetFreeHeapBytes = conf.Core.TargetFreeHeapBytes
	}
	if conf.Core.MaxRemovedBundles != 0 {
		opts.MaxRemovedBundles = conf.Core.MaxRemovedBundles
	}
	if conf.Core.RetryBatchSize != 0 {
		opts.RetryBatchSize = conf.Core.RetryBatchSize
	}
	if conf.Core.RetryIntervalMs != 0 {
		opts.RetryIntervalMs = conf.Core.RetryIntervalMs
	}
	if conf.Core.PollIntervalMs != 0 {
		opts.PollIntervalMs = conf.Core.PollIntervalMs
	}
	if conf.Core.MaxPeerAgeMs != 0 {
		opts.MaxPeerAgeMs = conf.Core.MaxPeerAgeMs
	}
	opts.HasAccurateClock = conf.Core.HasAccurateClock
	opts.AttachHopCount = conf.Core.AttachHopCount
	if conf.Core.HopLimit != 0 {
		opts.HopLimit = conf.Core.HopLimit
	}
	if conf.Core.DefaultLifetimeMs != 0 {
		opts.DefaultLifetimeMs = conf.Core.DefaultLifetimeMs
	}
	opts.OverrideLifetimeMs = conf.Core.OverrideLifetimeMs
	opts.KeepBetweenRestart = conf.Core.KeepBetweenRestart
	opts.MinForwards = conf.Routing.MinForwards
	opts.MaxBroadcasts = conf.Routing.MaxBroadcasts
	opts.MsBetweenBroadcast = conf.Routing.MsBetweenBroadcastMs
	opts.RequiredForwards = conf.Routing.RequiredForwards
	opts.UseReceivedSet = conf.Routing.UseReceivedSet

	bpa := core.NewBPA(opts, localEID, store, manager, router, nowMs)

	var announcements []discovery.Announcement
	for _, conv := range conf.Listen {
		c, announcement, lErr := parseListen(conv, localEID)
		if lErr != nil {
			return nil, fmt.Errorf("listen[%s]: %w", conv.Protocol, lErr)
		}

		if err := manager.Register(c); err != nil {
			return nil, fmt.Errorf("registering %q: %w", conv.Protocol, err)
		}

		if announcement != nil {
			announcements = append(announcements, *announcement)
		}
	}

	closers, err := parseAgents(conf.Agent, bpa)
	if err != nil {
		return nil, err
	}

	d := &daemon{bpa: bpa, manager: manager, closers: closers}

	if conf.Discovery.IPv4 || conf.Discovery.IPv6 {
		interval := time.Duration(conf.Discovery.IntervalMs) * time.Millisecond
		if interval == 0 {
			interval = 10 * time.Second
		}

		dm, dErr := discovery.NewManager(localEID, store, announcements, interval, conf.Discovery.IPv4, conf.Discovery.IPv6)
		if dErr != nil {
			return nil, dErr
		}
		d.discovery = dm
	}

	return d, nil
}

// nowMs is the daemon's wall-clock source: milliseconds since the Unix
// epoch, matching what a HasAccurateClock node is expected to stamp.
func nowMs() uint64 {
	return uint64(time.Now().UnixMilli())
}
