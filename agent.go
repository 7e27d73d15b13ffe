package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/voltbench/smbus-agent/monitor"
	"github.com/voltbench/smbus-agent/server"
	"github.com/voltbench/smbus-agent/smbus"
	"github.com/voltbench/smbus-agent/smbus/hidbridge"
)

// AgentConfig collects everything the agent needs to run.
type AgentConfig struct {
	Serial     string // open this device; empty means first discovered
	Port       int
	Slave      byte
	Interval   time.Duration
	CSVPath    string // empty disables CSV logging
	BitRate    uint32
	APISecret  string
	NoMDNS     bool
	Attempts   uint
	RetryDelay time.Duration
}

// Agent owns the bridge, registry, monitor and server and wires them
// together.
type Agent struct {
	Logger *log.Logger
	Config AgentConfig

	bridge   *hidbridge.Bridge
	registry *smbus.Registry
	device   *smbus.Device
	mon      *monitor.Monitor
	sink     *monitor.CSVSink
	server   *server.Server
	loopStop chan struct{}
	loopDone chan struct{}
}

// NewAgent creates an agent with the given configuration.
func NewAgent(cfg AgentConfig) *Agent {
	return &Agent{
		Logger: log.New(os.Stderr, "[agent] ", log.LstdFlags),
		Config: cfg,
	}
}

// Start opens the bridge device, configures it, and brings up the monitor
// and server.
func (a *Agent) Start(ctx context.Context) error {
	if a.device != nil {
		return errors.New("agent is already running")
	}

	a.bridge = hidbridge.New()
	a.registry = smbus.NewRegistry(a.bridge, smbus.DefaultVendorID, smbus.DefaultProductID)
	if a.Config.Attempts > 0 {
		a.registry.SetTransferAttempts(int(a.Config.Attempts))
	}
	if a.Config.RetryDelay > 0 {
		a.registry.SetRetryDelay(a.Config.RetryDelay)
	}

	cfg := smbus.DefaultConfig()
	if a.Config.BitRate > 0 {
		cfg.BitRate = a.Config.BitRate
	}

	dev, err := a.openDevice(ctx, &cfg)
	if err != nil {
		a.shutdownBridge()
		return err
	}
	a.device = dev

	info := dev.Info()
	a.Logger.Printf("Opened bridge device serial=%s product=%q", info.Serial, info.Product)

	mon, err := monitor.New(monitor.Config{
		Device:   dev,
		Slave:    a.Config.Slave,
		Interval: a.Config.Interval,
	})
	if err != nil {
		a.Stop()
		return err
	}
	a.mon = mon

	if a.Config.CSVPath != "" {
		sink, err := monitor.NewCSVSink(a.Config.CSVPath, mon.Registers())
		if err != nil {
			a.Stop()
			return err
		}
		a.sink = sink
	}

	// The agent consumes the reading stream itself and fans out to the CSV
	// sink and the broadcast server, so the handler only serves on-demand
	// register requests.
	a.server = server.New(server.Config{
		Handler:   server.NewDeviceHandler(dev, nil),
		Port:      a.Config.Port,
		APISecret: a.Config.APISecret,
		NoMDNS:    a.Config.NoMDNS,
	})

	a.loopStop = make(chan struct{})
	a.loopDone = make(chan struct{})
	go a.readingLoop(mon.Readings(), a.sink, a.server)

	mon.Start()
	go a.server.Start()
	return nil
}

// openDevice finds and opens the requested device through the registry.
func (a *Agent) openDevice(ctx context.Context, cfg *smbus.Config) (*smbus.Device, error) {
	if a.Config.Serial == "" {
		return a.registry.Open(ctx, 0, cfg)
	}

	infos, err := a.registry.Scan()
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.Serial == a.Config.Serial {
			return a.registry.Open(ctx, info.Ordinal, cfg)
		}
	}
	return nil, fmt.Errorf("no bridge device with serial %q", a.Config.Serial)
}

// readingLoop fans each poll cycle out to the CSV sink and WebSocket clients.
func (a *Agent) readingLoop(readings <-chan monitor.Reading, sink *monitor.CSVSink, srv *server.Server) {
	defer close(a.loopDone)
	for {
		select {
		case <-a.loopStop:
			return
		case r := <-readings:
			if sink != nil {
				if err := sink.Write(r); err != nil {
					a.Logger.Printf("CSV write error: %v", err)
				}
			}
			srv.BroadcastReading(server.ReadingPayload(r))
		}
	}
}

// Stop shuts everything down in reverse order of startup.
func (a *Agent) Stop() {
	a.Logger.Println("Stopping agent...")

	if a.server != nil {
		a.server.Stop()
		a.server = nil
	}
	if a.mon != nil {
		a.mon.Stop()
		a.mon = nil
	}
	if a.loopStop != nil {
		close(a.loopStop)
		<-a.loopDone
		a.loopStop = nil
	}
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.Logger.Printf("CSV close error: %v", err)
		}
		a.sink = nil
	}
	if a.registry != nil {
		a.registry.CloseAll(context.Background())
		a.registry = nil
		a.device = nil
	}
	a.shutdownBridge()

	a.Logger.Println("Agent stopped")
}

func (a *Agent) shutdownBridge() {
	if a.bridge != nil {
		a.bridge.Exit()
		a.bridge = nil
	}
}
