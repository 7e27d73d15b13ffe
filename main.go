// Package main provides an SMBus telemetry agent for USB HID bridge devices.
// It polls power converter registers over the bridge and broadcasts the
// readings to connected WebSocket clients.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voltbench/smbus-agent/buildinfo"
	"github.com/voltbench/smbus-agent/monitor"
)

const defaultPort = 18080

func main() {
	var (
		serialFlag     string
		portFlag       int
		slaveFlag      uint
		intervalFlag   time.Duration
		csvFlag        string
		bitRateFlag    uint
		apiSecretFlag  string
		noMDNSFlag     bool
		attemptsFlag   uint
		retryDelayFlag time.Duration
		versionFlag    bool
	)

	flag.StringVar(&serialFlag, "serial", "", "Serial of the bridge device to open (default: first discovered)")
	flag.IntVar(&portFlag, "port", defaultPort, "Port to listen on for the web interface")
	flag.UintVar(&slaveFlag, "slave", uint(monitor.DefaultSlaveAddress), "SMBus slave address of the converter")
	flag.DurationVar(&intervalFlag, "interval", monitor.DefaultInterval, "Telemetry poll interval")
	flag.StringVar(&csvFlag, "csv", "", "Append readings to this CSV file (optional)")
	flag.UintVar(&bitRateFlag, "bitrate", 0, "SMBus clock in Hz (default: device default)")
	flag.StringVar(&apiSecretFlag, "api-secret", "", "API secret for WebSocket connections (optional)")
	flag.BoolVar(&noMDNSFlag, "no-mdns", false, "Disable mDNS advertisement")
	flag.UintVar(&attemptsFlag, "attempts", 0, "Transfer attempts per operation (default: 1)")
	flag.DurationVar(&retryDelayFlag, "retry-delay", 0, "Delay between transfer attempts")
	flag.BoolVar(&versionFlag, "version", false, "Print version information and exit")
	flag.Parse()

	if versionFlag {
		fmt.Println(buildinfo.BuildInfo())
		return
	}

	if slaveFlag > 0xFF {
		log.Fatalf("Invalid slave address 0x%X", slaveFlag)
	}

	agent := NewAgent(AgentConfig{
		Serial:     serialFlag,
		Port:       portFlag,
		Slave:      byte(slaveFlag),
		Interval:   intervalFlag,
		CSVPath:    csvFlag,
		BitRate:    uint32(bitRateFlag),
		APISecret:  apiSecretFlag,
		NoMDNS:     noMDNSFlag,
		Attempts:   attemptsFlag,
		RetryDelay: retryDelayFlag,
	})

	if err := agent.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start agent: %v", err)
	}
	defer agent.Stop()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutdown signal received, stopping server...")
}
