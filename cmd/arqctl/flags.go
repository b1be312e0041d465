package main

import (
	"time"

	"github.com/danmuck/arqlink/internal/config"
	"github.com/spf13/cobra"
)

// linkFlags mirror the config file keys. Only flags the user set override
// the file.
type linkFlags struct {
	transport    string
	host         string
	in           int
	out          int
	serial       string
	baud         int
	timeout      time.Duration
	retries      int
	startSeq     int
	modulus      int
	chunkSize    int
	copies       int
	idleTimeouts int
	stateFile    string
	statusAddr   string
}

func (f *linkFlags) register(cmd *cobra.Command, role config.Role) {
	def, _ := config.Defaults(role)
	timeout, _ := time.ParseDuration(def.Timeout)

	fs := cmd.Flags()
	fs.StringVar(&f.transport, "transport", def.Transport, "transport: udp or serial")
	fs.StringVar(&f.host, "host", def.Host, "peer host for outbound datagrams")
	fs.IntVar(&f.in, "in", def.InPort, "local UDP port to receive on (0 picks one)")
	fs.IntVar(&f.out, "out", def.OutPort, "peer UDP port to send to")
	fs.StringVar(&f.serial, "serial", "", "serial device for the KISS TNC, e.g. /dev/ttyUSB0")
	fs.IntVar(&f.baud, "baud", def.Baud, "serial baud rate")
	fs.DurationVar(&f.timeout, "timeout", timeout, "receive timeout per channel read")
	fs.IntVar(&f.startSeq, "start-seq", def.StartSeq, "first sequence number sent or expected")
	fs.IntVar(&f.modulus, "modulus", def.Modulus, "sequence modulus (2..256)")
	fs.IntVar(&f.chunkSize, "chunk-size", def.ChunkSize, "payload bytes per frame")
	fs.StringVar(&f.stateFile, "state", "", "bbolt file persisting the next sequence across runs")
	fs.StringVar(&f.statusAddr, "status-addr", "", "serve /health, /stats and /metrics on this address")

	switch role {
	case config.RoleSend:
		fs.IntVar(&f.retries, "retries", def.Retries, "retransmissions allowed per frame")
		fs.IntVar(&f.copies, "copies", def.Copies, "datagrams emitted per transmission")
	case config.RoleRecv:
		fs.IntVar(&f.idleTimeouts, "idle-timeouts", def.IdleTimeouts, "stop after this many consecutive timeouts (0 waits forever)")
	}
}

// apply copies explicitly set flags onto cfg.
func (f *linkFlags) apply(cmd *cobra.Command, cfg *config.File) {
	fs := cmd.Flags()
	if fs.Changed("transport") {
		cfg.Transport = f.transport
	}
	if fs.Changed("host") {
		cfg.Host = f.host
	}
	if fs.Changed("in") {
		cfg.InPort = f.in
	}
	if fs.Changed("out") {
		cfg.OutPort = f.out
	}
	if fs.Changed("serial") {
		cfg.SerialPort = f.serial
		if !fs.Changed("transport") {
			cfg.Transport = "serial"
		}
	}
	if fs.Changed("baud") {
		cfg.Baud = f.baud
	}
	if fs.Changed("timeout") {
		cfg.Timeout = f.timeout.String()
		cfg.TimeoutMS = 0
	}
	if fs.Changed("retries") {
		cfg.Retries = f.retries
	}
	if fs.Changed("start-seq") {
		cfg.StartSeq = f.startSeq
	}
	if fs.Changed("modulus") {
		cfg.Modulus = f.modulus
	}
	if fs.Changed("chunk-size") {
		cfg.ChunkSize = f.chunkSize
	}
	if fs.Changed("copies") {
		cfg.Copies = f.copies
	}
	if fs.Changed("idle-timeouts") {
		cfg.IdleTimeouts = f.idleTimeouts
	}
	if fs.Changed("state") {
		cfg.StateFile = f.stateFile
	}
	if fs.Changed("status-addr") {
		cfg.StatusAddr = f.statusAddr
	}
}

// resolve builds the effective config: role defaults, then the file, then
// flags.
func (f *linkFlags) resolve(cmd *cobra.Command, g *globalFlags, role config.Role) (config.File, error) {
	cfg, err := loadFileConfig(g.configPath, role)
	if err != nil {
		return config.File{}, err
	}
	f.apply(cmd, &cfg)
	applyFileLogLevel(cfg, g.logLevel)
	if err := config.Validate(cfg); err != nil {
		return config.File{}, err
	}
	return cfg, nil
}
