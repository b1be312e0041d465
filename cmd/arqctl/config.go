package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/arqlink/internal/config"
	"github.com/danmuck/arqlink/internal/logging"
	"github.com/rs/zerolog/log"
)

// loadFileConfig overlays the keys present in path onto the role defaults.
// An empty path yields the defaults.
func loadFileConfig(path string, role config.Role) (config.File, error) {
	cfg, err := config.Defaults(role)
	if err != nil {
		return config.File{}, err
	}
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw config.File
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config.File{}, fmt.Errorf("load %s config: %w", role, err)
	}
	for _, key := range meta.Undecoded() {
		log.Warn().Str("path", path).Str("key", key.String()).Msg("ignoring unknown config key")
	}

	if meta.IsDefined("transport") {
		cfg.Transport = strings.TrimSpace(raw.Transport)
	}
	if meta.IsDefined("host") {
		cfg.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("bind_host") {
		cfg.BindHost = strings.TrimSpace(raw.BindHost)
	}
	if meta.IsDefined("in_port") {
		cfg.InPort = raw.InPort
	}
	if meta.IsDefined("out_port") {
		cfg.OutPort = raw.OutPort
	}
	if meta.IsDefined("serial_port") {
		cfg.SerialPort = strings.TrimSpace(raw.SerialPort)
	}
	if meta.IsDefined("baud") {
		cfg.Baud = raw.Baud
	}
	if meta.IsDefined("timeout") {
		cfg.Timeout = strings.TrimSpace(raw.Timeout)
	}
	if meta.IsDefined("timeout_ms") {
		cfg.TimeoutMS = raw.TimeoutMS
	}
	if meta.IsDefined("retries") {
		cfg.Retries = raw.Retries
	}
	if meta.IsDefined("start_seq") {
		cfg.StartSeq = raw.StartSeq
	}
	if meta.IsDefined("modulus") {
		cfg.Modulus = raw.Modulus
	}
	if meta.IsDefined("chunk_size") {
		cfg.ChunkSize = raw.ChunkSize
	}
	if meta.IsDefined("copies") {
		cfg.Copies = raw.Copies
	}
	if meta.IsDefined("idle_timeouts") {
		cfg.IdleTimeouts = raw.IdleTimeouts
	}
	if meta.IsDefined("backoff", "initial") {
		cfg.Backoff.Initial = strings.TrimSpace(raw.Backoff.Initial)
	}
	if meta.IsDefined("backoff", "max") {
		cfg.Backoff.Max = strings.TrimSpace(raw.Backoff.Max)
	}
	if meta.IsDefined("backoff", "multiplier") {
		cfg.Backoff.Multiplier = raw.Backoff.Multiplier
	}
	if meta.IsDefined("backoff", "jitter") {
		cfg.Backoff.Jitter = raw.Backoff.Jitter
	}
	if meta.IsDefined("state_file") {
		cfg.StateFile = strings.TrimSpace(raw.StateFile)
	}
	if meta.IsDefined("status_addr") {
		cfg.StatusAddr = strings.TrimSpace(raw.StatusAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeOrigins(raw.CorsOrigins)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	return cfg, nil
}

// applyFileLogLevel honors log_level unless the CLI flag or the environment
// already chose one.
func applyFileLogLevel(cfg config.File, flagLevel string) {
	if flagLevel != "" || os.Getenv(logging.EnvLogLevel) != "" || cfg.LogLevel == "" {
		return
	}
	if !logging.SetLevel(cfg.LogLevel) {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level in config")
	}
}

func normalizeOrigins(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
