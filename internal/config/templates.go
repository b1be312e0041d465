package config

import (
	"fmt"
	"os"

	"github.com/danmuck/arqlink/internal/channel"
	"github.com/danmuck/arqlink/internal/protocol/session"
	"github.com/pelletier/go-toml/v2"
)

// Defaults returns the built-in configuration for role.
func Defaults(role Role) (File, error) {
	def := session.DefaultConfig()
	var ch channel.Config
	switch role {
	case RoleSend:
		ch = channel.SenderConfig()
	case RoleRecv:
		ch = channel.ReceiverConfig()
	default:
		return File{}, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return File{
		Transport:    string(ch.Kind),
		Host:         ch.Host,
		InPort:       ch.InboundPort,
		OutPort:      ch.OutboundPort,
		Baud:         ch.Baud,
		Timeout:      ch.Timeout.String(),
		Retries:      def.MaxRetries,
		StartSeq:     int(def.StartSequence),
		Modulus:      def.SequenceModulus,
		ChunkSize:    def.ChunkSize,
		Copies:       def.Copies,
		IdleTimeouts: def.IdleTimeouts,
		Backoff: BackoffFile{
			Initial:    def.Backoff.InitialDelay.String(),
			Max:        def.Backoff.MaxDelay.String(),
			Multiplier: def.Backoff.Multiplier,
			Jitter:     def.Backoff.Jitter,
		},
		LogLevel: "info",
	}, nil
}

func Template(role Role) (string, error) {
	cfg, err := Defaults(role)
	if err != nil {
		return "", err
	}
	body, err := toml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("config template: %w", err)
	}
	header := fmt.Sprintf("# arqctl %s configuration\n# optional: bind_host, serial_port, timeout_ms, state_file, status_addr, cors_origins\n\n", role)
	return header + string(body), nil
}

func WriteTemplate(path string, role Role, overwrite bool) error {
	template, err := Template(role)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
