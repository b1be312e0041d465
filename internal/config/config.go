package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Role selects the side of the link a file configures.
type Role string

const (
	RoleSend Role = "send"
	RoleRecv Role = "recv"
)

var ErrUnknownRole = errors.New("config: unknown role")

// File is the on-disk link configuration shared by both roles.
type File struct {
	Transport    string      `toml:"transport"`
	Host         string      `toml:"host"`
	BindHost     string      `toml:"bind_host,omitempty"`
	InPort       int         `toml:"in_port"`
	OutPort      int         `toml:"out_port"`
	SerialPort   string      `toml:"serial_port,omitempty"`
	Baud         int         `toml:"baud"`
	Timeout      string      `toml:"timeout"`
	TimeoutMS    int64       `toml:"timeout_ms,omitempty"`
	Retries      int         `toml:"retries"`
	StartSeq     int         `toml:"start_seq"`
	Modulus      int         `toml:"modulus"`
	ChunkSize    int         `toml:"chunk_size"`
	Copies       int         `toml:"copies"`
	IdleTimeouts int         `toml:"idle_timeouts"`
	Backoff      BackoffFile `toml:"backoff"`
	StateFile    string      `toml:"state_file,omitempty"`
	StatusAddr   string      `toml:"status_addr,omitempty"`
	CorsOrigins  []string    `toml:"cors_origins,omitempty"`
	LogLevel     string      `toml:"log_level"`
}

type BackoffFile struct {
	Initial    string  `toml:"initial"`
	Max        string  `toml:"max"`
	Multiplier float64 `toml:"multiplier"`
	Jitter     bool    `toml:"jitter"`
}

func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleSend, "sender":
		return RoleSend, nil
	case RoleRecv, "receiver":
		return RoleRecv, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
}

// Load strictly decodes path into File, starting from the role defaults.
func Load(path string, role Role) (File, error) {
	cfg, err := Defaults(role)
	if err != nil {
		return File{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := decodeStrict(data, &cfg); err != nil {
		return File{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return cfg, nil
}

// ValidateFile reports unknown keys, type errors and values the engines
// would reject.
func ValidateFile(path string, role Role) error {
	cfg, err := Load(path, role)
	if err != nil {
		return err
	}
	return Validate(cfg)
}

func Validate(cfg File) error {
	if _, err := cfg.Session(); err != nil {
		return err
	}
	if _, err := cfg.Channel(); err != nil {
		return err
	}
	return nil
}

func decodeStrict(data []byte, out any) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		var missing *toml.StrictMissingError
		if errors.As(err, &missing) {
			return fmt.Errorf("unknown keys:\n%s", missing.String())
		}
		var decErr *toml.DecodeError
		if errors.As(err, &decErr) {
			row, col := decErr.Position()
			return fmt.Errorf("line %d column %d: %w", row, col, err)
		}
		return err
	}
	return nil
}
