package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/arqlink/internal/config"
	"github.com/danmuck/arqlink/internal/seqstore"
	"github.com/danmuck/arqlink/internal/testutil/testlog"
	"github.com/spf13/cobra"
)

func TestLoadFileConfigDefaultsAndOverrides(t *testing.T) {
	testlog.Start(t)
	cfg, err := loadFileConfig("ex.config.toml", config.RoleSend)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Host != "10.0.0.2" {
		t.Fatalf("unexpected host: %q", cfg.Host)
	}
	if cfg.Copies != 2 || cfg.Retries != 6 || cfg.ChunkSize != 512 {
		t.Fatalf("unexpected engine values: %+v", cfg)
	}
	if len(cfg.CorsOrigins) != 1 || cfg.CorsOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected cors origins: %+v", cfg.CorsOrigins)
	}
	if cfg.Modulus != 256 || cfg.IdleTimeouts != 0 {
		t.Fatalf("defaults not kept for absent keys: %+v", cfg)
	}

	sess, err := cfg.Session()
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if sess.Timeout != 750*time.Millisecond {
		t.Fatalf("unexpected timeout: %v", sess.Timeout)
	}
	if sess.Backoff.InitialDelay != 50*time.Millisecond || sess.Backoff.MaxDelay != time.Second {
		t.Fatalf("unexpected backoff: %+v", sess.Backoff)
	}
}

func TestExampleConfigPassesStrictValidation(t *testing.T) {
	testlog.Start(t)
	if err := config.ValidateFile("ex.config.toml", config.RoleSend); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadFileConfigEmptyPathIsDefaults(t *testing.T) {
	testlog.Start(t)
	cfg, err := loadFileConfig("", config.RoleRecv)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def, _ := config.Defaults(config.RoleRecv)
	if cfg.InPort != def.InPort || cfg.Timeout != def.Timeout {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestFlagsOverrideFile(t *testing.T) {
	testlog.Start(t)
	cmd := &cobra.Command{Use: "send"}
	f := &linkFlags{}
	f.register(cmd, config.RoleSend)
	if err := cmd.ParseFlags([]string{"--retries", "2", "--timeout", "40ms", "--host", "192.168.1.9"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := loadFileConfig("ex.config.toml", config.RoleSend)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	f.apply(cmd, &cfg)

	if cfg.Retries != 2 || cfg.Host != "192.168.1.9" || cfg.Timeout != "40ms" {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	if cfg.Copies != 2 || cfg.ChunkSize != 512 {
		t.Fatalf("unset flag clobbered file value: %+v", cfg)
	}
}

func TestSerialFlagSelectsSerialTransport(t *testing.T) {
	testlog.Start(t)
	cmd := &cobra.Command{Use: "recv"}
	f := &linkFlags{}
	f.register(cmd, config.RoleRecv)
	if err := cmd.ParseFlags([]string{"--serial", "/dev/ttyUSB0"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cfg, _ := config.Defaults(config.RoleRecv)
	f.apply(cmd, &cfg)
	if cfg.Transport != "serial" || cfg.SerialPort != "/dev/ttyUSB0" {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestSimDeliversThroughLossyPipe(t *testing.T) {
	testlog.Start(t)
	cfg, _ := config.Defaults(config.RoleSend)
	cfg.Timeout = "20ms"
	cfg.Retries = 60
	cfg.ChunkSize = 32
	data := bytes.Repeat([]byte("stop-and-wait "), 40)

	var out, report bytes.Buffer
	f := simFlags{loss: 0.2, corrupt: 0.1, duplicate: 0.1, reorder: 0.05, seed: 3}
	if err := runSim(context.Background(), cfg, f, bytes.NewReader(data), &out, &report); err != nil {
		t.Fatalf("sim: %v\n%s", err, report.String())
	}
	if !bytes.Equal(out.Bytes(), data) {
		t.Fatalf("output differs: %d bytes want %d", out.Len(), len(data))
	}
	if !strings.Contains(report.String(), `"intact": true`) {
		t.Fatalf("report: %s", report.String())
	}
}

func TestSimRejectsBadRates(t *testing.T) {
	testlog.Start(t)
	if err := (simFlags{loss: 1.5}).validate(); err == nil {
		t.Fatalf("expected rate error")
	}
}

func TestSendRecvOverLoopbackResumesSequence(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	inPort, outPort := freeUDPPort(t), freeUDPPort(t)
	for outPort == inPort {
		outPort = freeUDPPort(t)
	}

	sendCfg, _ := config.Defaults(config.RoleSend)
	sendCfg.InPort, sendCfg.OutPort = inPort, outPort
	sendCfg.Timeout = "200ms"
	sendCfg.ChunkSize = 4
	sendCfg.StateFile = filepath.Join(dir, "send.db")

	recvCfg, _ := config.Defaults(config.RoleRecv)
	recvCfg.InPort, recvCfg.OutPort = outPort, inPort
	recvCfg.Timeout = "200ms"
	recvCfg.IdleTimeouts = 5
	recvCfg.StateFile = filepath.Join(dir, "recv.db")

	for round, msg := range []string{"first run ", "second run"} {
		var out syncWriter
		done := make(chan error, 1)
		go func() { done <- runRecv(context.Background(), recvCfg, false, &out) }()

		if err := runSend(context.Background(), sendCfg, false, strings.NewReader(msg)); err != nil {
			t.Fatalf("round %d send: %v", round, err)
		}
		if err := <-done; err != nil {
			t.Fatalf("round %d recv: %v", round, err)
		}
		if got := out.String(); got != msg {
			t.Fatalf("round %d got %q want %q", round, got, msg)
		}
	}

	store, err := seqstore.Open(sendCfg.StateFile)
	if err != nil {
		t.Fatalf("open send state: %v", err)
	}
	defer store.Close()
	seq, ok, err := store.Load(seqstore.SenderKey(sendCfg.Host, outPort))
	want := uint8(len("first run ")/4 + 1 + (len("second run")+3)/4)
	if err != nil || !ok || seq != want {
		t.Fatalf("persisted seq=%d ok=%v err=%v want %d", seq, ok, err, want)
	}
}

func TestConfigInitAndValidateCommands(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "recv.toml")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "init", "--role", "recv", "--output", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("template missing: %v", err)
	}

	root = newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"config", "validate", "--role", "recv", "--input", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out.String(), "ok") {
		t.Fatalf("output=%q", out.String())
	}
}
