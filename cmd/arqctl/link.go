package main

import (
	"context"

	"github.com/danmuck/arqlink/internal/channel"
	"github.com/danmuck/arqlink/internal/config"
	"github.com/danmuck/arqlink/internal/seqstore"
	"github.com/danmuck/arqlink/internal/status"
	"github.com/rs/zerolog/log"
)

func stateKey(role config.Role, ch channel.Config) string {
	if ch.Kind == channel.KindSerial {
		return seqstore.SerialKey(string(role), ch.SerialPort)
	}
	if role == config.RoleSend {
		return seqstore.SenderKey(ch.Host, ch.OutboundPort)
	}
	return seqstore.ReceiverKey(ch.InboundPort)
}

// resumeSequence returns the persisted sequence for key when one exists and
// fits the modulus. A nil store resumes nothing.
func resumeSequence(store *seqstore.Store, key string, modulus int) (uint8, bool) {
	if store == nil {
		return 0, false
	}
	seq, ok, err := store.Load(key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("ignoring stored sequence")
		return 0, false
	}
	if !ok || int(seq) >= modulus {
		return 0, false
	}
	return seq, true
}

func persistSequence(store *seqstore.Store, key string, seq uint8) {
	if store == nil {
		return
	}
	if err := store.Save(key, seq); err != nil {
		log.Error().Err(err).Str("key", key).Uint8("seq", seq).Msg("persist sequence failed")
		return
	}
	log.Debug().Str("key", key).Uint8("seq", seq).Msg("sequence persisted")
}

func openState(path string) (*seqstore.Store, error) {
	if path == "" {
		return nil, nil
	}
	return seqstore.Open(path)
}

// startStatus serves the status endpoints until ctx ends. An empty addr
// disables it.
func startStatus(ctx context.Context, id string, cfg config.File, sources map[string]status.StatsFunc) {
	if cfg.StatusAddr == "" {
		return
	}
	srv := status.New(id, cfg.StatusAddr, cfg.CorsOrigins)
	for name, fn := range sources {
		srv.Track(name, fn)
	}
	go func() {
		if err := srv.Serve(ctx); err != nil {
			log.Error().Err(err).Str("addr", cfg.StatusAddr).Msg("status server stopped")
		}
	}()
}
