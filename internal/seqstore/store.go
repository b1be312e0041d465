// Package seqstore persists the next sequence number of each link endpoint
// so a sender and receiver can resume in step across process restarts.
package seqstore

import (
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var sequenceBucket = []byte("sequences")

var ErrCorrupt = errors.New("seqstore: corrupt entry")

const openTimeout = time.Second

// Store is a bbolt-backed key to sequence map.
type Store struct {
	db *bbolt.DB
}

// Open creates or opens the store at path. A second process holding the
// file makes Open fail after a short wait.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("seqstore: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(sequenceBucket); err != nil {
			return fmt.Errorf("seqstore: create bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Load returns the stored sequence for key. ok is false when nothing was
// saved yet.
func (s *Store) Load(key string) (seq uint8, ok bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(sequenceBucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		if len(v) != 1 {
			return fmt.Errorf("%w: %q has %d bytes", ErrCorrupt, key, len(v))
		}
		seq, ok = v[0], true
		return nil
	})
	return seq, ok, err
}

func (s *Store) Save(key string, seq uint8) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(sequenceBucket).Put([]byte(key), []byte{seq})
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SenderKey names the sender state for one peer.
func SenderKey(host string, outbound int) string {
	return fmt.Sprintf("send/%s:%d", host, outbound)
}

// ReceiverKey names the receiver state for one listening port.
func ReceiverKey(inbound int) string {
	return fmt.Sprintf("recv/%d", inbound)
}

// SerialKey names the state of either role on a serial TNC.
func SerialKey(role, port string) string {
	return fmt.Sprintf("%s/serial:%s", role, port)
}
