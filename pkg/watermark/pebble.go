package watermark

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog"
)

// PebbleStore keeps watermarks in a pebble database so they survive process
// restarts. Values are big-endian unix nanoseconds.
type PebbleStore struct {
	mu     sync.Mutex
	db     *pebble.DB
	logger zerolog.Logger
}

var _ Store = (*PebbleStore)(nil)

// OpenPebble opens (or creates) the database at path. opts may be nil.
func OpenPebble(path string, opts *pebble.Options, logger zerolog.Logger) (*PebbleStore, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("pebble_open_failed")
		return nil, fmt.Errorf("opening watermark store at %q: %w", path, err)
	}
	logger.Debug().Str("path", path).Msg("pebble_opened")
	return &PebbleStore{db: db, logger: logger}, nil
}

func (s *PebbleStore) Get(topicID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(topicID)
}

func (s *PebbleStore) get(topicID string) (time.Time, bool, error) {
	if s.db == nil {
		return time.Time{}, false, ErrClosed
	}
	value, closer, err := s.db.Get([]byte(Key(topicID)))
	if errors.Is(err, pebble.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	defer closer.Close()

	if len(value) != 8 {
		return time.Time{}, false, fmt.Errorf("watermark %q: corrupt value of %d bytes", topicID, len(value))
	}
	nanos := int64(binary.BigEndian.Uint64(value)) //nolint:gosec
	return time.Unix(0, nanos).UTC(), true, nil
}

func (s *PebbleStore) Advance(topicID string, t time.Time) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, _, err := s.get(topicID)
	if err != nil {
		return time.Time{}, false, err
	}
	if !t.After(prev) {
		return prev, false, nil
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(t.UnixNano())) //nolint:gosec
	if err := s.db.Set([]byte(Key(topicID)), buf[:], pebble.Sync); err != nil {
		s.logger.Error().Err(err).Str("topicId", topicID).Msg("watermark_save_failed")
		return prev, false, err
	}
	s.logger.Debug().Str("topicId", topicID).Time("watermark", t).Msg("watermark_saved")
	return prev, true, nil
}

func (s *PebbleStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
