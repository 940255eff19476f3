package logpile

import (
	"log/slog"
	"time"

	"github.com/coffersTech/logpile/internal/engine"
	"github.com/coffersTech/logpile/internal/pkg/security"
	"github.com/coffersTech/logpile/internal/storage"
)

type (
	Store      = engine.Store
	StoreStats = engine.Stats
)

// StoreOptions configure a segment store.
type StoreOptions struct {
	DataDir      string
	MaxTableSize int64
	Retention    time.Duration
	Persist      PersistOptions
	// Key enables AES-GCM sealed segments when set (32 bytes).
	Key    []byte
	Logger *slog.Logger
}

// OpenStore opens a segment store in opts.DataDir, replaying its WAL.
func OpenStore(opts StoreOptions) (*Store, error) {
	var c *security.Cipher
	if opts.Key != nil {
		var err error
		if c, err = security.NewCipher(opts.Key); err != nil {
			return nil, err
		}
	}

	w, err := storage.NewColumnWriter(c)
	if err != nil {
		return nil, err
	}
	r, err := storage.NewColumnReader(c)
	if err != nil {
		return nil, err
	}

	return engine.Open(engine.Options{
		DataDir:      opts.DataDir,
		MaxTableSize: opts.MaxTableSize,
		Retention:    opts.Retention,
		Persist:      opts.Persist,
		Writer:       w.WriteSegment,
		Reader:       r.ReadSegment,
		Logger:       opts.Logger,
	})
}

// LoadKey reads or creates the master key used for encrypted segments.
func LoadKey(path string) (key []byte, generated bool, err error) {
	return security.LoadKey(path)
}
