// Package bolt is a store.Archive backed by a BoltDB file.
package bolt

import (
	"context"
	"time"

	"github.com/Comcast/experiences/store"
	"github.com/Comcast/experiences/util"

	json "github.com/goccy/go-json"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var documentsBucket = []byte("documents")

// Archive keeps one entry per document URL in a single bucket.
type Archive struct {
	Logger *zap.Logger

	filename string
	db       *bolt.DB
}

func NewArchive(filename string, logger *zap.Logger) *Archive {
	return &Archive{
		Logger:   util.OrNop(logger),
		filename: filename,
	}
}

// Open opens (or creates) the database file.
func (a *Archive) Open(ctx context.Context) error {
	opts := &bolt.Options{
		Timeout: time.Second,
	}

	db, err := bolt.Open(a.filename, 0644, opts)
	if err != nil {
		return err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(documentsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return err
	}
	a.db = db
	return nil
}

func (a *Archive) Close(ctx context.Context) error {
	return a.db.Close()
}

func (a *Archive) Put(ctx context.Context, e *store.ArchiveEntry) error {
	a.Logger.Debug("Archive.Put", zap.String("url", e.URL))
	js, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return a.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(documentsBucket).Put([]byte(e.URL), js)
	})
}

func (a *Archive) Get(ctx context.Context, url string) (*store.ArchiveEntry, error) {
	a.Logger.Debug("Archive.Get", zap.String("url", url))
	var e *store.ArchiveEntry
	err := a.db.View(func(tx *bolt.Tx) error {
		bs := tx.Bucket(documentsBucket).Get([]byte(url))
		if bs == nil {
			return nil
		}
		e = &store.ArchiveEntry{}
		return json.Unmarshal(bs, e)
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Rem removes the entry for the URL, if any.
func (a *Archive) Rem(ctx context.Context, url string) error {
	return a.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(documentsBucket).Delete([]byte(url))
	})
}

// List returns the entries (without their data) in URL order.
func (a *Archive) List(ctx context.Context) ([]*store.ArchiveEntry, error) {
	acc := make([]*store.ArchiveEntry, 0, 32)
	err := a.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(documentsBucket).Cursor()
		for k, bs := c.First(); k != nil; k, bs = c.Next() {
			var e store.ArchiveEntry
			if err := json.Unmarshal(bs, &e); err != nil {
				return err
			}
			e.Document = nil
			e.CDNConfig = nil
			acc = append(acc, &e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}
