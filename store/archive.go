package store

import (
	"context"
	"sync"
	"time"
)

// ArchiveEntry is what a Store archives after a successful decode.
type ArchiveEntry struct {
	URL       string    `json:"url"`
	Version   string    `json:"version"`
	Document  []byte    `json:"document"`
	CDNConfig []byte    `json:"cdnConfig,omitempty"`
	Fetched   time.Time `json:"fetched"`
}

// Archive is persistent storage for raw documents.  With
// Conf.Offline, a Store falls back to its Archive when the network
// fails.
type Archive interface {
	Put(ctx context.Context, e *ArchiveEntry) error

	// Get returns nil (and no error) if there's no entry for
	// the URL.
	Get(ctx context.Context, url string) (*ArchiveEntry, error)
}

// MemArchive is an Archive in memory.
type MemArchive struct {
	sync.Mutex
	entries map[string]*ArchiveEntry
}

func NewMemArchive() *MemArchive {
	return &MemArchive{
		entries: make(map[string]*ArchiveEntry),
	}
}

func (a *MemArchive) Put(ctx context.Context, e *ArchiveEntry) error {
	a.Lock()
	a.entries[e.URL] = e
	a.Unlock()
	return nil
}

func (a *MemArchive) Get(ctx context.Context, url string) (*ArchiveEntry, error) {
	a.Lock()
	defer a.Unlock()
	return a.entries[url], nil
}
