package bolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Comcast/experiences/store"

	"github.com/stretchr/testify/require"
)

func TestImpl(t *testing.T) {
	var _ store.Archive = &Archive{}
}

func TestBasics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	filename := filepath.Join(t.TempDir(), "archive.db")
	a := NewArchive(filename, nil)
	require.NoError(t, a.Open(ctx))
	defer func() {
		require.NoError(t, a.Close(ctx))
	}()

	e, err := a.Get(ctx, "https://x.example.com/a")
	require.NoError(t, err)
	require.Nil(t, e)

	then := time.Date(2019, 3, 14, 15, 9, 26, 0, time.UTC)
	for _, u := range []string{"https://x.example.com/b", "https://x.example.com/a"} {
		require.NoError(t, a.Put(ctx, &store.ArchiveEntry{
			URL:       u,
			Version:   "2",
			Document:  []byte(`{"version":"2"}`),
			CDNConfig: []byte(`{"assetBaseURL":"https://cdn.example.com/"}`),
			Fetched:   then,
		}))
	}

	e, err = a.Get(ctx, "https://x.example.com/a")
	require.NoError(t, err)
	require.NotNil(t, e)
	require.Equal(t, `{"version":"2"}`, string(e.Document))
	require.True(t, then.Equal(e.Fetched))

	es, err := a.List(ctx)
	require.NoError(t, err)
	require.Len(t, es, 2)
	require.Equal(t, "https://x.example.com/a", es[0].URL)
	require.Nil(t, es[0].Document)

	require.NoError(t, a.Rem(ctx, "https://x.example.com/a"))
	e, err = a.Get(ctx, "https://x.example.com/a")
	require.NoError(t, err)
	require.Nil(t, e)
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	filename := filepath.Join(t.TempDir(), "archive.db")

	a := NewArchive(filename, nil)
	require.NoError(t, a.Open(ctx))
	require.NoError(t, a.Put(ctx, &store.ArchiveEntry{URL: "https://x.example.com/a", Version: "1"}))
	require.NoError(t, a.Close(ctx))

	a = NewArchive(filename, nil)
	require.NoError(t, a.Open(ctx))
	defer a.Close(ctx)
	e, err := a.Get(ctx, "https://x.example.com/a")
	require.NoError(t, err)
	require.Equal(t, "1", e.Version)
}
