/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package store fetches experience documents by URL, decodes them,
// and caches them.
//
// A Store is meant to be used by a single goroutine.  Rather than
// locking, Fetch fails with ConcurrentUse when it's called while
// another Fetch is running.
package store

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Comcast/experiences/core"
	"github.com/Comcast/experiences/sio"
	"github.com/Comcast/experiences/util"

	json "github.com/goccy/go-json"
	"github.com/jsccast/yaml"
	"go.uber.org/zap"
)

// Conf configures a Store.
type Conf struct {
	// AuthorizedDomains lists the hosts that remote documents
	// may come from.  See Authorizer.
	AuthorizedDomains []string `json:"authorizedDomains" yaml:"authorizedDomains"`

	// ConfigPath is the path of the CDN configuration on a
	// document's host.
	ConfigPath string `json:"configPath" yaml:"configPath"`

	// Offline falls back to the Archive when a remote document
	// can't be fetched.
	Offline bool `json:"offline" yaml:"offline"`

	// LocalCDN is the CDN configuration for local files.  When
	// nil, relative assets resolve against the file's directory.
	LocalCDN *core.CDNConfig `json:"localCDN,omitempty" yaml:"localCDN,omitempty"`

	CachePolicy Policy        `json:"cachePolicy" yaml:"cachePolicy"`
	CacheTTL    time.Duration `json:"cacheTTL" yaml:"cacheTTL"`

	HTTP sio.HTTPClientConf `json:"http" yaml:"http"`
}

// DefaultConf is used when NewStore gets a nil conf.
var DefaultConf = Conf{
	ConfigPath:  "/config",
	CachePolicy: NeverExpire,
	HTTP:        sio.DefaultHTTPClientConf,
}

// Store is the experience document store.
type Store struct {
	Conf Conf

	HTTP       *sio.HTTPClient
	Cache      *Cache
	Authorizer *Authorizer

	// Archive, if not nil, gets the raw data for every document
	// fetched from the network.
	Archive Archive

	// Metrics, if not nil, counts activity.
	Metrics *Metrics

	Logger *zap.Logger

	busy int32
}

// NewStore makes a Store.  Bad AuthorizedDomains are an error.
func NewStore(conf *Conf, logger *zap.Logger) (*Store, error) {
	if conf == nil {
		c := DefaultConf
		conf = &c
	}
	logger = util.OrNop(logger)

	auth, err := NewAuthorizer(conf.AuthorizedDomains)
	if err != nil {
		return nil, err
	}
	client, err := sio.NewHTTPClient(&conf.HTTP, logger)
	if err != nil {
		return nil, err
	}

	return &Store{
		Conf:       *conf,
		HTTP:       client,
		Cache:      NewCache(conf.CachePolicy, conf.CacheTTL),
		Authorizer: auth,
		Logger:     logger,
	}, nil
}

// Fetch returns the document at the given URL.
//
// A file:// URL (or a plain path) is read and decoded every time.
// Only the current schema is allowed from files.
//
// Otherwise the URL is canonicalized (see Canonicalize), and its host
// must be authorized.  A cached document is returned if there is
// one.  Otherwise the document is downloaded.  A current-schema
// document also needs the CDN configuration from its host.  The
// document is cached only after it's decoded successfully.
//
// Errors are *FetchErrors.
func (s *Store) Fetch(ctx context.Context, ref string) (*core.Document, error) {
	if !atomic.CompareAndSwapInt32(&s.busy, 0, 1) {
		return nil, ConcurrentUse
	}
	defer atomic.StoreInt32(&s.busy, 0)

	then := time.Now()
	doc, err := s.fetch(ctx, ref)
	s.Metrics.fetched(err, time.Since(then))
	if err != nil {
		s.Logger.Debug("Store.Fetch", zap.String("ref", ref), zap.Error(err))
		return nil, err
	}
	return doc, nil
}

func (s *Store) fetch(ctx context.Context, ref string) (*core.Document, error) {
	if path, is := localPath(ref); is {
		return s.fetchFile(path)
	}

	u, err := Canonicalize(ref)
	if err != nil {
		return nil, fetchErr(NetworkError, ref, err)
	}
	key := u.String()

	if !s.Authorizer.Authorized(u.Hostname()) {
		return nil, fetchErr(UnauthorizedDomain, key, nil)
	}

	if doc := s.Cache.Get(key); doc != nil {
		s.Metrics.hit()
		return doc, nil
	}
	s.Metrics.miss()

	e, err := s.download(ctx, u)
	archived := false
	if err != nil {
		if e, archived = s.fromArchive(ctx, key, err); !archived {
			return nil, err
		}
	}

	doc, err := s.decode(key, e)
	if err != nil {
		return nil, err
	}

	params := make(map[string]string, len(doc.URLParameters))
	for k, v := range doc.URLParameters {
		params[k] = v
	}
	for k, v := range queryParams(u) {
		params[k] = v
	}
	doc = doc.WithSource(key, params)

	s.Cache.Put(key, doc)

	if s.Archive != nil && !archived {
		if err := s.Archive.Put(ctx, e); err != nil {
			s.Logger.Warn("archive", zap.String("url", key), zap.Error(err))
		}
	}

	return doc, nil
}

// fromArchive looks for an archived copy after a network failure when
// the store is configured to work offline.
func (s *Store) fromArchive(ctx context.Context, key string, err error) (*ArchiveEntry, bool) {
	if !s.Conf.Offline || s.Archive == nil || !errors.Is(err, NetworkError) {
		return nil, false
	}
	e, aerr := s.Archive.Get(ctx, key)
	if aerr != nil {
		s.Logger.Warn("archive", zap.String("url", key), zap.Error(aerr))
		return nil, false
	}
	if e == nil {
		return nil, false
	}
	s.Logger.Info("using archived document", zap.String("url", key), zap.Time("fetched", e.Fetched), zap.Error(err))
	return e, true
}

func (s *Store) get(ctx context.Context, u string) ([]byte, error) {
	resp, err := s.HTTP.Do(ctx, &sio.HTTPRequest{
		Method: "GET",
		URL:    u,
	})
	if err != nil {
		var nj *sio.NotJSON
		if errors.As(err, &nj) {
			return nil, fetchErr(InvalidExperienceData, u, err)
		}
		return nil, fetchErr(NetworkError, u, err)
	}
	return resp.Body, nil
}

func (s *Store) configURL(u *url.URL) string {
	path := s.Conf.ConfigPath
	if path == "" {
		path = DefaultConf.ConfigPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return u.Scheme + "://" + u.Host + path
}

// download gets the document and, if needed, the CDN configuration.
func (s *Store) download(ctx context.Context, u *url.URL) (*ArchiveEntry, error) {
	key := u.String()
	bs, err := s.get(ctx, key)
	if err != nil {
		return nil, err
	}
	v, err := core.DeclaredVersion(bs)
	if err != nil {
		return nil, fetchErr(InvalidExperienceData, key, err)
	}

	e := &ArchiveEntry{
		URL:      key,
		Version:  v,
		Document: bs,
		Fetched:  time.Now().UTC(),
	}

	if v == core.CurrentVersion {
		if e.CDNConfig, err = s.get(ctx, s.configURL(u)); err != nil {
			return nil, err
		}
	}

	return e, nil
}

func (s *Store) decode(key string, e *ArchiveEntry) (*core.Document, error) {
	var cdn *core.CDNConfig
	if e.Version == core.CurrentVersion {
		var err error
		if cdn, err = core.DecodeCDNConfig(e.CDNConfig); err != nil {
			return nil, fetchErr(InvalidExperienceData, key, err)
		}
	}
	doc, err := core.Decode(e.Document, e.Version, cdn)
	if err != nil {
		return nil, decodeErr(key, err)
	}
	return doc, nil
}

func decodeErr(key string, err error) error {
	var uv *core.UnsupportedVersion
	if errors.As(err, &uv) {
		return fetchErr(UnsupportedExperienceVersion, key, err)
	}
	return fetchErr(InvalidExperienceData, key, err)
}

// fetchFile decodes a local document.  YAML is converted to JSON
// first.
func (s *Store) fetchFile(path string) (*core.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fetchErr(FileError, path, err)
	}
	src := (&url.URL{Scheme: "file", Path: abs}).String()

	bs, err := os.ReadFile(abs)
	if err != nil {
		return nil, fetchErr(FileError, src, err)
	}

	switch strings.ToLower(filepath.Ext(abs)) {
	case ".yaml", ".yml":
		if bs, err = yamlToJSON(bs); err != nil {
			return nil, fetchErr(InvalidExperienceData, src, err)
		}
	}

	v, err := core.DeclaredVersion(bs)
	if err != nil {
		return nil, fetchErr(InvalidExperienceData, src, err)
	}
	if v != core.CurrentVersion {
		return nil, fetchErr(UnsupportedExperienceVersion, src, &core.UnsupportedVersion{
			Version: v,
		})
	}

	cdn := s.Conf.LocalCDN
	if cdn == nil {
		base := &url.URL{Scheme: "file", Path: filepath.Dir(abs) + "/"}
		cdn = &core.CDNConfig{
			AssetBaseURL: base.String(),
		}
	}

	doc, err := core.Decode(bs, v, cdn)
	if err != nil {
		return nil, decodeErr(src, err)
	}
	return doc.WithSource(src, doc.URLParameters), nil
}

func yamlToJSON(bs []byte) ([]byte, error) {
	var x interface{}
	if err := yaml.Unmarshal(bs, &x); err != nil {
		return nil, err
	}
	return json.Marshal(&x)
}
