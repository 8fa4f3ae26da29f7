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

package sio

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/Comcast/experiences/core"
	"github.com/Comcast/experiences/util"

	json "github.com/goccy/go-json"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

// HTTPRequest is an evaluated data source request.
type HTTPRequest struct {
	Method  string        `json:"method"`
	URL     string        `json:"url"`
	Headers []core.Header `json:"headers,omitempty"`
	Body    string        `json:"body,omitempty"`
}

// Key returns a string that's equal for equal requests.
func (r *HTTPRequest) Key() string {
	js, err := json.Marshal(r)
	if err != nil {
		// Can't happen with these field types.
		return r.Method + " " + r.URL + " " + r.Body
	}
	return string(js)
}

// Fetcher gets data for data sources.
//
// Fetch is called from many goroutines.
type Fetcher interface {
	Fetch(ctx context.Context, r *HTTPRequest) (interface{}, error)
}

// FetcherFunc makes a Fetcher from a function.
type FetcherFunc func(ctx context.Context, r *HTTPRequest) (interface{}, error)

func (f FetcherFunc) Fetch(ctx context.Context, r *HTTPRequest) (interface{}, error) {
	return f(ctx, r)
}

// HTTPClientConf configures an HTTPClient.
type HTTPClientConf struct {
	// Timeout for the entire request.
	Timeout time.Duration

	// MaxBody limits the size of response bodies.
	MaxBody int64

	// BreakerFailureRatio is the fraction of failed requests
	// (after BreakerMinRequests) that opens the circuit breaker.
	// Zero disables the breaker.
	BreakerFailureRatio float64

	BreakerMinRequests uint32

	// BreakerOpenTimeout is how long the breaker stays open
	// before trying again.
	BreakerOpenTimeout time.Duration
}

// DefaultHTTPClientConf is used when NewHTTPClient gets a nil conf.
var DefaultHTTPClientConf = HTTPClientConf{
	Timeout:             30 * time.Second,
	MaxBody:             8 << 20,
	BreakerFailureRatio: 0.8,
	BreakerMinRequests:  5,
	BreakerOpenTimeout:  60 * time.Second,
}

// HTTPClient is a Fetcher that makes HTTP requests with a shared
// cookie jar and an optional circuit breaker.
type HTTPClient struct {
	Client *http.Client
	Conf   HTTPClientConf
	Logger *zap.Logger

	breaker *gobreaker.CircuitBreaker
}

// NewHTTPClient makes an HTTPClient with a cookie jar that uses the
// public suffix list.
func NewHTTPClient(conf *HTTPClientConf, logger *zap.Logger) (*HTTPClient, error) {
	if conf == nil {
		c := DefaultHTTPClientConf
		conf = &c
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	logger = util.OrNop(logger)
	c := &HTTPClient{
		Client: &http.Client{
			Jar:     jar,
			Timeout: conf.Timeout,
		},
		Conf:   *conf,
		Logger: logger,
	}
	if 0 < conf.BreakerFailureRatio {
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "datasources",
			Timeout: conf.BreakerOpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < conf.BreakerMinRequests {
					return false
				}
				return conf.BreakerFailureRatio <= float64(counts.TotalFailures)/float64(counts.Requests)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker",
					zap.String("name", name),
					zap.Stringer("from", from),
					zap.Stringer("to", to))
			},
		})
	}
	return c, nil
}

// HTTPResponse is what Do returns.
type HTTPResponse struct {
	StatusCode  int         `json:"statusCode"`
	Status      string      `json:"status"`
	Headers     http.Header `json:"headers,omitempty"`
	Body        []byte      `json:"-"`
	ContentType string      `json:"contentType,omitempty"`

	// Parsed is the Body parsed as JSON.
	Parsed interface{} `json:"parsed,omitempty"`
}

// Do makes the request.
//
// A status other than 2xx gives an *HTTPStatusError.  A body that
// isn't JSON gives a *NotJSON.  Both count as failures for the
// circuit breaker.
func (c *HTTPClient) Do(ctx context.Context, r *HTTPRequest) (*HTTPResponse, error) {
	if c.breaker == nil {
		return c.do(ctx, r)
	}
	x, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	return x.(*HTTPResponse), nil
}

func (c *HTTPClient) do(ctx context.Context, r *HTTPRequest) (*HTTPResponse, error) {
	var body io.Reader
	if r.Body != "" {
		body = bytes.NewReader([]byte(r.Body))
	}
	method := r.Method
	if method == "" {
		method = "GET"
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	for _, h := range r.Headers {
		req.Header.Add(h.Key, h.Value)
	}

	c.Logger.Debug("HTTPClient.Do", zap.String("method", method), zap.String("url", r.URL))

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result := &HTTPResponse{
		StatusCode:  resp.StatusCode,
		Status:      resp.Status,
		Headers:     resp.Header,
		ContentType: resp.Header.Get("Content-Type"),
	}

	limit := c.Conf.MaxBody
	if limit <= 0 {
		limit = DefaultHTTPClientConf.MaxBody
	}
	bs, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(bs)) > limit {
		return nil, TooLarge
	}
	result.Body = bs

	if resp.StatusCode < 200 || 300 <= resp.StatusCode {
		return nil, &HTTPStatusError{
			URL:        r.URL,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}

	if ct := result.ContentType; ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || !(mt == "application/json" || strings.HasSuffix(mt, "+json") || mt == "text/plain") {
			return nil, &NotJSON{URL: r.URL, ContentType: ct, Err: err}
		}
	}
	if err = json.Unmarshal(bs, &result.Parsed); err != nil {
		return nil, &NotJSON{URL: r.URL, ContentType: result.ContentType, Err: err}
	}

	return result, nil
}

// Fetch implements Fetcher.
func (c *HTTPClient) Fetch(ctx context.Context, r *HTTPRequest) (interface{}, error) {
	resp, err := c.Do(ctx, r)
	if err != nil {
		return nil, err
	}
	return resp.Parsed, nil
}
