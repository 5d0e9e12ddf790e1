// Package upstream provides the authenticated transport to the primary
// bug-tracking system: every outbound call is signed, timed out after a
// fixed deadline, and failures are classified before callers see them.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/BugBridge/BugBridge/internal/domain"
	"github.com/BugBridge/BugBridge/internal/logger"
	"github.com/BugBridge/BugBridge/internal/signature"
	"github.com/BugBridge/BugBridge/pkg/errors"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// requestTimeout bounds every upstream round trip. Retries are a caller
// concern; the client never retries.
const requestTimeout = 10 * time.Second

const serviceName = "upstream"

type Client struct {
	log        zerolog.Logger
	baseURL    string
	apiKey     string
	codec      *signature.Codec
	classifier *Classifier
	http       *http.Client
}

func NewClient(log logger.Logger, cfg domain.UpstreamConfig, codec *signature.Codec, classifier *Classifier) *Client {
	return &Client{
		log:        log.With().Str("module", "upstream").Logger(),
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		codec:      codec,
		classifier: classifier,
		http:       &http.Client{Timeout: requestTimeout},
	}
}

func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) Post(ctx context.Context, path string, body interface{}) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *Client) Put(ctx context.Context, path string, body interface{}) ([]byte, error) {
	return c.do(ctx, http.MethodPut, path, body)
}

func (c *Client) Delete(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	call := CallContext{Service: serviceName, Operation: method + " " + path}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "could not encode request body for %s", path)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "could not build request for %s", path)
	}

	// fresh timestamp and signature on every call; the path is signed
	// unmodified, without the base URL
	ts := c.codec.Timestamp()
	sig := c.codec.Sign(signature.Context{
		Method:    method,
		Path:      path,
		Timestamp: ts,
		Body:      payload,
	})

	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("x-timestamp", ts)
	req.Header.Set("x-signature", sig)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.classifier.Handle(c.classifier.Classify(err, method, path), call)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.classifier.Handle(c.classifier.Classify(err, method, path), call)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.classifier.Handle(c.classifier.ClassifyStatus(resp.StatusCode, data, method, path), call)
	}

	c.log.Trace().Msgf("%s %s: %d, read %s", method, path, resp.StatusCode, humanize.Bytes(uint64(len(data))))

	return data, nil
}
