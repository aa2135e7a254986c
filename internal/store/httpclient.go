package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	appErr "github.com/canvas-studio/engine/pkg/errors"
	"github.com/canvas-studio/engine/pkg/logger"
)

// OwnerHeader carries the acting owner id on store API requests.
const OwnerHeader = "X-Owner-ID"

// HTTPClientConfig configures an HTTPClient.
type HTTPClientConfig struct {
	BaseURL string // e.g. http://localhost:8080/api/v1
	OwnerID string
	Timeout time.Duration
	// Breaker thresholds: trip after FailureThreshold of at least MinRequests
	// fail within Interval; half-open again after OpenTimeout.
	MinRequests      uint32
	FailureThreshold float64
	Interval         time.Duration
	OpenTimeout      time.Duration
	Logger           *zap.Logger
	HTTP             *http.Client
}

// HTTPClient is a Store backed by the canvas API, guarded by a circuit
// breaker so a failing backend fails saves fast instead of piling up requests.
type HTTPClient struct {
	base    string
	owner   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

// NewHTTPClient builds a client; zero config fields take defaults.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = 5
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 0.6
	}
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 20 * time.Second
	}
	hc := cfg.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	log := logger.OrGlobal(cfg.Logger)

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "canvas-store",
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
		// Client-side mistakes say nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil || appErr.IsClientFault(err)
		},
	})

	return &HTTPClient{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		owner:   cfg.OwnerID,
		http:    hc,
		breaker: cb,
		log:     log,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *HTTPClient) Load(ctx context.Context, q Query) (*Record, error) {
	var path string
	owner := c.owner
	switch {
	case q.CanvasID != "":
		path = "/canvases/" + url.PathEscape(q.CanvasID)
	default:
		if q.OwnerID != "" {
			owner = q.OwnerID
		}
		path = "/canvases/lookup?name=" + url.QueryEscape(q.Name)
	}
	var rec Record
	err := c.do(ctx, http.MethodGet, path, owner, nil, &rec)
	if appErr.IsCode(err, appErr.CodeNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *HTTPClient) Upsert(ctx context.Context, in UpsertInput) (*Record, error) {
	var rec Record
	if err := c.do(ctx, http.MethodPut, "/canvases", in.OwnerID, in, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *HTTPClient) ListByOwnerAndName(ctx context.Context, ownerID, name string) ([]Record, error) {
	var out []Record
	if err := c.do(ctx, http.MethodGet, "/canvases/duplicates?name="+url.QueryEscape(name), ownerID, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) Delete(ctx context.Context, canvasID string) error {
	return c.do(ctx, http.MethodDelete, "/canvases/"+url.PathEscape(canvasID), c.owner, nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path, owner string, body, out any) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, owner, body, out)
	})
	switch err {
	case gobreaker.ErrOpenState, gobreaker.ErrTooManyRequests:
		return appErr.Wrap(err, appErr.CodeUnavailable, "canvas store unavailable")
	}
	return err
}

func (c *HTTPClient) roundTrip(ctx context.Context, method, path, owner string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return appErr.Wrap(err, appErr.CodeInvalid, "encode request")
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInvalid, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if owner != "" {
		req.Header.Set(OwnerHeader, owner)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return appErr.Wrap(err, appErr.CodeDeadline, "canvas store request canceled")
		}
		return appErr.Wrap(err, appErr.CodeUnavailable, "canvas store request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 32<<20)).Decode(&env); err != nil && err != io.EOF {
		return appErr.Wrap(err, appErr.CodeInternal, fmt.Sprintf("decode %s %s response", method, path))
	}
	if resp.StatusCode >= 300 || !env.Success {
		msg := http.StatusText(resp.StatusCode)
		if env.Error != nil && env.Error.Message != "" {
			msg = env.Error.Message
		}
		return appErr.New(codeForStatus(resp.StatusCode), msg)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "decode response data")
		}
	}
	return nil
}

func codeForStatus(status int) appErr.Code {
	switch {
	case status == http.StatusNotFound:
		return appErr.CodeNotFound
	case status == http.StatusConflict:
		return appErr.CodeConflict
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return appErr.CodeInvalid
	case status == http.StatusForbidden:
		return appErr.CodeForbidden
	case status == http.StatusTooManyRequests, status == http.StatusServiceUnavailable:
		return appErr.CodeUnavailable
	case status >= 500:
		return appErr.CodeInternal
	}
	return appErr.CodeUnknown
}

var _ Store = (*HTTPClient)(nil)
