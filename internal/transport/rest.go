package transport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/apptrail-sh/revisions/internal/buildinfo"
	"github.com/google/uuid"
	"resty.dev/v3"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

const (
	requestIDHeader = "X-Request-ID"

	// maxErrorBody caps the response body copied into a TransportError
	maxErrorBody = 1024
)

// Transport sends GET requests to the deployment API and decodes JSON bodies
type Transport interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
}

// Config holds the connection settings shared by every request
type Config struct {
	BaseURL            string
	Token              string
	Timeout            time.Duration
	Headers            map[string]string
	UserAgent          string
	InsecureSkipVerify bool
}

// DefaultConfig returns the default transport configuration
func DefaultConfig() Config {
	return Config{
		Timeout:   10 * time.Second,
		UserAgent: buildinfo.UserAgent(),
	}
}

// RESTTransport implements Transport on top of a resty client
type RESTTransport struct {
	client  *resty.Client
	baseURL string
}

// NewRESTTransport creates a transport for the API served at cfg.BaseURL.
// Requests are never retried.
func NewRESTTransport(cfg Config) (*RESTTransport, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", cfg.BaseURL)
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")

	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	if len(cfg.Headers) > 0 {
		client.SetHeaders(cfg.Headers)
	}
	if cfg.InsecureSkipVerify {
		client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}

	registerMetrics()

	return &RESTTransport{
		client:  client,
		baseURL: cfg.BaseURL,
	}, nil
}

// Get issues a single GET request and decodes a 2xx JSON body into out
func (t *RESTTransport) Get(ctx context.Context, path string, query url.Values, out any) error {
	logger := log.FromContext(ctx).WithName("transport")
	requestID := uuid.New().String()

	logger.V(1).Info("Sending request",
		"method", http.MethodGet,
		"baseURL", t.baseURL,
		"path", path,
		"query", query.Encode(),
		"requestID", requestID,
	)

	start := time.Now()
	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader(requestIDHeader, requestID).
		SetQueryParamsFromValues(query).
		Get(path)

	if err != nil {
		statusCode := 0
		if resp != nil {
			statusCode = resp.StatusCode()
		}
		observeRequest(http.MethodGet, statusCode, time.Since(start))
		logger.Error(err, "Request to deployment API failed",
			"path", path,
			"requestID", requestID,
		)
		return &TransportError{
			Method:     http.MethodGet,
			Path:       path,
			StatusCode: statusCode,
			Err:        err,
		}
	}

	observeRequest(http.MethodGet, resp.StatusCode(), time.Since(start))

	if !resp.IsSuccess() {
		body := resp.String()
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		logger.Error(nil, "Deployment API returned error",
			"statusCode", resp.StatusCode(),
			"status", resp.Status(),
			"body", body,
			"path", path,
			"requestID", requestID,
		)
		return &TransportError{
			Method:     http.MethodGet,
			Path:       path,
			StatusCode: resp.StatusCode(),
			Status:     resp.Status(),
			Body:       body,
		}
	}

	if out != nil {
		if err := decodeBody(resp.Bytes(), out); err != nil {
			logger.Error(err, "Failed to decode deployment API response",
				"path", path,
				"requestID", requestID,
			)
			return &TransportError{
				Method:     http.MethodGet,
				Path:       path,
				StatusCode: resp.StatusCode(),
				Status:     resp.Status(),
				Err:        err,
			}
		}
	}

	logger.V(1).Info("Request completed",
		"path", path,
		"statusCode", resp.StatusCode(),
		"requestID", requestID,
		"duration", time.Since(start),
	)

	return nil
}

// Close releases idle connections held by the underlying client
func (t *RESTTransport) Close() error {
	return t.client.Close()
}

var errEmptyBody = errors.New("empty response body")

func decodeBody(body []byte, out any) error {
	if len(body) == 0 {
		return errEmptyBody
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}
