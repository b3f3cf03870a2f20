package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const predictPath = "/api/predict"

// maxErrorBody caps how much of a failed response is kept for the error.
const maxErrorBody = 4 << 10

var (
	// ErrRequestFailed matches every failure of a prediction round trip.
	ErrRequestFailed     = errors.New("prediction request failed")
	ErrMissingPrediction = errors.New("response has no prediction label")
)

// RequestError describes a failed round trip to the predictor.
type RequestError struct {
	Op         string // "send", "status", "decode" or "breaker"
	StatusCode int
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	var b strings.Builder
	b.WriteString("predict ")
	b.WriteString(e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, ", body: %s", e.Body)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func (e *RequestError) Is(target error) bool {
	return target == ErrRequestFailed
}

// Predictor maps a request to a disease label.
type Predictor interface {
	Predict(ctx context.Context, req Request) (*Response, error)
}

// BreakerSettings tune the circuit breaker in front of the predictor.
type BreakerSettings struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:         1,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

type Client struct {
	endpoint   string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, bs BreakerSettings, logger *zap.Logger) *Client {
	c := &Client{
		endpoint: strings.TrimRight(baseURL, "/") + predictPath,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.Named("predictor"),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "predictor",
		MaxRequests: bs.MaxRequests,
		Interval:    bs.Interval,
		Timeout:     bs.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return bs.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= bs.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// A caller going away says nothing about the predictor's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return c
}

// Predict performs one request-response exchange with the predictor.
func (c *Client) Predict(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &RequestError{Op: "send", Err: err}
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &RequestError{Op: "breaker", Err: err}
		}
		return nil, err
	}
	return out.(*Response), nil
}

func (c *Client) do(ctx context.Context, body []byte) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &RequestError{Op: "send", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &RequestError{Op: "send", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &RequestError{
			Op:         "status",
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}

	var result Response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &RequestError{Op: "decode", StatusCode: resp.StatusCode, Err: err}
	}
	if strings.TrimSpace(result.Prediction) == "" {
		return nil, &RequestError{Op: "decode", StatusCode: resp.StatusCode, Err: ErrMissingPrediction}
	}

	c.logger.Debug("prediction received",
		zap.String("prediction", result.Prediction),
		zap.String("confidence", result.Confidence.String()),
	)
	return &result, nil
}
