// Package balance reads the merchant wallet balance from the external provider.
package balance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUpstream matches every UpstreamError via errors.Is.
var ErrUpstream = errors.New("balance provider unavailable")

// UpstreamError reports a failed balance read: network failure, non-2xx status,
// malformed JSON, an unsuccessful response or a non-numeric balance.
type UpstreamError struct {
	StatusCode int
	Reason     string
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := "balance provider: " + e.Reason
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// DefaultAPIURL is the wallet balance endpoint used when none is configured.
const DefaultAPIURL = "https://webapi.mobikwik.com/p/wallet/balance"

// maxBodyBytes bounds how much of a provider response is read.
const maxBodyBytes = 1 << 20

// Config configures an Oracle.
type Config struct {
	APIURL     string
	AuthToken  string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Oracle fetches the current wallet balance. It keeps no state: every call is a
// fresh read and nothing is retried or cached.
type Oracle struct {
	apiURL string
	auth   string
	client *http.Client
}

// NewOracle returns an Oracle for cfg.
func NewOracle(cfg Config) *Oracle {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Oracle{
		apiURL: apiURL,
		auth:   cfg.AuthToken,
		client: client,
	}
}

type balanceResponse struct {
	Success bool `json:"success"`
	Data    *struct {
		Balance *float64 `json:"balance"`
	} `json:"data"`
}

// FetchBalance returns the wallet balance or an *UpstreamError.
func (o *Oracle) FetchBalance(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.apiURL, nil)
	if err != nil {
		return 0, &UpstreamError{Reason: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Authorization", o.auth)
	req.Header.Set("Origin", "https://www.mobikwik.com")
	req.Header.Set("Referer", "https://www.mobikwik.com/")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("X-Mclient", "0")

	resp, err := o.client.Do(req)
	if err != nil {
		return 0, &UpstreamError{Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return 0, &UpstreamError{Reason: "unexpected status", StatusCode: resp.StatusCode}
	}

	var body balanceResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return 0, &UpstreamError{Reason: "malformed response", StatusCode: resp.StatusCode, Err: err}
	}
	if !body.Success {
		return 0, &UpstreamError{Reason: "provider reported failure", StatusCode: resp.StatusCode}
	}
	if body.Data == nil || body.Data.Balance == nil {
		return 0, &UpstreamError{Reason: "balance missing from response", StatusCode: resp.StatusCode}
	}

	return *body.Data.Balance, nil
}
