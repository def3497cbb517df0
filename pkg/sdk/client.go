// Package sdk is a Go client for the AuralForge REST API.
//
//	c := sdk.New("ak_...", sdk.WithBaseURL("https://api.example.com"))
//	sub, err := c.TTS.Synthesize(ctx, sdk.SynthesizeRequest{Text: "hi", VoiceID: "alloy"})
//	job, err := c.Jobs.Wait(ctx, sub.ID, sdk.WaitOptions{})
package sdk

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultBaseURL is the local development API.
const DefaultBaseURL = "http://localhost:4000"

const userAgent = "auralforge-go-sdk/0.1"

// Client talks to the AuralForge API with a bearer API key or session token.
type Client struct {
	http *resty.Client

	TTS    *TTSService
	STT    *STTService
	Voices *VoicesService
	Jobs   *JobsService
}

// Option configures a Client.
type Option func(*resty.Client)

// WithBaseURL points the client at another deployment.
func WithBaseURL(url string) Option {
	return func(c *resty.Client) { c.SetBaseURL(url) }
}

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *resty.Client) {
		c.SetTransport(hc.Transport)
		c.SetTimeout(hc.Timeout)
	}
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) { c.SetTimeout(d) }
}

// WithTeamID selects the team for session tokens that belong to several.
func WithTeamID(teamID string) Option {
	return func(c *resty.Client) { c.SetHeader("X-Team-ID", teamID) }
}

// WithRetries retries 429 and 5xx answers with backoff.
func WithRetries(count int) Option {
	return func(c *resty.Client) {
		c.SetRetryCount(count).
			SetRetryWaitTime(500 * time.Millisecond).
			SetRetryMaxWaitTime(10 * time.Second).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				if err != nil {
					return true
				}
				return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
			})
	}
}

// New creates a client authenticating with token, usually an API key.
func New(token string, opts ...Option) *Client {
	rc := resty.New().
		SetBaseURL(DefaultBaseURL).
		SetAuthToken(token).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent).
		SetTimeout(30 * time.Second)
	for _, opt := range opts {
		opt(rc)
	}

	c := &Client{http: rc}
	c.TTS = &TTSService{c: c}
	c.STT = &STTService{c: c}
	c.Voices = &VoicesService{c: c}
	c.Jobs = &JobsService{c: c}
	return c
}

type requestOptions struct {
	idempotencyKey string
}

// RequestOption customizes a single submission.
type RequestOption func(*requestOptions)

// WithIdempotencyKey makes retries of a submission return the first job.
func WithIdempotencyKey(key string) RequestOption {
	return func(o *requestOptions) { o.idempotencyKey = key }
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}

	var apiErr errorEnvelope
	req := c.http.R().
		SetContext(ctx).
		SetError(&apiErr)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	if ro.idempotencyKey != "" {
		req.SetHeader("Idempotency-Key", ro.idempotencyKey)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return newAPIError(resp, apiErr)
	}
	return nil
}
