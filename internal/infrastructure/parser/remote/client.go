// Package remote talks to the external parse service over HTTP: submit a
// blob, poll the job, fetch the extracted text. Transport failures are
// retried a small bounded number of times through the resilience executor;
// anything that survives the retries is final and the orchestrator turns it
// into a failed parse state.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mshevelev/docvault/internal/core/ports"
	"github.com/mshevelev/docvault/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	executor   *resilience.Executor
	limiter    *rate.Limiter
}

type Options struct {
	APIKey         string
	RequestTimeout time.Duration
	// SubmitPerSecond throttles job submissions toward the provider;
	// zero disables the limiter.
	SubmitPerSecond float64
	SubmitBurst     int
	Executor        *resilience.Executor
}

func New(baseURL string, options Options) *Client {
	timeout := options.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if options.SubmitPerSecond > 0 {
		burst := options.SubmitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(options.SubmitPerSecond), burst)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     options.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.Executor,
		limiter:    limiter,
	}
}

func (c *Client) Submit(ctx context.Context, content io.Reader, mimeType string) (string, error) {
	raw, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("read content for submit: %w", err)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("wait for submit slot: %w", err)
		}
	}

	var response struct {
		JobID string `json:"job_id"`
	}
	call := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/jobs", bytes.NewReader(raw))
		if err != nil {
			return fmt.Errorf("create submit request: %w", err)
		}
		req.Header.Set("Content-Type", mimeType)
		return c.do(req, &response, "submit")
	}
	if err := c.execute(ctx, "parser.submit", call); err != nil {
		return "", err
	}
	if response.JobID == "" {
		return "", fmt.Errorf("parse service returned empty job id")
	}
	return response.JobID, nil
}

func (c *Client) PollStatus(ctx context.Context, jobHandle string) (ports.ParseJobState, error) {
	var response struct {
		Status string `json:"status"`
	}
	call := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jobURL(jobHandle), nil)
		if err != nil {
			return fmt.Errorf("create poll request: %w", err)
		}
		return c.do(req, &response, "poll")
	}
	if err := c.execute(ctx, "parser.poll", call); err != nil {
		return "", err
	}

	switch response.Status {
	case "pending", "running":
		return ports.ParseJobPending, nil
	case "success":
		return ports.ParseJobSuccess, nil
	case "error":
		return ports.ParseJobError, nil
	default:
		return "", fmt.Errorf("parse service returned unknown status %q", response.Status)
	}
}

func (c *Client) FetchResult(ctx context.Context, jobHandle string) (string, error) {
	var response struct {
		Text string `json:"text"`
	}
	call := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jobURL(jobHandle)+"/result", nil)
		if err != nil {
			return fmt.Errorf("create result request: %w", err)
		}
		return c.do(req, &response, "result")
	}
	if err := c.execute(ctx, "parser.result", call); err != nil {
		return "", err
	}
	return response.Text, nil
}

func (c *Client) execute(ctx context.Context, operation string, call func(context.Context) error) error {
	if c.executor == nil {
		return call(ctx)
	}
	return c.executor.Execute(ctx, operation, call, classifyParserError)
}

func (c *Client) do(req *http.Request, out any, operation string) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("parse service %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func (c *Client) jobURL(jobHandle string) string {
	return c.baseURL + "/v1/jobs/" + jobHandle
}
