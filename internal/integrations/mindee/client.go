package mindee

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"insurance-bot/internal/domain"
	"insurance-bot/internal/integrations/paramstore"
)

var (
	// ErrUpload means the provider did not accept the document.
	ErrUpload = fmt.Errorf("mindee: %w", domain.ErrUploadRejected)
	// ErrTimeout means the job did not finish within the poll budget.
	ErrTimeout = fmt.Errorf("mindee: %w", domain.ErrExtractionTimeout)
	// ErrProcessingFailed means the provider reported the job as failed.
	ErrProcessingFailed = fmt.Errorf("mindee: %w", domain.ErrExtractionFailed)
	// ErrParse means the provider payload did not have the expected shape.
	ErrParse = fmt.Errorf("mindee: %w", domain.ErrUnexpectedPayload)
)

// HTTPStatusError captures non-2xx upstream responses.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("mindee: unexpected status %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// product is one Mindee API product together with the mapping from its
// prediction schema to our records.
type product struct {
	path      string
	mapFields func(prediction map[string]json.RawMessage) *domain.Extraction
}

var products = map[domain.DocumentKind]product{
	domain.DocumentIdentity: {path: "id_card/v1", mapFields: mapIdentity},
	domain.DocumentVehicle:  {path: "vehicle_registration_certificates/v1", mapFields: mapVehicle},
}

// Client talks to the Mindee asynchronous prediction API. One Client is
// shared by all conversations; its throttle is per instance.
type Client struct {
	baseURL         string
	account         string
	httpClient      *http.Client
	getter          Getter
	tokenName       string
	log             *slog.Logger
	clock           clock
	throttle        *throttle
	requestAttempts int
	pollAttempts    int
	retryDelay      time.Duration
	backoffCap      time.Duration

	keyOnce sync.Once
	apiKey  string
	keyErr  error
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

func WithAccount(account string) Option {
	return func(c *Client) {
		c.account = strings.TrimSpace(account)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMinRequestInterval sets the client-side throttle between requests.
func WithMinRequestInterval(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.throttle.interval = d
		}
	}
}

// WithRequestAttempts bounds retries of a single upload or fetch call.
func WithRequestAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.requestAttempts = n
		}
	}
}

// WithPollAttempts bounds the number of status polls for one job.
func WithPollAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pollAttempts = n
		}
	}
}

// WithBackoff sets the exponential backoff base delay and ceiling.
func WithBackoff(base, ceiling time.Duration) Option {
	return func(c *Client) {
		if base > 0 {
			c.retryDelay = base
		}
		if ceiling > 0 {
			c.backoffCap = ceiling
		}
	}
}

func withClock(cl clock) Option {
	return func(c *Client) {
		c.clock = cl
		c.throttle.clock = cl
	}
}

// New creates a Client. The API key is resolved through getter on first use.
func New(getter Getter, tokenName string, opts ...Option) (*Client, error) {
	if getter == nil {
		return nil, errors.New("mindee: token getter must not be nil")
	}
	tokenName = strings.TrimSpace(tokenName)
	if tokenName == "" {
		return nil, errors.New("mindee: token parameter name must not be empty")
	}
	c := &Client{
		baseURL:         "https://api.mindee.net/v1",
		account:         "Rajiole",
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		getter:          getter,
		tokenName:       tokenName,
		log:             slog.Default(),
		clock:           realClock{},
		throttle:        &throttle{interval: 3 * time.Second, clock: realClock{}},
		requestAttempts: 5,
		pollAttempts:    10,
		retryDelay:      3 * time.Second,
		backoffCap:      60 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.account == "" {
		return nil, errors.New("mindee: account must not be empty")
	}
	return c, nil
}

func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyOnce.Do(func() {
		c.apiKey, c.keyErr = paramstore.ResolveToken(ctx, c.getter, c.tokenName)
	})
	return c.apiKey, c.keyErr
}

func (c *Client) productURL(kind domain.DocumentKind, suffix string) (string, error) {
	p, ok := products[kind]
	if !ok {
		return "", fmt.Errorf("mindee: unknown document kind %q", kind)
	}
	return fmt.Sprintf("%s/products/%s/%s/%s", c.baseURL, c.account, p.path, suffix), nil
}

type jobEnvelope struct {
	Job struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"job"`
	Document *documentRef `json:"document"`
}

type documentRef struct {
	ID        string          `json:"id"`
	Inference json.RawMessage `json:"inference"`
}

// Upload submits the image at imagePath and returns the provider job id.
// Any outcome other than 202 Accepted with a job id wraps ErrUpload.
func (c *Client) Upload(ctx context.Context, kind domain.DocumentKind, imagePath string) (string, error) {
	url, err := c.productURL(kind, "predict_async")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}
	image, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("%w: read image: %w", ErrUpload, err)
	}
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}

	newReq := func(ctx context.Context) (*http.Request, error) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("document", filepath.Base(imagePath))
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(image); err != nil {
			return nil, err
		}
		if err := mw.Close(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Token "+apiKey)
		return req, nil
	}

	body, status, err := c.do(ctx, "upload", newReq)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}
	if status != http.StatusAccepted {
		c.log.Error("mindee.upload.rejected", "kind", kind, "status", status)
		return "", fmt.Errorf("%w: status %d", ErrUpload, status)
	}
	var env jobEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", ErrUpload, err)
	}
	if env.Job.ID == "" {
		return "", fmt.Errorf("%w: response has no job id", ErrUpload)
	}
	c.log.Info("mindee.upload.accepted", "kind", kind, "job_id", env.Job.ID)
	return env.Job.ID, nil
}

// AwaitResult polls the job queue until the job completes, fails or the poll
// budget runs out, and returns the raw prediction payload.
//
// Every poll consumes one attempt, including polls answered with 429 or a
// transport error. Between attempts the client sleeps for the Retry-After
// value (429 only) or min(retryDelay*2^attempt, backoffCap).
func (c *Client) AwaitResult(ctx context.Context, kind domain.DocumentKind, jobID string) ([]byte, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, fmt.Errorf("%w: job id is required", ErrUpload)
	}
	url, err := c.productURL(kind, "documents/queue/"+jobID)
	if err != nil {
		return nil, err
	}
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	newReq := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Token "+apiKey)
		return req, nil
	}

	for attempt := 0; attempt < c.pollAttempts; attempt++ {
		if err := c.throttle.wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		wait := backoff(c.retryDelay, c.backoffCap, attempt)

		body, status, header, err := c.send(ctx, newReq)
		switch {
		case err != nil:
			c.log.Warn("mindee.poll.error", "job_id", jobID, "attempt", attempt+1, "err", err)
		case status == http.StatusTooManyRequests:
			wait = retryAfter(header, c.clock.Now(), wait, c.backoffCap)
			c.log.Warn("mindee.poll.rate_limited", "job_id", jobID, "attempt", attempt+1, "wait", wait)
		case status < 200 || status >= 300:
			c.log.Warn("mindee.poll.bad_status", "job_id", jobID, "attempt", attempt+1, "status", status)
		default:
			job, doc, err := parseJob(body)
			if err != nil {
				return nil, err
			}
			job.Kind = kind
			c.log.Debug("mindee.poll.status", "job_id", job.JobID, "kind", job.Kind, "status", job.Status, "attempt", attempt+1)
			switch job.Status {
			case domain.JobCompleted:
				if doc != nil && len(doc.Inference) > 0 {
					return body, nil
				}
				if job.DocumentID != "" {
					return c.fetchDocument(ctx, kind, job.DocumentID, apiKey)
				}
				return body, nil
			case domain.JobFailed:
				c.log.Error("mindee.poll.failed", "job_id", jobID, "body", truncate(string(body), 512))
				return nil, fmt.Errorf("%w: job %s", ErrProcessingFailed, jobID)
			}
		}

		if attempt == c.pollAttempts-1 {
			break
		}
		if err := c.clock.Sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
	}

	c.log.Error("mindee.poll.exhausted", "job_id", jobID, "attempts", c.pollAttempts)
	return nil, fmt.Errorf("%w: job %s after %d attempts", ErrTimeout, jobID, c.pollAttempts)
}

func (c *Client) fetchDocument(ctx context.Context, kind domain.DocumentKind, documentID, apiKey string) ([]byte, error) {
	url, err := c.productURL(kind, "documents/"+documentID)
	if err != nil {
		return nil, err
	}
	body, _, err := c.do(ctx, "fetch", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Token "+apiKey)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: fetch document %s: %w", ErrProcessingFailed, documentID, err)
	}
	return body, nil
}

func parseJob(body []byte) (domain.ExtractionJob, *documentRef, error) {
	var env jobEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.ExtractionJob{}, nil, fmt.Errorf("%w: decode job status: %w", ErrParse, err)
	}
	job := domain.ExtractionJob{JobID: env.Job.ID, Status: domain.JobQueued}
	switch strings.ToLower(env.Job.Status) {
	case "completed":
		job.Status = domain.JobCompleted
	case "failed":
		job.Status = domain.JobFailed
	}
	if env.Document != nil {
		job.DocumentID = env.Document.ID
	}
	return job, env.Document, nil
}

// do sends one logical request with throttling and bounded retries. 429
// and 5xx responses and transport errors are retried; each retry uses one
// of requestAttempts. Other non-2xx statuses are returned immediately.
func (c *Client) do(ctx context.Context, op string, newReq func(context.Context) (*http.Request, error)) ([]byte, int, error) {
	var lastErr error
	for attempt := 0; attempt < c.requestAttempts; attempt++ {
		if err := c.throttle.wait(ctx); err != nil {
			return nil, 0, err
		}
		wait := backoff(c.retryDelay, c.backoffCap, attempt)

		body, status, header, err := c.send(ctx, newReq)
		switch {
		case err != nil:
			lastErr = err
			c.log.Warn("mindee.request.error", "op", op, "attempt", attempt+1, "err", err)
		case status == http.StatusTooManyRequests:
			lastErr = &HTTPStatusError{StatusCode: status, Body: truncate(string(body), 512)}
			wait = retryAfter(header, c.clock.Now(), wait, c.backoffCap)
			c.log.Warn("mindee.request.rate_limited", "op", op, "attempt", attempt+1, "wait", wait)
		case status >= 500:
			lastErr = &HTTPStatusError{StatusCode: status, Body: truncate(string(body), 512)}
			c.log.Warn("mindee.request.server_error", "op", op, "attempt", attempt+1, "status", status)
		case status < 200 || status >= 300:
			return nil, status, &HTTPStatusError{StatusCode: status, Body: truncate(string(body), 512)}
		default:
			return body, status, nil
		}

		if attempt == c.requestAttempts-1 {
			break
		}
		if err := c.clock.Sleep(ctx, wait); err != nil {
			return nil, 0, err
		}
	}
	return nil, 0, fmt.Errorf("mindee: %s failed after %d attempts: %w", op, c.requestAttempts, lastErr)
}

func (c *Client) send(ctx context.Context, newReq func(context.Context) (*http.Request, error)) ([]byte, int, http.Header, error) {
	req, err := newReq(ctx)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("create request: %w", err)
	}
	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return nil, 0, nil, err
	}
	defer func() { _ = res.Body.Close() }()

	buf, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return nil, 0, nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, res.StatusCode, res.Header, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// Extract maps a raw prediction payload onto the record for kind.
func (c *Client) Extract(payload []byte, kind domain.DocumentKind) (*domain.Extraction, error) {
	return Extract(payload, kind)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
