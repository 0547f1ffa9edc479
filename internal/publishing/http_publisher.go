package publishing

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
	"unicode/utf8"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/postpilot/postpilot-backend/internal/connections"
	"github.com/postpilot/postpilot-backend/pkg/enums"
	pkgerrors "github.com/postpilot/postpilot-backend/pkg/errors"
	"github.com/postpilot/postpilot-backend/pkg/logger"
	"github.com/postpilot/postpilot-backend/pkg/types"
)

const maxResponseBytes = 1 << 20

// CredentialSource looks up a user's stored token for a platform. Missing
// connections are NOT_CONNECTED errors and expired ones AUTH_EXPIRED.
type CredentialSource interface {
	Credential(ctx context.Context, userID uuid.UUID, platform enums.Platform) (connections.Credential, error)
}

// HTTPPublisherConfig describes one platform gateway endpoint.
type HTTPPublisherConfig struct {
	Platform         enums.Platform
	BaseURL          string
	Capabilities     CapabilitySet
	MaxCaption       int
	RequireImage     bool
	RequireSubreddit bool

	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	RatePerSec float64
	Burst      int
}

type httpResult struct {
	status int
	body   []byte
}

type publishBody struct {
	Caption   string     `json:"caption,omitempty"`
	ImageURL  string     `json:"image_url,omitempty"`
	Subreddit string     `json:"subreddit,omitempty"`
	PublishAt *time.Time `json:"publish_at,omitempty"`
	Reference string     `json:"reference"`
}

type publishResponse struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Error string `json:"error"`
}

// HTTPPublisher posts through a platform gateway speaking a small JSON
// protocol: POST {base}/posts with a bearer token, answering {"id","url"}.
type HTTPPublisher struct {
	cfg      HTTPPublisherConfig
	client   *http.Client
	creds    CredentialSource
	limiter  *rate.Limiter
	executor failsafe.Executor[*httpResult]
	breaker  circuitbreaker.CircuitBreaker[*httpResult]
	logg     *logger.Logger
}

// NewHTTPPublisher builds a publisher for cfg.Platform. client may be nil.
func NewHTTPPublisher(cfg HTTPPublisherConfig, creds CredentialSource, client *http.Client, logg *logger.Logger) (*HTTPPublisher, error) {
	cfg.Platform = enums.NormalizePlatform(string(cfg.Platform))
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Platform == "" {
		return nil, errors.New("platform required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%s base url required", cfg.Platform)
	}
	if creds == nil {
		return nil, errors.New("credential source required")
	}
	cfg = normalizeHTTPConfig(cfg)
	if client == nil {
		client = &http.Client{}
	}

	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}

	breaker := circuitbreaker.NewBuilder[*httpResult]().
		WithFailureThresholdRatio(5, 10).
		WithDelay(15 * time.Second).
		WithSuccessThreshold(1).
		HandleIf(func(res *httpResult, err error) bool {
			return err != nil || (res != nil && res.status >= http.StatusInternalServerError)
		}).
		Build()

	retry := retrypolicy.NewBuilder[*httpResult]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(shouldRetry).
		ReturnLastFailure().
		Build()

	return &HTTPPublisher{
		cfg:      cfg,
		client:   client,
		creds:    creds,
		limiter:  rate.NewLimiter(limit, cfg.Burst),
		executor: failsafe.With[*httpResult](retry, breaker),
		breaker:  breaker,
		logg:     logg,
	}, nil
}

func normalizeHTTPConfig(cfg HTTPPublisherConfig) HTTPPublisherConfig {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 250 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Capabilities == 0 {
		cfg.Capabilities = CapabilityText
	}
	return cfg
}

// shouldRetry retries network errors, 429 and 5xx. An open breaker is final.
func shouldRetry(res *httpResult, err error) bool {
	if err != nil {
		return !errors.Is(err, circuitbreaker.ErrOpen) && !errors.Is(err, context.Canceled)
	}
	if res == nil {
		return true
	}
	return res.status == http.StatusTooManyRequests || res.status >= http.StatusInternalServerError
}

func (p *HTTPPublisher) Platform() enums.Platform {
	return p.cfg.Platform
}

func (p *HTTPPublisher) Capabilities() CapabilitySet {
	return p.cfg.Capabilities
}

// BreakerOpen reports whether recent failures have opened the circuit.
func (p *HTTPPublisher) BreakerOpen() bool {
	return p.breaker.IsOpen()
}

func (p *HTTPPublisher) Publish(ctx context.Context, req Request) types.PlatformOutcome {
	platform := p.cfg.Platform
	if failure, ok := p.checkContent(req); !ok {
		return types.Failed(platform, enums.FailureInvalidContent, failure)
	}

	cred, err := p.creds.Credential(ctx, req.UserID, platform)
	if err != nil {
		return credentialFailure(platform, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	if err := p.limiter.Wait(ctx); err != nil {
		return types.Failed(platform, enums.FailureTransport, "rate limit wait: "+err.Error())
	}

	payload, err := json.Marshal(publishBody{
		Caption:   req.Caption,
		ImageURL:  req.ImageURL,
		Subreddit: req.Subreddit,
		PublishAt: req.PublishAt,
		Reference: req.PostID.String(),
	})
	if err != nil {
		return types.Failed(platform, enums.FailureInternal, "encode request: "+err.Error())
	}

	res, err := p.executor.WithContext(ctx).Get(func() (*httpResult, error) {
		return p.send(ctx, cred.AccessToken, req, payload)
	})
	if res == nil || (err != nil && res.status == 0) {
		return p.transportFailure(ctx, err)
	}
	return p.interpret(res)
}

func (p *HTTPPublisher) checkContent(req Request) (string, bool) {
	name := string(p.cfg.Platform)
	if p.cfg.RequireImage && req.ImageURL == "" {
		return name + " requires an image", false
	}
	if p.cfg.RequireSubreddit && req.Subreddit == "" {
		return name + " requires a subreddit", false
	}
	if p.cfg.MaxCaption > 0 && utf8.RuneCountInString(req.Caption) > p.cfg.MaxCaption {
		return fmt.Sprintf("caption exceeds %d characters", p.cfg.MaxCaption), false
	}
	return "", true
}

func (p *HTTPPublisher) send(ctx context.Context, token string, req Request, payload []byte) (*httpResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/posts", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Idempotency-Key", req.PostID.String()+":"+string(p.cfg.Platform))

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	return &httpResult{status: resp.StatusCode, body: body}, nil
}

func (p *HTTPPublisher) interpret(res *httpResult) types.PlatformOutcome {
	platform := p.cfg.Platform
	var parsed publishResponse
	_ = json.Unmarshal(res.body, &parsed)

	switch {
	case res.status >= 200 && res.status < 300:
		if parsed.ID == "" {
			return types.Failed(platform, enums.FailureTransport, "platform response missing post id")
		}
		return types.Succeeded(platform, parsed.ID, parsed.URL)
	case res.status == http.StatusUnauthorized || res.status == http.StatusForbidden:
		return types.Failed(platform, enums.FailureAuthExpired, withDetail("platform rejected credentials", parsed.Error))
	case res.status == http.StatusTooManyRequests:
		return types.Failed(platform, enums.FailureTransport, "rate limited")
	case res.status >= http.StatusInternalServerError:
		return types.Failed(platform, enums.FailureTransport, fmt.Sprintf("platform returned %d", res.status))
	default:
		return types.Failed(platform, enums.FailureInvalidContent, withDetail(fmt.Sprintf("platform rejected post (%d)", res.status), parsed.Error))
	}
}

func (p *HTTPPublisher) transportFailure(ctx context.Context, err error) types.PlatformOutcome {
	platform := p.cfg.Platform
	message := "request failed"
	switch {
	case err == nil:
	case errors.Is(err, circuitbreaker.ErrOpen):
		message = "platform unavailable (circuit open)"
	case errors.Is(err, context.DeadlineExceeded):
		message = fmt.Sprintf("timed out after %s", p.cfg.Timeout)
	default:
		message = err.Error()
	}
	if p.logg != nil && err != nil {
		p.logg.Warn(p.logg.WithField(ctx, "error", err.Error()), "platform request failed")
	}
	return types.Failed(platform, enums.FailureTransport, message)
}

func credentialFailure(platform enums.Platform, err error) types.PlatformOutcome {
	message := err.Error()
	if typed := pkgerrors.As(err); typed != nil {
		message = typed.Message()
	}
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeNotConnected):
		return types.Failed(platform, enums.FailureNotConnected, message)
	case pkgerrors.IsCode(err, pkgerrors.CodeAuthExpired):
		return types.Failed(platform, enums.FailureAuthExpired, message)
	default:
		return types.Failed(platform, enums.FailureInternal, "credential lookup failed: "+message)
	}
}

func withDetail(message, detail string) string {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		return message
	}
	return message + ": " + detail
}
