package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/narralabs/narra-core/internal/config"
)

// DefaultBaseURL is the public ElevenLabs API root.
const DefaultBaseURL = "https://api.elevenlabs.io/v1"

// ElevenLabs talks to the ElevenLabs text-to-speech API with bounded
// retries, exponential backoff, and a process-wide upstream rate limit.
type ElevenLabs struct {
	apiKey      string
	baseURL     string
	client      *http.Client
	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration
	limiter     *rate.Limiter
	log         *slog.Logger

	// injectable for tests
	sleep  func(context.Context, time.Duration) error
	jitter func() time.Duration
}

type synthesisPayload struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

func NewElevenLabs(cfg config.SynthesisConfig, log *slog.Logger) *ElevenLabs {
	base := time.Duration(cfg.BackoffBaseMS) * time.Millisecond
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxBackoff := time.Duration(cfg.BackoffMaxMS) * time.Millisecond
	if maxBackoff < base {
		maxBackoff = 8 * base
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 3
	}
	timeout := time.Duration(cfg.RequestTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	var limiter *rate.Limiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RateLimitPerMinute)), cfg.RateLimitPerMinute)
	}

	c := &ElevenLabs{
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		client:      &http.Client{Timeout: timeout},
		maxAttempts: attempts,
		backoffBase: base,
		backoffMax:  maxBackoff,
		limiter:     limiter,
		log:         log.With(slog.String("component", "elevenlabs")),
	}
	c.sleep = sleepContext
	c.jitter = func() time.Duration { return rand.N(c.backoffBase) }
	return c
}

// Synthesize performs one upstream call per attempt until success, a
// non-retryable classification, or retry exhaustion.
func (c *ElevenLabs) Synthesize(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return Result{}, NewError(CodeInvalidInput, "text must not be empty")
	}
	if req.VoiceID == "" {
		return Result{}, NewError(CodeVoiceNotFound, "voice id must not be empty")
	}

	payload, err := json.Marshal(synthesisPayload{
		Text:    req.Text,
		ModelID: req.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       req.Settings.Stability,
			SimilarityBoost: req.Settings.SimilarityBoost,
			Style:           req.Settings.Style,
			UseSpeakerBoost: req.Settings.UseSpeakerBoost,
		},
	})
	if err != nil {
		return Result{}, &Error{Code: CodeInternal, Message: "encode synthesis payload", Cause: err}
	}

	var last *Error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return Result{}, &Error{Code: CodeTimeout, Message: "cancelled while rate limited", Cause: err}
			}
		}

		audio, contentType, serr := c.attempt(ctx, req, payload)
		if serr == nil {
			return Result{Audio: audio, ContentType: contentType, Attempts: attempt}, nil
		}
		last = serr
		if !serr.Retryable || attempt == c.maxAttempts {
			break
		}

		delay := c.backoffDelay(attempt, serr.RetryAfter)
		c.log.Warn("retrying synthesis",
			slog.Int("attempt", attempt),
			slog.String("code", string(serr.Code)),
			slog.Duration("delay", delay))
		if err := c.sleep(ctx, delay); err != nil {
			return Result{}, &Error{Code: CodeTimeout, Message: "cancelled during backoff", Cause: err}
		}
	}
	return Result{}, last
}

func (c *ElevenLabs) attempt(ctx context.Context, req Request, payload []byte) ([]byte, string, *Error) {
	url := fmt.Sprintf("%s/text-to-speech/%s", c.baseURL, req.VoiceID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, "", &Error{Code: CodeInternal, Message: "build request", Cause: err}
	}
	httpReq.Header.Set("xi-api-key", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/"+req.Format)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, "", classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", classifyStatus(resp)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &Error{Code: CodeUpstream, Message: "read audio body", Retryable: true, Cause: err}
	}
	if len(audio) == 0 {
		return nil, "", NewError(CodeUpstream, "upstream returned empty audio")
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = ContentTypeFor(req.Format)
	}
	return audio, contentType, nil
}

// backoffDelay computes the pause after a failed attempt. A provider
// retry-after hint takes precedence over the exponential schedule.
func (c *ElevenLabs) backoffDelay(failedAttempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}
	delay := c.backoffBase << (failedAttempt - 1)
	if delay > c.backoffMax {
		delay = c.backoffMax
	}
	return delay + c.jitter()
}

// Ping lists upstream voices to verify connectivity and credentials.
func (c *ElevenLabs) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/voices", nil)
	if err != nil {
		return &Error{Code: CodeInternal, Message: "build request", Cause: err}
	}
	httpReq.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return classifyStatus(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func classifyStatus(resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := extractError(body)
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &Error{Code: CodeAuth, Message: msg}
	case resp.StatusCode == http.StatusForbidden:
		return &Error{Code: CodeForbidden, Message: msg}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &Error{
			Code:       CodeRateLimited,
			Message:    msg,
			Retryable:  true,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode == 500 || resp.StatusCode == 502 || resp.StatusCode == 503 || resp.StatusCode == 504:
		return &Error{Code: CodeUpstream, Message: msg, Retryable: true}
	default:
		return &Error{Code: CodeUpstream, Message: fmt.Sprintf("status %d: %s", resp.StatusCode, msg)}
	}
}

func classifyTransport(err error) *Error {
	if errors.Is(err, context.Canceled) {
		return &Error{Code: CodeTimeout, Message: "synthesis cancelled", Cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: CodeTimeout, Message: "synthesis timed out", Retryable: true, Cause: err}
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &Error{Code: CodeTimeout, Message: "synthesis timed out", Retryable: true, Cause: err}
	}
	return &Error{Code: CodeUpstream, Message: "upstream request failed", Retryable: true, Cause: err}
}

// extractError pulls a readable message from an upstream error body. The
// provider wraps details under "detail" as either an object or a string.
func extractError(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if len(payload.Detail) > 0 {
			var obj struct {
				Message string `json:"message"`
				Status  string `json:"status"`
			}
			if err := json.Unmarshal(payload.Detail, &obj); err == nil && obj.Message != "" {
				return obj.Message
			}
			var s string
			if err := json.Unmarshal(payload.Detail, &s); err == nil && s != "" {
				return s
			}
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	if text == "" {
		text = "upstream error"
	}
	return text
}

// parseRetryAfter accepts integer or fractional seconds.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
