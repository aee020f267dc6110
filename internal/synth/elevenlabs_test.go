package synth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/narralabs/narra-core/internal/config"
	"github.com/narralabs/narra-core/internal/voices"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(baseURL string) config.SynthesisConfig {
	return config.SynthesisConfig{
		Provider:         "elevenlabs",
		APIKey:           "test-key",
		BaseURL:          baseURL,
		RequestTimeoutMS: 5000,
		MaxAttempts:      3,
		BackoffBaseMS:    10,
		BackoffMaxMS:     80,
	}
}

// newQuietClient disables jitter and replaces sleeping with delay recording.
func newQuietClient(baseURL string, delays *[]time.Duration) *ElevenLabs {
	c := NewElevenLabs(testConfig(baseURL), newLogger())
	c.jitter = func() time.Duration { return 0 }
	c.sleep = func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return c
}

func sampleRequest() Request {
	return Request{
		Text:    "Hello there.",
		VoiceID: "voice123",
		ModelID: "eleven_flash_v2_5",
		Settings: voices.Settings{
			Stability:       0.7,
			SimilarityBoost: 0.6,
			Style:           0.2,
			UseSpeakerBoost: true,
		},
		Format:     "mp3",
		SampleRate: 22050,
	}
}

func TestSynthesizeSuccess(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/text-to-speech/voice123" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("Accept") != "audio/mp3" {
			t.Errorf("unexpected accept header %q", r.Header.Get("Accept"))
		}
		var payload synthesisPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if payload.Text != "Hello there." || payload.ModelID != "eleven_flash_v2_5" {
			t.Errorf("unexpected payload %+v", payload)
		}
		if payload.VoiceSettings.Stability != 0.7 || !payload.VoiceSettings.UseSpeakerBoost {
			t.Errorf("unexpected voice settings %+v", payload.VoiceSettings)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("fake-mp3-bytes"))
	}))
	defer srv.Close()

	var delays []time.Duration
	c := newQuietClient(srv.URL, &delays)
	res, err := c.Synthesize(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(res.Audio) != "fake-mp3-bytes" {
		t.Fatalf("unexpected audio %q", res.Audio)
	}
	if res.ContentType != "audio/mpeg" {
		t.Fatalf("unexpected content type %q", res.ContentType)
	}
	if res.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", res.Attempts)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected 1 upstream call, got %d", hits.Load())
	}
	if len(delays) != 0 {
		t.Fatalf("expected no backoff, got %v", delays)
	}
}

func TestSynthesizeEmptyTextNoCall(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	var delays []time.Duration
	c := newQuietClient(srv.URL, &delays)
	req := sampleRequest()
	req.Text = "   "
	_, err := c.Synthesize(context.Background(), req)
	if CodeOf(err) != CodeInvalidInput {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no upstream calls, got %d", hits.Load())
	}
}

func TestSynthesizeNonRetryable400(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"detail":{"status":"invalid_request","message":"text too long"}}`)
	}))
	defer srv.Close()

	var delays []time.Duration
	c := newQuietClient(srv.URL, &delays)
	_, err := c.Synthesize(context.Background(), sampleRequest())
	se, ok := AsError(err)
	if !ok {
		t.Fatalf("expected classified error, got %v", err)
	}
	if se.Code != CodeUpstream || se.Retryable {
		t.Fatalf("expected non-retryable upstream error, got %+v", se)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", hits.Load())
	}
	if len(delays) != 0 {
		t.Fatalf("expected no backoff, got %v", delays)
	}
}

func TestSynthesizeRetriesTransient(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok-audio"))
	}))
	defer srv.Close()

	var delays []time.Duration
	c := newQuietClient(srv.URL, &delays)
	res, err := c.Synthesize(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", res.Attempts)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 upstream calls, got %d", hits.Load())
	}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("expected %v, got %v", want, delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay %d: expected %v, got %v", i, want[i], delays[i])
		}
	}
}

func TestSynthesizeHonorsRetryAfter(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok-audio"))
	}))
	defer srv.Close()

	var delays []time.Duration
	c := newQuietClient(srv.URL, &delays)
	res, err := c.Synthesize(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", res.Attempts)
	}
	if len(delays) != 1 || delays[0] < 3*time.Second {
		t.Fatalf("expected delay >= 3s from retry-after hint, got %v", delays)
	}
}

func TestSynthesizeRateLimitExhaustion(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Retry-After", "1.5")
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"detail":"rate limited"}`)
	}))
	defer srv.Close()

	var delays []time.Duration
	c := newQuietClient(srv.URL, &delays)
	_, err := c.Synthesize(context.Background(), sampleRequest())
	se, ok := AsError(err)
	if !ok {
		t.Fatalf("expected classified error, got %v", err)
	}
	if se.Code != CodeRateLimited || !se.Retryable {
		t.Fatalf("expected retryable rate-limit classification, got %+v", se)
	}
	if se.RetryAfter != 1500*time.Millisecond {
		t.Fatalf("expected last retry-after hint carried, got %v", se.RetryAfter)
	}
	if se.Message != "rate limited" {
		t.Fatalf("unexpected message %q", se.Message)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits.Load())
	}
}

func TestSynthesizeAuthError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"detail":{"status":"needs_authorization","message":"invalid api key"}}`)
	}))
	defer srv.Close()

	var delays []time.Duration
	c := newQuietClient(srv.URL, &delays)
	_, err := c.Synthesize(context.Background(), sampleRequest())
	se, ok := AsError(err)
	if !ok || se.Code != CodeAuth || se.Retryable {
		t.Fatalf("expected non-retryable auth error, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected 1 attempt, got %d", hits.Load())
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/voices" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		io.WriteString(w, `{"voices":[]}`)
	}))
	defer srv.Close()

	var delays []time.Duration
	c := newQuietClient(srv.URL, &delays)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPingAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	var delays []time.Duration
	c := newQuietClient(srv.URL, &delays)
	err := c.Ping(context.Background())
	if CodeOf(err) != CodeAuth {
		t.Fatalf("expected auth classification, got %v", err)
	}
}

func TestBackoffDelayCap(t *testing.T) {
	var delays []time.Duration
	c := newQuietClient("http://unused", &delays)
	// base 10ms, max 80ms: attempt 1 -> 10ms, 4 -> capped at 80ms
	if d := c.backoffDelay(1, 0); d != 10*time.Millisecond {
		t.Fatalf("expected 10ms, got %v", d)
	}
	if d := c.backoffDelay(4, 0); d != 80*time.Millisecond {
		t.Fatalf("expected cap at 80ms, got %v", d)
	}
	if d := c.backoffDelay(1, 2*time.Second); d != 2*time.Second {
		t.Fatalf("expected retry-after precedence, got %v", d)
	}
}

func TestParseRetryAfter(t *testing.T) {
	cases := map[string]time.Duration{
		"3":    3 * time.Second,
		"2.5":  2500 * time.Millisecond,
		"0":    0,
		"-1":   0,
		"":     0,
		"soon": 0,
	}
	for in, want := range cases {
		if got := parseRetryAfter(in); got != want {
			t.Fatalf("parseRetryAfter(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestExtractError(t *testing.T) {
	cases := map[string]string{
		`{"detail":{"status":"bad","message":"quota exceeded"}}`: "quota exceeded",
		`{"detail":"plain detail"}`:                              "plain detail",
		`{"error":"boom"}`:                                       "boom",
		`not json at all`:                                        "not json at all",
		``:                                                       "upstream error",
	}
	for in, want := range cases {
		if got := extractError([]byte(in)); got != want {
			t.Fatalf("extractError(%q) = %q, want %q", in, got, want)
		}
	}
}
