package synth

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestExecSynthesizeRoundTrip(t *testing.T) {
	// cat echoes the JSON request back as the "audio" payload
	e, err := NewExec("cat", 5*time.Second, newLogger())
	if err != nil {
		t.Fatalf("new exec: %v", err)
	}
	req := sampleRequest()
	res, err := e.Synthesize(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded execPayload
	if err := json.Unmarshal(res.Audio, &decoded); err != nil {
		t.Fatalf("expected stdin payload echoed back: %v", err)
	}
	if decoded.Text != req.Text || decoded.VoiceID != req.VoiceID {
		t.Fatalf("unexpected payload %+v", decoded)
	}
	if res.ContentType != "audio/mpeg" {
		t.Fatalf("unexpected content type %q", res.ContentType)
	}
}

func TestExecSynthesizeCommandFailure(t *testing.T) {
	e, err := NewExec("false", time.Second, newLogger())
	if err != nil {
		t.Fatalf("new exec: %v", err)
	}
	_, err = e.Synthesize(context.Background(), sampleRequest())
	if CodeOf(err) != CodeUpstream {
		t.Fatalf("expected upstream classification, got %v", err)
	}
}

func TestExecSynthesizeEmptyOutput(t *testing.T) {
	e, err := NewExec("true", time.Second, newLogger())
	if err != nil {
		t.Fatalf("new exec: %v", err)
	}
	_, err = e.Synthesize(context.Background(), sampleRequest())
	se, ok := AsError(err)
	if !ok || se.Code != CodeUpstream {
		t.Fatalf("expected upstream error for empty output, got %v", err)
	}
}

func TestNewExecRejectsEmptyCommand(t *testing.T) {
	if _, err := NewExec("", time.Second, newLogger()); err == nil {
		t.Fatal("expected error for empty command")
	}
}
