package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/narralabs/narra-core/internal/voices"
)

// Exec shells out to a local synthesis command, for deployments without
// upstream network access. The request is written to stdin as JSON and raw
// audio bytes are read from stdout.
type Exec struct {
	argv    []string
	timeout time.Duration
	log     *slog.Logger
}

type execPayload struct {
	Text       string          `json:"text"`
	VoiceID    string          `json:"voice_id"`
	ModelID    string          `json:"model_id"`
	Format     string          `json:"format"`
	SampleRate int             `json:"sample_rate"`
	Settings   voices.Settings `json:"settings"`
}

func NewExec(command string, timeout time.Duration, log *slog.Logger) (*Exec, error) {
	parser := shellwords.NewParser()
	argv, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse synthesis command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("synthesis command empty")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Exec{
		argv:    argv,
		timeout: timeout,
		log:     log.With(slog.String("component", "exec-synth")),
	}, nil
}

func (e *Exec) Synthesize(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return Result{}, NewError(CodeInvalidInput, "text must not be empty")
	}
	payload, err := json.Marshal(execPayload{
		Text:       req.Text,
		VoiceID:    req.VoiceID,
		ModelID:    req.ModelID,
		Format:     req.Format,
		SampleRate: req.SampleRate,
		Settings:   req.Settings,
	})
	if err != nil {
		return Result{}, &Error{Code: CodeInternal, Message: "encode synthesis payload", Cause: err}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.argv[0], e.argv[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Result{}, &Error{Code: CodeTimeout, Message: "synthesis command timed out", Retryable: true, Cause: ctx.Err()}
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return Result{}, &Error{Code: CodeUpstream, Message: "synthesis command failed: " + msg, Cause: err}
	}
	if stdout.Len() == 0 {
		return Result{}, NewError(CodeUpstream, "synthesis command produced no audio")
	}
	return Result{
		Audio:       stdout.Bytes(),
		ContentType: ContentTypeFor(req.Format),
		Attempts:    1,
	}, nil
}

// Ping checks that the configured command exists on this host.
func (e *Exec) Ping(ctx context.Context) error {
	if _, err := exec.LookPath(e.argv[0]); err != nil {
		return &Error{Code: CodeUpstream, Message: "synthesis command not found", Cause: err}
	}
	return nil
}
