package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/narralabs/narra-core/internal/bus"
	"github.com/narralabs/narra-core/internal/config"
	"github.com/narralabs/narra-core/internal/pipeline"
	"github.com/narralabs/narra-core/internal/protocol"
	"github.com/narralabs/narra-core/internal/synth"
)

// Generator runs one generation job. *pipeline.Pipeline satisfies it.
type Generator interface {
	Generate(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)
}

// Service consumes generation requests from the bus and publishes
// results. Audio rides along only when it fits the payload ceiling;
// oversized results carry the record alone.
type Service struct {
	cfg    config.WorkerConfig
	bus    *bus.Client
	gen    Generator
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
	now    func() time.Time
}

func NewService(parent context.Context, cfg config.WorkerConfig, busClient *bus.Client, gen Generator, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:    cfg,
		bus:    busClient,
		gen:    gen,
		ctx:    ctx,
		cancel: cancel,
		logger: log.With(slog.String("component", "worker")),
		now:    time.Now,
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectGenerateRequest, s.handleRequest)
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return !s.cfg.Enabled || s.sub != nil }

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.GenerateRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode generate request", slogError(err))
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		out, err := s.gen.Generate(s.ctx, pipeline.Request{
			RequestID:  req.RequestID,
			NewsID:     req.NewsID,
			Title:      req.Title,
			Body:       req.Body,
			Voice:      req.Voice,
			Format:     req.Format,
			SampleRate: req.SampleRate,
		})
		if err != nil {
			s.publishResult(msg.Reply, s.failureResult(req.RequestID, err))
			return
		}
		s.publishResult(msg.Reply, s.successResult(req.RequestID, out))
	}()
}

func (s *Service) successResult(requestID string, out *pipeline.Outcome) protocol.GenerateResult {
	res := protocol.GenerateResult{
		RequestID: requestID,
		Status:    "completed",
		Timestamp: s.now().UTC(),
	}
	record, err := json.Marshal(out.Record)
	if err != nil {
		s.logger.Warn("failed to marshal generation record", slogError(err))
	} else {
		res.Record = record
	}
	if s.cfg.MaxAudioPayload > 0 && len(out.Audio) <= s.cfg.MaxAudioPayload {
		res.Audio = out.Audio
	} else {
		s.logger.Info("omitting audio from bus result",
			slog.String("request_id", requestID),
			slog.Int("audio_bytes", len(out.Audio)),
			slog.Int("max_payload", s.cfg.MaxAudioPayload))
	}
	return res
}

func (s *Service) failureResult(requestID string, err error) protocol.GenerateResult {
	return protocol.GenerateResult{
		RequestID: requestID,
		Status:    "failed",
		Error: &protocol.GenerateError{
			Code:      string(synth.CodeOf(err)),
			Message:   err.Error(),
			Retryable: synth.IsRetryable(err),
		},
		Timestamp: s.now().UTC(),
	}
}

func (s *Service) publishResult(reply string, res protocol.GenerateResult) {
	data, err := json.Marshal(res)
	if err != nil {
		s.logger.Warn("failed to marshal generate result", slogError(err))
		return
	}
	subject := protocol.SubjectGenerateResult
	if reply != "" {
		subject = reply
	}
	if err := s.bus.Conn().Publish(subject, data); err != nil {
		s.logger.Warn("failed to publish generate result",
			slog.String("subject", subject),
			slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
