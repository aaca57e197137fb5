// Package chat orchestrates a conversation turn: retrieve context,
// assemble the prompt, generate the answer, and record both sides in
// the session history.
package chat

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/leafwise/tomatodoc/internal/domain"
	"github.com/leafwise/tomatodoc/internal/domain/bridge"
	domchat "github.com/leafwise/tomatodoc/internal/domain/chat"
	"github.com/leafwise/tomatodoc/internal/domain/prompt"
	"github.com/leafwise/tomatodoc/internal/index"
	"github.com/leafwise/tomatodoc/internal/logger"
)

const defaultGenerationTimeout = 30 * time.Second

// Service answers questions over the knowledge base.
type Service struct {
	sessions   *Registry
	retriever  Retriever
	generator  Generator
	genTimeout time.Duration
	strict     bool
}

// Params configures the chat service.
type Params struct {
	Sessions          *Registry
	Retriever         Retriever
	Generator         Generator
	GenerationTimeout time.Duration
	Strict            bool
}

// New creates a chat service.
func New(p Params) *Service {
	timeout := p.GenerationTimeout
	if timeout <= 0 {
		timeout = defaultGenerationTimeout
	}

	return &Service{
		sessions:   p.Sessions,
		retriever:  p.Retriever,
		generator:  p.Generator,
		genTimeout: timeout,
		strict:     p.Strict,
	}
}

// AskParams is one chat request.
type AskParams struct {
	SessionID string
	Question  string
	TopK      int   // 0 selects the retriever default
	Strict    *bool // nil selects the service default
}

// Answer is the outcome of one chat turn.
type Answer struct {
	Text          string
	Sources       []string // source ids in rank order, deduplicated
	DetectionUsed bool
}

// Ask runs one conversation turn. The user turn is recorded before
// retrieval so it survives downstream failures.
func (s *Service) Ask(ctx context.Context, p AskParams) (Answer, error) {
	sess, err := s.sessions.Get(p.SessionID)
	if err != nil {
		return Answer{}, err
	}
	if p.Question == "" {
		return Answer{}, fmt.Errorf("question must not be empty: %w", domain.ErrInvalidArgument)
	}

	sess.AppendUser(p.Question)

	hits, err := s.retriever.Retrieve(ctx, p.Question, p.TopK)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieve context: %w", err)
	}

	sources := make([]prompt.Source, len(hits))
	for i, h := range hits {
		sources[i] = prompt.Source{ID: h.Chunk.SourceID(), Text: h.Chunk.Text()}
	}

	var fact string
	var detectionUsed bool
	if det, ok := sess.TakeDetection(); ok {
		if sentence, injectable := bridge.DetectionSentence(det.ClassName, det.Confidence); injectable {
			fact = sentence
			detectionUsed = true
		}
	}

	strict := s.strict
	if p.Strict != nil {
		strict = *p.Strict
	}

	assembled := prompt.Assemble(prompt.SystemInstructions, sources, fact, p.Question, strict)

	genCtx, cancel := context.WithTimeout(ctx, s.genTimeout)
	defer cancel()

	text, err := s.generator.Generate(genCtx, assembled)
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	sess.AppendAssistant(text)

	logger.FromContext(ctx).Debug("chat turn complete",
		zap.String("session_id", sess.ID()),
		zap.Int("sources", len(hits)),
		zap.Bool("detection_used", detectionUsed))

	return Answer{
		Text:          text,
		Sources:       dedupeSourceIDs(hits),
		DetectionUsed: detectionUsed,
	}, nil
}

// CreateSession opens a fresh session.
func (s *Service) CreateSession() *domchat.Session {
	return s.sessions.Create()
}

// StageDetection attaches a classifier result to the session's next
// turn.
func (s *Service) StageDetection(sessionID string, det domchat.Detection) error {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	sess.StageDetection(det)
	return nil
}

// History returns the session's conversation so far.
func (s *Service) History(sessionID string) ([]domchat.Turn, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Turns(), nil
}

// Reset clears a session's history and any pending detection.
func (s *Service) Reset(sessionID string) error {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	sess.Reset()
	return nil
}

// dedupeSourceIDs keeps the first occurrence of each source id,
// preserving rank order.
func dedupeSourceIDs(hits []index.Hit) []string {
	seen := make(map[string]struct{}, len(hits))
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		id := h.Chunk.SourceID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
