// Package annotator coordinates concurrent annotation sessions. Each session
// owns one trajectory builder; finalizing a session exports its samples and
// hands them to the persistence layer.
package annotator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/claimhawk/trajector/api/schemas"
	"github.com/claimhawk/trajector/internal/action"
	"github.com/claimhawk/trajector/internal/export"
	"github.com/claimhawk/trajector/internal/memory"
	"github.com/claimhawk/trajector/internal/trajectory"
)

// ErrSessionNotFound is returned when a session id does not map to an open
// session.
var ErrSessionNotFound = errors.New("session not found")

// Persister is the slice of the dataset store the service needs. A nil
// Persister disables persistence; finalize still returns the exported sample.
type Persister interface {
	AddSample(ctx context.Context, datasetName string, sample schemas.SingleTurnSample) (string, error)
	SaveTrajectory(ctx context.Context, datasetName string, sample schemas.MultiTurnSample) (string, error)
}

// Service is the annotation session registry. The registry itself is safe for
// concurrent use across sessions; each individual session has a single owner,
// and its steps must be driven by one goroutine at a time.
type Service struct {
	cfg       trajectory.Config
	codec     *action.Codec
	exporter  *export.Exporter
	persister Persister
	summarize memory.Summarizer
	log       *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	task    string
	builder *trajectory.Builder
	// sealed caches the finalized trajectory so a finalize whose persistence
	// step failed can be retried.
	sealed *schemas.Trajectory
}

// NewService creates the session registry. codec and exporter must not be
// nil; persister may be.
func NewService(cfg trajectory.Config, codec *action.Codec, exporter *export.Exporter, persister Persister, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Variant == "" {
		cfg.Variant = action.VariantPixel
	}
	return &Service{
		cfg:       cfg,
		codec:     codec,
		exporter:  exporter,
		persister: persister,
		summarize: memory.DefaultSummarizer(cfg.SummaryBudget),
		log:       logger.Named("annotator"),
		sessions:  make(map[string]*session),
	}
}

// OpenSession starts a new annotation session for a task and returns its id.
func (s *Service) OpenSession(task string) string {
	id := uuid.NewString()
	builder := trajectory.NewBuilder(task, s.cfg, s.codec, s.summarize, s.log)

	s.mu.Lock()
	s.sessions[id] = &session{task: task, builder: builder}
	s.mu.Unlock()

	s.log.Info("Session opened", zap.String("session_id", id), zap.String("task", task))
	return id
}

// AddStep validates and appends one annotated step to an open session.
func (s *Service) AddStep(sessionID, imageRef, thought, actionRaw, observation string) error {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	return sess.builder.AddStep(imageRef, thought, actionRaw, observation)
}

// Snapshot returns the memory state of an open session.
func (s *Service) Snapshot(sessionID string) (schemas.MemorySnapshot, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return schemas.MemorySnapshot{}, err
	}
	return sess.builder.MemorySnapshot(), nil
}

// FinalizeSession seals a session, exports it as a multi-turn sample, persists
// it when a dataset name is given and persistence is enabled, and removes the
// session from the registry. The session survives a failed finalize so the
// caller can correct and retry.
func (s *Service) FinalizeSession(ctx context.Context, sessionID, datasetName string) (*schemas.MultiTurnSample, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	traj := sess.sealed
	if traj == nil {
		traj, err = sess.builder.Finalize()
		if err != nil {
			return nil, err
		}
		sess.sealed = traj
	}

	sample, err := s.exporter.MultiTurn(traj)
	if err != nil {
		return nil, fmt.Errorf("failed to export session %s: %w", sessionID, err)
	}

	if s.persister != nil && datasetName != "" {
		if _, err := s.persister.SaveTrajectory(ctx, datasetName, *sample); err != nil {
			return nil, fmt.Errorf("failed to persist trajectory: %w", err)
		}
	}

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	s.log.Info("Session finalized",
		zap.String("session_id", sessionID),
		zap.Int("total_steps", sample.TotalSteps),
		zap.Bool("success", sample.Success))
	return sample, nil
}

// AnnotateSingle builds a standalone single-turn sample outside any session
// and persists it when a dataset name is given.
func (s *Service) AnnotateSingle(ctx context.Context, datasetName, task, imageData, thought, actionRaw string) (*schemas.SingleTurnSample, error) {
	act, err := s.codec.Decode(actionRaw, s.cfg.Variant)
	if err != nil {
		return nil, err
	}
	step := schemas.Step{
		Thought:   thought,
		Action:    act,
		ActionRaw: actionRaw,
	}

	sample, err := s.exporter.SingleTurn(task, step, imageData)
	if err != nil {
		return nil, err
	}

	if s.persister != nil && datasetName != "" {
		if _, err := s.persister.AddSample(ctx, datasetName, *sample); err != nil {
			return nil, fmt.Errorf("failed to persist sample: %w", err)
		}
	}
	return sample, nil
}

// OpenSessions reports the ids of all sessions still accepting steps.
func (s *Service) OpenSessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (s *Service) lookup(sessionID string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, sessionID)
	}
	return sess, nil
}
