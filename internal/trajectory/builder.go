// Package trajectory assembles annotated GUI-agent trajectories. A Builder
// ingests raw annotation inputs step by step, keeps the session's memory
// state current, and finalizes into an immutable trajectory record.
package trajectory

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/claimhawk/trajector/api/schemas"
	"github.com/claimhawk/trajector/internal/action"
	"github.com/claimhawk/trajector/internal/memory"
)

var (
	// ErrInvalidState is returned when an operation is invoked after the
	// builder has been finalized.
	ErrInvalidState = errors.New("trajectory builder is finalized")

	// ErrEmptyTrajectory is returned by Finalize when no steps were added and
	// empty trajectories are not permitted.
	ErrEmptyTrajectory = errors.New("trajectory has no steps")
)

// Config carries the builder knobs that the annotation layer exposes.
type Config struct {
	// MemoryCapacity bounds the working-memory window. Zero means the
	// package default.
	MemoryCapacity int
	// SummaryBudget is the character budget of the default summarizer.
	SummaryBudget int
	// AllowEmpty permits finalizing a zero-step trajectory, used by pipelines
	// that collect negative examples.
	AllowEmpty bool
	// Variant selects the action grammar steps are ingested with.
	Variant action.Variant
}

// Builder accumulates steps for a single task. It is an explicit two-state
// machine: Open until Finalize succeeds, Finalized forever after. A builder
// must be owned by exactly one annotation session; it is not safe for
// concurrent use.
type Builder struct {
	task      string
	cfg       Config
	codec     *action.Codec
	mem       *memory.Manager
	steps     []schemas.Step
	finalized bool
	logger    *zap.Logger
}

// NewBuilder creates an open builder for the given task. A nil summarizer
// selects the default truncating one; a nil codec selects a codec with
// default options.
func NewBuilder(task string, cfg Config, codec *action.Codec, summarize memory.Summarizer, logger *zap.Logger) *Builder {
	if codec == nil {
		codec = action.NewCodec(action.Options{})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Variant == "" {
		cfg.Variant = action.VariantPixel
	}
	if summarize == nil {
		summarize = memory.DefaultSummarizer(cfg.SummaryBudget)
	}
	return &Builder{
		task:   task,
		cfg:    cfg,
		codec:  codec,
		mem:    memory.NewManager(cfg.MemoryCapacity, summarize, logger),
		logger: logger.Named("builder"),
	}
}

// Task returns the task description the builder was opened with.
func (b *Builder) Task() string { return b.task }

// Len returns the number of steps added so far.
func (b *Builder) Len() int { return len(b.steps) }

// Finalized reports whether the builder has reached its terminal state.
func (b *Builder) Finalized() bool { return b.finalized }

// AddStep decodes the action string, assigns the next sequential index, and
// commits the step to both the trajectory and the memory manager. The call
// either fully applies or has no effect: decoding happens before any state is
// touched, and the later stages cannot fail.
func (b *Builder) AddStep(imageRef, thought, actionRaw, observation string) error {
	if b.finalized {
		return fmt.Errorf("%w: cannot add step", ErrInvalidState)
	}

	decoded, err := b.codec.Decode(actionRaw, b.cfg.Variant)
	if err != nil {
		return err
	}

	step := schemas.Step{
		Index:       len(b.steps),
		ImageRef:    imageRef,
		Thought:     thought,
		Action:      decoded,
		ActionRaw:   actionRaw,
		Observation: observation,
	}
	b.mem.AddStep(step)
	b.steps = append(b.steps, step)

	b.logger.Debug("Step added",
		zap.Int("index", step.Index),
		zap.String("action_kind", string(decoded.Kind)))
	return nil
}

// Finalize computes the terminal state and returns the immutable trajectory,
// transitioning the builder to Finalized. On failure the builder stays Open.
func (b *Builder) Finalize() (*schemas.Trajectory, error) {
	if b.finalized {
		return nil, fmt.Errorf("%w: cannot finalize twice", ErrInvalidState)
	}
	if len(b.steps) == 0 && !b.cfg.AllowEmpty {
		return nil, ErrEmptyTrajectory
	}

	steps := make([]schemas.Step, len(b.steps))
	copy(steps, b.steps)

	traj := &schemas.Trajectory{
		Task:       b.task,
		Steps:      steps,
		Success:    computeSuccess(steps),
		TotalSteps: len(steps),
		Finalized:  true,
	}
	b.finalized = true

	b.logger.Info("Trajectory finalized",
		zap.Int("total_steps", traj.TotalSteps),
		zap.Bool("success", traj.Success))
	return traj, nil
}

// MemorySnapshot dumps the current memory state verbatim. Available in both
// builder states; the memory stops changing once the builder is finalized.
func (b *Builder) MemorySnapshot() schemas.MemorySnapshot {
	return b.mem.Snapshot()
}

// computeSuccess is an existence check: a trajectory succeeded when any step
// carries a finished action. The result is order independent.
func computeSuccess(steps []schemas.Step) bool {
	for _, s := range steps {
		if s.Action.Kind == schemas.ActionFinished {
			return true
		}
	}
	return false
}
