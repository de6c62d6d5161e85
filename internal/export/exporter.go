// Package export renders finalized annotation data into the two training
// schemas: the single-screenshot sample and the full multi-turn trajectory.
package export

import (
	"errors"
	"fmt"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/claimhawk/trajector/api/schemas"
	"github.com/claimhawk/trajector/internal/trajectory"
)

// DefaultInstructionTemplate is the human-turn prompt. The %s verb receives
// the task description. The surrounding text is a compatibility contract with
// the fine-tuning pipeline.
const DefaultInstructionTemplate = "You are a GUI agent. The task is: %s\n\nWhat is the next action?"

// ErrValidation is returned when a required export field is absent or empty.
var ErrValidation = errors.New("export validation failed")

// Resolver turns a step's opaque image reference into the encoded image
// payload embedded in exports. The core performs no image I/O itself; the
// default resolver passes the reference through unchanged.
type Resolver func(ref string) (string, error)

// Exporter renders export schemas. It is stateless apart from its
// configuration and safe for concurrent use.
type Exporter struct {
	template string
	resolve  Resolver
	logger   *zap.Logger
}

// NewExporter creates an exporter. An empty template selects
// DefaultInstructionTemplate; a nil resolver selects the identity resolver.
func NewExporter(template string, resolve Resolver, logger *zap.Logger) *Exporter {
	if template == "" {
		template = DefaultInstructionTemplate
	}
	if resolve == nil {
		resolve = func(ref string) (string, error) { return ref, nil }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{template: template, resolve: resolve, logger: logger.Named("export")}
}

// SingleTurn builds the single-screenshot sample for one step. imageData is
// the caller-supplied encoded image payload.
func (e *Exporter) SingleTurn(task string, step schemas.Step, imageData string) (*schemas.SingleTurnSample, error) {
	if task == "" {
		return nil, fmt.Errorf("%w: task is empty", ErrValidation)
	}
	if step.ActionRaw == "" || step.Action.Kind == "" {
		return nil, fmt.Errorf("%w: step has no action", ErrValidation)
	}

	params := make(map[string]string, len(step.Action.Params))
	for k, v := range step.Action.Params {
		params[k] = v
	}

	return &schemas.SingleTurnSample{
		ImageData:     imageData,
		Task:          task,
		Thought:       step.Thought,
		Action:        step.ActionRaw,
		ActionType:    string(step.Action.Kind),
		ActionParams:  params,
		Conversations: e.conversations(task, step.Thought, step.ActionRaw),
	}, nil
}

// MultiTurn builds the full-trajectory sample. The trajectory must come out
// of Builder.Finalize; anything else fails with the builder's state error.
// Episodic summaries are not part of this schema.
func (e *Exporter) MultiTurn(traj *schemas.Trajectory) (*schemas.MultiTurnSample, error) {
	if traj == nil || !traj.Finalized {
		return nil, fmt.Errorf("%w: trajectory is not finalized", trajectory.ErrInvalidState)
	}

	turns := make([]schemas.TrajectoryTurn, len(traj.Steps))
	for i, step := range traj.Steps {
		imageData, err := e.resolve(step.ImageRef)
		if err != nil {
			return nil, fmt.Errorf("resolving image for step %d: %w", step.Index, err)
		}
		turns[i] = schemas.TrajectoryTurn{
			Step:        step.Index,
			ImageData:   imageData,
			Thought:     step.Thought,
			Action:      step.ActionRaw,
			Observation: step.Observation,
		}
	}

	return &schemas.MultiTurnSample{
		Task:       traj.Task,
		Trajectory: turns,
		Success:    traj.Success,
		TotalSteps: traj.TotalSteps,
	}, nil
}

// conversations renders the two-turn training conversation. An empty thought
// drops the "Thought: " prefix entirely, matching the recorded-workflow
// format the pipeline was trained against.
func (e *Exporter) conversations(task, thought, actionRaw string) []schemas.ConversationTurn {
	human := "<image>\n" + fmt.Sprintf(e.template, task)
	var gpt string
	if thought != "" {
		gpt = "Thought: " + thought + "\nAction: " + actionRaw
	} else {
		gpt = "Action: " + actionRaw
	}
	return []schemas.ConversationTurn{
		{From: "human", Value: human},
		{From: "gpt", Value: gpt},
	}
}

// MarshalIndented serializes any export payload with two-space indentation,
// the layout the annotation files are shipped in.
func MarshalIndented(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
