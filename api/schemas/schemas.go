// Package schemas defines the wire types shared between the annotation core
// and its collaborators (CLI, storage, training-pipeline exports). The JSON
// field names in this package are compatibility contracts with an external
// fine-tuning pipeline and must not change.
package schemas

import "time"

// ActionKind identifies one of the recognized GUI operations.
type ActionKind string

const (
	ActionClick       ActionKind = "click"
	ActionLeftDouble  ActionKind = "left_double"
	ActionRightSingle ActionKind = "right_single"
	ActionHover       ActionKind = "hover"
	ActionType        ActionKind = "type"
	ActionHotkey      ActionKind = "hotkey"
	ActionPress       ActionKind = "press"
	ActionKeyDown     ActionKind = "keydown"
	ActionKeyUp       ActionKind = "keyup"
	ActionDrag        ActionKind = "drag"
	ActionSelect      ActionKind = "select"
	ActionScroll      ActionKind = "scroll"
	ActionFinished    ActionKind = "finished"
)

// String implements fmt.Stringer.
func (k ActionKind) String() string { return string(k) }

// Action is the structured form of a single GUI operation: a closed tag plus
// a mapping of named parameters, all values kept as text. The action-string
// codec in internal/action is the only component that converts between this
// form and the serialized grammar.
type Action struct {
	Kind   ActionKind        `json:"kind"`
	Params map[string]string `json:"params"`
}

// Param returns the named parameter, or "" when absent.
func (a Action) Param(name string) string {
	return a.Params[name]
}

// Step is one annotated screenshot/action pair within a trajectory.
// The index is assigned sequentially by the builder and is immutable.
type Step struct {
	Index int `json:"index"`
	// ImageRef is an opaque handle to the screenshot. The core never loads
	// it; exporters resolve it to an encoded payload through the caller.
	ImageRef string `json:"image_ref"`
	Thought  string `json:"thought"`
	Action   Action `json:"action"`
	// ActionRaw is the literal action string the step was ingested with.
	// Exports reproduce it verbatim.
	ActionRaw   string `json:"action_raw"`
	Observation string `json:"observation,omitempty"`
}

// CompressedSummary is the episodic-memory record for a step evicted from
// working memory.
type CompressedSummary struct {
	SourceIndex int    `json:"source_index"`
	Digest      string `json:"digest_text"`
}

// MemorySnapshot is the verbatim dump of a builder's memory state. It is an
// internal working aid and is not part of the persisted multi-turn schema;
// callers request it explicitly.
type MemorySnapshot struct {
	WorkingMemory  []Step              `json:"workingMemory"`
	EpisodicMemory []CompressedSummary `json:"episodicMemory"`
}

// Trajectory is the immutable record produced by finalizing a builder.
// Success is computed (a finished action exists), never set directly, and
// TotalSteps always equals len(Steps).
type Trajectory struct {
	Task       string `json:"task"`
	Steps      []Step `json:"steps"`
	Success    bool   `json:"success"`
	TotalSteps int    `json:"total_steps"`

	// Finalized marks the record as produced by Builder.Finalize. It guards
	// the multi-turn exporter and is not serialized.
	Finalized bool `json:"-"`
}

// Dataset describes a named collection of training samples.
type Dataset struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	SampleCount int       `json:"sample_count"`
	CreatedAt   time.Time `json:"created_at"`
}
