package schemas

import "time"

// -- Export Schemas --
//
// These mirror the LLaVA-style format consumed by the Qwen2.5-VL fine-tuning
// pipeline. Field presence and types are the contract; key order is not.

// ConversationTurn is one turn of the two-turn training conversation.
type ConversationTurn struct {
	From  string `json:"from"`
	Value string `json:"value"`
}

// SingleTurnSample is the single-screenshot training sample: one image, one
// task, one action, rendered as a human/gpt conversation pair.
type SingleTurnSample struct {
	ImageData     string             `json:"image_data"`
	Task          string             `json:"task"`
	Thought       string             `json:"thought"`
	Action        string             `json:"action"`
	ActionType    string             `json:"action_type"`
	ActionParams  map[string]string  `json:"action_params"`
	Conversations []ConversationTurn `json:"conversations"`
}

// TrajectoryTurn is one element of the multi-turn export. Step is the step's
// 0-based index and matches the element's position in the array.
type TrajectoryTurn struct {
	Step        int    `json:"step"`
	ImageData   string `json:"image_data"`
	Thought     string `json:"thought"`
	Action      string `json:"action"`
	Observation string `json:"observation"`
}

// MultiTurnSample is the full-trajectory export: every retained step in
// order, plus the computed terminal state. Episodic-memory summaries are
// deliberately absent here; see MemorySnapshot.
type MultiTurnSample struct {
	Task       string           `json:"task"`
	Trajectory []TrajectoryTurn `json:"trajectory"`
	Success    bool             `json:"success"`
	TotalSteps int              `json:"total_steps"`
}

// -- Storage Schemas --

// SampleRecord is a persisted single-turn sample as stored in a dataset.
type SampleRecord struct {
	ID          string           `json:"id"`
	DatasetName string           `json:"dataset_name"`
	Sample      SingleTurnSample `json:"sample"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Annotation is one entry of a dataset export: the sample's conversations
// with the encoded image payload inlined.
type Annotation struct {
	ID            string             `json:"id"`
	ImageData     string             `json:"image_data"`
	Conversations []ConversationTurn `json:"conversations"`
}
