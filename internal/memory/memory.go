// Package memory maintains the hierarchical memory of an annotation session:
// a bounded working-memory window holding the most recent steps in full
// fidelity, and an append-only episodic log of compressed digests for the
// steps evicted from the window.
package memory

import (
	"strings"

	"go.uber.org/zap"

	"github.com/claimhawk/trajector/api/schemas"
)

// DefaultCapacity is the working-memory bound used when none is configured.
const DefaultCapacity = 5

// DefaultSummaryBudget is the character budget of the default summarizer.
const DefaultSummaryBudget = 200

// Summarizer compresses an evicted step into an episodic digest. It must be
// a pure function of its input so digests are reproducible.
type Summarizer func(step schemas.Step) string

// DefaultSummarizer returns the stock summarizer: a deterministic
// concatenation of thought, action string and observation, truncated to the
// given character budget with an ellipsis marker.
func DefaultSummarizer(budget int) Summarizer {
	if budget <= 0 {
		budget = DefaultSummaryBudget
	}
	return func(step schemas.Step) string {
		parts := make([]string, 0, 3)
		if step.Thought != "" {
			parts = append(parts, step.Thought)
		}
		parts = append(parts, step.ActionRaw)
		if step.Observation != "" {
			parts = append(parts, step.Observation)
		}
		digest := strings.Join(parts, " | ")
		// Budget counts characters, not bytes; slicing runes keeps the digest
		// valid UTF-8 for non-ASCII thoughts.
		if runes := []rune(digest); len(runes) > budget {
			digest = string(runes[:budget]) + "..."
		}
		return digest
	}
}

// Manager holds the memory state for one trajectory. It is a synchronous,
// single-owner structure; the builder that owns it is the only writer.
type Manager struct {
	capacity  int
	summarize Summarizer
	logger    *zap.Logger

	working  []schemas.Step
	episodic []schemas.CompressedSummary
	added    int
}

// NewManager creates a memory manager with the given working-memory capacity
// and summarizer. A non-positive capacity falls back to DefaultCapacity; a
// nil summarizer falls back to the default truncating one.
func NewManager(capacity int, summarize Summarizer, logger *zap.Logger) *Manager {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if summarize == nil {
		summarize = DefaultSummarizer(DefaultSummaryBudget)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		capacity:  capacity,
		summarize: summarize,
		logger:    logger.Named("memory"),
		working:   make([]schemas.Step, 0, capacity+1),
	}
}

// AddStep appends a step to working memory and, if the window now exceeds its
// capacity, evicts the oldest step into the episodic log. Eviction is strictly
// FIFO; the episodic log holds exactly the evicted steps in original order.
func (m *Manager) AddStep(step schemas.Step) {
	m.working = append(m.working, step)
	m.added++

	if len(m.working) <= m.capacity {
		return
	}

	oldest := m.working[0]
	// Shift rather than re-slice so the evicted element does not pin the
	// backing array.
	copy(m.working, m.working[1:])
	m.working = m.working[:len(m.working)-1]

	summary := schemas.CompressedSummary{
		SourceIndex: oldest.Index,
		Digest:      m.summarize(oldest),
	}
	m.episodic = append(m.episodic, summary)

	m.logger.Debug("Evicted step into episodic memory",
		zap.Int("source_index", oldest.Index),
		zap.Int("episodic_len", len(m.episodic)))
}

// Working returns a copy of the current working-memory window, oldest first.
func (m *Manager) Working() []schemas.Step {
	out := make([]schemas.Step, len(m.working))
	copy(out, m.working)
	return out
}

// Episodic returns a copy of the episodic log, in eviction order.
func (m *Manager) Episodic() []schemas.CompressedSummary {
	out := make([]schemas.CompressedSummary, len(m.episodic))
	copy(out, m.episodic)
	return out
}

// Snapshot returns the memory state verbatim, for the optional memory-dump
// export.
func (m *Manager) Snapshot() schemas.MemorySnapshot {
	return schemas.MemorySnapshot{
		WorkingMemory:  m.Working(),
		EpisodicMemory: m.Episodic(),
	}
}

// Added reports the total number of steps ingested. At all times
// len(working) + len(episodic) == Added().
func (m *Manager) Added() int { return m.added }
