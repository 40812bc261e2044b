package router

import "github.com/dirigent-sh/dirigent/pkg/models"

// ScoreWeights holds the scoring weights for worker selection. The
// defaults come from the original routing heuristic and can be
// overridden through configuration.
type ScoreWeights struct {
	// Capability weights the capability-overlap ratio.
	Capability float64 `mapstructure:"capability"`
	// Specialization weights the exact specialization match bonus.
	Specialization float64 `mapstructure:"specialization"`
	// Load weights the inverse-load balancing term.
	Load float64 `mapstructure:"load"`
	// History weights the historical success rate term.
	History float64 `mapstructure:"history"`
}

// DefaultScoreWeights returns the stock 40/30/20/10 weights.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		Capability:     0.40,
		Specialization: 0.30,
		Load:           0.20,
		History:        0.10,
	}
}

// Candidate is one scored worker considered for a task. Rules receive
// the full candidate list and may select one or abstain.
type Candidate struct {
	// WorkerID is the candidate worker's ID.
	WorkerID string
	// Descriptor is a snapshot of the worker's descriptor at scoring time.
	Descriptor *models.WorkerDescriptor
	// Score is the weighted score in [0,1].
	Score float64
	// CapabilityMatch is the matched/required capability ratio.
	CapabilityMatch float64
	// SpecializationMatch indicates an exact specialization match.
	SpecializationMatch bool
	// SuccessRate is the worker's historical success rate in [0,1].
	SuccessRate float64
}

// scoreWorker computes the weighted score for one worker against an
// analysis. The score is clipped to [0,1]. Scoring is deterministic for
// a fixed registry, analysis, and history.
func scoreWorker(w ScoreWeights, d *models.WorkerDescriptor, task *models.Task, analysis *TaskAnalysis, successRate float64) Candidate {
	c := Candidate{
		WorkerID:    d.ID,
		Descriptor:  d,
		SuccessRate: successRate,
	}

	// Capability overlap: matched-required over total-required, 1.0 when
	// the task requires nothing.
	if len(analysis.RequiredCapabilities) == 0 {
		c.CapabilityMatch = 1.0
	} else {
		matched := 0
		for _, required := range analysis.RequiredCapabilities {
			if d.HasCapability(required) {
				matched++
			}
		}
		c.CapabilityMatch = float64(matched) / float64(len(analysis.RequiredCapabilities))
	}

	c.SpecializationMatch = d.Specialization != "" && d.Specialization == task.Type

	loadFactor := 0.0
	if d.MaxConcurrentTasks > 0 {
		loadFactor = 1.0 - float64(d.CurrentTaskCount)/float64(d.MaxConcurrentTasks)
	}

	score := w.Capability * c.CapabilityMatch
	if c.SpecializationMatch {
		score += w.Specialization
	}
	score += w.Load * loadFactor
	score += w.History * successRate

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	c.Score = score

	return c
}
