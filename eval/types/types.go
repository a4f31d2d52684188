// Package types holds the data model shared by the evaluation driver (C8)
// and the evaluator storage backends (C5): tasks, metrics, solutions, and
// the printed-message shape the pre-print hook persists.
package types

import (
	"encoding/json"
	"time"

	"github.com/agentscope-go/core/model"
)

// MetricType distinguishes category metrics (string result, e.g. "pass") from
// numerical metrics (float result, e.g. an accuracy score).
type MetricType string

const (
	MetricCategory  MetricType = "category"
	MetricNumerical MetricType = "numerical"
)

// MetricResult is the outcome of evaluating one SolutionOutput against one
// Metric.
type MetricResult struct {
	Name      string         `json:"name"`
	Result    any            `json:"result"`
	CreatedAt string         `json:"created_at"`
	Message   string         `json:"message,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewMetricResult stamps CreatedAt to now if unset.
func NewMetricResult(name string, result any) MetricResult {
	return MetricResult{Name: name, Result: result, CreatedAt: time.Now().UTC().Format(time.RFC3339Nano)}
}

// SolutionOutput is the caller-supplied solution function's return value.
type SolutionOutput struct {
	Success    bool           `json:"success"`
	Output     any            `json:"output"`
	Trajectory []model.Block  `json:"trajectory"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// MarshalJSON encodes the trajectory as tagged blocks since model.Block has
// no natural JSON shape of its own.
func (s SolutionOutput) MarshalJSON() ([]byte, error) {
	type alias struct {
		Success    bool             `json:"success"`
		Output     any              `json:"output"`
		Trajectory []json.RawMessage `json:"trajectory"`
		Meta       map[string]any   `json:"meta,omitempty"`
	}
	traj := make([]json.RawMessage, 0, len(s.Trajectory))
	for _, b := range s.Trajectory {
		raw, err := model.MarshalBlock(b)
		if err != nil {
			return nil, err
		}
		traj = append(traj, raw)
	}
	return json.Marshal(alias{Success: s.Success, Output: s.Output, Trajectory: traj, Meta: s.Meta})
}

// UnmarshalJSON decodes the tagged trajectory blocks back into model.Block.
func (s *SolutionOutput) UnmarshalJSON(data []byte) error {
	type alias struct {
		Success    bool              `json:"success"`
		Output     any               `json:"output"`
		Trajectory []json.RawMessage `json:"trajectory"`
		Meta       map[string]any    `json:"meta,omitempty"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	s.Success = a.Success
	s.Output = a.Output
	s.Meta = a.Meta
	s.Trajectory = make([]model.Block, 0, len(a.Trajectory))
	for _, raw := range a.Trajectory {
		b, err := model.UnmarshalBlock(raw)
		if err != nil {
			return err
		}
		s.Trajectory = append(s.Trajectory, b)
	}
	return nil
}

// Metric evaluates a SolutionOutput and returns a named, typed result.
type Metric interface {
	Name() string
	Type() MetricType
	// Categories lists the valid result values for a MetricCategory metric;
	// nil for MetricNumerical metrics.
	Categories() []string
	Evaluate(solution SolutionOutput) (MetricResult, error)
}

// MetricFunc adapts a plain function into a Metric.
type MetricFunc struct {
	MetricName string
	MetricKind MetricType
	Cats       []string
	Fn         func(SolutionOutput) (MetricResult, error)
}

func (m MetricFunc) Name() string           { return m.MetricName }
func (m MetricFunc) Type() MetricType        { return m.MetricKind }
func (m MetricFunc) Categories() []string    { return m.Cats }
func (m MetricFunc) Evaluate(s SolutionOutput) (MetricResult, error) {
	return m.Fn(s)
}

// Task is a single evaluation unit: an input, an optional ground truth, and
// the metrics to score a solution against.
type Task struct {
	ID          string         `json:"id"`
	Input       any            `json:"input"`
	GroundTruth any            `json:"ground_truth,omitempty"`
	Metrics     []Metric       `json:"-"`
	Tags        map[string]string `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Evaluate scores a solution against every metric attached to the task.
func (t Task) Evaluate(solution SolutionOutput) ([]MetricResult, error) {
	out := make([]MetricResult, 0, len(t.Metrics))
	for _, m := range t.Metrics {
		r, err := m.Evaluate(solution)
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Benchmark is an ordered, indexable collection of Task.
type Benchmark interface {
	Name() string
	Description() string
	Len() int
	Task(i int) Task
}

// SliceBenchmark is the simplest Benchmark: an in-memory slice of Task.
type SliceBenchmark struct {
	BenchName string
	Desc      string
	Tasks     []Task
}

func (b SliceBenchmark) Name() string        { return b.BenchName }
func (b SliceBenchmark) Description() string { return b.Desc }
func (b SliceBenchmark) Len() int            { return len(b.Tasks) }
func (b SliceBenchmark) Task(i int) Task     { return b.Tasks[i] }

// PrintedMessage is the shape a solution function's pre-print hook receives:
// the originating agent's name and the message content blocks it is about
// to display.
type PrintedMessage struct {
	Name   string
	Blocks []model.Block
}
