// Package eval is the evaluation driver (C8): it runs a caller-supplied
// solution function against every (task, repeat) pair of a Benchmark, scores
// each result with the task's metrics, and aggregates the outcome into a
// single report, delegating all persistence to an evalstore.Store so a run
// can be resumed after a partial failure.
package eval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentscope-go/core/eval/types"
	"github.com/agentscope-go/core/evalstore"
	"github.com/agentscope-go/core/telemetry"
)

// ErrInvalidArgument flags a caller misconfiguration: surfaced immediately,
// never retried.
type ErrInvalidArgument struct{ Msg string }

func (e *ErrInvalidArgument) Error() string { return "eval: invalid argument: " + e.Msg }

// Solution is the caller-supplied function under evaluation. hook may be
// called with last=true to persist the agent's final printed frame for this
// (task, repeat) unit.
type Solution func(ctx context.Context, task types.Task, hook evalstore.PrePrintHook) (types.SolutionOutput, error)

// Config configures an Evaluator.
type Config struct {
	Name     string
	Benchmark types.Benchmark
	NRepeat  int
	Storage  evalstore.Store
	// NWorkers controls the parallel strategy's worker-pool size; ignored by
	// the serial strategy. Defaults to 1.
	NWorkers int
	// TaskInputSchema, if set, validates every Task.Input before Solution is
	// invoked; a validation failure marks the unit incomplete without
	// running the solution.
	TaskInputSchema *jsonschema.Schema
	Logger          telemetry.Logger
}

// Evaluator runs a Benchmark to completion and aggregates the results.
type Evaluator struct {
	cfg      Config
	parallel bool
}

// NewSerial builds a straightforward, easy-to-debug evaluator: one
// (task, repeat) unit at a time.
func NewSerial(cfg Config) (*Evaluator, error) {
	return newEvaluator(cfg, false)
}

// NewParallel builds an evaluator whose units run across a bounded
// goroutine pool.
func NewParallel(cfg Config) (*Evaluator, error) {
	return newEvaluator(cfg, true)
}

func newEvaluator(cfg Config, parallel bool) (*Evaluator, error) {
	if cfg.Name == "" {
		return nil, &ErrInvalidArgument{Msg: "name is required"}
	}
	if cfg.Benchmark == nil || cfg.Benchmark.Len() == 0 {
		return nil, &ErrInvalidArgument{Msg: "benchmark must be non-empty"}
	}
	if cfg.NRepeat < 1 {
		return nil, &ErrInvalidArgument{Msg: "n_repeat must be at least 1"}
	}
	if cfg.Storage == nil {
		return nil, &ErrInvalidArgument{Msg: "storage is required"}
	}
	if cfg.NWorkers < 1 {
		cfg.NWorkers = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = telemetry.NopLogger{}
	}
	return &Evaluator{cfg: cfg, parallel: parallel}, nil
}

// Run iterates every (task, repeat) pair, invoking solution where no stored
// SolutionOutput exists and scoring every metric that has no stored result,
// then aggregates. A failure in one unit never aborts the others.
func (e *Evaluator) Run(ctx context.Context, solution Solution) error {
	if err := e.saveEvaluationMeta(ctx); err != nil {
		return err
	}

	type unit struct {
		repeatID string
		task     types.Task
	}
	var units []unit
	for r := 0; r < e.cfg.NRepeat; r++ {
		repeatID := fmt.Sprintf("%d", r)
		for i := 0; i < e.cfg.Benchmark.Len(); i++ {
			units = append(units, unit{repeatID: repeatID, task: e.cfg.Benchmark.Task(i)})
		}
	}

	if !e.parallel {
		for _, u := range units {
			e.runUnit(ctx, u.repeatID, u.task, solution)
		}
	} else {
		jobs := make(chan unit)
		done := make(chan struct{}, e.cfg.NWorkers)
		for w := 0; w < e.cfg.NWorkers; w++ {
			go func() {
				for u := range jobs {
					e.runUnit(ctx, u.repeatID, u.task, solution)
				}
				done <- struct{}{}
			}()
		}
		go func() {
			for _, u := range units {
				jobs <- u
			}
			close(jobs)
		}()
		for w := 0; w < e.cfg.NWorkers; w++ {
			<-done
		}
	}

	return e.Aggregate(ctx)
}

func (e *Evaluator) saveEvaluationMeta(ctx context.Context) error {
	return e.cfg.Storage.SaveEvaluationMeta(ctx, map[string]any{
		"evaluation_name": e.cfg.Name,
		"created_at":      time.Now().UTC().Format(time.RFC3339Nano),
		"total_repeats":   e.cfg.NRepeat,
		"benchmark": map[string]any{
			"name":        e.cfg.Benchmark.Name(),
			"description": e.cfg.Benchmark.Description(),
			"total_tasks": e.cfg.Benchmark.Len(),
		},
		"schema_version": 1,
	})
}

// runUnit produces (or loads) a SolutionOutput for (task, repeatID), then
// scores every metric not yet stored. Errors are logged and swallowed: a
// failed solution or metric simply leaves the unit incomplete, which
// Aggregate reports rather than propagates.
func (e *Evaluator) runUnit(ctx context.Context, repeatID string, task types.Task, solution Solution) {
	if e.cfg.TaskInputSchema != nil {
		if err := validateTaskInput(e.cfg.TaskInputSchema, task.Input); err != nil {
			e.cfg.Logger.Error(ctx, "task input failed schema validation",
				telemetry.Field("task_id", task.ID), telemetry.Field("error", err.Error()))
			return
		}
	}

	var output types.SolutionOutput
	if e.cfg.Storage.SolutionResultExists(ctx, task.ID, repeatID) {
		var err error
		output, err = e.cfg.Storage.GetSolutionResult(ctx, task.ID, repeatID)
		if err != nil {
			e.cfg.Logger.Error(ctx, "failed to load stored solution result",
				telemetry.Field("task_id", task.ID), telemetry.Field("repeat_id", repeatID), telemetry.Field("error", err.Error()))
			return
		}
	} else {
		hook := e.cfg.Storage.GetAgentPrePrintHook(task.ID, repeatID)
		var err error
		output, err = solution(ctx, task, hook)
		if err != nil {
			e.cfg.Logger.Error(ctx, "solution failed",
				telemetry.Field("task_id", task.ID), telemetry.Field("repeat_id", repeatID), telemetry.Field("error", err.Error()))
			return
		}
		if err := e.cfg.Storage.SaveSolutionResult(ctx, task.ID, repeatID, output); err != nil {
			e.cfg.Logger.Error(ctx, "failed to persist solution result",
				telemetry.Field("task_id", task.ID), telemetry.Field("repeat_id", repeatID), telemetry.Field("error", err.Error()))
			return
		}
	}

	for _, metric := range task.Metrics {
		if e.cfg.Storage.EvaluationResultExists(ctx, task.ID, repeatID, metric.Name()) {
			continue
		}
		result, err := metric.Evaluate(output)
		if err != nil {
			e.cfg.Logger.Error(ctx, "metric evaluation failed",
				telemetry.Field("task_id", task.ID), telemetry.Field("repeat_id", repeatID),
				telemetry.Field("metric", metric.Name()), telemetry.Field("error", err.Error()))
			continue
		}
		if err := e.cfg.Storage.SaveEvaluationResult(ctx, task.ID, repeatID, result); err != nil {
			e.cfg.Logger.Error(ctx, "failed to persist evaluation result",
				telemetry.Field("task_id", task.ID), telemetry.Field("repeat_id", repeatID),
				telemetry.Field("metric", metric.Name()), telemetry.Field("error", err.Error()))
		}
	}
}

func validateTaskInput(schema *jsonschema.Schema, input any) error {
	return schema.Validate(input)
}

type metricAgg struct {
	typ             types.MetricType
	involvedTasks   int
	completedTasks  int
	incompleteTasks int
	// numerical
	scores []float64
	// category: category -> count
	categoryCounts map[string]int
}

// Aggregate replicates the reference aggregator bit-for-bit: per repeat and
// per metric name, it counts involved/completed/incomplete tasks and
// computes a distribution. The NUMERICAL mean divides by involvedTasks, not
// completedTasks, matching the original semantics (a task with no stored
// result still counts toward the denominator).
func (e *Evaluator) Aggregate(ctx context.Context) error {
	report := map[string]any{
		"total_tasks":   e.cfg.Benchmark.Len(),
		"total_repeats": e.cfg.NRepeat,
		"repeats":       map[string]any{},
		"schema_version": 1,
	}
	repeats := report["repeats"].(map[string]any)

	for r := 0; r < e.cfg.NRepeat; r++ {
		repeatID := fmt.Sprintf("%d", r)
		metrics := map[string]*metricAgg{}
		completedIDs := map[string]bool{}
		incompleteIDs := map[string]bool{}

		for i := 0; i < e.cfg.Benchmark.Len(); i++ {
			task := e.cfg.Benchmark.Task(i)
			for _, metric := range task.Metrics {
				agg, ok := metrics[metric.Name()]
				if !ok {
					agg = &metricAgg{typ: metric.Type(), categoryCounts: map[string]int{}}
					metrics[metric.Name()] = agg
				}
				agg.involvedTasks++

				if !e.cfg.Storage.EvaluationResultExists(ctx, task.ID, repeatID, metric.Name()) {
					incompleteIDs[task.ID] = true
					agg.incompleteTasks++
					continue
				}
				completedIDs[task.ID] = true
				agg.completedTasks++

				result, err := e.cfg.Storage.GetEvaluationResult(ctx, task.ID, repeatID, metric.Name())
				if err != nil {
					agg.incompleteTasks++
					agg.completedTasks--
					delete(completedIDs, task.ID)
					incompleteIDs[task.ID] = true
					continue
				}
				switch agg.typ {
				case types.MetricCategory:
					agg.categoryCounts[fmt.Sprintf("%v", result.Result)]++
				case types.MetricNumerical:
					agg.scores = append(agg.scores, toFloat(result.Result))
				}
			}
		}

		metricsOut := map[string]any{}
		names := make([]string, 0, len(metrics))
		for name := range metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			agg := metrics[name]
			aggregation := map[string]any{}
			switch agg.typ {
			case types.MetricCategory:
				for cat, count := range agg.categoryCounts {
					aggregation[cat] = float64(count) / float64(agg.involvedTasks)
				}
			case types.MetricNumerical:
				if len(agg.scores) > 0 {
					sum, max, min := 0.0, agg.scores[0], agg.scores[0]
					for _, s := range agg.scores {
						sum += s
						if s > max {
							max = s
						}
						if s < min {
							min = s
						}
					}
					aggregation["mean"] = sum / float64(agg.involvedTasks)
					aggregation["max"] = max
					aggregation["min"] = min
				}
			}
			metricsOut[name] = map[string]any{
				"type":             agg.typ,
				"involved_tasks":   agg.involvedTasks,
				"completed_tasks":  agg.completedTasks,
				"incomplete_tasks": agg.incompleteTasks,
				"aggregation":      aggregation,
			}
		}

		repeats[repeatID] = map[string]any{
			"completed_tasks":   len(completedIDs),
			"incomplete_tasks":  len(incompleteIDs),
			"metrics":           metricsOut,
			"completed_ids":     sortedKeys(completedIDs),
			"incomplete_ids":    sortedKeys(incompleteIDs),
		}
	}

	return e.cfg.Storage.SaveAggregationResult(ctx, report)
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
