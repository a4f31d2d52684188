package eval

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentscope-go/core/eval/types"
	"github.com/agentscope-go/core/evalstore"
)

func numericAccuracyMetric() types.Metric {
	return types.MetricFunc{
		MetricName: "numeric_accuracy",
		MetricKind: types.MetricNumerical,
		Fn: func(s types.SolutionOutput) (types.MetricResult, error) {
			out, _ := s.Output.(map[string]any)
			if out["answer"] == "4" {
				return types.NewMetricResult("numeric_accuracy", 1.0), nil
			}
			return types.NewMetricResult("numeric_accuracy", 0.0), nil
		},
	}
}

func trivialBenchmark() types.Benchmark {
	return types.SliceBenchmark{
		BenchName: "trivial",
		Tasks: []types.Task{
			{ID: "t1", Input: "2+2", GroundTruth: map[string]any{"answer": "4"}, Metrics: []types.Metric{numericAccuracyMetric()}},
		},
	}
}

func trivialSolution(_ context.Context, _ types.Task, _ evalstore.PrePrintHook) (types.SolutionOutput, error) {
	return types.SolutionOutput{Success: true, Output: map[string]any{"answer": "4"}}, nil
}

// S1: trivial benchmark end-to-end.
func TestRunTrivialBenchmarkAggregation(t *testing.T) {
	store, err := evalstore.NewFileStore(t.TempDir())
	require.NoError(t, err)

	ev, err := NewSerial(Config{
		Name:      "s1",
		Benchmark: trivialBenchmark(),
		NRepeat:   2,
		Storage:   store,
	})
	require.NoError(t, err)
	require.NoError(t, ev.Run(context.Background(), trivialSolution))

	for _, repeat := range []string{"0", "1"} {
		require.True(t, store.SolutionResultExists(context.Background(), "t1", repeat))
		require.True(t, store.EvaluationResultExists(context.Background(), "t1", repeat, "numeric_accuracy"))
	}
	require.True(t, store.AggregationResultExists(context.Background()))
}

// Property 1: at-most-once metric write — re-running never overwrites an
// existing MetricResult.
func TestAtMostOnceMetricWrite(t *testing.T) {
	store, err := evalstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	calls := 0
	solution := func(ctx context.Context, task types.Task, hook evalstore.PrePrintHook) (types.SolutionOutput, error) {
		calls++
		return trivialSolution(ctx, task, hook)
	}

	ev, err := NewSerial(Config{Name: "prop1", Benchmark: trivialBenchmark(), NRepeat: 1, Storage: store})
	require.NoError(t, err)
	require.NoError(t, ev.Run(ctx, solution))
	require.NoError(t, ev.Run(ctx, solution))

	require.Equal(t, 1, calls, "solution must not re-run once a result is stored")
}

// Property 2: resumability — deleting a solution.json and re-running
// re-creates it, and the stored metric result still scores 1.0.
func TestResumabilityAfterDeletingSolution(t *testing.T) {
	dir := t.TempDir()
	store, err := evalstore.NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	ev, err := NewSerial(Config{Name: "prop2", Benchmark: trivialBenchmark(), NRepeat: 1, Storage: store})
	require.NoError(t, err)
	require.NoError(t, ev.Run(ctx, trivialSolution))

	require.NoError(t, os.Remove(filepath.Join(dir, "0", "t1", "solution.json")))
	require.False(t, store.SolutionResultExists(ctx, "t1", "0"))

	require.NoError(t, ev.Run(ctx, trivialSolution))
	require.True(t, store.SolutionResultExists(ctx, "t1", "0"))
	result, err := store.GetEvaluationResult(ctx, "t1", "0", "numeric_accuracy")
	require.NoError(t, err)
	require.InDelta(t, 1.0, result.Result, 0.0001)
}

func TestFailingSolutionMarksUnitIncompleteWithoutAbortingRun(t *testing.T) {
	store, err := evalstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	bench := types.SliceBenchmark{
		BenchName: "mixed",
		Tasks: []types.Task{
			{ID: "good", Input: "2+2", Metrics: []types.Metric{numericAccuracyMetric()}},
			{ID: "bad", Input: "boom", Metrics: []types.Metric{numericAccuracyMetric()}},
		},
	}
	solution := func(ctx context.Context, task types.Task, hook evalstore.PrePrintHook) (types.SolutionOutput, error) {
		if task.ID == "bad" {
			return types.SolutionOutput{}, assertErr
		}
		return trivialSolution(ctx, task, hook)
	}

	ev, err := NewSerial(Config{Name: "failure", Benchmark: bench, NRepeat: 1, Storage: store})
	require.NoError(t, err)
	require.NoError(t, ev.Run(ctx, solution))

	require.True(t, store.SolutionResultExists(ctx, "good", "0"))
	require.False(t, store.SolutionResultExists(ctx, "bad", "0"))
}

var assertErr = errSentinel("boom")

type errSentinel string

func (e errSentinel) Error() string { return string(e) }
