package evalstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentscope-go/core/eval/types"
	"github.com/agentscope-go/core/model"
)

func TestFileStoreSolutionRoundtrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.False(t, store.SolutionResultExists(ctx, "t1", "0"))

	out := types.SolutionOutput{Success: true, Output: map[string]any{"answer": "4"}}
	require.NoError(t, store.SaveSolutionResult(ctx, "t1", "0", out))
	require.True(t, store.SolutionResultExists(ctx, "t1", "0"))

	got, err := store.GetSolutionResult(ctx, "t1", "0")
	require.NoError(t, err)
	require.Equal(t, true, got.Success)
}

func TestFileStoreLayoutMatchesRepeatThenTask(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.SaveSolutionResult(ctx, "task-a", "2", types.SolutionOutput{Success: true}))
	_, err = os.Stat(filepath.Join(dir, "2", "task-a", "solution.json"))
	require.NoError(t, err)
}

func TestFileStoreEvaluationResultExistence(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.False(t, store.EvaluationResultExists(ctx, "t1", "0", "accuracy"))
	result := types.NewMetricResult("accuracy", 1.0)
	require.NoError(t, store.SaveEvaluationResult(ctx, "t1", "0", result))
	require.True(t, store.EvaluationResultExists(ctx, "t1", "0", "accuracy"))

	got, err := store.GetEvaluationResult(ctx, "t1", "0", "accuracy")
	require.NoError(t, err)
	require.InDelta(t, 1.0, got.Result, 0.0001)
}

func TestFileStoreAggregationAndMeta(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.False(t, store.AggregationResultExists(ctx))
	require.NoError(t, store.SaveAggregationResult(ctx, map[string]any{"total_tasks": 1}))
	require.True(t, store.AggregationResultExists(ctx))
	require.NoError(t, store.SaveEvaluationMeta(ctx, map[string]any{"evaluation_name": "demo"}))
}

func TestGetAgentPrePrintHookFormatsBlocksAndSkipsNonFinal(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	hook := store.GetAgentPrePrintHook("t1", "0")
	hook("assistant", &types.PrintedMessage{Blocks: []model.Block{model.TextBlock{Text: "partial"}}}, false)
	hook("assistant", &types.PrintedMessage{Blocks: []model.Block{
		model.TextBlock{Text: "hello"},
		model.ThinkingBlock{Text: "pondering"},
	}}, true)

	data, err := os.ReadFile(filepath.Join(dir, "0", "t1", "logging.txt"))
	require.NoError(t, err)
	log := string(data)
	require.NotContains(t, log, "partial")
	require.Contains(t, log, "assistant: hello")
	require.Contains(t, log, "assistant (thinking): pondering")
}
