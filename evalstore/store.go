// Package evalstore is C5: persist per-(task,repeat) solution outputs,
// per-metric evaluation results, the aggregated report, and agent console
// logs, and answer existence queries so the evaluation driver (C8) can
// resume an interrupted run.
package evalstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/agentscope-go/core/eval/types"
	"github.com/agentscope-go/core/model"
)

// ErrNotFound is returned by Get* when the requested artifact does not
// exist.
var ErrNotFound = errors.New("evalstore: not found")

// PrePrintHook is called by a solution function with the agent, the
// message it is about to print, and whether this is the final frame of a
// streamed response. Only last=true invocations are persisted.
type PrePrintHook func(agentName string, msg *types.PrintedMessage, last bool)

// Store is the C5 contract.
type Store interface {
	SaveSolutionResult(ctx context.Context, taskID, repeatID string, output types.SolutionOutput) error
	GetSolutionResult(ctx context.Context, taskID, repeatID string) (types.SolutionOutput, error)
	SolutionResultExists(ctx context.Context, taskID, repeatID string) bool

	SaveEvaluationResult(ctx context.Context, taskID, repeatID string, result types.MetricResult) error
	GetEvaluationResult(ctx context.Context, taskID, repeatID, metricName string) (types.MetricResult, error)
	EvaluationResultExists(ctx context.Context, taskID, repeatID, metricName string) bool

	SaveAggregationResult(ctx context.Context, report map[string]any) error
	AggregationResultExists(ctx context.Context) bool
	SaveEvaluationMeta(ctx context.Context, meta map[string]any) error

	// GetAgentPrePrintHook returns a hook function that appends a
	// formatted line per content block to the per-(task,repeat) console
	// log.
	GetAgentPrePrintHook(taskID, repeatID string) PrePrintHook
}

// FormatPrintedMessage renders one line per content block the way the
// original evaluator's pre-print hook does: text -> "name: text"; thinking
// -> "name (thinking): text"; any other block -> its JSON encoding, prefixed
// with "name: " only when it is the first line produced for this call.
func FormatPrintedMessage(agentName string, blocks []model.Block) []string {
	lines := make([]string, 0, len(blocks))
	for _, b := range blocks {
		switch v := b.(type) {
		case model.TextBlock:
			lines = append(lines, fmt.Sprintf("%s: %s", agentName, v.Text))
		case model.ThinkingBlock:
			lines = append(lines, fmt.Sprintf("%s (thinking): %s", agentName, v.Text))
		default:
			blockStr := ""
			if raw, err := model.MarshalBlock(b); err == nil {
				var pretty map[string]any
				if json.Unmarshal(raw, &pretty) == nil {
					if indented, err := json.MarshalIndent(pretty, "", "    "); err == nil {
						blockStr = string(indented)
					}
				}
			}
			if len(lines) > 0 {
				lines = append(lines, blockStr)
			} else {
				lines = append(lines, fmt.Sprintf("%s: %s", agentName, blockStr))
			}
		}
	}
	return lines
}
