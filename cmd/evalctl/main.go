// Command evalctl runs a small benchmark against an RPC-hosted agent and
// logs where the evaluation results were persisted.
//
// It wires together all three subsystems this module builds: the agent
// under test is a memory.Manager hosted behind the rpc package (created
// either in-process via to_remote or on a standalone rpc server), the
// benchmark runs through the eval driver, and every solution/metric result
// is persisted through evalstore so an interrupted run can be resumed.
//
// # Configuration
//
// Environment variables:
//
//	EVAL_OUTPUT_DIR  - evalstore filesystem root (default: "./eval-output")
//	EVAL_NAME        - evaluation run name (default: "evalctl-demo")
//	EVAL_N_REPEAT    - repeats per task (default: 1)
//	EVAL_N_WORKERS   - parallel evaluator worker count (default: 1)
//	AGENT_HOST       - existing rpc server to connect to (default: "", meaning local)
//	AGENT_PORT       - port for AGENT_HOST (required if AGENT_HOST is set)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/agentscope-go/core/eval"
	"github.com/agentscope-go/core/eval/types"
	"github.com/agentscope-go/core/evalstore"
	"github.com/agentscope-go/core/memory"
	"github.com/agentscope-go/core/model"
	"github.com/agentscope-go/core/retry"
	"github.com/agentscope-go/core/rpc"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx := context.Background()

	outputDir := envOr("EVAL_OUTPUT_DIR", "./eval-output")
	name := envOr("EVAL_NAME", "evalctl-demo")
	nRepeat := envIntOr("EVAL_N_REPEAT", 1)
	nWorkers := envIntOr("EVAL_N_WORKERS", 1)
	agentHost := os.Getenv("AGENT_HOST")
	agentPort := os.Getenv("AGENT_PORT")

	registerEchoAgent()

	storage, err := evalstore.NewFileStore(outputDir)
	if err != nil {
		return fmt.Errorf("create evalstore: %w", err)
	}

	benchmark := demoBenchmark()

	evaluator, err := eval.NewParallel(eval.Config{
		Name:      name,
		Benchmark: benchmark,
		NRepeat:   nRepeat,
		Storage:   storage,
		NWorkers:  nWorkers,
	})
	if err != nil {
		return fmt.Errorf("build evaluator: %w", err)
	}

	sol := echoAgentSolution(agentHost, agentPort)
	log.Printf("running evaluation %q over %d task(s), %d repeat(s)", name, benchmark.Len(), nRepeat)
	if err := evaluator.Run(ctx, sol); err != nil {
		return fmt.Errorf("run evaluation: %w", err)
	}

	log.Printf("evaluation complete, results persisted under %s", outputDir)
	return nil
}

// echoAgentAPI is the RPC-hosted object under test: a memory.Manager-backed
// agent whose respond method appends the turn to memory and echoes the
// input back uppercased, standing in for a real model call so this command
// runs without any provider credentials configured.
type echoAgentAPI struct {
	mem *memory.Manager
}

func newEchoAgent(json.RawMessage) (any, error) {
	mem, err := memory.New(memory.Config{ProcessWithLLM: false})
	if err != nil {
		return nil, err
	}
	return &echoAgentAPI{mem: mem}, nil
}

// Respond appends input to the agent's chat history and returns a canned
// transformation of it. Exposed over RPC as the sync "respond" method.
func (a *echoAgentAPI) Respond(input string) (string, error) {
	userMsg, err := model.NewMessage("user", model.RoleUser, model.Text(input))
	if err != nil {
		return "", err
	}
	if err := a.mem.Add(context.Background(), []model.Message{userMsg}); err != nil {
		return "", err
	}
	output := toUpper(input)
	replyMsg, err := model.NewMessage("agent", model.RoleAssistant, model.Text(output))
	if err != nil {
		return "", err
	}
	if err := a.mem.Add(context.Background(), []model.Message{replyMsg}); err != nil {
		return "", err
	}
	return output, nil
}

func toUpper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

func registerEchoAgent() {
	_ = rpc.RegisterClass("Agent", newEchoAgent, map[string]rpc.MethodInfo{
		"respond": {Async: false},
	})
}

// echoAgentSolution returns an eval.Solution that drives the RPC-hosted
// Agent class: host == "" runs the agent on this process's implicit local
// rpc server (to_remote with no host/port); otherwise it connects to the
// already-running server at host:port.
func echoAgentSolution(host, port string) eval.Solution {
	return func(ctx context.Context, task types.Task, hook evalstore.PrePrintHook) (types.SolutionOutput, error) {
		proxy, err := rpc.ToRemote(ctx, rpc.Default, "Agent", json.RawMessage("null"), rpc.RemoteOptions{
			Host:  host,
			Port:  port,
			Retry: retry.Default(),
		})
		if err != nil {
			return types.SolutionOutput{}, fmt.Errorf("obtain agent proxy: %w", err)
		}

		input, _ := task.Input.(string)
		result, err := proxy.CallSync(ctx, "respond", input)
		if err != nil {
			return types.SolutionOutput{}, fmt.Errorf("call respond: %w", err)
		}
		var output string
		if err := json.Unmarshal(result, &output); err != nil {
			return types.SolutionOutput{}, fmt.Errorf("decode respond result: %w", err)
		}

		hook("agent", &types.PrintedMessage{Name: "agent", Blocks: []model.Block{model.TextBlock{Text: output}}}, true)

		return types.SolutionOutput{
			Success: true,
			Output:  output,
			Trajectory: []model.Block{
				model.TextBlock{Text: output},
			},
		}, nil
	}
}

// demoBenchmark is a tiny in-code benchmark: each task's ground truth is its
// input uppercased, scored by an exact-match metric.
func demoBenchmark() types.SliceBenchmark {
	inputs := []string{"hello", "world", "agentscope"}
	tasks := make([]types.Task, 0, len(inputs))
	for i, in := range inputs {
		tasks = append(tasks, types.Task{
			ID:          fmt.Sprintf("task-%d", i),
			Input:       in,
			GroundTruth: toUpper(in),
			Metrics:     []types.Metric{exactMatchFor(in)},
		})
	}
	return types.SliceBenchmark{
		BenchName: "evalctl-demo",
		Desc:      "uppercase echo sanity benchmark",
		Tasks:     tasks,
	}
}

// exactMatchFor binds a task's expected output into a fresh metric closure,
// since types.MetricFunc itself has no access to the task it is scoring.
func exactMatchFor(input string) types.MetricFunc {
	want := toUpper(input)
	return types.MetricFunc{
		MetricName: "exact_match",
		MetricKind: types.MetricCategory,
		Cats:       []string{"pass", "fail"},
		Fn: func(s types.SolutionOutput) (types.MetricResult, error) {
			out, _ := s.Output.(string)
			result := "fail"
			if out == want {
				result = "pass"
			}
			return types.NewMetricResult("exact_match", result), nil
		},
	}
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOr(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
