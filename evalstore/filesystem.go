package evalstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/agentscope-go/core/eval/types"
)

const (
	solutionFileName      = "solution.json"
	evaluationDirName      = "evaluation"
	evaluationResultFile   = "evaluation_result.json"
	evaluationMetaFile     = "evaluation_meta.json"
	agentPrintingLog       = "logging.txt"
)

// FileStore is the filesystem-backed Store: the primary backend, laid out
// exactly as
//
//	<root>/evaluation_meta.json
//	<root>/evaluation_result.json
//	<root>/<repeat_id>/<task_id>/solution.json
//	<root>/<repeat_id>/<task_id>/evaluation/<metric_name>.json
//	<root>/<repeat_id>/<task_id>/logging.txt
type FileStore struct {
	root string

	// logMu serializes every logging.txt append made through this store,
	// whichever path it targets.
	logMu sync.Mutex
}

// NewFileStore roots a FileStore at dir, creating it if necessary.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("evalstore: save directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("evalstore: create save dir: %w", err)
	}
	return &FileStore{root: dir}, nil
}

func (s *FileStore) unitPath(repeatID, taskID string, parts ...string) string {
	elems := append([]string{s.root, repeatID, taskID}, parts...)
	return filepath.Join(elems...)
}

func existsNonEmpty(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() > 0
}

func writeJSONFile(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *FileStore) SaveSolutionResult(_ context.Context, taskID, repeatID string, output types.SolutionOutput) error {
	return writeJSONFile(s.unitPath(repeatID, taskID, solutionFileName), output)
}

func (s *FileStore) GetSolutionResult(_ context.Context, taskID, repeatID string) (types.SolutionOutput, error) {
	path := s.unitPath(repeatID, taskID, solutionFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return types.SolutionOutput{}, ErrNotFound
		}
		return types.SolutionOutput{}, err
	}
	var out types.SolutionOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return types.SolutionOutput{}, fmt.Errorf("evalstore: decode %s: %w", path, err)
	}
	return out, nil
}

func (s *FileStore) SolutionResultExists(_ context.Context, taskID, repeatID string) bool {
	return existsNonEmpty(s.unitPath(repeatID, taskID, solutionFileName))
}

func (s *FileStore) SaveEvaluationResult(_ context.Context, taskID, repeatID string, result types.MetricResult) error {
	path := s.unitPath(repeatID, taskID, evaluationDirName, result.Name+".json")
	return writeJSONFile(path, result)
}

func (s *FileStore) GetEvaluationResult(_ context.Context, taskID, repeatID, metricName string) (types.MetricResult, error) {
	path := s.unitPath(repeatID, taskID, evaluationDirName, metricName+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return types.MetricResult{}, ErrNotFound
		}
		return types.MetricResult{}, err
	}
	var out types.MetricResult
	if err := json.Unmarshal(data, &out); err != nil {
		return types.MetricResult{}, fmt.Errorf("evalstore: decode %s: %w", path, err)
	}
	return out, nil
}

func (s *FileStore) EvaluationResultExists(_ context.Context, taskID, repeatID, metricName string) bool {
	return existsNonEmpty(s.unitPath(repeatID, taskID, evaluationDirName, metricName+".json"))
}

func (s *FileStore) SaveAggregationResult(_ context.Context, report map[string]any) error {
	return writeJSONFile(filepath.Join(s.root, evaluationResultFile), report)
}

func (s *FileStore) AggregationResultExists(context.Context) bool {
	return existsNonEmpty(filepath.Join(s.root, evaluationResultFile))
}

func (s *FileStore) SaveEvaluationMeta(_ context.Context, meta map[string]any) error {
	return writeJSONFile(filepath.Join(s.root, evaluationMetaFile), meta)
}

// GetAgentPrePrintHook returns a hook that appends one formatted line per
// content block of the final frame of a printed message to this unit's
// logging.txt. Intermediate (non-final) frames are ignored.
func (s *FileStore) GetAgentPrePrintHook(taskID, repeatID string) PrePrintHook {
	path := s.unitPath(repeatID, taskID, agentPrintingLog)
	return func(agentName string, msg *types.PrintedMessage, last bool) {
		if msg == nil || !last {
			return
		}
		lines := FormatPrintedMessage(agentName, msg.Blocks)

		s.logMu.Lock()
		defer s.logMu.Unlock()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return
		}
		defer f.Close()
		_, _ = f.WriteString(strings.Join(lines, "\n") + "\n")
	}
}

var _ Store = (*FileStore)(nil)
