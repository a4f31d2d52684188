// Package mongo is the supplemental evalstore.Store backend (§4.1) for
// evaluation runs whose workers do not share a filesystem, adapted from
// features/memory/mongo's collection-wrapper conventions but targeting three
// collections (solutions, metric results, run-level documents) instead of
// one.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/agentscope-go/core/eval/types"
	"github.com/agentscope-go/core/evalstore"
)

const (
	defaultTimeout        = 10 * time.Second
	solutionsCollection    = "eval_solutions"
	evaluationsCollection  = "eval_results"
	runDocsCollection      = "eval_run_docs"

	runDocAggregation = "aggregation"
	runDocMeta        = "meta"
)

// Options configures the Store.
type Options struct {
	Client   *mongodriver.Client
	Database string
	Timeout  time.Duration
}

// Store implements evalstore.Store against three MongoDB collections keyed
// by (task_id, repeat_id[, metric_name]).
type Store struct {
	solutions   *mongodriver.Collection
	evaluations *mongodriver.Collection
	runDocs     *mongodriver.Collection
	timeout     time.Duration
}

// New builds a Store and ensures its unique indexes exist.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("evalstore/mongo: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("evalstore/mongo: database name is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	db := opts.Client.Database(opts.Database)
	s := &Store{
		solutions:   db.Collection(solutionsCollection),
		evaluations: db.Collection(evaluationsCollection),
		runDocs:     db.Collection(runDocsCollection),
		timeout:     timeout,
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.solutions.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "task_id", Value: 1}, {Key: "repeat_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("evalstore/mongo: solutions index: %w", err)
	}
	_, err = s.evaluations.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{
			{Key: "task_id", Value: 1},
			{Key: "repeat_id", Value: 1},
			{Key: "metric_name", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("evalstore/mongo: evaluations index: %w", err)
	}
	return nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.timeout)
}

type solutionDoc struct {
	TaskID   string               `bson:"task_id"`
	RepeatID string               `bson:"repeat_id"`
	Output   types.SolutionOutput `bson:"output"`
}

func (s *Store) SaveSolutionResult(ctx context.Context, taskID, repeatID string, output types.SolutionOutput) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"task_id": taskID, "repeat_id": repeatID}
	update := bson.M{"$set": solutionDoc{TaskID: taskID, RepeatID: repeatID, Output: output}}
	_, err := s.solutions.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

func (s *Store) GetSolutionResult(ctx context.Context, taskID, repeatID string) (types.SolutionOutput, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc solutionDoc
	err := s.solutions.FindOne(ctx, bson.M{"task_id": taskID, "repeat_id": repeatID}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return types.SolutionOutput{}, evalstore.ErrNotFound
	}
	if err != nil {
		return types.SolutionOutput{}, err
	}
	return doc.Output, nil
}

func (s *Store) SolutionResultExists(ctx context.Context, taskID, repeatID string) bool {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	n, err := s.solutions.CountDocuments(ctx, bson.M{"task_id": taskID, "repeat_id": repeatID})
	return err == nil && n > 0
}

type evaluationDoc struct {
	TaskID     string              `bson:"task_id"`
	RepeatID   string              `bson:"repeat_id"`
	MetricName string              `bson:"metric_name"`
	Result     types.MetricResult  `bson:"result"`
}

func (s *Store) SaveEvaluationResult(ctx context.Context, taskID, repeatID string, result types.MetricResult) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"task_id": taskID, "repeat_id": repeatID, "metric_name": result.Name}
	update := bson.M{"$set": evaluationDoc{TaskID: taskID, RepeatID: repeatID, MetricName: result.Name, Result: result}}
	_, err := s.evaluations.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

func (s *Store) GetEvaluationResult(ctx context.Context, taskID, repeatID, metricName string) (types.MetricResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc evaluationDoc
	filter := bson.M{"task_id": taskID, "repeat_id": repeatID, "metric_name": metricName}
	err := s.evaluations.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return types.MetricResult{}, evalstore.ErrNotFound
	}
	if err != nil {
		return types.MetricResult{}, err
	}
	return doc.Result, nil
}

func (s *Store) EvaluationResultExists(ctx context.Context, taskID, repeatID, metricName string) bool {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"task_id": taskID, "repeat_id": repeatID, "metric_name": metricName}
	n, err := s.evaluations.CountDocuments(ctx, filter)
	return err == nil && n > 0
}

type runDoc struct {
	Kind string         `bson:"kind"`
	Data map[string]any `bson:"data"`
}

func (s *Store) saveRunDoc(ctx context.Context, kind string, data map[string]any) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"kind": kind}
	update := bson.M{"$set": runDoc{Kind: kind, Data: data}}
	_, err := s.runDocs.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

func (s *Store) runDocExists(ctx context.Context, kind string) bool {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	n, err := s.runDocs.CountDocuments(ctx, bson.M{"kind": kind})
	return err == nil && n > 0
}

func (s *Store) SaveAggregationResult(ctx context.Context, report map[string]any) error {
	return s.saveRunDoc(ctx, runDocAggregation, report)
}

func (s *Store) AggregationResultExists(ctx context.Context) bool {
	return s.runDocExists(ctx, runDocAggregation)
}

func (s *Store) SaveEvaluationMeta(ctx context.Context, meta map[string]any) error {
	return s.saveRunDoc(ctx, runDocMeta, meta)
}

// GetAgentPrePrintHook mirrors evalstore.FileStore's formatting but appends
// each call's lines to a per-unit document's log field instead of a file, so
// that workers on different hosts can share one printed-message log.
func (s *Store) GetAgentPrePrintHook(taskID, repeatID string) evalstore.PrePrintHook {
	return func(agentName string, msg *types.PrintedMessage, last bool) {
		if msg == nil || !last {
			return
		}
		lines := evalstore.FormatPrintedMessage(agentName, msg.Blocks)
		ctx, cancel := s.withTimeout(context.Background())
		defer cancel()
		filter := bson.M{"task_id": taskID, "repeat_id": repeatID}
		update := bson.M{"$push": bson.M{"lines": bson.M{"$each": lines}}}
		_, _ = s.solutions.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	}
}

var _ evalstore.Store = (*Store)(nil)
