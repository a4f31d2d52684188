package modelgateway

import (
	"context"
	"errors"
	"testing"

	"github.com/agentscope-go/core/model"
)

type stubClient struct {
	nextErr error
}

func (s *stubClient) Complete(context.Context, model.Request) (model.Response, error) {
	msg, _ := model.NewMessage("assistant", model.RoleAssistant, model.Text("ok"))
	return model.Response{Message: msg}, s.nextErr
}

func (s *stubClient) Stream(context.Context, model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func TestAdaptiveRateLimiterBacksOffOnRateLimitError(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(1000, 1000)
	before := limiter.currentTPM

	wrapped := limiter.Middleware()(&stubClient{nextErr: model.ErrRateLimited})
	msg, _ := model.NewMessage("user", model.RoleUser, model.Text("hi"))
	_, err := wrapped.Complete(context.Background(), model.Request{Messages: []model.Message{msg}})
	if !errors.Is(err, model.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited to propagate, got %v", err)
	}

	if limiter.currentTPM >= before {
		t.Fatalf("expected backoff to shrink currentTPM below %v, got %v", before, limiter.currentTPM)
	}
}

func TestAdaptiveRateLimiterProbesUpOnSuccess(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(1000, 2000)
	limiter.currentTPM = 500
	limiter.limiter.SetLimit(500)
	before := limiter.currentTPM

	wrapped := limiter.Middleware()(&stubClient{})
	msg, _ := model.NewMessage("user", model.RoleUser, model.Text("hi"))
	if _, err := wrapped.Complete(context.Background(), model.Request{Messages: []model.Message{msg}}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if limiter.currentTPM <= before {
		t.Fatalf("expected probe to grow currentTPM above %v, got %v", before, limiter.currentTPM)
	}
}
