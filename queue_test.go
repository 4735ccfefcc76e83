package graflow

import (
	"context"
	"testing"
	"time"
)

func TestChannelQueuePublishTaskAndDispatched(t *testing.T) {
	ctx := context.Background()
	q := NewChannelQueue(4)

	msg := DispatchMessage{TaskExecutionID: "te1", TaskType: "charge", Inputs: map[string]string{"amount": "10"}}
	if err := q.PublishTask(ctx, msg); err != nil {
		t.Fatalf("PublishTask: %v", err)
	}

	select {
	case got := <-q.Dispatched():
		if got.TaskExecutionID != "te1" {
			t.Errorf("TaskExecutionID = %q, want te1", got.TaskExecutionID)
		}
	default:
		t.Fatal("expected the published message on the dispatch channel")
	}
}

func TestChannelQueuePublishResultAndReceive(t *testing.T) {
	ctx := context.Background()
	q := NewChannelQueue(4)

	if err := q.PublishResult(ctx, ResultMessage{TaskExecutionID: "te1", Outputs: map[string]string{"ok": "true"}}); err != nil {
		t.Fatalf("PublishResult: %v", err)
	}

	got, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if got.TaskExecutionID != "te1" || got.Outputs["ok"] != "true" {
		t.Errorf("Receive() = %+v, want TaskExecutionID=te1 Outputs[ok]=true", got)
	}
}

func TestChannelQueueReceiveBlocksUntilCancelled(t *testing.T) {
	q := NewChannelQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Receive(ctx)
	if err == nil {
		t.Fatal("expected Receive to return the context's error when nothing is published")
	}
}

func TestChannelQueueZeroBufferDefaultsToOne(t *testing.T) {
	q := NewChannelQueue(0)
	ctx := context.Background()
	if err := q.PublishTask(ctx, DispatchMessage{TaskExecutionID: "a"}); err != nil {
		t.Fatalf("PublishTask on a zero-buffer queue should still succeed: %v", err)
	}
}
