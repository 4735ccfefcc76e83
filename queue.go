package graflow

import "context"

// DispatchMessage is the outbound task-dispatch queue message.
type DispatchMessage struct {
	TaskExecutionID string
	TaskType        string
	Inputs          map[string]string
	Configuration   map[string]string
}

// ResultMessage is the inbound task-result queue message.
type ResultMessage struct {
	TaskExecutionID string
	Outputs         map[string]string
	ErrorMessage    string
}

// Publisher dispatches a task message to the task-dispatch queue.
type Publisher interface {
	PublishTask(ctx context.Context, msg DispatchMessage) error
}

// Consumer receives task-result messages from the task-result queue.
// Receive blocks until a message is available or ctx is cancelled.
type Consumer interface {
	Receive(ctx context.Context) (ResultMessage, error)
}

// ChannelQueue is an in-process Publisher+Consumer pair backed by a
// buffered channel, for tests and single-process deployments.
type ChannelQueue struct {
	dispatch chan DispatchMessage
	results  chan ResultMessage
}

func NewChannelQueue(buffer int) *ChannelQueue {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelQueue{
		dispatch: make(chan DispatchMessage, buffer),
		results:  make(chan ResultMessage, buffer),
	}
}

func (q *ChannelQueue) PublishTask(ctx context.Context, msg DispatchMessage) error {
	select {
	case q.dispatch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatched exposes the dispatch side for a local worker to drain — the
// in-process equivalent of an external worker subscribing to the
// task-dispatch queue.
func (q *ChannelQueue) Dispatched() <-chan DispatchMessage { return q.dispatch }

// PublishResult is how a local worker reports a result back, the
// in-process equivalent of a Publisher on the task-result queue.
func (q *ChannelQueue) PublishResult(ctx context.Context, msg ResultMessage) error {
	select {
	case q.results <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *ChannelQueue) Receive(ctx context.Context) (ResultMessage, error) {
	select {
	case m := <-q.results:
		return m, nil
	case <-ctx.Done():
		return ResultMessage{}, ctx.Err()
	}
}
