package graflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStreamsQueue implements Publisher against the task-dispatch stream
// and Consumer against the task-result stream using Redis Streams
// consumer groups, grounded on other_examples/petrijr-fluxo's use of
// redis/go-redis/v9.
type RedisStreamsQueue struct {
	client        *redis.Client
	dispatchStream string
	resultStream   string
	group          string
	consumer       string
}

// NewRedisStreamsQueue ensures both consumer groups exist (ignoring
// BUSYGROUP, the expected error when they already do) and returns a queue
// ready for PublishTask/Receive.
func NewRedisStreamsQueue(ctx context.Context, client *redis.Client, dispatchStream, resultStream, group, consumer string) (*RedisStreamsQueue, error) {
	q := &RedisStreamsQueue{
		client:         client,
		dispatchStream: dispatchStream,
		resultStream:   resultStream,
		group:          group,
		consumer:       consumer,
	}
	for _, stream := range []string{dispatchStream, resultStream} {
		err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
		if err != nil && !isBusyGroup(err) {
			return nil, fmt.Errorf("create consumer group on %s: %w", stream, err)
		}
	}
	return q, nil
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

func (q *RedisStreamsQueue) PublishTask(ctx context.Context, msg DispatchMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.dispatchStream,
		Values: map[string]any{"payload": payload},
	}).Err()
}

// PublishResult, the external-worker-facing counterpart of Receive,
// pushes a completed ResultMessage onto the result stream.
func (q *RedisStreamsQueue) PublishResult(ctx context.Context, msg ResultMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.resultStream,
		Values: map[string]any{"payload": payload},
	}).Err()
}

func (q *RedisStreamsQueue) Receive(ctx context.Context) (ResultMessage, error) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.resultStream, ">"},
		Count:    1,
		Block:    0,
	}).Result()
	if err != nil {
		return ResultMessage{}, err
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return ResultMessage{}, &TransportError{Message: "empty read from " + q.resultStream}
	}

	m := streams[0].Messages[0]
	raw, ok := m.Values["payload"].(string)
	if !ok {
		return ResultMessage{}, &TransportError{Message: "malformed result message, missing payload"}
	}
	var msg ResultMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return ResultMessage{}, &TransportError{Message: "malformed result message: " + err.Error()}
	}
	if err := q.client.XAck(ctx, q.resultStream, q.group, m.ID).Err(); err != nil {
		return ResultMessage{}, err
	}
	return msg, nil
}
