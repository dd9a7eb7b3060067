package inmem

import (
	"context"

	"github.com/autom8ter/machine/v4"
	"github.com/autom8ter/sql2hub/publisher"
)

func init() {
	publisher.Register("inmem", func(params publisher.Params) (publisher.Publisher, error) {
		return New(params.Topic), nil
	})
}

// Hub is an in-process publisher. Subscribers in the same process receive every payload published after they subscribe.
type Hub struct {
	machine machine.Machine
	topic   string
}

// New creates a hub publishing on topic
func New(topic string) *Hub {
	return &Hub{
		machine: machine.New(),
		topic:   topic,
	}
}

func (h *Hub) Publish(ctx context.Context, payload []byte) error {
	body := make([]byte, len(payload))
	copy(body, payload)
	h.machine.Publish(ctx, machine.Message{
		Channel: h.topic,
		Body:    body,
	})
	return nil
}

// Subscribe calls fn with each payload in a background goroutine until ctx is done,
// fn returns false, or fn returns an error
func (h *Hub) Subscribe(ctx context.Context, fn func(payload []byte) (bool, error)) {
	h.machine.Go(ctx, func(ctx context.Context) error {
		err := h.machine.Subscribe(ctx, h.topic, func(ctx context.Context, msg machine.Message) (bool, error) {
			return fn(msg.Body.([]byte))
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
}

// Close waits for subscribers to return
func (h *Hub) Close() error {
	return h.machine.Wait()
}
