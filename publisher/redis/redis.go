package redis

import (
	"context"

	"github.com/autom8ter/sql2hub/errors"
	"github.com/autom8ter/sql2hub/publisher"
	"github.com/go-redis/redis/v9"
	"github.com/segmentio/ksuid"
	"github.com/spf13/cast"
)

const (
	// ModePublish sends payloads with PUBLISH to the topic channel
	ModePublish = "publish"
	// ModeStream appends payloads with XADD to the topic stream
	ModeStream = "stream"
)

func init() {
	publisher.Register("redis", func(params publisher.Params) (publisher.Publisher, error) {
		return Open(params)
	})
}

// Publisher publishes payloads to redis
type Publisher struct {
	client *redis.Client
	topic  string
	mode   string
	maxLen int64
}

// Open connects to the redis url in params.ConnectionString.
// Options: mode (publish|stream, default publish) and max_len (approximate stream length cap, 0 for none).
func Open(params publisher.Params) (*Publisher, error) {
	opts, err := redis.ParseURL(params.ConnectionString)
	if err != nil {
		return nil, errors.Wrap(err, errors.Configuration, "invalid redis url")
	}
	mode := cast.ToString(params.Options["mode"])
	if mode == "" {
		mode = ModePublish
	}
	if mode != ModePublish && mode != ModeStream {
		return nil, errors.New(errors.Configuration, "unsupported redis mode: %s", mode)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, errors.Publish, "failed to reach redis")
	}
	return &Publisher{
		client: client,
		topic:  params.Topic,
		mode:   mode,
		maxLen: cast.ToInt64(params.Options["max_len"]),
	}, nil
}

func (p *Publisher) Publish(ctx context.Context, payload []byte) error {
	switch p.mode {
	case ModeStream:
		args := &redis.XAddArgs{
			Stream: p.topic,
			Values: map[string]any{
				"id":   ksuid.New().String(),
				"body": payload,
			},
		}
		if p.maxLen > 0 {
			args.MaxLen = p.maxLen
			args.Approx = true
		}
		return errors.Wrap(p.client.XAdd(ctx, args).Err(), errors.Publish, "failed to add to stream %s", p.topic)
	default:
		return errors.Wrap(p.client.Publish(ctx, p.topic, payload).Err(), errors.Publish, "failed to publish to channel %s", p.topic)
	}
}

func (p *Publisher) Close() error {
	return p.client.Close()
}
