package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RelayMessage is a room event travelling between server processes.
type RelayMessage struct {
	Origin  string          `json:"origin"`
	Scope   string          `json:"scope"`
	Target  string          `json:"target"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	TsUnix  int64           `json:"ts_unix"`
}

// RoomEventsPubSub fans room events out to every process subscribed to the
// shared channel.
type RoomEventsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewRoomEventsPubSub(rdb *redis.Client) *RoomEventsPubSub {
	return &RoomEventsPubSub{
		rdb:     rdb,
		channel: ChannelRoomEvents(),
	}
}

func (p *RoomEventsPubSub) Publish(ctx context.Context, msg RelayMessage) error {
	if msg.TsUnix == 0 {
		msg.TsUnix = time.Now().Unix()
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

func (p *RoomEventsPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, msg RelayMessage)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg RelayMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err == nil &&
				msg.Event != "" {
				handler(ctx, msg)
			}
		}
	}
}
