package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

const streamName = "MAKAO"

// NatsBus publishes to a JetStream stream so events survive worker restarts.
type NatsBus struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *zap.SugaredLogger
}

func ConnectNats(ctx context.Context, url string, logger *zap.SugaredLogger) (*NatsBus, error) {
	nc, err := nats.Connect(url, nats.Name("makao-api"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"payments.>", "reports.>"},
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream: %w", err)
	}

	logger.Infow("nats connected", "url", url, "stream", streamName)
	return &NatsBus{nc: nc, js: js, logger: logger}, nil
}

func (b *NatsBus) Publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", subject, err)
	}
	if _, err := b.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

func (b *NatsBus) Subscribe(ctx context.Context, subject, durable string, h Handler) (func(), error) {
	consumer, err := b.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    5,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := h(context.Background(), msg.Subject(), msg.Data()); err != nil {
			b.logger.Errorw("event handler failed", "subject", msg.Subject(), "error", err)
			_ = msg.Nak()
			return
		}
		if err := msg.Ack(); err != nil {
			b.logger.Warnw("nats ack failed", "subject", msg.Subject(), "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}
	return cc.Stop, nil
}

func (b *NatsBus) Close() error {
	return b.nc.Drain()
}
