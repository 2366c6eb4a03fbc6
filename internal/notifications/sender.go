package notifications

import (
	"context"

	"github.com/9ssi7/exponent"
)

// expoBatchSize is the most messages Expo accepts in one push request.
const expoBatchSize = 100

type PushSender interface {
	Publish(ctx context.Context, msgs []*exponent.Message) ([]*exponent.MessageResponse, error)
	PublishSingle(ctx context.Context, msg *exponent.Message) ([]*exponent.MessageResponse, error)
}

type expoPublisher interface {
	Publish(ctx context.Context, msgs []*exponent.Message) ([]*exponent.MessageResponse, error)
}

// ExpoSender delivers through the Expo push service, splitting large
// fan-outs into batches Expo will accept.
type ExpoSender struct {
	client expoPublisher
}

func NewExpoSender(c *exponent.Client) *ExpoSender {
	return &ExpoSender{client: c}
}

func (s *ExpoSender) Publish(ctx context.Context, msgs []*exponent.Message) ([]*exponent.MessageResponse, error) {
	var out []*exponent.MessageResponse
	for start := 0; start < len(msgs); start += expoBatchSize {
		end := min(start+expoBatchSize, len(msgs))
		res, err := s.client.Publish(ctx, msgs[start:end])
		out = append(out, res...)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func (s *ExpoSender) PublishSingle(ctx context.Context, msg *exponent.Message) ([]*exponent.MessageResponse, error) {
	return s.Publish(ctx, []*exponent.Message{msg})
}

// NopSender drops every message. Used when no Expo access token is set.
type NopSender struct{}

func (NopSender) Publish(context.Context, []*exponent.Message) ([]*exponent.MessageResponse, error) {
	return nil, nil
}

func (NopSender) PublishSingle(context.Context, *exponent.Message) ([]*exponent.MessageResponse, error) {
	return nil, nil
}
