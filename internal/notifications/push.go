package notifications

import (
	"context"
	"errors"
	"time"

	"makao/internal/domain/pushtokens"

	"github.com/9ssi7/exponent"
	"go.uber.org/zap"
)

var ErrNoPushTokens = errors.New("no push tokens")

// Push is the content of one notification; Data drives deep linking in the
// mobile client (router.push(`/${data.screen}`)).
type Push struct {
	Title string
	Body  string
	Data  map[string]string
}

func dedupe(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0:0]
	for _, t := range tokens {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// SendPush fans one notification out to every registered device of userID.
func SendPush(ctx context.Context, push PushSender, tokens pushtokens.Store, userID int64, p Push) error {
	tokensMap, err := tokens.GetTokensByUserIDs(ctx, []int64{userID})
	if err != nil {
		return err
	}
	list := dedupe(tokensMap[userID])
	if len(list) == 0 {
		return ErrNoPushTokens
	}

	msgs := make([]*exponent.Message, 0, len(list))
	for _, t := range list {
		token := exponent.Token(t)
		msgs = append(msgs, &exponent.Message{
			To:    []*exponent.Token{&token},
			Title: p.Title,
			Body:  p.Body,
			Data:  p.Data,
		})
	}

	_, err = push.Publish(ctx, msgs)
	return err
}

// CallAsync runs fn in the background with its own timeout so request
// handlers never wait on Expo or SMTP.
func CallAsync(logger *zap.SugaredLogger, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil && !errors.Is(err, ErrNoPushTokens) {
			logger.Warnw("async notification failed", "error", err)
		}
	}()
}
