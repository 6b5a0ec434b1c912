package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"
)

type telegramSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// TelegramChannel posts advisories to a Telegram chat through a bot.
type TelegramChannel struct {
	sender   telegramSender
	chatID   int64
	limiter  *rate.Limiter
	attempts int
	delay    time.Duration
}

// TelegramOption configures the Telegram channel.
type TelegramOption func(*TelegramChannel)

// WithRateLimit caps messages per second.
func WithRateLimit(perSecond int) TelegramOption {
	return func(ch *TelegramChannel) {
		if perSecond > 0 {
			ch.limiter = rate.NewLimiter(rate.Limit(float64(perSecond)), perSecond)
		}
	}
}

// WithRetry sets the number of send attempts and the delay between them.
func WithRetry(attempts int, delay time.Duration) TelegramOption {
	return func(ch *TelegramChannel) {
		if attempts > 0 {
			ch.attempts = attempts
		}
		if delay >= 0 {
			ch.delay = delay
		}
	}
}

// NewTelegramChannel creates a bot client for token without contacting the API.
func NewTelegramChannel(token string, chatID int64, opts ...TelegramOption) (*TelegramChannel, error) {
	if token == "" {
		return nil, errors.New("telegram channel: empty bot token")
	}
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("telegram channel: %w", err)
	}
	return newTelegramChannel(b, chatID, opts...)
}

func newTelegramChannel(sender telegramSender, chatID int64, opts ...TelegramOption) (*TelegramChannel, error) {
	if chatID == 0 {
		return nil, errors.New("telegram channel: missing chat id")
	}
	ch := &TelegramChannel{
		sender:   sender,
		chatID:   chatID,
		limiter:  rate.NewLimiter(rate.Limit(1), 1),
		attempts: 3,
		delay:    time.Second,
	}
	for _, opt := range opts {
		opt(ch)
	}
	return ch, nil
}

// Send delivers the rendered text, retrying transient failures.
func (t *TelegramChannel) Send(ctx context.Context, msg Message) error {
	if t == nil || t.sender == nil {
		return errors.New("telegram channel: nil sender")
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram channel: rate limit: %w", err)
	}
	params := &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   msg.Text,
	}
	var lastErr error
	for attempt := 1; attempt <= t.attempts; attempt++ {
		if _, err := t.sender.SendMessage(ctx, params); err != nil {
			lastErr = err
			if attempt < t.attempts {
				select {
				case <-ctx.Done():
					return fmt.Errorf("telegram channel: %w", ctx.Err())
				case <-time.After(t.delay):
				}
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("telegram channel: failed after %d attempts: %w", t.attempts, lastErr)
}
