package notify

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramMaxLen is the Bot API limit for one text message.
const TelegramMaxLen = 4096

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetMe() (tgbotapi.User, error)
}

// Telegram pushes messages through the Telegram Bot API. The channel token
// is the bot token and the user id is the target chat id.
type Telegram struct {
	newAPI func(token string) (telegramAPI, error)

	mu   sync.Mutex
	apis map[string]telegramAPI
}

// NewTelegram creates a Telegram pusher.
func NewTelegram() *Telegram {
	return &Telegram{
		newAPI: func(token string) (telegramAPI, error) {
			return tgbotapi.NewBotAPI(token)
		},
		apis: make(map[string]telegramAPI),
	}
}

func (t *Telegram) api(token string) (telegramAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if api, ok := t.apis[token]; ok {
		return api, nil
	}
	api, err := t.newAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	t.apis[token] = api
	return api, nil
}

// MaxLen reports TelegramMaxLen.
func (t *Telegram) MaxLen() int {
	return TelegramMaxLen
}

// Push sends text to the chat identified by userID. The bot API client has
// no context support, so ctx is only checked before the request is made; a
// request already in flight runs to completion.
func (t *Telegram) Push(ctx context.Context, token, userID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", userID, err)
	}
	api, err := t.api(token)
	if err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := api.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// Verify checks the bot token with getMe and validates the chat id. Like
// Push, it honours ctx only before the request starts.
func (t *Telegram) Verify(ctx context.Context, token, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := strconv.ParseInt(userID, 10, 64); err != nil {
		return fmt.Errorf("invalid chat id %q: %w", userID, err)
	}
	api, err := t.api(token)
	if err != nil {
		return err
	}
	if _, err := api.GetMe(); err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	return nil
}
