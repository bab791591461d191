package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// LINE pushes messages through the LINE Messaging API.
type LINE struct {
	endpoint string
	client   *http.Client
}

// NewLINE creates a LINE pusher. An empty endpoint selects the public API.
func NewLINE(endpoint string, client *http.Client) *LINE {
	if client == nil {
		client = http.DefaultClient
	}
	return &LINE{endpoint: endpoint, client: client}
}

func (l *LINE) api(token string) (*messaging_api.MessagingApiAPI, error) {
	opts := []messaging_api.MessagingApiAPIOption{messaging_api.WithHTTPClient(l.client)}
	if l.endpoint != "" {
		opts = append(opts, messaging_api.WithEndpoint(l.endpoint))
	}
	api, err := messaging_api.NewMessagingApiAPI(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create line client: %w", err)
	}
	return api, nil
}

// LINEMaxLen is the Messaging API limit for one text message.
const LINEMaxLen = 5000

// MaxLen reports LINEMaxLen.
func (l *LINE) MaxLen() int {
	return LINEMaxLen
}

// Push sends text to userID as a single text message.
func (l *LINE) Push(ctx context.Context, token, userID, text string) error {
	api, err := l.api(token)
	if err != nil {
		return err
	}
	req := &messaging_api.PushMessageRequest{
		To: userID,
		Messages: []messaging_api.MessageInterface{
			messaging_api.TextMessage{Text: text},
		},
	}
	if _, err := api.WithContext(ctx).PushMessage(req, ""); err != nil {
		return fmt.Errorf("line push: %w", err)
	}
	return nil
}

// Verify fetches the bot profile to confirm the channel token is valid.
func (l *LINE) Verify(ctx context.Context, token, _ string) error {
	api, err := l.api(token)
	if err != nil {
		return err
	}
	if _, err := api.WithContext(ctx).GetBotInfo(); err != nil {
		return fmt.Errorf("line bot info: %w", err)
	}
	return nil
}
