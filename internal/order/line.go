package order

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// LINE implements Notifier and ImageFetcher with the LINE Messaging API
type LINE struct {
	bot  *messaging_api.MessagingApiAPI
	blob *messaging_api.MessagingApiBlobAPI
}

// NewLINE creates LINE clients for a channel access token
func NewLINE(channelToken string) (*LINE, error) {
	return NewLINEWithEndpoints(channelToken, "", "")
}

// NewLINEWithEndpoints creates LINE clients against custom API hosts for testing.
// Empty endpoints keep the defaults.
func NewLINEWithEndpoints(channelToken, apiEndpoint, blobEndpoint string) (*LINE, error) {
	if channelToken == "" {
		return nil, errors.New("line channel token is required")
	}

	var botOpts []messaging_api.MessagingApiAPIOption
	if apiEndpoint != "" {
		botOpts = append(botOpts, messaging_api.WithEndpoint(apiEndpoint))
	}
	bot, err := messaging_api.NewMessagingApiAPI(channelToken, botOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating line messaging client: %w", err)
	}

	var blobOpts []messaging_api.MessagingApiBlobAPIOption
	if blobEndpoint != "" {
		blobOpts = append(blobOpts, messaging_api.WithBlobEndpoint(blobEndpoint))
	}
	blob, err := messaging_api.NewMessagingApiBlobAPI(channelToken, blobOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating line blob client: %w", err)
	}

	return &LINE{bot: bot, blob: blob}, nil
}

// Reply answers with a reply token
func (l *LINE) Reply(ctx context.Context, replyToken, text string) error {
	if replyToken == "" {
		return errors.New("no reply token")
	}

	_, err := l.bot.WithContext(ctx).ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   []messaging_api.MessageInterface{messaging_api.TextMessage{Text: text}},
	})
	if err != nil {
		return fmt.Errorf("replying: %w", err)
	}
	return nil
}

// Push sends a message to a user
func (l *LINE) Push(ctx context.Context, userID, text string) error {
	_, err := l.bot.WithContext(ctx).PushMessage(&messaging_api.PushMessageRequest{
		To:       userID,
		Messages: []messaging_api.MessageInterface{messaging_api.TextMessage{Text: text}},
	}, "")
	if err != nil {
		return fmt.Errorf("pushing to %s: %w", userID, err)
	}
	return nil
}

// Fetch downloads the content of an image message
func (l *LINE) Fetch(ctx context.Context, messageID string) ([]byte, error) {
	resp, err := l.blob.WithContext(ctx).GetMessageContent(messageID)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("getting content of %s: %w", messageID, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("getting content of %s: status %d", messageID, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading content of %s: %w", messageID, err)
	}
	return data, nil
}
