package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// ImageQueue accepts images for batching
type ImageQueue interface {
	Add(userID, imageID, replyToken string)
}

// EventLog remembers webhook event ids so redeliveries are processed once
type EventLog interface {
	MarkEvent(id string, at time.Time) (bool, error)
}

// ReportExporter produces the accounting report
type ReportExporter interface {
	Export(ctx context.Context) (*Blob, error)
}

// exportTimeout bounds one export from read to upload
const exportTimeout = 2 * time.Minute

// Webhook turns LINE webhook deliveries into batcher arrivals and export runs
type Webhook struct {
	channelSecret string
	queue         ImageQueue
	events        EventLog
	notifier      Notifier
	exporter      ReportExporter
	timeSource    TimeSource

	exports sync.WaitGroup
}

// NewWebhook creates a new Webhook
func NewWebhook(channelSecret string, queue ImageQueue, events EventLog, notifier Notifier, exporter ReportExporter) *Webhook {
	return NewWebhookWithDeps(channelSecret, queue, events, notifier, exporter, &defaultTimeSource{})
}

// NewWebhookWithDeps creates a new Webhook with a custom time source for testing
func NewWebhookWithDeps(channelSecret string, queue ImageQueue, events EventLog, notifier Notifier, exporter ReportExporter, timeSrc TimeSource) *Webhook {
	return &Webhook{
		channelSecret: channelSecret,
		queue:         queue,
		events:        events,
		notifier:      notifier,
		exporter:      exporter,
		timeSource:    timeSrc,
	}
}

// ErrInvalidSignature is returned for deliveries not signed with the channel secret
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Handle verifies and dispatches one delivery. It returns as soon as the
// events are queued; processing happens in the background.
func (h *Webhook) Handle(r *http.Request) error {
	cb, err := webhook.ParseRequest(h.channelSecret, r)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			return ErrInvalidSignature
		}
		return fmt.Errorf("parsing webhook: %w", err)
	}

	for _, event := range cb.Events {
		e, ok := event.(webhook.MessageEvent)
		if !ok {
			continue
		}
		if !h.firstDelivery(e.WebhookEventId) {
			slog.Info("Skipping redelivered event", "event", e.WebhookEventId)
			continue
		}

		userID := sourceUser(e.Source)
		if userID == "" {
			continue
		}

		switch m := e.Message.(type) {
		case webhook.ImageMessageContent:
			h.queue.Add(userID, m.Id, e.ReplyToken)
		case webhook.FileMessageContent:
			if !IsSlipFile(m.FileName) {
				slog.Info("Ignoring file that is not a slip", "user", userID, "file", m.FileName)
				continue
			}
			h.queue.Add(userID, m.Id, e.ReplyToken)
		case webhook.TextMessageContent:
			if IsExportCommand(m.Text) {
				h.startExport(userID, e.ReplyToken)
			}
		}
	}
	return nil
}

// slipExtensions are the document types a slip may be sent as
var slipExtensions = map[string]bool{
	".pdf": true, ".heic": true, ".heif": true,
	".jpg": true, ".jpeg": true, ".png": true,
}

// IsSlipFile reports whether a file sent as a document can be read as a slip
func IsSlipFile(name string) bool {
	return slipExtensions[strings.ToLower(path.Ext(name))]
}

func (h *Webhook) firstDelivery(eventID string) bool {
	if eventID == "" || h.events == nil {
		return true
	}
	first, err := h.events.MarkEvent(eventID, h.timeSource.Now())
	if err != nil {
		slog.Warn("Failed to record webhook event", "event", eventID, "error", err)
		return true
	}
	return first
}

func sourceUser(source webhook.SourceInterface) string {
	switch s := source.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.UserId
	case webhook.RoomSource:
		return s.UserId
	}
	return ""
}

// startExport acknowledges the command and runs the export in the background
func (h *Webhook) startExport(userID, replyToken string) {
	ctx := context.Background()
	if err := h.notifier.Reply(ctx, replyToken, "📊 กำลังสร้างไฟล์เบิกเงินและส่งเข้า Drive... รอสักครู่ครับ"); err != nil {
		slog.Warn("Failed to acknowledge export", "user", userID, "error", err)
	}

	h.exports.Add(1)
	go func() {
		defer h.exports.Done()

		ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
		defer cancel()

		var msg string
		blob, err := h.exporter.Export(ctx)
		switch {
		case errors.Is(err, ErrNoRecords):
			msg = "❌ ไม่พบข้อมูลใน Sheet"
		case err != nil:
			slog.Error("Export failed", "user", userID, "error", err)
			msg = fmt.Sprintf("เกิดข้อผิดพลาด: %v", err)
		default:
			msg = fmt.Sprintf("✅ สร้างไฟล์เสร็จแล้วครับ!\nโหลดได้ที่นี่: %s", blob.URL)
		}

		if err := h.notifier.Push(ctx, userID, msg); err != nil {
			slog.Warn("Failed to send export result", "user", userID, "error", err)
		}
	}()
}

// Wait blocks until running exports have finished
func (h *Webhook) Wait() {
	h.exports.Wait()
}
