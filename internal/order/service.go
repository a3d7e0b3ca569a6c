package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/order-bot/internal/scanning"
	"github.com/zombor/order-bot/internal/sheet"
)

// IDGenerator generates batch correlation ids
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// ImageFetcher downloads the bytes of an image the user sent
type ImageFetcher interface {
	Fetch(ctx context.Context, imageID string) ([]byte, error)
}

// Notifier talks back to the user. Reply tokens are single use and expire.
type Notifier interface {
	Reply(ctx context.Context, replyToken, text string) error
	Push(ctx context.Context, userID, text string) error
}

// RecordStore is the part of the order sheet the pipeline writes through
type RecordStore interface {
	IsDuplicate(ctx context.Context, orderID string) (bool, error)
	ReleaseOrder(orderID string)
	NextRunNumber(ctx context.Context) (int, error)
	Release(n int)
	Append(ctx context.Context, rec sheet.Record) error
	InvalidateSnapshot()
}

// FolderResolver names the blob folder images for the active sheet go to
type FolderResolver interface {
	Folder() (string, error)
}

// batchTimeout bounds one batch from acknowledgement to summary
const batchTimeout = 5 * time.Minute

// Service runs the ingestion pipeline for completed batches
type Service struct {
	fetcher   ImageFetcher
	extractor scanning.Extractor
	store     RecordStore
	blobs     BlobStore
	folders   FolderResolver
	notifier  Notifier
	merge     func(left, right []byte) ([]byte, error)
}

// NewService creates a new Service that merges two-image batches side by side
func NewService(fetcher ImageFetcher, extractor scanning.Extractor, store RecordStore, blobs BlobStore, folders FolderResolver, notifier Notifier) *Service {
	return NewServiceWithDeps(fetcher, extractor, store, blobs, folders, notifier, scanning.Stitch)
}

// NewServiceWithDeps creates a new Service with a custom merge step for testing
func NewServiceWithDeps(fetcher ImageFetcher, extractor scanning.Extractor, store RecordStore, blobs BlobStore, folders FolderResolver, notifier Notifier, merge func(left, right []byte) ([]byte, error)) *Service {
	return &Service{
		fetcher:   fetcher,
		extractor: extractor,
		store:     store,
		blobs:     blobs,
		folders:   folders,
		notifier:  notifier,
		merge:     merge,
	}
}

// Process runs a batch with its own deadline. It is the Batcher callback.
func (s *Service) Process(batch Batch) {
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	outcome := s.ProcessBatch(ctx, batch)
	slog.Info("Batch finished", "batch", batch.ID, "user", batch.UserID, "outcome", outcome)
}

// ProcessBatch downloads, reads, de-duplicates and records one batch. Every
// failure is turned into an Outcome and exactly one message to the user.
func (s *Service) ProcessBatch(ctx context.Context, batch Batch) Outcome {
	log := slog.With("batch", batch.ID, "user", batch.UserID)

	ack := fmt.Sprintf("ได้รับ %d รูปภาพ กำลังประมวลผล...", len(batch.ImageIDs))
	if err := s.notifier.Reply(ctx, batch.ReplyToken, ack); err != nil {
		log.Warn("Failed to acknowledge batch", "error", err)
	}

	images := make([][]byte, 0, len(batch.ImageIDs))
	for _, id := range batch.ImageIDs {
		data, err := s.fetcher.Fetch(ctx, id)
		if err != nil {
			log.Error("Failed to download image", "image", id, "error", err)
			s.push(ctx, log, batch.UserID, "❌ ดาวน์โหลดรูปไม่สำเร็จ กรุณาส่งใหม่อีกครั้งครับ")
			return OutcomeDownloadFailed
		}
		images = append(images, data)
	}

	image := s.resolveImage(log, images)

	data, err := s.extractor.Extract(ctx, image)
	if err != nil || data == nil {
		log.Error("Failed to extract order", "error", err)
		s.push(ctx, log, batch.UserID, "❌ AI อ่านข้อมูลไม่ได้ครับ")
		return OutcomeExtractionFailed
	}
	log = log.With("order", data.OrderID)

	duplicate, err := s.store.IsDuplicate(ctx, data.OrderID)
	if err != nil {
		log.Warn("Duplicate check failed, continuing", "error", err)
	}
	if duplicate {
		log.Info("Skipping duplicate order")
		s.push(ctx, log, batch.UserID, fmt.Sprintf("⚠️ Order %s ซ้ำครับ! (ไม่บันทึก)", data.OrderID))
		return OutcomeDuplicateOrder
	}

	run, err := s.store.NextRunNumber(ctx)
	if err != nil {
		log.Error("Failed to allocate run number", "error", err)
		s.store.ReleaseOrder(data.OrderID)
		s.push(ctx, log, batch.UserID, storeFailedMessage)
		return OutcomeStoreWriteFailed
	}
	log = log.With("run", run)

	upload := s.upload(ctx, image, run)
	if upload.err != nil {
		log.Warn("Failed to upload image", "folder", upload.folderName, "error", upload.err)
	}

	rec := sheet.Record{
		RunNumber:      run,
		ReceiverName:   data.ReceiverName,
		Location:       data.Location,
		Platform:       data.Platform,
		Date:           data.Date,
		ShopName:       data.ShopName,
		ItemName:       data.ItemName,
		Price:          data.Price.String(),
		Coins:          data.Coins.String(),
		OrderID:        data.OrderID,
		TrackingNumber: data.TrackingNumber,
		Status:         sheet.StatusPending,
	}
	if upload.blob != nil {
		rec.ImageURL = upload.blob.URL
	}

	if err := s.store.Append(ctx, rec); err != nil {
		log.Error("Failed to append order", "error", err)
		s.push(ctx, log, batch.UserID, storeFailedMessage)
		return OutcomeStoreWriteFailed
	}
	s.store.InvalidateSnapshot()

	s.push(ctx, log, batch.UserID, summary(rec, upload))
	if upload.err != nil {
		return OutcomeSavedWithoutImage
	}
	return OutcomeSaved
}

const storeFailedMessage = "❌ บันทึก Sheet ไม่สำเร็จ"

// resolveImage picks the single image or merges the first two. Further images
// are not part of the merge.
func (s *Service) resolveImage(log *slog.Logger, images [][]byte) []byte {
	if len(images) == 1 {
		return images[0]
	}
	if len(images) > 2 {
		log.Warn("Only the first two images are merged", "images", len(images))
	}

	merged, err := s.merge(images[0], images[1])
	if err != nil {
		log.Warn("Failed to merge images, using the first one", "error", err)
		return images[0]
	}
	return merged
}

type uploadResult struct {
	blob       *Blob
	folderName string
	err        error
}

// upload stores the image as <run>.jpg in the active sheet's folder
func (s *Service) upload(ctx context.Context, image []byte, run int) uploadResult {
	result := uploadResult{folderName: "ไม่ทราบชื่อโฟลเดอร์"}

	folderID, err := s.folders.Folder()
	if err != nil {
		result.err = fmt.Errorf("resolving folder: %w", err)
		return result
	}

	if name, err := s.blobs.FolderName(ctx, folderID); err == nil && name != "" {
		result.folderName = name
	}

	blob, err := s.blobs.Upload(ctx, image, folderID, fmt.Sprintf("%d.jpg", run))
	if err != nil {
		result.err = err
		return result
	}
	if blob == nil || blob.URL == "" {
		result.err = errors.New("upload returned no link")
		return result
	}
	result.blob = blob
	return result
}

// push sends a message and logs, but otherwise ignores, delivery failures
func (s *Service) push(ctx context.Context, log *slog.Logger, userID, text string) {
	if err := s.notifier.Push(ctx, userID, text); err != nil {
		log.Warn("Failed to notify user", "error", err)
	}
}

// summary is the success message for a saved order
func summary(rec sheet.Record, upload uploadResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ บันทึกแล้ว! (No. %d)\n", rec.RunNumber)
	fmt.Fprintf(&b, "ชื่อ: %s\n", orDash(rec.ReceiverName))
	fmt.Fprintf(&b, "ที่อยู่: %s\n", orDash(rec.Location))
	fmt.Fprintf(&b, "ร้าน: %s\n", orDash(rec.ShopName))
	fmt.Fprintf(&b, "ยอด: %s\n", sheet.FormatAmount(rec.Price))
	fmt.Fprintf(&b, "เหรียญ: %s\n", sheet.FormatAmount(rec.Coins))
	fmt.Fprintf(&b, "Platform: %s\n", orDash(rec.Platform))
	fmt.Fprintf(&b, "Order: %s", orDash(rec.OrderID))
	if rec.TrackingNumber != "" {
		fmt.Fprintf(&b, "\nTracking: %s", rec.TrackingNumber)
	}

	if upload.err == nil {
		fmt.Fprintf(&b, "\n📁 บันทึกรูปไปที่: %s", upload.folderName)
	} else {
		fmt.Fprintf(&b, "\n⚠️ เซฟรูปลง Drive ไม่สำเร็จ!\n(โฟลเดอร์: %s)\nสาเหตุ: %v", upload.folderName, upload.err)
	}
	return b.String()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
