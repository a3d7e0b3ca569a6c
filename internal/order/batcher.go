package order

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultWindow is how long the batcher waits after the latest image
const DefaultWindow = 2 * time.Second

// Batcher collects images per user and hands each burst to the processor once
// the user has been quiet for the window. Every arrival restarts the user's
// timer; the batch is removed from the table before the processor runs.
type Batcher struct {
	window      time.Duration
	process     func(Batch)
	idGenerator IDGenerator
	timeSource  TimeSource

	mu      sync.Mutex
	batches map[string]*pendingBatch
	seq     uint64
	closed  bool
	running sync.WaitGroup
}

type pendingBatch struct {
	images     []string
	replyToken string
	timer      *time.Timer
	seq        uint64
}

// NewBatcher creates a Batcher that calls process for every completed batch
func NewBatcher(window time.Duration, process func(Batch)) *Batcher {
	return NewBatcherWithDeps(window, process, &uuidGenerator{}, &defaultTimeSource{})
}

// NewBatcherWithDeps creates a Batcher with custom dependencies for testing
func NewBatcherWithDeps(window time.Duration, process func(Batch), idGen IDGenerator, timeSrc TimeSource) *Batcher {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Batcher{
		window:      window,
		process:     process,
		idGenerator: idGen,
		timeSource:  timeSrc,
		batches:     make(map[string]*pendingBatch),
	}
}

// Add registers an image for a user, keeps the latest reply token and
// restarts the user's window
func (b *Batcher) Add(userID, imageID, replyToken string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		slog.Warn("Dropping image after shutdown", "user", userID, "image", imageID)
		return
	}

	p, ok := b.batches[userID]
	if !ok {
		p = &pendingBatch{}
		b.batches[userID] = p
	}
	p.images = append(p.images, imageID)
	p.replyToken = replyToken

	if p.timer != nil {
		p.timer.Stop()
	}
	b.seq++
	seq := b.seq
	p.seq = seq
	p.timer = time.AfterFunc(b.window, func() {
		b.fire(userID, seq)
	})

	slog.Debug("Queued image", "user", userID, "image", imageID, "pending", len(p.images))
}

// fire pops the user's batch and processes it. A timer whose Stop lost the race
// against its own expiry finds a newer sequence number and does nothing.
func (b *Batcher) fire(userID string, seq uint64) {
	b.mu.Lock()
	p, ok := b.batches[userID]
	if !ok || p.seq != seq || b.closed {
		b.mu.Unlock()
		return
	}
	delete(b.batches, userID)
	b.running.Add(1)
	b.mu.Unlock()

	defer b.running.Done()

	batch := Batch{
		ID:         b.idGenerator.Generate(),
		UserID:     userID,
		ImageIDs:   p.images,
		ReplyToken: p.replyToken,
		FiredAt:    b.timeSource.Now(),
	}
	slog.Info("Processing batch", "batch", batch.ID, "user", userID, "images", len(batch.ImageIDs))
	b.process(batch)
}

// Pending is the number of images waiting for a user
func (b *Batcher) Pending(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.batches[userID]; ok {
		return len(p.images)
	}
	return 0
}

// Close stops all timers and drops batches that have not fired yet. Batches
// already being processed are not interrupted; use Wait for them.
func (b *Batcher) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for userID, p := range b.batches {
		p.timer.Stop()
		slog.Warn("Dropping unprocessed batch", "user", userID, "images", len(p.images))
	}
	b.batches = make(map[string]*pendingBatch)
}

// Wait blocks until every batch handed to the processor has finished
func (b *Batcher) Wait() {
	b.running.Wait()
}
