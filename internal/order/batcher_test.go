package order

import (
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Batcher", func() {
	const window = 100 * time.Millisecond

	var (
		batcher *Batcher
		mu      sync.Mutex
		batches []Batch
		firedAt time.Time
	)

	fired := func() []Batch {
		mu.Lock()
		defer mu.Unlock()
		return append([]Batch(nil), batches...)
	}

	BeforeEach(func() {
		batches = nil
		firedAt = time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
		batcher = NewBatcherWithDeps(window, func(b Batch) {
			mu.Lock()
			defer mu.Unlock()
			batches = append(batches, b)
		}, &mockIDGenerator{id: "batch-1"}, &mockTimeSource{now: firedAt})
	})

	AfterEach(func() {
		batcher.Close()
		batcher.Wait()
	})

	When("several images arrive within the window", func() {
		JustBeforeEach(func() {
			for i := 0; i < 5; i++ {
				batcher.Add("U1", fmt.Sprintf("img-%d", i), fmt.Sprintf("token-%d", i))
			}
		})

		It("should process them once", func() {
			Eventually(fired).Should(HaveLen(1))
			Consistently(fired, 3*window).Should(HaveLen(1))
		})

		It("should keep arrival order", func() {
			Eventually(fired).Should(HaveLen(1))
			Expect(fired()[0].ImageIDs).To(Equal([]string{"img-0", "img-1", "img-2", "img-3", "img-4"}))
		})

		It("should keep the latest reply token", func() {
			Eventually(fired).Should(HaveLen(1))
			Expect(fired()[0].ReplyToken).To(Equal("token-4"))
		})

		It("should stamp the batch", func() {
			Eventually(fired).Should(HaveLen(1))
			b := fired()[0]
			Expect(b.ID).To(Equal("batch-1"))
			Expect(b.UserID).To(Equal("U1"))
			Expect(b.FiredAt).To(Equal(firedAt))
		})

		It("should report pending images until the window closes", func() {
			Expect(batcher.Pending("U1")).To(Equal(5))
			Eventually(func() int { return batcher.Pending("U1") }).Should(Equal(0))
		})
	})

	When("each arrival restarts the window", func() {
		It("should not fire while images keep coming", func() {
			for i := 0; i < 4; i++ {
				batcher.Add("U1", fmt.Sprintf("img-%d", i), "token")
				time.Sleep(window / 4)
			}
			Expect(fired()).To(BeEmpty())

			Eventually(fired).Should(HaveLen(1))
			Expect(fired()[0].ImageIDs).To(HaveLen(4))
		})
	})

	When("arrivals are further apart than the window", func() {
		It("should process two batches", func() {
			batcher.Add("U1", "img-a", "token-a")
			Eventually(fired).Should(HaveLen(1))

			batcher.Add("U1", "img-b", "token-b")
			Eventually(fired).Should(HaveLen(2))

			Expect(fired()[0].ImageIDs).To(Equal([]string{"img-a"}))
			Expect(fired()[1].ImageIDs).To(Equal([]string{"img-b"}))
		})
	})

	When("different users send images", func() {
		It("should batch them separately", func() {
			batcher.Add("U1", "img-1", "token-1")
			batcher.Add("U2", "img-2", "token-2")

			Eventually(fired).Should(HaveLen(2))
			users := []string{fired()[0].UserID, fired()[1].UserID}
			Expect(users).To(ConsistOf("U1", "U2"))
		})
	})

	When("images arrive concurrently", func() {
		It("should collect every image into one batch", func() {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					batcher.Add("U1", fmt.Sprintf("img-%d", i), "token")
				}(i)
			}
			wg.Wait()

			Eventually(fired).Should(HaveLen(1))
			Consistently(fired, 2*window).Should(HaveLen(1))
			Expect(fired()[0].ImageIDs).To(HaveLen(20))
		})
	})

	When("the batcher is closed", func() {
		It("should drop batches that have not fired", func() {
			batcher.Add("U1", "img-1", "token")
			batcher.Close()

			Consistently(fired, 3*window).Should(BeEmpty())
			Expect(batcher.Pending("U1")).To(Equal(0))
		})

		It("should ignore new images", func() {
			batcher.Close()
			batcher.Add("U1", "img-1", "token")

			Expect(batcher.Pending("U1")).To(Equal(0))
			Consistently(fired, 3*window).Should(BeEmpty())
		})
	})

	When("a batch is still being processed", func() {
		It("should wait for it", func() {
			release := make(chan struct{})
			done := make(chan struct{})
			slow := NewBatcher(window, func(b Batch) {
				<-release
			})
			slow.Add("U1", "img-1", "token")
			Eventually(func() int { return slow.Pending("U1") }).Should(Equal(0))

			go func() {
				slow.Close()
				slow.Wait()
				close(done)
			}()
			Consistently(done, window).ShouldNot(BeClosed())

			close(release)
			Eventually(done).Should(BeClosed())
		})
	})
})
