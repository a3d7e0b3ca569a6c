package order

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BoltDB", func() {
	var db *BoltDB

	BeforeEach(func() {
		var err error
		db, err = NewBoltDB(filepath.Join(GinkgoT().TempDir(), "test.db"))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("FolderForSheet", func() {
		When("no folder was saved", func() {
			It("returns ErrNoFolder", func() {
				_, err := db.FolderForSheet("Orders")
				Expect(err).To(MatchError(ErrNoFolder))
			})
		})

		When("a folder was saved", func() {
			BeforeEach(func() {
				Expect(db.SetFolderForSheet("Orders", "folder-1")).To(Succeed())
				Expect(db.SetFolderForSheet("Archive", "folder-2")).To(Succeed())
			})

			It("should return the sheet's folder", func() {
				folder, err := db.FolderForSheet("Orders")
				Expect(err).NotTo(HaveOccurred())
				Expect(folder).To(Equal("folder-1"))
			})

			It("should overwrite on save", func() {
				Expect(db.SetFolderForSheet("Orders", "folder-3")).To(Succeed())
				folder, err := db.FolderForSheet("Orders")
				Expect(err).NotTo(HaveOccurred())
				Expect(folder).To(Equal("folder-3"))
			})
		})
	})

	Describe("MarkEvent", func() {
		var now time.Time

		BeforeEach(func() {
			now = time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
		})

		It("should report the first delivery", func() {
			first, err := db.MarkEvent("evt-1", now)
			Expect(err).NotTo(HaveOccurred())
			Expect(first).To(BeTrue())
		})

		It("should report redeliveries", func() {
			_, err := db.MarkEvent("evt-1", now)
			Expect(err).NotTo(HaveOccurred())

			first, err := db.MarkEvent("evt-1", now.Add(time.Minute))
			Expect(err).NotTo(HaveOccurred())
			Expect(first).To(BeFalse())
		})
	})

	Describe("PruneEvents", func() {
		var now time.Time

		BeforeEach(func() {
			now = time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
			_, err := db.MarkEvent("old", now.Add(-48*time.Hour))
			Expect(err).NotTo(HaveOccurred())
			_, err = db.MarkEvent("new", now)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should remove events before the cutoff", func() {
			removed, err := db.PruneEvents(now.Add(-24 * time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(Equal(1))

			first, err := db.MarkEvent("old", now)
			Expect(err).NotTo(HaveOccurred())
			Expect(first).To(BeTrue())

			first, err = db.MarkEvent("new", now)
			Expect(err).NotTo(HaveOccurred())
			Expect(first).To(BeFalse())
		})
	})
})

var _ = Describe("SheetFolders", func() {
	var (
		db       *BoltDB
		fallback string
		folders  *SheetFolders
	)

	BeforeEach(func() {
		var err error
		db, err = NewBoltDB(filepath.Join(GinkgoT().TempDir(), "test.db"))
		Expect(err).NotTo(HaveOccurred())
		fallback = "default-folder"
	})

	AfterEach(func() {
		db.Close()
	})

	JustBeforeEach(func() {
		folders = NewSheetFolders(db, "Orders", fallback)
	})

	It("should name its sheet", func() {
		Expect(folders.Sheet()).To(Equal("Orders"))
	})

	When("nothing was saved", func() {
		It("should use the fallback", func() {
			folder, err := folders.Folder()
			Expect(err).NotTo(HaveOccurred())
			Expect(folder).To(Equal("default-folder"))
		})
	})

	When("there is no fallback either", func() {
		BeforeEach(func() {
			fallback = ""
		})

		It("returns ErrNoFolder", func() {
			_, err := folders.Folder()
			Expect(err).To(MatchError(ErrNoFolder))
		})
	})

	When("a folder is saved", func() {
		It("should take precedence over the fallback", func() {
			Expect(folders.SetFolder("chosen-folder")).To(Succeed())
			folder, err := folders.Folder()
			Expect(err).NotTo(HaveOccurred())
			Expect(folder).To(Equal("chosen-folder"))
		})

		It("should reject an empty id", func() {
			Expect(folders.SetFolder("")).To(MatchError(ContainSubstring("required")))
		})
	})
})
