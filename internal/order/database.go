package order

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"
)

const (
	folderBucketName = "sheet_folders"
	eventBucketName  = "webhook_events"
)

// ErrNoFolder is returned when no upload folder is configured for a sheet
var ErrNoFolder = errors.New("no upload folder configured")

// BoltDB keeps the per-sheet upload folders and the webhook event log
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(folderBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(eventBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// FolderForSheet returns the upload folder stored for a sheet
func (b *BoltDB) FolderForSheet(sheetName string) (string, error) {
	var folderID string
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(folderBucketName)).Get([]byte(sheetName))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNoFolder, sheetName)
		}
		folderID = string(data)
		return nil
	})
	if err != nil {
		return "", err
	}
	return folderID, nil
}

// SetFolderForSheet stores the upload folder for a sheet
func (b *BoltDB) SetFolderForSheet(sheetName, folderID string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(folderBucketName)).Put([]byte(sheetName), []byte(folderID))
	})
}

// MarkEvent records a webhook event id and reports whether it was new.
// Redeliveries of an event already seen return false.
func (b *BoltDB) MarkEvent(id string, at time.Time) (bool, error) {
	first := false
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(eventBucketName))
		if bucket.Get([]byte(id)) != nil {
			return nil
		}
		first = true
		return bucket.Put([]byte(id), []byte(at.UTC().Format(time.RFC3339Nano)))
	})
	if err != nil {
		return false, fmt.Errorf("recording event %s: %w", id, err)
	}
	return first, nil
}

// PruneEvents deletes event ids recorded before the cutoff and returns how many
// were removed
func (b *BoltDB) PruneEvents(before time.Time) (int, error) {
	removed := 0
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(eventBucketName))
		var stale [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			at, err := time.Parse(time.RFC3339Nano, string(v))
			if err != nil || at.Before(before) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("pruning events: %w", err)
	}
	return removed, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

// SheetFolders resolves the upload folder of one sheet, falling back to a
// configured default until a folder has been saved
type SheetFolders struct {
	db       *BoltDB
	sheet    string
	fallback string
}

// NewSheetFolders creates a resolver for sheetName
func NewSheetFolders(db *BoltDB, sheetName, fallback string) *SheetFolders {
	return &SheetFolders{db: db, sheet: sheetName, fallback: fallback}
}

// Sheet is the sheet the folder belongs to
func (f *SheetFolders) Sheet() string {
	return f.sheet
}

// Folder returns the saved folder, else the fallback
func (f *SheetFolders) Folder() (string, error) {
	folderID, err := f.db.FolderForSheet(f.sheet)
	if err == nil {
		return folderID, nil
	}
	if !errors.Is(err, ErrNoFolder) {
		slog.Warn("Failed to read folder setting, using default", "sheet", f.sheet, "error", err)
	}
	if f.fallback == "" {
		return "", fmt.Errorf("%w: %s", ErrNoFolder, f.sheet)
	}
	return f.fallback, nil
}

// SetFolder saves the folder for the sheet
func (f *SheetFolders) SetFolder(folderID string) error {
	if folderID == "" {
		return errors.New("folder id is required")
	}
	if err := f.db.SetFolderForSheet(f.sheet, folderID); err != nil {
		return fmt.Errorf("saving folder for %s: %w", f.sheet, err)
	}
	return nil
}
