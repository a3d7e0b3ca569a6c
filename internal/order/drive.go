package order

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/zombor/order-bot/internal/gauth"
)

// DriveStorage implements BlobStore on Google Drive. Uploaded files are made
// readable by anyone with the link so the sheet's hyperlinks open.
type DriveStorage struct {
	svc *drive.Service
}

// NewDriveStorage creates a DriveStorage from a credentials file path or inline JSON
func NewDriveStorage(ctx context.Context, credentials string) (*DriveStorage, error) {
	return NewDriveStorageWithOptions(ctx, gauth.ClientOptions(credentials)...)
}

// NewDriveStorageWithOptions creates a DriveStorage with explicit client options
func NewDriveStorageWithOptions(ctx context.Context, opts ...option.ClientOption) (*DriveStorage, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating drive client: %w", err)
	}
	return &DriveStorage{svc: svc}, nil
}

// Upload creates the file in the folder and shares it by link
func (d *DriveStorage) Upload(ctx context.Context, data []byte, folderID, filename string) (*Blob, error) {
	meta := &drive.File{
		Name:    filename,
		Parents: []string{folderID},
	}
	f, err := d.svc.Files.Create(meta).
		Media(bytes.NewReader(data)).
		Fields("id, name, webViewLink").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("uploading %s: %w", filename, err)
	}

	perm := &drive.Permission{Type: "anyone", Role: "reader"}
	if _, err := d.svc.Permissions.Create(f.Id, perm).SupportsAllDrives(true).Context(ctx).Do(); err != nil {
		return nil, fmt.Errorf("sharing %s: %w", filename, err)
	}

	return &Blob{ID: f.Id, Name: f.Name, URL: f.WebViewLink}, nil
}

// Download fetches the file content
func (d *DriveStorage) Download(ctx context.Context, id string) ([]byte, string, error) {
	resp, err := d.svc.Files.Get(id).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		if isNotFound(err) {
			return nil, "", fmt.Errorf("%w: %s", ErrBlobNotFound, id)
		}
		return nil, "", fmt.Errorf("downloading %s: %w", id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", id, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

// Find returns the first non-trashed file with the name in the folder
func (d *DriveStorage) Find(ctx context.Context, folderID, name string) (*Blob, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", escapeQuery(name), escapeQuery(folderID))
	list, err := d.svc.Files.List().
		Q(q).
		Fields("files(id, name, webViewLink)").
		PageSize(1).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("searching for %s: %w", name, err)
	}
	if len(list.Files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, name)
	}

	f := list.Files[0]
	return &Blob{ID: f.Id, Name: f.Name, URL: f.WebViewLink}, nil
}

// FolderName looks up the folder's display name
func (d *DriveStorage) FolderName(ctx context.Context, folderID string) (string, error) {
	f, err := d.svc.Files.Get(folderID).Fields("name").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("getting folder %s: %w", folderID, err)
	}
	return f.Name, nil
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
