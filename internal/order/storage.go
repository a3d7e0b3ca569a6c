package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrBlobNotFound is returned when a stored file does not exist
var ErrBlobNotFound = errors.New("blob not found")

// Blob is a stored file
type Blob struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// BlobStore defines the interface for image and report storage
type BlobStore interface {
	// Upload stores data as filename inside a folder and returns a shareable link
	Upload(ctx context.Context, data []byte, folderID, filename string) (*Blob, error)

	// Download returns the content and content type of a stored file
	Download(ctx context.Context, id string) ([]byte, string, error)

	// Find looks a file up by name inside a folder
	Find(ctx context.Context, folderID, name string) (*Blob, error)

	// FolderName returns the display name of a folder
	FolderName(ctx context.Context, folderID string) (string, error)
}

// LocalStorage implements BlobStore on the local filesystem. Folders are
// subdirectories and links point at the dashboard's blob endpoint.
type LocalStorage struct {
	basePath string
	baseURL  string
}

// NewLocalStorage creates a new LocalStorage instance. baseURL is the public
// address of this server, used to build links.
func NewLocalStorage(basePath, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Upload writes a file under basePath/folderID
func (l *LocalStorage) Upload(ctx context.Context, data []byte, folderID, filename string) (*Blob, error) {
	id := path.Join(folderID, filename)
	fullPath, err := l.resolve(id)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, fmt.Errorf("creating folder: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return nil, fmt.Errorf("writing file: %w", err)
	}
	return l.blob(id), nil
}

// Download reads a file from local storage
func (l *LocalStorage) Download(ctx context.Context, id string) ([]byte, string, error) {
	fullPath, err := l.resolve(id)
	if err != nil {
		return nil, "", err
	}

	data, err := os.ReadFile(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("%w: %s", ErrBlobNotFound, id)
	}
	if err != nil {
		return nil, "", fmt.Errorf("reading file: %w", err)
	}
	return data, http.DetectContentType(data), nil
}

// Find checks for a file by name
func (l *LocalStorage) Find(ctx context.Context, folderID, name string) (*Blob, error) {
	id := path.Join(folderID, name)
	fullPath, err := l.resolve(id)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(fullPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, id)
		}
		return nil, fmt.Errorf("checking file: %w", err)
	}
	return l.blob(id), nil
}

// FolderName is the folder's directory name
func (l *LocalStorage) FolderName(ctx context.Context, folderID string) (string, error) {
	return folderID, nil
}

// resolve maps an id to a path, refusing ids that escape basePath
func (l *LocalStorage) resolve(id string) (string, error) {
	clean := path.Clean("/" + id)
	if clean == "/" {
		return "", fmt.Errorf("invalid blob id %q", id)
	}
	return filepath.Join(l.basePath, filepath.FromSlash(clean)), nil
}

func (l *LocalStorage) blob(id string) *Blob {
	return &Blob{
		ID:   id,
		Name: path.Base(id),
		URL:  l.baseURL + "/api/blobs/" + (&url.URL{Path: id}).EscapedPath(),
	}
}
