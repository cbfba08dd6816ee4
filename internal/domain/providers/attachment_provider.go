package providers

import (
	"context"
	"io"
)

// AttachmentProvider stores documents uploaded for an insurance record
type AttachmentProvider interface {
	// Folder returns the folder holding a record's attachments
	Folder(recordID int64) string

	// List returns the attachment names in folder, sorted
	List(ctx context.Context, folder string) ([]string, error)

	// Store saves r under a random name keeping the extension of filename
	// and returns the stored name. Existing files are never overwritten.
	Store(ctx context.Context, folder, filename string, r io.Reader) (string, error)

	// Remove deletes one attachment
	Remove(ctx context.Context, folder, name string) error
}
