package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/Yulya9904/cars-insurance/internal/domain/providers"
	apperrors "github.com/Yulya9904/cars-insurance/pkg/errors"
)

// LocalProvider keeps attachments on the local filesystem under a root dir
type LocalProvider struct {
	root string
}

// NewLocalProvider creates the root directory if needed
func NewLocalProvider(root string) (*LocalProvider, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create attachment root %s: %w", root, err)
	}
	return &LocalProvider{root: root}, nil
}

var _ providers.AttachmentProvider = (*LocalProvider)(nil)

// Folder returns the folder holding a record's attachments
func (p *LocalProvider) Folder(recordID int64) string {
	return recordFolder(recordID)
}

// List returns the attachment names in folder, empty when it does not exist
func (p *LocalProvider) List(_ context.Context, folder string) ([]string, error) {
	entries, err := os.ReadDir(p.dir(folder))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments in %s: %w", folder, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Store writes r to a new uniquely named file
func (p *LocalProvider) Store(ctx context.Context, folder, filename string, r io.Reader) (string, error) {
	dir := p.dir(folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create folder %s: %w", folder, err)
	}

	name := randomName(filename)
	target := filepath.Join(dir, name)
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create attachment %s: %w", name, err)
	}

	if _, err := io.Copy(f, contextReader{ctx: ctx, r: r}); err != nil {
		_ = f.Close()
		_ = os.Remove(target)
		return "", fmt.Errorf("failed to write attachment %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(target)
		return "", fmt.Errorf("failed to close attachment %s: %w", name, err)
	}
	return name, nil
}

// Remove deletes one attachment
func (p *LocalProvider) Remove(_ context.Context, folder, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(p.dir(folder), name))
	if errors.Is(err, fs.ErrNotExist) {
		return apperrors.NewNotFoundError(fmt.Sprintf("attachment %s not found", name))
	}
	if err != nil {
		return fmt.Errorf("failed to remove attachment %s: %w", name, err)
	}
	return nil
}

func (p *LocalProvider) dir(folder string) string {
	return filepath.Join(p.root, filepath.FromSlash(folder))
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(b []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(b)
}
