package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Cornelius-Cellier/capstone-llm/pkg/jobserrors"
)

// FileBucket stores objects as files below a root directory. Writes go to a
// temporary file that is renamed into place, so readers never see partial objects.
// Attributes are not persisted.
type FileBucket struct {
	root string
}

// NewFileBucket opens (and creates if needed) the directory root
func NewFileBucket(root string) (*FileBucket, error) {
	if root == "" {
		return nil, jobserrors.New(jobserrors.ErrorTypeInvalidArgument, "file bucket root is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, jobserrors.Wrap(err, jobserrors.ErrorTypeInvalidArgument, "invalid file bucket root").
			WithDetail("root", root)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, jobserrors.Wrap(err, jobserrors.ErrorTypeConfig, "failed to create file bucket root").
			WithDetail("root", abs)
	}
	return &FileBucket{root: abs}, nil
}

// Put writes body to root/key atomically
func (b *FileBucket) Put(ctx context.Context, key string, body []byte, _ Attributes) error {
	if err := ctx.Err(); err != nil {
		return jobserrors.Wrap(err, jobserrors.ErrorTypeSinkUnavailable, "put cancelled").WithDetail("key", key)
	}

	target, err := b.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return jobserrors.Wrap(err, jobserrors.ErrorTypeSinkUnavailable, "failed to create directory").
			WithDetail("key", key)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".put-*")
	if err != nil {
		return jobserrors.Wrap(err, jobserrors.ErrorTypeSinkUnavailable, "failed to create temp file").
			WithDetail("key", key)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return jobserrors.Wrap(err, jobserrors.ErrorTypeSinkUnavailable, "failed to write object").
			WithDetail("key", key)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return jobserrors.Wrap(err, jobserrors.ErrorTypeSinkUnavailable, "failed to close object").
			WithDetail("key", key)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return jobserrors.Wrap(err, jobserrors.ErrorTypeSinkUnavailable, "failed to publish object").
			WithDetail("key", key)
	}
	return nil
}

// Get reads root/key
func (b *FileBucket) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, jobserrors.Wrap(err, jobserrors.ErrorTypeSourceUnavailable, "get cancelled").WithDetail("key", key)
	}

	target, err := b.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target) //nolint:gosec // G304: confined to the bucket root by resolve
	if errors.Is(err, fs.ErrNotExist) {
		return nil, jobserrors.New(jobserrors.ErrorTypeNotFound, "object not found").WithDetail("key", key)
	}
	if err != nil {
		return nil, jobserrors.Wrap(err, jobserrors.ErrorTypeSourceUnavailable, "failed to read object").
			WithDetail("key", key)
	}
	return data, nil
}

// resolve maps key to a path and refuses keys escaping the root
func (b *FileBucket) resolve(key string) (string, error) {
	target := filepath.Join(b.root, filepath.FromSlash(key))
	if target != b.root && !strings.HasPrefix(target, b.root+string(filepath.Separator)) {
		return "", jobserrors.New(jobserrors.ErrorTypeInvalidArgument, "key escapes bucket root").
			WithDetail("key", key)
	}
	return target, nil
}

// Root returns the absolute root directory
func (b *FileBucket) Root() string {
	return b.root
}

// URL returns file://root
func (b *FileBucket) URL() string {
	return "file://" + filepath.ToSlash(b.root)
}

// Close is a no-op
func (b *FileBucket) Close() error {
	return nil
}
