package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrUnsupportedAccess is returned for any access level other than public.
var ErrUnsupportedAccess = errors.New("only public access is supported")

// FilesystemStore writes blobs under a root directory and serves them from baseURL.
type FilesystemStore struct {
	root    string
	baseURL string
	suffix  func() string
}

var _ Store = (*FilesystemStore)(nil)

// NewFilesystemStore creates the root directory if needed.
// PRE: root is a writable path; baseURL is the public prefix the root is served under
// POST: Returns a store whose URLs are baseURL + "/" + pathname
func NewFilesystemStore(root, baseURL string) (*FilesystemStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &FilesystemStore{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		suffix:  func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:12] },
	}, nil
}

// Root returns the directory blobs are written to.
func (s *FilesystemStore) Root() string {
	return s.root
}

// Put writes content to disk.
// PRE: name is a non-empty file name
// POST: File is fully written before the Object is returned; partial files are removed on error
func (s *FilesystemStore) Put(ctx context.Context, name string, content io.Reader, opts PutOptions) (Object, error) {
	if opts.Access != "" && opts.Access != AccessPublic {
		return Object{}, ErrUnsupportedAccess
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}

	pathname := sanitizeName(name)
	if opts.AddRandomSuffix {
		ext := path.Ext(pathname)
		pathname = strings.TrimSuffix(pathname, ext) + "-" + s.suffix() + ext
	}

	dst := filepath.Join(s.root, pathname)
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return Object{}, fmt.Errorf("create blob %s: %w", pathname, err)
	}
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		os.Remove(dst)
		return Object{}, fmt.Errorf("write blob %s: %w", pathname, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return Object{}, fmt.Errorf("close blob %s: %w", pathname, err)
	}

	return Object{
		URL:      s.baseURL + "/" + url.PathEscape(pathname),
		Pathname: pathname,
	}, nil
}

// sanitizeName strips directories and characters that are unsafe in a URL path segment.
func sanitizeName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "file"
	}
	return out
}
