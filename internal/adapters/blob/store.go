package blob

import (
	"context"
	"io"
)

// Access levels accepted by Put.
const (
	AccessPublic = "public"
)

// PutOptions controls how an object is stored.
type PutOptions struct {
	Access          string
	AddRandomSuffix bool // append a random token to the basename so uploads never collide
	ContentType     string
}

// Object describes a stored blob.
type Object struct {
	URL      string
	Pathname string
}

// Store persists uploaded files and hands back their public location.
type Store interface {
	Put(ctx context.Context, name string, content io.Reader, opts PutOptions) (Object, error)
}
