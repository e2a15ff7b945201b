package hubsync

import (
	"context"
	"errors"
	"io"
	"os"

	"cloud.google.com/go/storage"

	"github.com/mmdatafocus/hubsync_backend/utils"
)

// ByteSource yields one document's bytes. The caller closes the reader as soon as the
// document has been sent.
type ByteSource interface {
	Open(ctx context.Context) (io.ReadCloser, int64, error)
}

type FileSource struct {
	Path string
}

func (s FileSource) Open(ctx context.Context) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

type GCSSource struct {
	Client *storage.Client
	Bucket string
	Object string
}

func (s GCSSource) Open(ctx context.Context) (io.ReadCloser, int64, error) {
	if s.Client == nil {
		return nil, 0, errors.New("gcs client is not configured")
	}
	r, err := s.Client.Bucket(s.Bucket).Object(s.Object).NewReader(ctx)
	if err != nil {
		return nil, 0, err
	}
	return r, r.Attrs.Size, nil
}

// SourceForURI resolves gs://bucket/object to a GCSSource and anything else to a local file.
func SourceForURI(gcs *storage.Client, uri string) (ByteSource, error) {
	if uri == "" {
		return nil, errors.New("document source uri is empty")
	}
	if !utils.IsGCSURI(uri) {
		return FileSource{Path: uri}, nil
	}
	bucket, object, err := utils.ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}
	return GCSSource{Client: gcs, Bucket: bucket, Object: object}, nil
}
