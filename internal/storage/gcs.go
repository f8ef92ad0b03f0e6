package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	gcs "cloud.google.com/go/storage"
)

// GCSStager keeps short-lived private objects in a bucket, under Prefix.
// Speech long-running recognition reads them by gs:// URI.
type GCSStager struct {
	client *gcs.Client
	bucket string
	Prefix string
}

func NewGCSStager(ctx context.Context, bucket, prefix string) (*GCSStager, error) {
	c, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GCSStager{client: c, bucket: bucket, Prefix: prefix}, nil
}

func (s *GCSStager) Close() error { return s.client.Close() }

func (s *GCSStager) object(name string) *gcs.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(path.Join(s.Prefix, name))
}

// Upload writes the object and returns its gs:// URI.
func (s *GCSStager) Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (string, error) {
	obj := s.object(objectName)

	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{"staged-by": "madprep"}
	// audio clips are small; one request per upload
	w.ChunkSize = 0

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("stage %s: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("stage %s: %w", objectName, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, obj.ObjectName()), nil
}

// Delete is a no-op for objects that are already gone.
func (s *GCSStager) Delete(ctx context.Context, objectName string) error {
	err := s.object(objectName).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil
	}
	return err
}
