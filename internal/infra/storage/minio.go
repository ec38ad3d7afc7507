package storage

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
)

// Minio stores artifacts in one bucket and quarantined artifacts in a
// second one, so bucket policy can lock the quarantine down separately.
type Minio struct {
	client     *minio.Client
	bucket     string
	quarantine string
	region     string
}

// NewMinio buat koneksi MinIO dan pastikan kedua bucket ada.
func NewMinio(ctx context.Context, endpoint, region, bucket, quarantineBucket, accessKey, secretKey string, useSSL bool) (*Minio, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}
	for _, b := range []string{bucket, quarantineBucket} {
		exists, err := cli.BucketExists(ctx, b)
		if err != nil {
			return nil, err
		}
		if !exists {
			if err := cli.MakeBucket(ctx, b, minio.MakeBucketOptions{Region: region}); err != nil {
				return nil, err
			}
		}
	}
	return &Minio{client: cli, bucket: bucket, quarantine: quarantineBucket, region: region}, nil
}

// Put streams artifact bytes into the main bucket. size may be -1 when the
// caller does not know it up front.
func (s *Minio) Put(ctx context.Context, path string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.bucket, path, r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return err
}

// Stat reports size and existence. Objects are always "regular".
func (s *Minio) Stat(ctx context.Context, path string) (domain.ArtifactInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucket, path, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return domain.ArtifactInfo{}, domain.ErrArtifactNotFound
		}
		return domain.ArtifactInfo{}, err
	}
	return domain.ArtifactInfo{Size: info.Size, Regular: true}, nil
}

// ReadPrefix pulls at most maxBytes from the start of the object with a
// ranged GET, so a multi-gigabyte checkpoint never crosses the wire.
func (s *Minio) ReadPrefix(ctx context.Context, path string, maxBytes int64) ([]byte, error) {
	opts := minio.GetObjectOptions{}
	if maxBytes > 0 {
		if err := opts.SetRange(0, maxBytes-1); err != nil {
			return nil, err
		}
	}
	obj, err := s.client.GetObject(ctx, s.bucket, path, opts)
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, domain.ErrArtifactNotFound
		}
		return nil, err
	}
	return data, nil
}

// Isolate copies the object into the quarantine bucket (reason attached as
// object metadata) and removes the original, so nothing can fetch it from
// the serving bucket anymore.
func (s *Minio) Isolate(ctx context.Context, path string, reason string) error {
	src := minio.CopySrcOptions{Bucket: s.bucket, Object: path}
	dst := minio.CopyDestOptions{
		Bucket:          s.quarantine,
		Object:          path,
		UserMetadata:    map[string]string{"quarantine-reason": reason},
		ReplaceMetadata: true,
	}
	if _, err := s.client.CopyObject(ctx, dst, src); err != nil {
		if isNoSuchKey(err) {
			return domain.ErrArtifactNotFound
		}
		return err
	}
	return s.client.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{})
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
}
