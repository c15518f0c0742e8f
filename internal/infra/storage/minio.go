package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Comfie/ignaCheckApi-sub000/internal/domain/compliance"
)

// maxDocumentBytes caps how much of one object is read into memory.
const maxDocumentBytes = 4 << 20

// ErrDocumentTooLarge is returned for objects above maxDocumentBytes.
var ErrDocumentTooLarge = errors.New("document exceeds size limit")

// Store serves extracted project documents and archives batch reports.
//
// Layout:
//
//	documents/{project}/{name}.json   extracted DocumentExcerpt
//	documents/{project}/{name}.txt    plain text, id = name
//	reports/{project}/{framework}/{run}.json
type Store struct {
	client     *minio.Client
	bucketName string
	region     string
}

var (
	_ compliance.DocumentCorpus = (*Store)(nil)
	_ compliance.ReportStore    = (*Store)(nil)
)

// New connects to MinIO and makes sure the bucket exists.
func New(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string, useSSL bool) (*Store, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, err
		}
	}

	return &Store{client: cli, bucketName: bucket, region: region}, nil
}

// Check is used by the health endpoint.
func (s *Store) Check(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucketName)
	return err
}

// ListDocuments reads every supported object under the project prefix, in
// key order. Unsupported extensions are skipped.
func (s *Store) ListDocuments(ctx context.Context, projectID string) ([]compliance.DocumentExcerpt, error) {
	prefix := DocumentPrefix(projectID)
	var docs []compliance.DocumentExcerpt

	// stops the listing goroutine when we return before draining the channel
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for obj := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		if !Supported(obj.Key) {
			continue
		}
		data, err := s.read(ctx, obj.Key)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", obj.Key, err)
		}
		doc, err := DecodeDocument(obj.Key, obj.ContentType, data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *Store) read(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return readLimited(obj, maxDocumentBytes)
}

// readLimited reads r fully and fails instead of truncating past limit.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrDocumentTooLarge, limit)
	}
	return data, nil
}

// SaveReport uploads the BatchResult as JSON and returns its URL.
func (s *Store) SaveReport(ctx context.Context, runID string, res compliance.BatchResult) (string, error) {
	body, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	key := ReportKey(res.ProjectID, res.FrameworkID, runID)
	_, err = s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", err
	}

	// public URL when the bucket is public; private buckets need a presigned URL
	u := s.client.EndpointURL()
	return fmt.Sprintf("%s://%s/%s/%s", u.Scheme, u.Host, s.bucketName, key), nil
}

func DocumentPrefix(projectID string) string {
	return "documents/" + projectID + "/"
}

func ReportKey(projectID, frameworkID, runID string) string {
	return path.Join("reports", projectID, frameworkID, runID+".json")
}

// Supported reports whether key has a readable document extension.
func Supported(key string) bool {
	switch strings.ToLower(path.Ext(key)) {
	case ".json", ".txt", ".md":
		return true
	}
	return false
}

// DecodeDocument turns an object into an excerpt. JSON objects carry the full
// DocumentExcerpt; anything else is taken as plain text named after the key.
func DecodeDocument(key, contentType string, data []byte) (compliance.DocumentExcerpt, error) {
	base := path.Base(key)
	name := strings.TrimSuffix(base, path.Ext(base))

	if strings.EqualFold(path.Ext(key), ".json") {
		var doc compliance.DocumentExcerpt
		if err := json.Unmarshal(data, &doc); err != nil {
			return compliance.DocumentExcerpt{}, fmt.Errorf("decode %s: %w", key, err)
		}
		if doc.ID == "" {
			doc.ID = name
		}
		if doc.FileName == "" {
			doc.FileName = base
		}
		return doc, nil
	}

	if contentType == "" || contentType == "application/octet-stream" {
		contentType = "text/plain"
	}
	return compliance.DocumentExcerpt{
		ID:       name,
		FileName: base,
		MimeType: contentType,
		Content:  string(data),
	}, nil
}
