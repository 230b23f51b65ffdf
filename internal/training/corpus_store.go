package training

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/bookline-ai-platform/pkg/logging"
)

// S3API is the subset of the S3 client used by CorpusStore.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// CorpusManifest describes one uploaded corpus version.
type CorpusManifest struct {
	ModelVersion string    `json:"modelVersion"`
	S3Key        string    `json:"s3Key"`
	ExampleCount int       `json:"exampleCount"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// CorpusStore archives training corpora in S3, one immutable object per
// model version plus a JSONL manifest listing every upload.
type CorpusStore struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
}

// NewCorpusStore creates a corpus store. With an empty bucket all
// operations are no-ops so single-node deployments can run without S3.
func NewCorpusStore(s3Client S3API, bucket string, logger *logging.Logger) *CorpusStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &CorpusStore{bucket: bucket, s3Client: s3Client, logger: logger}
}

func (s *CorpusStore) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// Upload writes the corpus for a model version and appends to the
// manifest. Returns the S3 key of the stored corpus.
func (s *CorpusStore) Upload(ctx context.Context, modelVersion string, corpus []byte, exampleCount int) (string, error) {
	if !s.Enabled() {
		return "", nil
	}

	key := fmt.Sprintf("corpora/%s/training_data.json", modelVersion)
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(corpus),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("training: s3 put %s: %w", key, err)
	}

	s.logger.Info("uploaded training corpus",
		"model_version", modelVersion,
		"s3_key", key,
		"examples", exampleCount,
	)

	entry := CorpusManifest{
		ModelVersion: modelVersion,
		S3Key:        key,
		ExampleCount: exampleCount,
		UploadedAt:   time.Now().UTC(),
	}
	if err := s.appendManifest(ctx, entry); err != nil {
		// The corpus itself is already stored.
		s.logger.Warn("failed to append corpus manifest", "error", err, "model_version", modelVersion)
	}
	return key, nil
}

// Fetch retrieves a previously uploaded corpus.
func (s *CorpusStore) Fetch(ctx context.Context, modelVersion string) ([]byte, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("training: corpus store disabled")
	}
	key := fmt.Sprintf("corpora/%s/training_data.json", modelVersion)
	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("training: s3 get %s: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("training: read corpus body: %w", err)
	}
	return data, nil
}

// appendManifest appends a JSONL line to the manifest file. S3 has no
// append, so this is read-modify-write; uploads are rare enough that the
// race window does not matter.
func (s *CorpusStore) appendManifest(ctx context.Context, entry CorpusManifest) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("training: marshal manifest entry: %w", err)
	}

	const manifestKey = "corpora/manifest.jsonl"
	var existing []byte
	getResp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(manifestKey),
	})
	if err == nil {
		existing, err = io.ReadAll(getResp.Body)
		getResp.Body.Close()
		if err != nil {
			return fmt.Errorf("training: read manifest: %w", err)
		}
	}

	var buf bytes.Buffer
	buf.Write(existing)
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(manifestKey),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("training: s3 put manifest: %w", err)
	}
	return nil
}
