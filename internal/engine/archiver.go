package engine

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"

	"github.com/linux/projects/logstore/internal/record"
)

// ArchiveConfig configures the optional segment archiver. A zero-value
// ArchiveConfig (empty Bucket) disables archiving entirely.
type ArchiveConfig struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
}

// archiver uploads sealed, zstd-compressed byte ranges of the WAL file to
// S3-compatible storage after each commit. It is best-effort and entirely
// cosmetic to durability: the WAL file itself remains the source of truth,
// and archiving never blocks or fails an Append.
type archiver struct {
	client  *s3.Client
	bucket  string
	prefix  string
	enabled bool

	encoder *zstd.Encoder

	mu  sync.Mutex
	ctx context.Context
}

func newArchiver(cfg ArchiveConfig) (*archiver, error) {
	if cfg.Bucket == "" {
		return &archiver{enabled: false}, nil
	}

	ctx := context.Background()

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %v", ErrIO, err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("%w: new zstd encoder: %v", ErrIO, err)
	}

	return &archiver{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		enabled: true,
		encoder: encoder,
		ctx:     ctx,
	}, nil
}

// archiveRange reads walPath[from:to), compresses it, and uploads it under a
// key derived from the LSN range it covers. Failures are logged, not
// returned: archiving must never be load-bearing for the engine's own
// durability guarantee.
func (a *archiver) archiveRange(walPath string, from, to int64, fromLSN, toLSN record.LSN) {
	if !a.enabled {
		return
	}

	go func() {
		f, err := os.Open(walPath)
		if err != nil {
			log.Printf("archiver: open %s: %v", walPath, err)
			return
		}
		defer f.Close()

		buf := make([]byte, to-from)
		if _, err := f.ReadAt(buf, from); err != nil {
			log.Printf("archiver: read range [%d,%d): %v", from, to, err)
			return
		}

		a.mu.Lock()
		compressed := a.encoder.EncodeAll(buf, nil)
		a.mu.Unlock()

		key := a.segmentKey(fromLSN, toLSN)
		_, err = a.client.PutObject(a.ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(compressed),
			ContentType: aws.String("application/octet-stream"),
			Metadata: map[string]string{
				"from_lsn": fmt.Sprintf("%d", fromLSN),
				"to_lsn":   fmt.Sprintf("%d", toLSN),
			},
		})
		if err != nil {
			log.Printf("archiver: put %s/%s: %v", a.bucket, key, err)
			return
		}
		log.Printf("archiver: segment [lsn %d, %d] archived to %s/%s (%d -> %d bytes)",
			fromLSN, toLSN, a.bucket, key, len(buf), len(compressed))
	}()
}

func (a *archiver) segmentKey(fromLSN, toLSN record.LSN) string {
	name := fmt.Sprintf("segment_%020d_%020d.zst", fromLSN, toLSN)
	if a.prefix != "" {
		return filepath.Join(a.prefix, name)
	}
	return name
}

func (a *archiver) close() {
	if a.encoder != nil {
		a.encoder.Close()
	}
}
