// Package mirror asynchronously copies finished rendition artifacts to an
// S3-compatible bucket (R2). Mirroring is best effort and never on the
// serving path; local storage stays the source of truth.
package mirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	conf "github.com/SaschaGerspach/videoflix/internal/config"
	"github.com/SaschaGerspach/videoflix/internal/entities"
	"github.com/SaschaGerspach/videoflix/internal/hls"
)

var ErrQueueFull = errors.New("upload queue is full")

type uploadReq struct {
	ctx         context.Context
	key         string
	contentType string
	payload     []byte

	onSuccess func()
}

type Storage struct {
	AccountID          string
	Bucket             string
	Region             string // "auto" for R2
	AwsAccessKeyId     string
	AwsSecretAccessKey string

	Workers        int
	QueueSize      int
	MaxRetries     int
	RetryBaseDelay time.Duration

	mediaRoot string

	queue chan uploadReq
	wg    sync.WaitGroup

	S3Client *s3.Client
	Uploader *manager.Uploader
}

func NewStorage(cfg *conf.MirrorConfig, mediaRoot string) (*Storage, error) {
	s := &Storage{
		AccountID:          cfg.AccountID,
		Bucket:             cfg.BucketName,
		Region:             "auto",
		AwsAccessKeyId:     cfg.AccessKeyID,
		AwsSecretAccessKey: cfg.SecretKey,
		Workers:            8,
		QueueSize:          1000,
		MaxRetries:         3,
		RetryBaseDelay:     300 * time.Millisecond,
		mediaRoot:          mediaRoot,
	}
	if err := s.run(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Storage) run() error {
	cfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.AwsAccessKeyId, s.AwsSecretAccessKey, "",
		)),
		awsconfig.WithRegion(s.Region),
	)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	s.S3Client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", s.AccountID))
		o.UsePathStyle = true
	})
	s.Uploader = manager.NewUploader(s.S3Client)

	s.queue = make(chan uploadReq, s.QueueSize)
	for i := 0; i < s.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	log.Printf("[mirror] client + worker pool initialized (workers=%d)", s.Workers)
	return nil
}

// Close waits for all queued tasks to be processed.
func (s *Storage) Close() {
	close(s.queue)
	s.wg.Wait()
}

// UploadWithHook tries to put an upload on the queue without blocking.
// If the queue is full, it returns ErrQueueFull immediately.
func (s *Storage) UploadWithHook(ctx context.Context, key string, contentType string, payload []byte, onSuccess func()) error {
	req := uploadReq{ctx: ctx, key: key, contentType: contentType, payload: payload, onSuccess: onSuccess}
	select {
	case s.queue <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// MirrorRendition enqueues the manifest and every segment of a finished
// rendition. Keys mirror the on-disk layout relative to the media root.
func (s *Storage) MirrorRendition(ctx context.Context, videoID int64, res entities.Resolution) error {
	dir := hls.RenditionDir(s.mediaRoot, videoID, res)

	files := []string{hls.ManifestName}
	files = append(files, hls.ListSegments(s.mediaRoot, videoID, res)...)

	for _, name := range files {
		path := filepath.Join(dir, name)
		payload, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		contentType := hls.SegmentContentType
		if name == hls.ManifestName {
			contentType = hls.ManifestContentType
		}

		key, err := filepath.Rel(s.mediaRoot, path)
		if err != nil {
			return err
		}
		key = filepath.ToSlash(key)

		if err := s.UploadWithHook(ctx, key, contentType, payload, nil); err != nil {
			return fmt.Errorf("enqueue %s: %w", key, err)
		}
	}
	log.Printf("[mirror] enqueued rendition: video_id=%d, resolution=%s, files=%d", videoID, res, len(files))
	return nil
}

func (s *Storage) worker() {
	defer s.wg.Done()
	for req := range s.queue {
		var err error
		attempt := 0

		for {
			attempt++
			_, err = s.Uploader.Upload(req.ctx, &s3.PutObjectInput{
				Bucket:      aws.String(s.Bucket),
				Key:         aws.String(req.key),
				Body:        bytes.NewReader(req.payload),
				ContentType: aws.String(req.contentType),
			})
			if err == nil {
				if req.onSuccess != nil {
					req.onSuccess()
				}
				break
			}

			if attempt > s.MaxRetries {
				log.Printf("[mirror] upload failed after %d attempts: key=%s, error=%v", attempt, req.key, err)
				break
			}

			backoff := s.backoffDelay(attempt)
			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-req.ctx.Done():
				timer.Stop()
			}
			if req.ctx != nil && req.ctx.Err() != nil {
				break
			}
		}
	}
}

func (s *Storage) backoffDelay(attempt int) time.Duration {
	delay := s.RetryBaseDelay << (attempt - 1)
	jitter := time.Duration(int64(delay) / 10)
	return delay - (jitter / 2) + time.Duration(int64(jitter)*time.Now().UnixNano()%2)
}

// Download fetches a mirrored object, mostly used by recovery tooling.
func (s *Storage) Download(ctx context.Context, key string) ([]byte, string, error) {
	out, err := s.S3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to download %q: %w", key, err)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, "", fmt.Errorf("failed to read body for %q: %w", key, err)
	}

	return buf.Bytes(), aws.ToString(out.ContentType), nil
}
