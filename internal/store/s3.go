package store

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/vidown/internal/utils"
)

type s3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type s3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store uploads finished files to a bucket. The multipart uploader aborts
// incomplete uploads itself, so a failed Save leaves no object behind.
type S3Store struct {
	Bucket   string
	Prefix   string
	client   s3API
	uploader s3Uploader
}

func NewS3Store(ctx context.Context, profile, bucket, prefix string) (*S3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 store requires a bucket")
	}
	opts := []func(*config.LoadOptions) error{config.WithRetryMode("adaptive")}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %v", err)
	}
	client := s3.NewFromConfig(cfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 16 * 1024 * 1024
		u.Concurrency = 4
	})
	return &S3Store{Bucket: bucket, Prefix: strings.Trim(prefix, "/"), client: client, uploader: uploader}, nil
}

func (s *S3Store) keyFor(item Item, index int) string {
	folder := "music"
	if item.IsVideo {
		folder = "videos"
	}
	if item.DestinationHint != "" {
		folder = strings.Trim(filepath.ToSlash(item.DestinationHint), "/")
	}
	ext := filepath.Ext(item.TempPath)
	name := utils.SanitizeFilename(item.Title)
	if index > 0 {
		name = fmt.Sprintf("%s-(%d)", name, index)
	}
	return path.Join(s.Prefix, folder, name+ext)
}

// freeKey returns the first key that does not exist yet.
func (s *S3Store) freeKey(ctx context.Context, item Item) string {
	for i := 0; i < 100; i++ {
		key := s.keyFor(item, i)
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.Bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return key
		}
	}
	return s.keyFor(item, 100)
}

func (s *S3Store) Save(ctx context.Context, item Item) (string, error) {
	f, err := os.Open(item.TempPath)
	if err != nil {
		return "", fmt.Errorf("error opening temp file: %w", err)
	}
	defer f.Close()

	key := s.freeKey(ctx, item)
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
		Body:   f,
	}
	if item.MimeType != "" {
		input.ContentType = aws.String(item.MimeType)
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		log.Error().Str("op", "store/s3").Err(err).Str("key", key).Msg("upload failed")
		return "", fmt.Errorf("error uploading to s3: %w", err)
	}
	location := fmt.Sprintf("s3://%s/%s", s.Bucket, key)
	log.Debug().Str("op", "store/s3").Str("location", location).Msg("uploaded")
	return location, nil
}

func (s *S3Store) Delete(ctx context.Context, location string) bool {
	bucket, key, err := parseS3Location(location)
	if err != nil {
		log.Debug().Str("op", "store/s3").Err(err).Msg("delete skipped")
		return false
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		log.Error().Str("op", "store/s3").Err(err).Str("location", location).Msg("delete failed")
		return false
	}
	return true
}

func parseS3Location(location string) (string, string, error) {
	rest, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 location: %s", location)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 location: %s", location)
	}
	return bucket, key, nil
}
