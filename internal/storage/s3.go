// Package storage issues presigned S3 upload URLs for source videos.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/oklog/ulid/v2"

	"github.com/aivideopro/aivideopro/internal/model"
)

// Upload errors.
var (
	ErrInvalidFilename    = errors.New("invalid filename")
	ErrInvalidContentType = errors.New("content type must be video/*")
	ErrInvalidSize        = errors.New("invalid upload size")
)

const maxFilenameLength = 128

// Config describes the bucket uploads land in.
type Config struct {
	Bucket        string
	Region        string
	Endpoint      string // S3-compatible endpoint; forces path-style addressing
	PublicBaseURL string // where uploaded objects are readable, defaults to the bucket URL
	URLTTL        time.Duration
	MaxBytes      int64
}

// Uploads presigns PUT requests into the upload bucket.
type Uploads struct {
	presign *s3.PresignClient
	cfg     Config
	now     func() time.Time
}

// New loads AWS credentials from the default chain and builds an Uploads.
func New(ctx context.Context, cfg Config) (*Uploads, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing S3 client.
func NewWithClient(client *s3.Client, cfg Config) *Uploads {
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = 15 * time.Minute
	}
	return &Uploads{
		presign: s3.NewPresignClient(client),
		cfg:     cfg,
		now:     time.Now,
	}
}

// CreateUpload validates req and presigns a PUT for it under the user's
// upload prefix.
func (u *Uploads) CreateUpload(ctx context.Context, userID string, req model.UploadRequest) (*model.UploadResponse, error) {
	filename, err := SanitizeFilename(req.Filename)
	if err != nil {
		return nil, err
	}

	contentType := strings.ToLower(strings.TrimSpace(req.ContentType))
	if !strings.HasPrefix(contentType, "video/") || len(contentType) == len("video/") {
		return nil, ErrInvalidContentType
	}
	if req.SizeBytes <= 0 || (u.cfg.MaxBytes > 0 && req.SizeBytes > u.cfg.MaxBytes) {
		return nil, fmt.Errorf("%w: must be between 1 and %d bytes", ErrInvalidSize, u.cfg.MaxBytes)
	}

	key := ObjectKey(userID, ulid.Make().String(), filename)

	signed, err := u.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(req.SizeBytes),
	}, s3.WithPresignExpires(u.cfg.URLTTL))
	if err != nil {
		return nil, fmt.Errorf("presign put: %w", err)
	}

	headers := make(map[string]string, len(signed.SignedHeader))
	for name, values := range signed.SignedHeader {
		if strings.EqualFold(name, "host") || len(values) == 0 {
			continue
		}
		headers[name] = values[0]
	}

	return &model.UploadResponse{
		UploadURL: signed.URL,
		Method:    signed.Method,
		Headers:   headers,
		ObjectKey: key,
		VideoURL:  u.PublicURL(key),
		ExpiresAt: u.now().Add(u.cfg.URLTTL).UTC(),
	}, nil
}

// PublicURL is where an uploaded object can be fetched by the backend.
func (u *Uploads) PublicURL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	switch {
	case u.cfg.PublicBaseURL != "":
		return strings.TrimSuffix(u.cfg.PublicBaseURL, "/") + "/" + escaped
	case u.cfg.Endpoint != "":
		return strings.TrimSuffix(u.cfg.Endpoint, "/") + "/" + u.cfg.Bucket + "/" + escaped
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.cfg.Bucket, u.cfg.Region, escaped)
	}
}

// ObjectKey lays uploads out as uploads/<user>/<id>/<filename>.
func ObjectKey(userID, id, filename string) string {
	return path.Join("uploads", userID, id, filename)
}

// SanitizeFilename keeps the base name and replaces anything outside
// [A-Za-z0-9._-] with '-'.
func SanitizeFilename(name string) (string, error) {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}

	out := strings.Trim(b.String(), ".-")
	if out == "" {
		return "", ErrInvalidFilename
	}
	if len(out) > maxFilenameLength {
		out = out[len(out)-maxFilenameLength:]
	}
	return out, nil
}
