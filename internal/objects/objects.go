// ABOUTME: Bucket-addressed object storage on the local filesystem with signed retrieval URLs
// ABOUTME: Signed URLs carry an HS256 token scoped to one object path and expiry

package objects

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Object storage errors
var (
	ErrInvalidPath      = errors.New("invalid object path")
	ErrNotFound         = errors.New("object not found")
	ErrInvalidSignature = errors.New("invalid or expired signature")
)

// Store is the object storage contract the upload pipeline needs.
type Store interface {
	Upload(ctx context.Context, objectPath string, data []byte, contentType string) error
	CreateSignedURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error)
}

// FSStore keeps one bucket of objects under a root directory. The content
// type of each object is kept in a sidecar file next to it.
type FSStore struct {
	root    string
	bucket  string
	baseURL string
	secret  []byte
	logger  *slog.Logger
}

// Options configures an FSStore.
type Options struct {
	Root    string // directory holding all buckets
	Bucket  string
	BaseURL string // public origin that serves GET /objects/{bucket}/{path}
	Secret  []byte // HMAC key for signed URLs
	Logger  *slog.Logger
}

// NewFSStore creates the bucket directory if needed.
func NewFSStore(opts Options) (*FSStore, error) {
	if opts.Bucket == "" || strings.ContainsAny(opts.Bucket, `/\`) {
		return nil, fmt.Errorf("invalid bucket name %q", opts.Bucket)
	}
	if len(opts.Secret) == 0 {
		return nil, errors.New("signing secret is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Join(opts.Root, opts.Bucket)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating bucket directory: %w", err)
	}

	return &FSStore{
		root:    opts.Root,
		bucket:  opts.Bucket,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		secret:  opts.Secret,
		logger:  logger.With("component", "objects", "bucket", opts.Bucket),
	}, nil
}

// Bucket returns the bucket name.
func (s *FSStore) Bucket() string {
	return s.bucket
}

// Upload writes data at objectPath, replacing any existing object.
func (s *FSStore) Upload(ctx context.Context, objectPath string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	file, err := s.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return fmt.Errorf("creating object directory: %w", err)
	}
	if err := writeAtomic(file, data); err != nil {
		return fmt.Errorf("writing object: %w", err)
	}
	if err := writeAtomic(file+contentTypeSuffix, []byte(contentType)); err != nil {
		return fmt.Errorf("writing object metadata: %w", err)
	}

	s.logger.Debug("uploaded object", "path", objectPath, "bytes", len(data), "content_type", contentType)
	return nil
}

// CreateSignedURL returns a URL granting read access to objectPath for ttl.
// The object must exist.
func (s *FSStore) CreateSignedURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	file, err := s.resolve(objectPath)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(file); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, objectPath)
		}
		return "", fmt.Errorf("checking object: %w", err)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": objectPath,
		"aud": Audience,
		"bkt": s.bucket,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing url: %w", err)
	}

	u := fmt.Sprintf("%s/objects/%s/%s?token=%s", s.baseURL, s.bucket, escapePath(objectPath), url.QueryEscape(token))
	return u, nil
}

// Open verifies token against objectPath and opens the object for reading.
func (s *FSStore) Open(objectPath, token string) (io.ReadCloser, string, error) {
	if err := s.verify(objectPath, token); err != nil {
		return nil, "", err
	}
	file, err := s.resolve(objectPath)
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("%w: %s", ErrNotFound, objectPath)
		}
		return nil, "", fmt.Errorf("opening object: %w", err)
	}

	contentType := "application/octet-stream"
	if ct, err := os.ReadFile(file + contentTypeSuffix); err == nil && len(ct) > 0 {
		contentType = string(ct)
	}
	return f, contentType, nil
}

func (s *FSStore) verify(objectPath, token string) error {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return ErrInvalidSignature
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return ErrInvalidSignature
	}
	if sub, _ := claims["sub"].(string); sub != objectPath {
		return ErrInvalidSignature
	}
	if bkt, _ := claims["bkt"].(string); bkt != s.bucket {
		return ErrInvalidSignature
	}
	return nil
}

const contentTypeSuffix = ".content-type"

// Audience is the "aud" claim of signed object URL tokens.
const Audience = "coven-sync/object"

// resolve maps an object path to a file inside the bucket, rejecting
// anything that could escape it.
func (s *FSStore) resolve(objectPath string) (string, error) {
	if objectPath == "" || strings.HasPrefix(objectPath, "/") || strings.Contains(objectPath, `\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, objectPath)
	}
	clean := path.Clean(objectPath)
	if clean != objectPath || clean == "." || strings.HasPrefix(clean, "../") || clean == ".." ||
		strings.HasSuffix(clean, contentTypeSuffix) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, objectPath)
	}
	return filepath.Join(s.root, s.bucket, filepath.FromSlash(clean)), nil
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func writeAtomic(file string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(file), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), file)
}

var _ Store = (*FSStore)(nil)
