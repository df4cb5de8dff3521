// Package source opens mzML input streams from local files, stdin or S3
package source

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrInvalidURI means an s3:// URI lacks the bucket or the key
var ErrInvalidURI = errors.New("source: invalid s3 URI")

// S3Config holds the parameters of the S3 client.
//
// Environment variables:
//
//	MZHEAT_S3_REGION=<region> (default us-east-1)
//	MZHEAT_S3_ENDPOINT=<url> (optional, for MinIO and other S3 compatible stores)
//	MZHEAT_S3_PATH_STYLE=true|false (default false)
//	AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)
type S3Config struct {
	Region    string
	Endpoint  string
	PathStyle bool
	// Credentials and HTTPClient override the defaults, mostly for tests
	Credentials aws.CredentialsProvider
	HTTPClient  *http.Client
}

// S3ConfigFromEnv reads the S3 configuration from the process environment
func S3ConfigFromEnv() S3Config {
	return S3Config{
		Region:    os.Getenv("MZHEAT_S3_REGION"),
		Endpoint:  os.Getenv("MZHEAT_S3_ENDPOINT"),
		PathStyle: strings.EqualFold(os.Getenv("MZHEAT_S3_PATH_STYLE"), "true"),
	}
}

// NewS3Client creates an S3 client using the default credential chain
// unless cfg provides credentials
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.Credentials != nil {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(cfg.Credentials))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.HTTPClient != nil {
			o.HTTPClient = cfg.HTTPClient
		}
	}), nil
}

// Opener opens input URIs. The S3 client is created from the environment
// on first use when S3 is nil.
type Opener struct {
	S3 *s3.Client
}

// Open opens uri with a default Opener
func Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	var o Opener
	return o.Open(ctx, uri)
}

// Open returns the content of a local path, of stdin for "-", or of an
// s3://bucket/key object. Names ending in .gz are decompressed.
func (o *Opener) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	var rc io.ReadCloser
	switch {
	case uri == "-":
		rc = io.NopCloser(os.Stdin)
	case strings.HasPrefix(uri, "s3://"):
		bucket, key, err := ParseS3URI(uri)
		if err != nil {
			return nil, err
		}
		if o.S3 == nil {
			if o.S3, err = NewS3Client(ctx, S3ConfigFromEnv()); err != nil {
				return nil, err
			}
		}
		out, err := o.S3.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", uri, err)
		}
		rc = out.Body
	default:
		f, err := os.Open(uri)
		if err != nil {
			return nil, err
		}
		rc = f
	}
	if !strings.HasSuffix(strings.ToLower(uri), ".gz") {
		return rc, nil
	}
	z, err := gzip.NewReader(rc)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("%s: %w", uri, err)
	}
	return &gzipReadCloser{Reader: z, under: rc}, nil
}

type gzipReadCloser struct {
	*gzip.Reader
	under io.Closer
}

func (g *gzipReadCloser) Close() error {
	err := g.Reader.Close()
	if cerr := g.under.Close(); err == nil {
		err = cerr
	}
	return err
}

// ParseS3URI splits s3://bucket/key
func ParseS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%w %q", ErrInvalidURI, uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w %q", ErrInvalidURI, uri)
	}
	return bucket, key, nil
}

// FileKey returns the catalog key of an input: its base name without
// .gz and .mzML extensions
func FileKey(uri string) string {
	if uri == "-" {
		return "stdin"
	}
	var name string
	if strings.HasPrefix(uri, "s3://") {
		name = path.Base(uri)
	} else {
		name = filepath.Base(uri)
	}
	for _, ext := range []string{".gz", ".mzml"} {
		if strings.HasSuffix(strings.ToLower(name), ext) {
			name = name[:len(name)-len(ext)]
		}
	}
	return name
}
