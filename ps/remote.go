// Remote file I/O for seeding and exporting tenant databases.
package ps

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
)

var ErrUnsupportedScheme = errors.New("unsupported URL scheme")

// TenantPlaceholder is replaced by the tenant name in seed URLs.
const TenantPlaceholder = "{tenant}"

// S3Config contains S3 authentication configuration.
type S3Config struct {
	Region    string
	Endpoint  string // Optional: custom S3-compatible endpoint
	AccessKey string
	SecretKey string
}

type urlScheme string

const (
	schemeFile  urlScheme = "file"
	schemeS3    urlScheme = "s3"
	schemeHTTP  urlScheme = "http"
	schemeHTTPS urlScheme = "https"
	schemeLocal urlScheme = "local" // no scheme, local path
)

func detectScheme(path string) urlScheme {
	lowerPath := strings.ToLower(path)
	switch {
	case strings.HasPrefix(lowerPath, "s3://"):
		return schemeS3
	case strings.HasPrefix(lowerPath, "https://"):
		return schemeHTTPS
	case strings.HasPrefix(lowerPath, "http://"):
		return schemeHTTP
	case strings.HasPrefix(lowerPath, "file://"):
		return schemeFile
	case strings.Contains(path, "://"):
		return ""
	default:
		return schemeLocal
	}
}

// Seeder copies a template database into place before a tenant's first
// attach.
type Seeder struct {
	// URL is an s3://, http(s)://, file:// URL or a local path. Every
	// occurrence of {tenant} is replaced by the tenant name.
	URL        string
	S3         *S3Config
	HTTPClient *http.Client
}

// Source returns the seed location of a tenant.
func (s *Seeder) Source(tenant string) string {
	return strings.ReplaceAll(s.URL, TenantPlaceholder, tenant)
}

// Seed writes the tenant's seed to dest. The file appears atomically.
func (s *Seeder) Seed(ctx context.Context, tenant, dest string) error {
	src := s.Source(tenant)
	r, err := s.open(ctx, src)
	if err != nil {
		return errors.Wrapf(err, "seed %s from %s", tenant, src)
	}
	defer r.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errors.Wrap(err, "create databases directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".seed-*")
	if err != nil {
		return errors.Wrap(err, "create seed file")
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "seed %s from %s", tenant, src)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close seed file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), dest), "install seed file")
}

func (s *Seeder) open(ctx context.Context, path string) (io.ReadCloser, error) {
	switch detectScheme(path) {
	case schemeLocal:
		return os.Open(path)
	case schemeFile:
		return os.Open(strings.TrimPrefix(path, "file://"))
	case schemeHTTP, schemeHTTPS:
		return openHTTPReader(ctx, s.HTTPClient, path)
	case schemeS3:
		return openS3Reader(ctx, path, s.S3)
	default:
		return nil, errors.Wrap(ErrUnsupportedScheme, path)
	}
}

func openHTTPReader(ctx context.Context, client *http.Client, url string) (io.ReadCloser, error) {
	if client == nil {
		client = &http.Client{
			Timeout: 5 * time.Minute, // generous timeout for large files
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build HTTP request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "HTTP request failed")
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errors.Errorf("HTTP request returned status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// parseS3URL parses s3://bucket/key into bucket and key parts
func parseS3URL(url string) (bucket, key string, err error) {
	path := strings.TrimPrefix(url, "s3://")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.Errorf("invalid S3 URL: %s", url)
	}
	return parts[0], parts[1], nil
}

func newS3Client(ctx context.Context, cfg *S3Config) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error

	if cfg != nil && cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg != nil && cfg.AccessKey != "" && cfg.SecretKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		opts = append(opts, config.WithCredentialsProvider(creds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	var clientOpts []func(*s3.Options)
	if cfg != nil && cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // For S3-compatible services
		})
	}
	return s3.NewFromConfig(awsCfg, clientOpts...), nil
}

func openS3Reader(ctx context.Context, url string, cfg *S3Config) (io.ReadCloser, error) {
	bucket, key, err := parseS3URL(url)
	if err != nil {
		return nil, err
	}
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}

	resp, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get S3 object")
	}
	return resp.Body, nil
}

// copyOut writes the file at src to an s3:// URL, a file:// URL or a local
// path.
func copyOut(ctx context.Context, src, dst string, cfg *S3Config) error {
	f, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "open tenant file")
	}
	defer f.Close()

	switch detectScheme(dst) {
	case schemeLocal, schemeFile:
		path := strings.TrimPrefix(dst, "file://")
		out, err := os.Create(path)
		if err != nil {
			return errors.Wrap(err, "create export file")
		}
		if _, err := io.Copy(out, f); err != nil {
			out.Close()
			return errors.Wrap(err, "write export file")
		}
		return errors.Wrap(out.Close(), "close export file")

	case schemeS3:
		bucket, key, err := parseS3URL(dst)
		if err != nil {
			return err
		}
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return err
		}
		_, err = client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Body:   f,
		})
		return errors.Wrap(err, "failed to upload to S3")

	case schemeHTTP, schemeHTTPS:
		return errors.Wrap(ErrUnsupportedScheme, "HTTP/HTTPS does not support writing")

	default:
		return errors.Wrap(ErrUnsupportedScheme, dst)
	}
}
