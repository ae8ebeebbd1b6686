// Package poolreport archives test-pool reports to S3 or a local directory.
package poolreport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aastar/faucet/internal/cryptoutil"
	"github.com/aastar/faucet/internal/faucet"
	"github.com/aastar/faucet/internal/pathutil"
	"github.com/aastar/faucet/internal/xerrors"
)

// S3API is the subset of the S3 client used to upload reports.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// objectName is "<yyyy>/<mm>/<dd>/<runId>.json" so listings sort by day.
func objectName(r *faucet.PoolReport) string {
	ts := r.Timestamp.UTC()
	return fmt.Sprintf("%04d/%02d/%02d/%s.json", ts.Year(), ts.Month(), ts.Day(), r.RunID)
}

func encode(r *faucet.PoolReport) ([]byte, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, xerrors.Wrap(err, "encode pool report")
	}
	return append(b, '\n'), nil
}

// S3Sink uploads each report as a JSON object under Prefix.
type S3Sink struct {
	client S3API
	bucket string
	prefix string
}

func NewS3Sink(client S3API, bucket, prefix string) (*S3Sink, error) {
	if client == nil {
		return nil, xerrors.New("s3 client is required")
	}
	if bucket == "" {
		return nil, xerrors.New("s3 bucket is required")
	}
	prefix, err := pathutil.CleanPrefix(prefix)
	if err != nil {
		return nil, xerrors.Wrap(err, "s3 report prefix")
	}
	return &S3Sink{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *S3Sink) key(r *faucet.PoolReport) string {
	if s.prefix == "" {
		return objectName(r)
	}
	return path.Join(s.prefix, objectName(r))
}

// Store implements faucet.ReportSink.
func (s *S3Sink) Store(ctx context.Context, r *faucet.PoolReport) (string, error) {
	body, err := encode(r)
	if err != nil {
		return "", err
	}
	key := s.key(r)
	// S3 rejects the upload if the body does not match ChecksumSHA256
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:         aws.String(s.bucket),
		Key:            aws.String(key),
		Body:           bytes.NewReader(body),
		ContentType:    aws.String("application/json"),
		ChecksumSHA256: aws.String(cryptoutil.SHA256Base64(body)),
		Metadata:       map[string]string{"run-id": r.RunID, "sha256": cryptoutil.SHA256Hex(body)},
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "put s3://%s/%s", s.bucket, key)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// DirSink writes each report under a local directory.
type DirSink struct {
	dir string
}

func NewDirSink(dir string) *DirSink { return &DirSink{dir: dir} }

// Store implements faucet.ReportSink. Files are written 0600; they contain
// test-account keys.
func (d *DirSink) Store(_ context.Context, r *faucet.PoolReport) (string, error) {
	body, err := encode(r)
	if err != nil {
		return "", err
	}
	p := filepath.Join(d.dir, filepath.FromSlash(objectName(r)))
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return "", xerrors.Wrapf(err, "create report dir for %s", p)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, body, 0o600); err != nil {
		return "", xerrors.Wrapf(err, "write %s", tmp)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return "", xerrors.Wrapf(err, "rename %s", tmp)
	}
	return p, nil
}

// Multi stores to every sink and returns the first location. Later sinks
// still run when an earlier one fails.
type Multi []faucet.ReportSink

func (m Multi) Store(ctx context.Context, r *faucet.PoolReport) (string, error) {
	var first string
	var errs []error
	for _, s := range m {
		loc, err := s.Store(ctx, r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if first == "" {
			first = loc
		}
	}
	if len(errs) > 0 && first == "" {
		return "", xerrors.Wrap(errors.Join(errs...), "store pool report")
	}
	return first, nil
}
