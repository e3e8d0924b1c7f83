// Package objectstore gives the download, audio-upload, and clip-upload
// stages a uniform way to read and write gs:// and s3:// targets, on top
// of the driver abstraction that already understands both schemes.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/cenkalti/backoff/v4"
	pipelineerrors "github.com/videomoments/pipeline/errors"
	"github.com/videomoments/pipeline/log"
	"github.com/videomoments/pipeline/metrics"
	"github.com/videomoments/pipeline/progress"
	"github.com/livepeer/go-tools/drivers"
)

// PresignDuration is the lifetime of a signed URL handed off between
// stages (e.g. the audio_signed_url the transcript stage reads).
const PresignDuration = time.Hour

var maxRetryInterval = 5 * time.Second

// ProgressFunc is called after every chunk transferred, with the
// cumulative byte count so far. total is 0 when unknown.
type ProgressFunc func(transferred, total uint64)

// Store wraps driver-backed object storage with progress callbacks and
// pipeline error classification.
type Store struct{}

func New() *Store { return &Store{} }

// Download streams osURL's contents to w in chunks of up to 1 MiB,
// invoking onProgress after every chunk. total is always 0: no content
// length is taken from the driver.
func (s *Store) Download(ctx context.Context, osURL string, w io.Writer, onProgress ProgressFunc) error {
	driver, err := drivers.ParseOSURL(osURL, true)
	if err != nil {
		return pipelineerrors.Unretriable(pipelineerrors.New(pipelineerrors.ValidationFailed, fmt.Sprintf("failed to parse object store URL %q", log.RedactURL(osURL)), err))
	}

	start := time.Now()
	sess := driver.NewSession("")
	var host string
	if info := sess.GetInfo(); info != nil && info.S3Info != nil {
		host = info.S3Info.Host
	}

	reader, err := sess.ReadData(ctx, "")
	if err != nil {
		metrics.Metrics.ObjectStoreClient.FailureCount.WithLabelValues(host, "read").Inc()
		if errors.Is(err, drivers.ErrNotExist) {
			return pipelineerrors.New(pipelineerrors.ResourceNotFound, fmt.Sprintf("%q not found in object store", log.RedactURL(osURL)), err)
		}
		return pipelineerrors.New(pipelineerrors.RemoteServiceError, fmt.Sprintf("failed to read object store URL %q", log.RedactURL(osURL)), err)
	}
	defer reader.Body.Close()

	// The driver interface does not expose a reliable content-length
	// across backends, so total transfer size is reported as unknown
	// (0) and only the running count is meaningful here.
	counter := progress.NewCountingReader(reader.Body)
	for {
		n, err := io.CopyN(w, counter, 1<<20)
		if n > 0 && onProgress != nil {
			onProgress(counter.Count(), 0)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return pipelineerrors.New(pipelineerrors.RemoteServiceError, fmt.Sprintf("failed reading body from %q", log.RedactURL(osURL)), err)
		}
	}

	metrics.Metrics.ObjectStoreClient.RequestDuration.WithLabelValues(host).Observe(time.Since(start).Seconds())
	return nil
}

// Upload writes data to osURL under filename, retrying with exponential
// backoff on transient failures.
func (s *Store) Upload(ctx context.Context, osURL, filename string, data io.Reader, timeout time.Duration) error {
	driver, err := drivers.ParseOSURL(osURL, true)
	if err != nil {
		return pipelineerrors.Unretriable(pipelineerrors.New(pipelineerrors.ValidationFailed, fmt.Sprintf("failed to parse object store URL %q", log.RedactURL(osURL)), err))
	}

	start := time.Now()
	sess := driver.NewSession("")
	var host string
	if info := sess.GetInfo(); info != nil && info.S3Info != nil {
		host = info.S3Info.Host
	}

	operation := func() error {
		_, err := sess.SaveData(ctx, filename, data, nil, timeout)
		return err
	}
	if err := backoff.Retry(operation, backoff.WithMaxRetries(newExponentialBackOff(), 5)); err != nil {
		metrics.Metrics.ObjectStoreClient.FailureCount.WithLabelValues(host, "write").Inc()
		return pipelineerrors.New(pipelineerrors.RemoteServiceError, fmt.Sprintf("failed to write to object store URL %q", log.RedactURL(osURL)), err)
	}

	metrics.Metrics.ObjectStoreClient.RequestDuration.WithLabelValues(host).Observe(time.Since(start).Seconds())
	return nil
}

// virtualHostedS3 matches the virtual-hosted-style bucket URLs (e.g.
// https://my-bucket.s3.us-east-1.amazonaws.com/path/to/key) that arrive
// as plain https:// source URLs rather than an os:// driver URL. These
// never reach drivers.ParseOSURL (it only understands gs:// and s3://),
// so they need a direct presign through the AWS SDK.
var virtualHostedS3 = regexp.MustCompile(`^([^.]+)\.s3[.-]([a-z0-9-]+\.)?amazonaws\.com$`)

// SignURL generates a time-limited signed URL for a driver-backed target.
// Plain http(s)/file URLs pass through unchanged, except for
// virtual-hosted-style S3 bucket URLs, which are presigned directly
// against the AWS SDK since the drivers abstraction has no entry point
// for them.
func (s *Store) SignURL(u *url.URL) (string, error) {
	switch u.Scheme {
	case "", "file":
		return u.String(), nil
	case "http", "https":
		if bucket, key, ok := s3BucketAndKey(u); ok {
			return presignS3(bucket, key)
		}
		return u.String(), nil
	}
	driver, err := drivers.ParseOSURL(u.String(), true)
	if err != nil {
		return "", pipelineerrors.New(pipelineerrors.ValidationFailed, "failed to parse object store URL", err)
	}
	sess := driver.NewSession("")
	signedURL, err := sess.Presign("", PresignDuration)
	if err != nil {
		return "", pipelineerrors.New(pipelineerrors.RemoteServiceError, "failed to generate signed url", err)
	}
	return signedURL, nil
}

func s3BucketAndKey(u *url.URL) (bucket, key string, ok bool) {
	m := virtualHostedS3.FindStringSubmatch(u.Host)
	if m == nil {
		return "", "", false
	}
	return m[1], strings.TrimPrefix(u.Path, "/"), true
}

func presignS3(bucket, key string) (string, error) {
	sess, err := session.NewSession()
	if err != nil {
		return "", pipelineerrors.New(pipelineerrors.RemoteServiceError, "failed to create AWS session", err)
	}
	client := &S3Client{S3: s3.New(sess)}
	signedURL, err := client.PresignS3(bucket, key)
	if err != nil {
		return "", pipelineerrors.New(pipelineerrors.RemoteServiceError, fmt.Sprintf("failed to presign s3://%s/%s", bucket, key), err)
	}
	return signedURL, nil
}

func newExponentialBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = maxRetryInterval
	b.MaxElapsedTime = 0
	return b
}
