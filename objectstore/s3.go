package objectstore

import (
	"time"

	"github.com/aws/aws-sdk-go/service/s3"
)

// S3Client is a thin wrapper around the raw AWS SDK S3 client, used only
// for presigning virtual-hosted-style bucket URLs that the drivers
// abstraction does not parse as an os:// target.
type S3Client struct {
	S3 *s3.S3
}

func (c *S3Client) PresignS3(bucket, key string) (string, error) {
	req, _ := c.S3.GetObjectRequest(&s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	return req.Presign(PresignDuration)
}
