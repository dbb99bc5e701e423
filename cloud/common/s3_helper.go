// Package common holds the S3 upload seam shared by cloud/aws and
// cloud/example: an interface narrow enough to fake in tests, and the
// options needed to address an object inside a bucket.
package common

import (
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// CloudFsOption addresses where backup archives land in the bucket.
type CloudFsOption struct {
	Bucket string
	Prefix string
	Region string
}

// S3Helper uploads and deletes named backup objects.
type S3Helper interface {
	Upload(name string, body io.Reader) error
	Delete(name string) error
}

type s3Helper struct {
	opts     CloudFsOption
	uploader *s3manager.Uploader
	client   *s3.S3
}

// NewS3Helper builds an S3Helper from a session in opts.Region.
func NewS3Helper(opts CloudFsOption) (S3Helper, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(opts.Region)})
	if err != nil {
		return nil, err
	}
	return &s3Helper{
		opts:     opts,
		uploader: s3manager.NewUploader(sess),
		client:   s3.New(sess),
	}, nil
}

func (s *s3Helper) key(name string) string {
	if s.opts.Prefix == "" {
		return name
	}
	return s.opts.Prefix + "/" + name
}

func (s *s3Helper) Upload(name string, body io.Reader) error {
	_, err := s.uploader.Upload(&s3manager.UploadInput{
		Body:   body,
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(s.key(name)),
	})
	return err
}

func (s *s3Helper) Delete(name string) error {
	_, err := s.client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(s.key(name)),
	})
	return err
}
