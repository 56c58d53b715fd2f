// Package blobsvc stores product images on S3.
package blobsvc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"

	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/catalog"
)

const uploadExpiry = 15 * time.Minute

type s3Store struct {
	presigner  *s3.PresignClient
	bucket     string
	keyPrefix  string
	publicBase string
}

var _ catalog.ImageStore = (*s3Store)(nil)

// NewS3Store returns nil when no bucket is configured. Without explicit credentials the
// default AWS chain (env, shared config, instance role) is used.
func NewS3Store(ctx context.Context, conf core.S3Config) (catalog.ImageStore, error) {
	if conf.Bucket == "" {
		return nil, nil
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(conf.Region)}
	if conf.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(conf.AccessKeyID, conf.SecretAccessKey, ""),
		))
	}
	awsConf, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "loading aws config")
	}

	publicBase := conf.PublicBaseURL
	if publicBase == "" {
		publicBase = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", conf.Bucket, conf.Region)
	}
	return &s3Store{
		presigner:  s3.NewPresignClient(s3.NewFromConfig(awsConf)),
		bucket:     conf.Bucket,
		keyPrefix:  conf.KeyPrefix,
		publicBase: strings.TrimSuffix(publicBase, "/"),
	}, nil
}

func (s *s3Store) PresignUpload(ctx context.Context, key, contentType string) (catalog.ImageUpload, error) {
	objectKey := s.keyPrefix + key
	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(uploadExpiry))
	if err != nil {
		return catalog.ImageUpload{}, errors.Wrap(err, "presigning put object")
	}
	return catalog.ImageUpload{
		Key:       objectKey,
		UploadURL: req.URL,
		PublicURL: s.publicBase + "/" + objectKey,
		ExpiresAt: time.Now().UTC().Add(uploadExpiry),
	}, nil
}
