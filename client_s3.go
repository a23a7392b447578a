package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awss3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/xorcare/pointer"
)

// S3API is the subset of the S3 client used here, so tests can swap in a fake
type S3API interface {
	ListObjectsV2(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, params *awss3.HeadObjectInput, optFns ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
}

// ObjSpiegelS3Client serves as the destination store, and as a source store when the
// source bucket is itself S3-compatible
type ObjSpiegelS3Client struct {
	api S3API
}

func NewS3Client(ctx context.Context, region string, endpoint string, usePathStyle bool, resolver CredentialResolver) (*ObjSpiegelS3Client, error) {
	awscfg, err := loadAWSConfig(ctx, region, endpoint, resolver)
	if err != nil {
		return nil, err
	}
	client := awss3.NewFromConfig(awscfg, func(o *awss3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = usePathStyle
	})
	return &ObjSpiegelS3Client{api: client}, nil
}

// ListObjects resumes after marker. ListObjectsV2 has no marker of its own, so StartAfter
// is used and the next marker is the last key of the page.
func (t ObjSpiegelS3Client) ListObjects(ctx context.Context, bucket string, prefix string, maxKeys int, marker string) (ListPage, error) {
	input := awss3.ListObjectsV2Input{
		Bucket:  pointer.String(bucket),
		Prefix:  pointer.String(prefix),
		MaxKeys: pointer.Int32(int32(maxKeys)),
	}
	if marker != "" {
		input.StartAfter = pointer.String(marker)
	}
	output, err := t.api.ListObjectsV2(ctx, &input)
	if err != nil {
		return ListPage{}, fmt.Errorf("error listing objects from S3: %w", err)
	}

	var page ListPage
	for _, object := range output.Contents {
		page.Entries = append(page.Entries, ListEntry{Key: aws.ToString(object.Key), Size: aws.ToInt64(object.Size)})
	}
	page.IsTruncated = aws.ToBool(output.IsTruncated)
	if page.IsTruncated && len(page.Entries) > 0 {
		page.NextMarker = page.Entries[len(page.Entries)-1].Key
	}
	return page, nil
}

func (t ObjSpiegelS3Client) GetObjectMetadata(ctx context.Context, bucket string, key string) (ObjectMetadata, error) {
	output, err := t.api.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: pointer.String(bucket),
		Key:    pointer.String(key),
	})
	if err != nil {
		return ObjectMetadata{}, fmt.Errorf("error getting metadata for %s: %w", key, err)
	}
	tier := tierFromS3StorageClass(output.StorageClass)
	if output.ArchiveStatus != "" {
		tier = TIER_ARCHIVE
	}
	etag := normalizeETag(aws.ToString(output.ETag))
	return ObjectMetadata{Tier: tier, ETag: etag, ContentMD5: contentMD5FromETag(etag)}, nil
}

func (t ObjSpiegelS3Client) GetObjectToFile(ctx context.Context, bucket string, key string, localPath string) (ObjectMetadata, error) {
	output, err := t.api.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: pointer.String(bucket),
		Key:    pointer.String(key),
	})
	if err != nil {
		return ObjectMetadata{}, fmt.Errorf("error loading object contents: %w", err)
	}
	defer output.Body.Close()

	if err := writeBodyToFile(output.Body, localPath); err != nil {
		return ObjectMetadata{}, err
	}
	etag := normalizeETag(aws.ToString(output.ETag))
	return ObjectMetadata{
		Tier:       tierFromS3StorageClass(output.StorageClass),
		ETag:       etag,
		ContentMD5: contentMD5FromETag(etag),
	}, nil
}

func (t ObjSpiegelS3Client) PutObject(ctx context.Context, bucket string, key string, body io.ReadSeeker, size int64, storageClass StorageTier, metadata map[string]string) (string, error) {
	putObjectOutput, err := t.api.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        pointer.String(bucket),
		Key:           pointer.String(key),
		Body:          body,
		ContentLength: pointer.Int64(size),
		StorageClass:  s3StorageClassFromTier(storageClass),
		Metadata:      metadata,
	})
	if err != nil {
		return "", err
	}
	return normalizeETag(aws.ToString(putObjectOutput.ETag)), nil
}

func (t ObjSpiegelS3Client) HeadObject(ctx context.Context, bucket string, key string) (string, error) {
	output, err := t.api.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: pointer.String(bucket),
		Key:    pointer.String(key),
	})
	if err != nil {
		return "", err
	}
	return normalizeETag(aws.ToString(output.ETag)), nil
}

func tierFromS3StorageClass(class awss3types.StorageClass) StorageTier {
	switch class {
	case awss3types.StorageClassGlacier, awss3types.StorageClassDeepArchive:
		return TIER_ARCHIVE
	case awss3types.StorageClassGlacierIr:
		return TIER_COLD
	case awss3types.StorageClassStandardIa, awss3types.StorageClassOnezoneIa:
		return TIER_INFREQUENT
	default:
		return TIER_STANDARD
	}
}

func s3StorageClassFromTier(tier StorageTier) awss3types.StorageClass {
	switch tier {
	case TIER_INFREQUENT:
		return awss3types.StorageClassStandardIa
	case TIER_COLD:
		return awss3types.StorageClassGlacierIr
	case TIER_ARCHIVE:
		return awss3types.StorageClassDeepArchive
	default:
		return awss3types.StorageClassStandard
	}
}

func writeBodyToFile(body io.Reader, localPath string) error {
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", localPath, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return fmt.Errorf("error writing %s: %w", localPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("error closing %s: %w", localPath, err)
	}
	return nil
}
