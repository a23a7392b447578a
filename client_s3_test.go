package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awss3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type mockS3API struct {
	listObjectsV2Func func(ctx context.Context, params *awss3.ListObjectsV2Input) (*awss3.ListObjectsV2Output, error)
	headObjectFunc    func(ctx context.Context, params *awss3.HeadObjectInput) (*awss3.HeadObjectOutput, error)
	getObjectFunc     func(ctx context.Context, params *awss3.GetObjectInput) (*awss3.GetObjectOutput, error)
	putObjectFunc     func(ctx context.Context, params *awss3.PutObjectInput) (*awss3.PutObjectOutput, error)
}

func (m mockS3API) ListObjectsV2(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
	return m.listObjectsV2Func(ctx, params)
}

func (m mockS3API) HeadObject(ctx context.Context, params *awss3.HeadObjectInput, optFns ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error) {
	return m.headObjectFunc(ctx, params)
}

func (m mockS3API) GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	return m.getObjectFunc(ctx, params)
}

func (m mockS3API) PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	return m.putObjectFunc(ctx, params)
}

func TestS3Client_ListObjects(t *testing.T) {
	var got *awss3.ListObjectsV2Input
	client := ObjSpiegelS3Client{api: mockS3API{
		listObjectsV2Func: func(ctx context.Context, params *awss3.ListObjectsV2Input) (*awss3.ListObjectsV2Output, error) {
			got = params
			return &awss3.ListObjectsV2Output{
				Contents: []awss3types.Object{
					{Key: aws.String("a/"), Size: aws.Int64(0)},
					{Key: aws.String("a/x"), Size: aws.Int64(12)},
				},
				IsTruncated: aws.Bool(true),
			}, nil
		},
	}}

	page, err := client.ListObjects(context.Background(), "bucket", "a/", 2, "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if aws.ToString(got.Bucket) != "bucket" || aws.ToString(got.Prefix) != "a/" || aws.ToInt32(got.MaxKeys) != 2 || aws.ToString(got.StartAfter) != "a" {
		t.Errorf("input = %+v", got)
	}
	if len(page.Entries) != 2 || page.Entries[1].Size != 12 {
		t.Errorf("entries = %v", page.Entries)
	}
	if !page.IsTruncated || page.NextMarker != "a/x" {
		t.Errorf("truncated %v next marker %q", page.IsTruncated, page.NextMarker)
	}
}

func TestS3Client_ListObjectsFirstPage(t *testing.T) {
	client := ObjSpiegelS3Client{api: mockS3API{
		listObjectsV2Func: func(ctx context.Context, params *awss3.ListObjectsV2Input) (*awss3.ListObjectsV2Output, error) {
			if params.StartAfter != nil {
				t.Errorf("first page should not set StartAfter, got %q", aws.ToString(params.StartAfter))
			}
			return &awss3.ListObjectsV2Output{}, nil
		},
	}}
	page, err := client.ListObjects(context.Background(), "bucket", "a/", 1000, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.IsTruncated || page.NextMarker != "" {
		t.Errorf("page = %+v", page)
	}
}

func TestS3Client_GetObjectMetadata(t *testing.T) {
	tests := []struct {
		name    string
		output  awss3.HeadObjectOutput
		want    StorageTier
		wantMD5 string
	}{
		{
			name:    "standard",
			output:  awss3.HeadObjectOutput{ETag: aws.String(`"5eb63bbbe01eeed093cb22bb8f5acdc3"`)},
			want:    TIER_STANDARD,
			wantMD5: "XrY7u+Ae7tCTyyK7j1rNww==",
		},
		{
			name:   "glacier",
			output: awss3.HeadObjectOutput{ETag: aws.String(`"abc-3"`), StorageClass: awss3types.StorageClassGlacier},
			want:   TIER_ARCHIVE,
		},
		{
			name:   "intelligent tiering archive",
			output: awss3.HeadObjectOutput{StorageClass: awss3types.StorageClassIntelligentTiering, ArchiveStatus: awss3types.ArchiveStatusArchiveAccess},
			want:   TIER_ARCHIVE,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := ObjSpiegelS3Client{api: mockS3API{
				headObjectFunc: func(ctx context.Context, params *awss3.HeadObjectInput) (*awss3.HeadObjectOutput, error) {
					return &tt.output, nil
				},
			}}
			meta, err := client.GetObjectMetadata(context.Background(), "bucket", "key")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if meta.Tier != tt.want {
				t.Errorf("tier = %s, want %s", meta.Tier, tt.want)
			}
			if meta.ContentMD5 != tt.wantMD5 {
				t.Errorf("content md5 = %q, want %q", meta.ContentMD5, tt.wantMD5)
			}
		})
	}
}

func TestS3Client_GetObjectToFile(t *testing.T) {
	client := ObjSpiegelS3Client{api: mockS3API{
		getObjectFunc: func(ctx context.Context, params *awss3.GetObjectInput) (*awss3.GetObjectOutput, error) {
			return &awss3.GetObjectOutput{
				Body: io.NopCloser(strings.NewReader("hello world")),
				ETag: aws.String(`"5eb63bbbe01eeed093cb22bb8f5acdc3"`),
			}, nil
		},
	}}
	path := filepath.Join(t.TempDir(), "out")
	meta, err := client.GetObjectToFile(context.Background(), "bucket", "key", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello world" {
		t.Errorf("contents = %q", data)
	}
	if meta.ETag != "5eb63bbbe01eeed093cb22bb8f5acdc3" || meta.ContentMD5 != "XrY7u+Ae7tCTyyK7j1rNww==" {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestS3Client_PutObject(t *testing.T) {
	var got *awss3.PutObjectInput
	client := ObjSpiegelS3Client{api: mockS3API{
		putObjectFunc: func(ctx context.Context, params *awss3.PutObjectInput) (*awss3.PutObjectOutput, error) {
			got = params
			return &awss3.PutObjectOutput{ETag: aws.String(`"abc"`)}, nil
		},
	}}
	etag, err := client.PutObject(context.Background(), "bucket", "a/b/__b.zip", bytes.NewReader([]byte("zip")), 3, TIER_COLD, map[string]string{"h1": "h1:xyz"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if etag != "abc" {
		t.Errorf("etag = %q", etag)
	}
	if got.StorageClass != awss3types.StorageClassGlacierIr {
		t.Errorf("storage class = %s", got.StorageClass)
	}
	if aws.ToInt64(got.ContentLength) != 3 || got.Metadata["h1"] != "h1:xyz" {
		t.Errorf("input = %+v", got)
	}
}

func TestStorageClassMapping(t *testing.T) {
	for _, tier := range []StorageTier{TIER_STANDARD, TIER_INFREQUENT, TIER_COLD, TIER_ARCHIVE} {
		if got := tierFromS3StorageClass(s3StorageClassFromTier(tier)); got != tier {
			t.Errorf("tier %s maps back to %s", tier, got)
		}
	}
	if tierFromS3StorageClass(awss3types.StorageClassOnezoneIa) != TIER_INFREQUENT {
		t.Error("ONEZONE_IA should be infrequent")
	}
}
