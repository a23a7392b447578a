package main

import (
	"context"
	"fmt"

	"github.com/baidubce/bce-sdk-go/auth"
	"github.com/baidubce/bce-sdk-go/services/bos"
	"github.com/baidubce/bce-sdk-go/services/bos/api"
	"github.com/baidubce/bce-sdk-go/services/sts"
)

const BOS_STS_DURATION_SECONDS = 7200

// BOSAPI is the subset of the BOS client used here
type BOSAPI interface {
	ListObjects(bucket string, args *api.ListObjectsArgs, options ...api.Option) (*api.ListObjectsResult, error)
	GetObjectMeta(bucket string, object string, options ...api.Option) (*api.GetObjectMetaResult, error)
	GetObject(bucket string, object string, responseHeaders map[string]string, ranges ...int64) (*api.GetObjectResult, error)
}

var _ BOSAPI = (*bos.Client)(nil)

// ObjSpiegelBOSClient is the source store for BOS buckets. The BOS SDK takes no context,
// so every call is raced against ctx instead.
type ObjSpiegelBOSClient struct {
	api BOSAPI
}

// NewBOSClient builds a client from static keys, or from a temporary session when
// stsEndpoint is set
func NewBOSClient(accessKey string, secretKey string, endpoint string, stsEndpoint string) (*ObjSpiegelBOSClient, error) {
	client, err := bos.NewClient(accessKey, secretKey, endpoint)
	if err != nil {
		return nil, fmt.Errorf("error creating BOS client: %w", err)
	}
	if stsEndpoint != "" {
		stsClient, err := sts.NewClient(accessKey, secretKey)
		if err != nil {
			return nil, fmt.Errorf("error creating STS client: %w", err)
		}
		stsClient.Config.Endpoint = stsEndpoint
		session, err := stsClient.GetSessionToken(BOS_STS_DURATION_SECONDS, "")
		if err != nil {
			return nil, fmt.Errorf("error exchanging keys for a session token: %w", err)
		}
		creds, err := auth.NewSessionBceCredentials(session.AccessKeyId, session.SecretAccessKey, session.SessionToken)
		if err != nil {
			return nil, fmt.Errorf("error building session credentials: %w", err)
		}
		client.Config.Credentials = creds
	}
	return &ObjSpiegelBOSClient{api: client}, nil
}

func (b ObjSpiegelBOSClient) ListObjects(ctx context.Context, bucket string, prefix string, maxKeys int, marker string) (ListPage, error) {
	var result *api.ListObjectsResult
	err := callWithContext(ctx, func() error {
		var err error
		result, err = b.api.ListObjects(bucket, &api.ListObjectsArgs{Prefix: prefix, Marker: marker, MaxKeys: maxKeys})
		return err
	}, nil)
	if err != nil {
		return ListPage{}, fmt.Errorf("error listing objects from BOS: %w", err)
	}

	page := ListPage{IsTruncated: result.IsTruncated, NextMarker: result.NextMarker}
	for _, object := range result.Contents {
		page.Entries = append(page.Entries, ListEntry{Key: object.Key, Size: int64(object.Size)})
	}
	return page, nil
}

func (b ObjSpiegelBOSClient) GetObjectMetadata(ctx context.Context, bucket string, key string) (ObjectMetadata, error) {
	var result *api.GetObjectMetaResult
	err := callWithContext(ctx, func() error {
		var err error
		result, err = b.api.GetObjectMeta(bucket, key)
		return err
	}, nil)
	if err != nil {
		return ObjectMetadata{}, fmt.Errorf("error getting metadata for %s: %w", key, err)
	}
	return bosObjectMetadata(result.StorageClass, result.ContentMD5, result.ETag), nil
}

func (b ObjSpiegelBOSClient) GetObjectToFile(ctx context.Context, bucket string, key string, localPath string) (ObjectMetadata, error) {
	var result *api.GetObjectResult
	err := callWithContext(ctx, func() error {
		var err error
		result, err = b.api.GetObject(bucket, key, nil)
		return err
	}, func() { result.Body.Close() })
	if err != nil {
		return ObjectMetadata{}, fmt.Errorf("error loading object contents: %w", err)
	}
	defer result.Body.Close()

	// closing the body unblocks the copy when ctx ends first
	stop := context.AfterFunc(ctx, func() { result.Body.Close() })
	defer stop()
	if err := writeBodyToFile(result.Body, localPath); err != nil {
		if ctx.Err() != nil {
			return ObjectMetadata{}, fmt.Errorf("error downloading %s: %w", key, ctx.Err())
		}
		return ObjectMetadata{}, err
	}
	return bosObjectMetadata(result.StorageClass, result.ContentMD5, result.ETag), nil
}

func bosObjectMetadata(storageClass string, contentMD5 string, etag string) ObjectMetadata {
	return ObjectMetadata{
		Tier:       tierFromBOSStorageClass(storageClass),
		ContentMD5: contentMD5,
		ETag:       normalizeETag(etag),
	}
}

func tierFromBOSStorageClass(class string) StorageTier {
	switch class {
	case "ARCHIVE":
		return TIER_ARCHIVE
	case "COLD":
		return TIER_COLD
	case "STANDARD_IA", "MAZ_STANDARD_IA":
		return TIER_INFREQUENT
	default:
		return TIER_STANDARD
	}
}

// callWithContext runs call and returns early when ctx ends. A call abandoned that way
// keeps running; if it later succeeds, abandon releases whatever it produced.
func callWithContext(ctx context.Context, call func() error, abandon func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		done <- call()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if abandon != nil {
			go func() {
				if err := <-done; err == nil {
					abandon()
				}
			}()
		}
		return ctx.Err()
	}
}
