package s3

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/hupe1980/tiergo/objectstore"
)

// Client is the interface for the S3 operations used by Store.
// *s3.Client satisfies it; tests substitute a mock.
type Client interface {
	manager.UploadAPIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// translateError maps SDK errors onto the objectstore taxonomy so callers
// and the retry layer never see provider-specific types.
func translateError(err error, key string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", objectstore.ErrTimeout, key, err)
	}

	var nf *types.NotFound
	if errors.As(err, &nf) {
		return fmt.Errorf("%w: %s", objectstore.ErrNotFound, key)
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return fmt.Errorf("%w: %s", objectstore.ErrNotFound, key)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return fmt.Errorf("%w: %s", objectstore.ErrNotFound, key)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%w: %s: %s", objectstore.ErrForbidden, key, apiErr.ErrorCode())
		case "SlowDown", "Throttling", "ThrottlingException", "TooManyRequests", "RequestLimitExceeded":
			return fmt.Errorf("%w: %s", objectstore.ErrThrottle, key)
		case "InternalError", "ServiceUnavailable":
			return fmt.Errorf("%w: %s: %s", objectstore.ErrServer, key, apiErr.ErrorCode())
		case "RequestTimeout":
			return fmt.Errorf("%w: %s", objectstore.ErrTimeout, key)
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch code := respErr.HTTPStatusCode(); {
		case code == http.StatusNotFound:
			return fmt.Errorf("%w: %s", objectstore.ErrNotFound, key)
		case code == http.StatusForbidden:
			return fmt.Errorf("%w: %s", objectstore.ErrForbidden, key)
		case code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", objectstore.ErrThrottle, key)
		case code >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %s: status %d", objectstore.ErrServer, key, code)
		}
	}

	return err
}
