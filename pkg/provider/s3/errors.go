package s3

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/3leaps/casegen/pkg/provider"
)

// errorCodes maps S3 API error codes to sink errors.
var errorCodes = map[string]error{
	"NoSuchKey":             provider.ErrNotFound,
	"NotFound":              provider.ErrNotFound,
	"NoSuchBucket":          provider.ErrBucketNotFound,
	"AccessDenied":          provider.ErrAccessDenied,
	"Forbidden":             provider.ErrAccessDenied,
	"InvalidAccessKeyId":    provider.ErrInvalidCredentials,
	"SignatureDoesNotMatch": provider.ErrInvalidCredentials,
	"SlowDown":              provider.ErrUnavailable,
	"Throttling":            provider.ErrUnavailable,
	"RequestLimitExceeded":  provider.ErrUnavailable,
	"ServiceUnavailable":    provider.ErrUnavailable,
	"InternalError":         provider.ErrUnavailable,
}

// HEAD responses carry no body, so some failures only show up in the
// message. Checked in order.
var messageHints = []struct {
	needles []string
	err     error
}{
	{[]string{"NoSuchBucket"}, provider.ErrBucketNotFound},
	{[]string{"NoSuchKey", "NotFound", "StatusCode: 404"}, provider.ErrNotFound},
	{[]string{"InvalidAccessKeyId", "SignatureDoesNotMatch"}, provider.ErrInvalidCredentials},
	{[]string{"AccessDenied", "Forbidden", "StatusCode: 403"}, provider.ErrAccessDenied},
	{[]string{"SlowDown", "Throttling", "StatusCode: 429", "ServiceUnavailable", "StatusCode: 503"}, provider.ErrUnavailable},
}

// classify wraps err with the matching sink error. Unrecognized errors are
// returned unchanged.
func classify(err error) error {
	var (
		notFound     *types.NotFound
		noSuchKey    *types.NoSuchKey
		noSuchBucket *types.NoSuchBucket
	)
	switch {
	case errors.As(err, &notFound), errors.As(err, &noSuchKey):
		return provider.ErrNotFound
	case errors.As(err, &noSuchBucket):
		return provider.ErrBucketNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if known, ok := errorCodes[apiErr.ErrorCode()]; ok {
			return fmt.Errorf("%w: %s", known, apiErr.ErrorMessage())
		}
		return err
	}

	msg := err.Error()
	for _, h := range messageHints {
		for _, n := range h.needles {
			if strings.Contains(msg, n) {
				return fmt.Errorf("%w: %v", h.err, err)
			}
		}
	}
	return err
}
