package main

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/aws/smithy-go"
	"github.com/baidubce/bce-sdk-go/bce"
)

var (
	errArchivedObject = errors.New("object is in archive storage and must be restored before it can be fetched")
	errObjectNotFound = errors.New("object not found")
)

var transientAPIErrorCodes = []string{
	"RequestTimeout",
	"RequestTimeoutException",
	"SlowDown",
	"InternalError",
	"ServiceUnavailable",
	"Throttling",
	"ThrottlingException",
}

// isTransientError reports whether err looks like a network or service fault (including an
// operation timeout) rather than something retrying cannot fix
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return StringInSlice(apiErr.ErrorCode(), transientAPIErrorCodes)
	}
	var bosErr *bce.BceServiceError
	if errors.As(err, &bosErr) {
		return bosErr.StatusCode >= 500 || StringInSlice(bosErr.Code, transientAPIErrorCodes)
	}
	return false
}

func isNotFoundError(err error) bool {
	if errors.Is(err, errObjectNotFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return StringInSlice(apiErr.ErrorCode(), []string{"NotFound", "NoSuchKey"})
	}
	var bosErr *bce.BceServiceError
	if errors.As(err, &bosErr) {
		return bosErr.StatusCode == 404 || bosErr.Code == "NoSuchKey"
	}
	return false
}
