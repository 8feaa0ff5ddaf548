package weathererr

import (
	"context"
	"errors"
)

// Category is a stable label for error classification in metrics.
type Category string

// Error category constants used as metric labels (fetchFailuresTotal, httpErrorsTotal).
const (
	CategoryCanceled        Category = "canceled"
	CategoryTimeout         Category = "timeout"
	CategoryNetwork         Category = "network"
	CategoryAPI             Category = "api"
	CategoryParsing         Category = "parsing"
	CategoryInvalidResponse Category = "invalid_response"
	CategoryInvalidURL      Category = "invalid_url"
	CategoryLocation        Category = "location"
	CategoryUnknown         Category = "unknown"
)

// Categorize maps an error to a stable Category for metrics.
func Categorize(err error) Category {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.Canceled) {
		return CategoryCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	switch KindOf(err) {
	case KindNetwork:
		return CategoryNetwork
	case KindAPI:
		return CategoryAPI
	case KindInvalidData:
		return CategoryParsing
	case KindInvalidResponse:
		return CategoryInvalidResponse
	case KindInvalidURL:
		return CategoryInvalidURL
	case KindNoLocationFound, KindLocationServicesDisabled, KindLocationPermissionDenied:
		return CategoryLocation
	}
	return CategoryUnknown
}
