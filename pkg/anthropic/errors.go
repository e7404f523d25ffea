package anthropic

import (
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
)

// StatusCode extracts the HTTP status from an API error anywhere in the
// chain. The second return is false for non-API failures (network errors,
// context cancellation).
func StatusCode(err error) (int, bool) {
	var apierr *sdk.Error
	if errors.As(err, &apierr) {
		return apierr.StatusCode, true
	}
	return 0, false
}
