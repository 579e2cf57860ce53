package metering

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/BradenHooton/metered-finance/internal/models"
	pkghttp "github.com/BradenHooton/metered-finance/pkg/http"
)

// WriteRejection renders an authentication, authorization or admission failure.
// Every invalid client credential produces the same body, whatever the cause.
func WriteRejection(w http.ResponseWriter, err error) {
	var rateErr *models.RateLimitError
	var quotaErr *models.QuotaError
	var forbiddenErr *models.ForbiddenError

	switch {
	case errors.As(err, &rateErr):
		pkghttp.WriteRateLimited(w,
			fmt.Sprintf("Rate limit exceeded. Limit: %d requests per minute", rateErr.Limit),
			rateErr.Limit, rateErr.RetryAfter)
	case errors.As(err, &quotaErr):
		pkghttp.WriteQuotaExceeded(w,
			fmt.Sprintf("%s quota exceeded. Limit: %d requests", capitalize(string(quotaErr.Period)), quotaErr.Limit),
			string(quotaErr.Period), quotaErr.Limit)
	case errors.As(err, &forbiddenErr):
		pkghttp.WriteForbidden(w, fmt.Sprintf("Missing required scope: %s", forbiddenErr.Scope))
	case errors.Is(err, models.ErrMissingCredential):
		pkghttp.WriteUnauthorized(w, "Missing credential")
	case errors.Is(err, models.ErrInvalidAdminKey):
		pkghttp.WriteUnauthorized(w, "Invalid admin key")
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Invalid API key")
	case errors.Is(err, models.ErrAdminNotConfigured):
		pkghttp.WriteInternalError(w, "Server configuration error")
	default:
		pkghttp.WriteInternalError(w, "Unable to process request")
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]-'a'+'A') + s[1:]
	}
	return s
}
