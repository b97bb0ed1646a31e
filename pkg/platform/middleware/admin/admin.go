// Package admin guards operator routes with a shared secret.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/httputil"
	"verigate/pkg/requestcontext"
)

// TokenHeader carries the operator secret.
const TokenHeader = "X-Admin-Token"

// RequireAdminToken rejects requests whose TokenHeader does not match
// expected. With no expected token configured every request is rejected, so
// operator routes stay closed until ADMIN_API_TOKEN is set.
func RequireAdminToken(expected string, logger *slog.Logger) func(http.Handler) http.Handler {
	want := []byte(expected)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(TokenHeader))
			if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "operator request rejected",
					"path", r.URL.Path,
					"token_present", len(got) > 0,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin token required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
