package testutil

import (
	"net/http"

	id "verigate/pkg/domain"
	"verigate/pkg/requestcontext"
)

// WithUserID places userID in the request context the way the auth
// middleware does, so handlers can be tested without a token.
func WithUserID(req *http.Request, userID id.UserID) *http.Request {
	return req.WithContext(requestcontext.WithUserID(req.Context(), userID))
}
