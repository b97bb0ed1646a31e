package verifier

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"verigate/internal/verification/models"
	dErrors "verigate/pkg/domain-errors"
)

var verificationIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

var errInvalidLink = dErrors.New(dErrors.CodeInvalidInput, "invalid verification link")

// ParseVerificationID extracts a 24-hex verification id from the
// verificationId query parameter or the last path segment.
func ParseVerificationID(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	if v := u.Query().Get("verificationId"); verificationIDPattern.MatchString(v) {
		return strings.ToLower(v)
	}
	if last := path.Base(strings.TrimRight(u.Path, "/")); verificationIDPattern.MatchString(last) {
		return strings.ToLower(last)
	}
	return ""
}

// ParseExternalUserID extracts the externalUserId query parameter.
func ParseExternalUserID(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(u.Query().Get("externalUserId"))
}

// Identifier returns what the category's backend needs from the input link.
// Delayed-code categories accept an externalUserId when no verification id
// is present.
func Identifier(category models.Category, input string) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "verification link is required")
	}
	if vid := ParseVerificationID(input); vid != "" {
		return vid, nil
	}
	if category.DelayedCode() {
		if ext := ParseExternalUserID(input); ext != "" {
			return ext, nil
		}
	}
	return "", errInvalidLink
}
