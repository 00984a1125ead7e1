package utils

import "strings"

// ExtractTokenFromHeader returns the token of a "Bearer <token>" Authorization
// header, or "" when the header has another shape.
func ExtractTokenFromHeader(authHeader string) string {
	if authHeader == "" {
		return ""
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return parts[1]
}
