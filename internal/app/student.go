package app

import (
	"strings"

	"github.com/maluguiro/examen-proctor/internal/domain"
)

// StudentKey derives the identity used to reject duplicate attempts.
// Email wins over name; both are case- and whitespace-insensitive.
func StudentKey(student domain.StudentIdentity) (string, error) {
	if email := strings.ToLower(strings.TrimSpace(student.Email)); email != "" {
		return "email:" + email, nil
	}
	if name := strings.Join(strings.Fields(strings.ToLower(student.Name)), " "); name != "" {
		return "name:" + name, nil
	}
	return "", domain.ErrInvalidStudent
}
