package sanitize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrPathTraversal indicates an object key contains traversal sequences.
	ErrPathTraversal = errors.New("key contains directory traversal")

	// ErrInvalidKey indicates an object key has characters outside the allowed set.
	ErrInvalidKey = errors.New("invalid object key")
)

var objectKeyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._/-]{0,511}$`)

// ValidateObjectKey checks a blob key built from sanitized segments before it
// is handed to object storage.
func ValidateObjectKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if strings.Contains(key, "..") || strings.HasPrefix(key, "/") || strings.Contains(key, "//") {
		return fmt.Errorf("%w: %q", ErrPathTraversal, key)
	}
	if !objectKeyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
