// Package sanitize normalizes user-supplied text, file names and slugs before
// they reach storage.
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxFilenameLength bounds the sanitized base name used in object keys.
	MaxFilenameLength = 64

	// hashSuffixLength is "_" plus 8 hex characters.
	hashSuffixLength = 9

	// DefaultFilename is used when sanitization produces an empty result.
	DefaultFilename = "upload"
)

// Filename reduces an uploaded file name to [a-z0-9._-], keeping the
// extension. Long names are truncated with a hash suffix so distinct inputs
// stay distinct.
//
//	"My Screenshot (1).PNG" -> "my_screenshot_1.png"
//	"../../etc/passwd"      -> "passwd"
//	""                      -> "upload"
func Filename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return DefaultFilename
	}

	ext := strings.ToLower(path.Ext(name))
	base := strings.TrimSuffix(name, path.Ext(name))
	base = collapse(strings.ToLower(base), func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-'
	}, '_')
	ext = collapse(ext, func(r rune) bool { return r >= 'a' && r <= 'z' || r >= '0' && r <= '9' }, 0)
	if base == "" {
		base = DefaultFilename
	}
	if ext != "" {
		ext = "." + ext
	}

	if len(base)+len(ext) > MaxFilenameLength {
		sum := sha256.Sum256([]byte(name))
		keep := MaxFilenameLength - len(ext) - hashSuffixLength
		if keep < 1 {
			keep = 1
			ext = ""
		}
		base = strings.TrimRight(base[:keep], "_") + "_" + hex.EncodeToString(sum[:])[:8]
	}
	return base + ext
}

// Slug turns a display name into a URL-safe profile slug.
//
//	"Jane O'Neil" -> "jane-o-neil"
func Slug(s string) string {
	return collapse(strings.ToLower(strings.TrimSpace(s)), func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
	}, '-')
}

// collapse keeps runes accepted by keep, replaces runs of anything else with a
// single sep (dropped when sep is 0) and trims sep from both ends.
func collapse(s string, keep func(rune) bool, sep rune) string {
	var b strings.Builder
	b.Grow(len(s))
	pending := false
	for _, r := range s {
		if keep(r) {
			if pending && b.Len() > 0 && sep != 0 {
				b.WriteRune(sep)
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}

// Text normalizes multi-line free text: invalid UTF-8 and control characters
// other than newline are removed, horizontal whitespace runs collapse to one
// space, more than two consecutive newlines collapse to two, and the result is
// trimmed and cut to maxRunes (0 means no limit).
func Text(s string, maxRunes int) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")

	var b strings.Builder
	b.Grow(len(s))
	spaces, newlines := 0, 0
	for _, r := range s {
		switch {
		case r == '\n':
			spaces = 0
			newlines++
			if newlines <= 2 {
				b.WriteRune('\n')
			}
		case unicode.IsSpace(r):
			spaces++
			if spaces == 1 && newlines == 0 {
				b.WriteRune(' ')
			}
		case unicode.IsControl(r):
		default:
			spaces, newlines = 0, 0
			b.WriteRune(r)
		}
	}

	out := strings.TrimSpace(trimLineEdges(b.String()))
	return truncateRunes(out, maxRunes)
}

// Line normalizes single-line input such as names and roles.
func Line(s string, maxRunes int) string {
	return Text(strings.ReplaceAll(strings.ReplaceAll(s, "\r", " "), "\n", " "), maxRunes)
}

func trimLineEdges(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.Join(lines, "\n")
}

func truncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:maxRunes]))
}
