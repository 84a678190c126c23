// Package keyid produces canonical entity keys: stable, human-readable keys
// for entities indexed from source, and hash-based keys for pending
// creations that have no source location yet.
package keyid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidInput is returned when a component cannot be represented in a
// key (currently: a colon in name, kind, or path that survives sanitization).
type ErrInvalidInput struct {
	Field string
	Value string
}

func (e *ErrInvalidInput) Error() string {
	return fmt.Sprintf("keyid: invalid %s %q: contains unrepresentable colon", e.Field, e.Value)
}

// SanitizePath replaces path separators and dots with underscores so a file
// path can sit inside a key without colliding with the key's own field
// separators, then appends a short hash of the original path. Without the
// hash, two distinct paths that only differ in which character was a "/"
// and which was a "." (e.g. "pkg/sub.go" and "pkg.sub.go") would sanitize
// to the same string and collide — silently merging two files' entities
// onto the same line-based key and violating I1.
func SanitizePath(path string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ".", "_")
	sanitized := r.Replace(path)
	sum := sha256.Sum256([]byte(path))
	return sanitized + "_" + hex.EncodeToString(sum[:])[:6]
}

// LineKey builds a line-based key:
// {lang}:{kind}:{name}:{sanitized_path}:{start_line}-{end_line}
func LineKey(lang, kind, name, path string, start, end int) (string, error) {
	if strings.Contains(name, ":") {
		return "", &ErrInvalidInput{Field: "name", Value: name}
	}
	if strings.Contains(kind, ":") {
		return "", &ErrInvalidInput{Field: "kind", Value: kind}
	}
	if strings.Contains(lang, ":") {
		return "", &ErrInvalidInput{Field: "language", Value: lang}
	}
	sanitized := SanitizePath(path)
	return fmt.Sprintf("%s:%s:%s:%s:%d-%d", lang, kind, name, sanitized, start, end), nil
}

// HashKey builds a hash-based key for a pending-create entity with no
// source location yet: {sanitized_path}-{name}-{kind_abbrev}-{hash8}
// where hash8 is the first 8 hex chars of sha256(path‖name‖kind‖now).
func HashKey(path, name, kind string, now time.Time) (string, error) {
	if strings.Contains(name, ":") {
		return "", &ErrInvalidInput{Field: "name", Value: name}
	}
	if strings.Contains(kind, ":") {
		return "", &ErrInvalidInput{Field: "kind", Value: kind}
	}
	sanitized := SanitizePath(path)
	abbrev := kindAbbrev(kind)
	sum := sha256.Sum256([]byte(path + "\x00" + name + "\x00" + kind + "\x00" + now.UTC().Format(time.RFC3339Nano)))
	hash8 := hex.EncodeToString(sum[:])[:8]
	return fmt.Sprintf("%s-%s-%s-%s", sanitized, name, abbrev, hash8), nil
}

// kindAbbrev maps a kind to a short, stable abbreviation used in hash keys.
// Unknown kinds fall back to a lowercased 3-char prefix so the key remains
// deterministic even for kinds added later.
func kindAbbrev(kind string) string {
	switch strings.ToLower(kind) {
	case "function":
		return "fn"
	case "method":
		return "mth"
	case "struct":
		return "struct"
	case "enum":
		return "enum"
	case "trait", "interface":
		return "iface"
	case "class":
		return "class"
	case "impl":
		return "impl"
	case "module":
		return "mod"
	case "constant":
		return "const"
	case "typealias":
		return "alias"
	case "macro":
		return "macro"
	default:
		lower := strings.ToLower(kind)
		if len(lower) > 3 {
			return lower[:3]
		}
		return lower
	}
}
