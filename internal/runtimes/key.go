// Package runtimes derives identities for runtime batches and parses the
// condensed runtime logs they are collected from.
package runtimes

import (
	"errors"
	"fmt"
	"net/url"

	"runtimeviewer/internal/models"
)

// KeySeparator joins the exception and proc path of an identity key.
// An exception containing this sequence can collide with another key.
const KeySeparator = "_______"

// ErrBadKey is returned when an escaped key cannot be decoded.
var ErrBadKey = errors.New("malformed runtime key")

// Key derives the identity of a runtime batch. Source file and line are left
// out so moving code between files does not split an identity.
func Key(batch models.RuntimeBatch) string {
	return batch.Exception + KeySeparator + batch.ProcPath
}

// EscapeKey encodes a key for use as a single URL path segment.
func EscapeKey(key string) string {
	return url.PathEscape(key)
}

// UnescapeKey reverses EscapeKey.
func UnescapeKey(escaped string) (string, error) {
	key, err := url.PathUnescape(escaped)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadKey, err)
	}
	return key, nil
}
