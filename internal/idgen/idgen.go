// Package idgen provides short, URL-safe document identifiers backed by nanoid.
package idgen

import (
	"fmt"
	"strings"
	"unicode"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// DefaultPrefix is used when a model name yields no usable prefix.
var DefaultPrefix = "doc-"

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 12

// prefixLen caps how many letters of a model name go into the prefix.
const prefixLen = 4

// Generate returns a new unique ID using the default prefix.
func Generate() (string, error) {
	return GenerateWithPrefix(DefaultPrefix)
}

// GenerateWithPrefix returns a new unique ID with the given prefix.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// ForModel returns a new ID prefixed after the model name, e.g. "prof-…"
// for Profile.
func ForModel(model string) (string, error) {
	return GenerateWithPrefix(PrefixFor(model))
}

// PrefixFor derives the ID prefix for a model: up to four lowercased ASCII
// letters or digits followed by a dash.
func PrefixFor(model string) string {
	var b strings.Builder
	for _, r := range model {
		if b.Len() == prefixLen {
			break
		}
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	if b.Len() == 0 {
		return DefaultPrefix
	}
	return b.String() + "-"
}
