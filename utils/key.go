package utils

import (
	"unicode/utf8"
)

// ObjectKeyIsValid reports whether key can be used as an object name.
func ObjectKeyIsValid(key string) bool {
	if len(key) == 0 || len(key) > MaxObjectKeyLength {
		return false
	}
	if key[0] == '/' || key[0] == '\\' {
		return false
	}
	return utf8.ValidString(key)
}
