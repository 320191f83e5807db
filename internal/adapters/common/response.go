package common

import (
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// DefaultRawBodyLimit defines the maximum number of characters retained from
// an API response body when attaching it to a receipt or error.
const DefaultRawBodyLimit = 1024

// TruncateRaw trims the supplied string to the specified rune limit. If limit
// is zero or negative it returns an empty string.
func TruncateRaw(raw string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(raw) <= limit {
		return raw
	}
	runes := []rune(raw)
	return string(runes[:limit])
}

// AckMessage extracts the optional "message" field of a JSON response body.
// Non-JSON bodies and bodies without the field yield "".
func AckMessage(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	res := gjson.GetBytes(body, "message")
	if !res.Exists() || res.Type != gjson.String {
		return ""
	}
	return strings.TrimSpace(res.String())
}
