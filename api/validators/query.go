package validators

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	pkgerrors "github.com/angelmondragon/freshora-backend/pkg/errors"
)

// Query reads trimmed query-string values.
type Query struct {
	values url.Values
}

func QueryOf(r *http.Request) Query {
	return Query{values: r.URL.Query()}
}

func (q Query) String(key string) string {
	return strings.TrimSpace(q.values.Get(key))
}

// Int returns fallback for a missing key and a VALIDATION error naming the
// field when the value is not an integer in [min, max].
func (q Query) Int(key string, fallback, min, max int) (int, error) {
	raw := q.String(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").
			WithDetails(map[string]any{"field": key})
	}
	if n < min || n > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").
			WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return n, nil
}

// SanitizeString trims, drops control characters and caps the result at
// maxLen runes. maxLen <= 0 means no cap.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(input))
	if maxLen > 0 {
		if runes := []rune(cleaned); len(runes) > maxLen {
			cleaned = strings.TrimSpace(string(runes[:maxLen]))
		}
	}
	return cleaned
}
