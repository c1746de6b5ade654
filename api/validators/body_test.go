package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/freshora-backend/pkg/errors"
)

type sampleBody struct {
	Address string `json:"address" validate:"required"`
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
	Items   []struct {
		Product  string `json:"product" validate:"required"`
		Quantity int    `json:"quantity" validate:"min=1"`
	} `json:"items" validate:"required,min=1,dive"`
}

func newRequest(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	var dest sampleBody
	err := DecodeJSONBody(newRequest(`{"address":"a1","items":[{"product":"p1","quantity":1}],"extra":true}`), &dest)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeJSONBodyLenientIgnoresUnknownFields(t *testing.T) {
	var dest sampleBody
	err := DecodeJSONBodyLenient(newRequest(`{"address":"a1","items":[{"product":"p1","quantity":2,"_id":"x"}],"extra":true}`), &dest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dest.Address != "a1" || len(dest.Items) != 1 || dest.Items[0].Quantity != 2 {
		t.Fatalf("unexpected decode result %+v", dest)
	}
}

func TestDecodeJSONBodyValidationDetails(t *testing.T) {
	var dest sampleBody
	err := DecodeJSONBodyLenient(newRequest(`{"email":"nope","items":[]}`), &dest)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %T", typed.Details())
	}
	if details["address"] != "is required" {
		t.Fatalf("expected address detail, got %v", details)
	}
	if details["email"] != "must be a valid email" {
		t.Fatalf("expected email detail, got %v", details)
	}
}

func TestDecodeJSONBodyMalformed(t *testing.T) {
	var dest sampleBody
	if err := DecodeJSONBody(newRequest(`{"address":`), &dest); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestQueryInt(t *testing.T) {
	q := QueryOf(httptest.NewRequest(http.MethodGet, "/?limit=30&bad=x&big=500&cursor=%20abc%20", nil))
	if v, err := q.Int("limit", 25, 1, 100); err != nil || v != 30 {
		t.Fatalf("expected 30, got %d (%v)", v, err)
	}
	if v, err := q.Int("missing", 25, 1, 100); err != nil || v != 25 {
		t.Fatalf("expected default, got %d (%v)", v, err)
	}
	if _, err := q.Int("bad", 25, 1, 100); err == nil {
		t.Fatalf("expected error for non numeric value")
	}
	if _, err := q.Int("big", 25, 1, 100); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for out of range value, got %v", err)
	}
	if got := q.String("cursor"); got != "abc" {
		t.Fatalf("expected trimmed cursor, got %q", got)
	}
}

func TestSanitizeString(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"  12 Orchard Lane \n", 0, "12 Orchard Lane"},
		{"addr\x00-7", 0, "addr-7"},
		{"héllo wörld", 5, "héllo"},
		{"short", 10, "short"},
	}
	for _, tc := range cases {
		if got := SanitizeString(tc.in, tc.max); got != tc.want {
			t.Errorf("SanitizeString(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}
