package helpers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type decodeTarget struct {
	Email string `json:"email"`
}

func TestDecodeJSONPopulatesStruct(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@example.com"}`))

	var out decodeTarget
	require.NoError(t, DecodeJSON(r, &out))
	assert.Equal(t, "a@example.com", out.Email)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@example.com","admin":true}`))

	var out decodeTarget
	err := DecodeJSON(r, &out)
	assert.Error(t, err)
}

func TestDecodeJSONRejectsMalformedBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`not json`))

	var out decodeTarget
	err := DecodeJSON(r, &out)
	assert.Error(t, err)
}
