package cacheinval

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/amenagements/internal/signing"
)

func TestHTTPInvalidatorSendsSignedPurge(t *testing.T) {
	signer := signing.NewSigner([]byte("secret"))
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != MethodPurge || !signer.Validate(r.URL.Path, r.Header.Get(signing.HeaderExpires), r.Header.Get(signing.HeaderSignature)) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		got = append(got, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	inv := NewHTTPInvalidator(srv.URL+"/", srv.Client(), signer, time.Minute, 100)
	require.NoError(t, inv.Invalidate(context.Background(), "/demandes/42"))
	assert.Equal(t, []string{"/demandes/42"}, got)

	bad := NewHTTPInvalidator(srv.URL, srv.Client(), signing.NewSigner([]byte("other")), time.Minute, 0)
	assert.Error(t, bad.Invalidate(context.Background(), "/demandes/42"))
}

func TestHTTPInvalidatorDisabled(t *testing.T) {
	inv := NewHTTPInvalidator("", nil, signing.NewSigner(nil), time.Minute, 1)
	assert.NoError(t, inv.Invalidate(context.Background(), "/demandes/1"))
}
