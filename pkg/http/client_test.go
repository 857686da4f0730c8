package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientDo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tester", r.Header.Get("User-Agent"))
		if r.URL.Query().Get("symbol") == "" {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"code":-1003}`))
			return
		}
		_, _ = w.Write([]byte(`[1,2,3]`))
	}))
	defer srv.Close()

	c := NewClient(WithTimeout(2*time.Second), WithUserAgent("tester"))

	body, err := c.Do(context.Background(), &Request{URL: srv.URL, Query: map[string][]string{"symbol": {"BTCUSDT"}}})
	require.NoError(t, err)
	assert.Equal(t, "[1,2,3]", string(body))

	_, err = c.Do(context.Background(), &Request{Method: MethodPost, URL: srv.URL})
	var st *StatusError
	require.True(t, errors.As(err, &st))
	assert.Equal(t, http.StatusTooManyRequests, st.Status)
	assert.JSONEq(t, `{"code":-1003}`, string(st.Body))
}
