package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canvasflow/server/internal/infra/config"
)

func TestNew(t *testing.T) {
	client := New(config.HTTPClientConfig{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		MaxConnsPerHost:     4,
		IdleConnTimeout:     time.Minute,
		DialTimeout:         time.Second,
		TLSHandshakeTimeout: time.Second,
		ResponseTimeout:     50 * time.Millisecond,
	})

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 10, transport.MaxIdleConns)
	assert.Equal(t, 4, transport.MaxConnsPerHost)
	assert.Equal(t, 50*time.Millisecond, client.Timeout)

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()

	_, err := client.Get(slow.URL)
	assert.Error(t, err)
}
