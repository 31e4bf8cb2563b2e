package testutil

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hupe1980/browsermesh/relay"
)

// StartRelay runs an in-process relay on an ephemeral port and returns it
// together with its ws:// URL. The server is torn down with the test.
func StartRelay(t *testing.T, optFns ...func(o *relay.Options)) (*relay.Server, string) {
	t.Helper()
	srv := relay.New(optFns...)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return srv, "ws" + strings.TrimPrefix(hs.URL, "http")
}
