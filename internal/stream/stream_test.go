package stream_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playdar/playdar/internal/query"
	"github.com/playdar/playdar/internal/stream"
)

type stubRegistry struct {
	items map[string]query.ResultItem
}

func (s *stubRegistry) LocateSID(sid string) (query.ResultItem, bool) {
	ri, ok := s.items[sid]
	return ri, ok
}

type stubLocalSource struct {
	body        string
	contentType string
	ok          bool
}

func (s *stubLocalSource) Open(sid string) (io.ReadCloser, string, int64, bool) {
	if !s.ok {
		return nil, "", 0, false
	}
	return io.NopCloser(strings.NewReader(s.body)), s.contentType, int64(len(s.body)), true
}

func TestServeHTTP_UnknownSIDIs404(t *testing.T) {
	reg := &stubRegistry{items: map[string]query.ResultItem{}}
	loc := stream.New(reg, nil, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/sid/nope", nil)
	w := httptest.NewRecorder()
	loc.ServeHTTP(w, req, "nope")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServeHTTP_LocalResultWithNoSourceIs404(t *testing.T) {
	reg := &stubRegistry{items: map[string]query.ResultItem{
		"s1": {Source: "this-node", SID: "s1"},
	}}
	loc := stream.New(reg, nil, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/sid/s1", nil)
	w := httptest.NewRecorder()
	loc.ServeHTTP(w, req, "s1")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServeHTTP_StreamsFromLocalSource(t *testing.T) {
	reg := &stubRegistry{items: map[string]query.ResultItem{
		"s1": {Source: "this-node", SID: "s1", Mimetype: "audio/mpeg"},
	}}
	local := &stubLocalSource{body: "audio-bytes", contentType: "audio/mpeg", ok: true}
	loc := stream.New(reg, local, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/sid/s1", nil)
	w := httptest.NewRecorder()
	loc.ServeHTTP(w, req, "s1")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio-bytes", w.Body.String())
	assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
}

func TestServeHTTP_ProxiesRemoteURL(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/flac")
		w.Write([]byte("remote-bytes"))
	}))
	defer upstream.Close()

	reg := &stubRegistry{items: map[string]query.ResultItem{
		"s2": {Source: "other-node", SID: "s2", URL: upstream.URL},
	}}
	loc := stream.New(reg, nil, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/sid/s2", nil)
	w := httptest.NewRecorder()
	loc.ServeHTTP(w, req, "s2")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "remote-bytes", w.Body.String())
	assert.Equal(t, "audio/flac", w.Header().Get("Content-Type"))
}

func TestServeHTTP_ProxyUpstreamErrorIs502(t *testing.T) {
	reg := &stubRegistry{items: map[string]query.ResultItem{
		"s3": {Source: "other-node", SID: "s3", URL: "http://127.0.0.1:1/unreachable"},
	}}
	loc := stream.New(reg, nil, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/sid/s3", nil)
	w := httptest.NewRecorder()
	loc.ServeHTTP(w, req, "s3")

	assert.Equal(t, http.StatusBadGateway, w.Code)
}
