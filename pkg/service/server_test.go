package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/memorg/pkg/engine"
	"github.com/theapemachine/memorg/pkg/errors"
	"github.com/theapemachine/memorg/pkg/stores/s3"
	"github.com/tj/assert"
)

type memoryArchiver struct {
	exports map[string]*s3.SessionExport
}

func (a *memoryArchiver) Archive(ctx context.Context, export *s3.SessionExport) error {
	a.exports[export.Session.ID] = export
	return nil
}

func (a *memoryArchiver) Load(ctx context.Context, sessionID string) (*s3.SessionExport, error) {
	export, ok := a.exports[sessionID]
	if !ok {
		return nil, &errors.NotFoundError{Collection: "archive", ID: sessionID}
	}
	return export, nil
}

func newTestServer() *Server {
	logger := log.New(io.Discard)
	return NewServer(engine.New(engine.WithLogger(logger)), logger)
}

func request(t *testing.T, srv *Server, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := srv.App().Test(req)
	assert.NoError(t, err)

	var decoded map[string]any
	if res.Body != nil {
		data, _ := io.ReadAll(res.Body)
		if len(data) > 0 {
			_ = json.Unmarshal(data, &decoded)
		}
	}

	return res, decoded
}

func TestServerSessionFlow(t *testing.T) {
	srv := newTestServer()

	res, session := request(t, srv, http.MethodPost, "/sessions", `{"user_id":"user-1"}`)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	sessionID := session["id"].(string)

	res, conversation := request(t, srv, http.MethodPost, "/sessions/"+sessionID+"/conversations", "")
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	conversationID := conversation["id"].(string)

	res, topic := request(t, srv, http.MethodPost,
		"/conversations/"+conversationID+"/topics", `{"title":"release notes"}`)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	topicID := topic["id"].(string)

	res, exchange := request(t, srv, http.MethodPost, "/topics/"+topicID+"/exchanges",
		`{"user_message":"draft the release notes for version two","system_message":"drafting now"}`)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	assert.NotEmpty(t, exchange["id"])

	srv.engine.Store().Close()

	res, search := request(t, srv, http.MethodPost, "/search",
		`{"query":"release notes","max_results":5}`)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, search["results"], 1)

	res, usage := request(t, srv, http.MethodGet, "/usage", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 1.0, usage["vector_count"])

	res, _ = request(t, srv, http.MethodPost, "/sessions/"+sessionID+"/close", "")
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	res, _ = request(t, srv, http.MethodDelete, "/sessions/"+sessionID, "")
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
}

func TestServerErrorMapping(t *testing.T) {
	srv := newTestServer()

	res, body := request(t, srv, http.MethodPost, "/sessions", `{"user_id":""}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.NotEmpty(t, body["error"])

	res, _ = request(t, srv, http.MethodPost, "/sessions/nope/conversations", "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, _ = request(t, srv, http.MethodPost, "/search", `{"query":""}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestServerOptimizeReportsEntityLoss(t *testing.T) {
	srv := newTestServer()

	res, body := request(t, srv, http.MethodPost, "/optimize",
		`{"content":"The Voight Kampff procurement discussion covered many vendors in exhausting detail across several hours.","entities":["Voight Kampff"],"budget":2}`)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotEmpty(t, body["warning"])
	assert.Equal(t, "Voight Kampff", body["dropped_entity"])
}

func TestServerArchiveRoundTrip(t *testing.T) {
	logger := log.New(io.Discard)
	archiver := &memoryArchiver{exports: map[string]*s3.SessionExport{}}
	srv := NewServer(engine.New(
		engine.WithLogger(logger), engine.WithArchiver(archiver),
	), logger)

	res, session := request(t, srv, http.MethodPost, "/sessions", `{"user_id":"user-1"}`)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	sessionID := session["id"].(string)

	res, _ = request(t, srv, http.MethodPost, "/sessions/"+sessionID+"/close", "")
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	res, archive := request(t, srv, http.MethodGet, "/sessions/"+sessionID+"/archive", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	archived := archive["session"].(map[string]any)
	assert.Equal(t, sessionID, archived["id"])
}

func TestServerArchiveMissingWithoutArchiver(t *testing.T) {
	srv := newTestServer()

	res, _ := request(t, srv, http.MethodGet, "/sessions/whatever/archive", "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestServerMetrics(t *testing.T) {
	srv := newTestServer()

	res, body := request(t, srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, "exchanges_added")
}
