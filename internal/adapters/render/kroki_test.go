package render

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/mermaidbot/internal/domain"
)

func newKrokiServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/mermaid/svg", r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		if string(body) == "flowchart TD\n    A --> B --> C" {
			w.Header().Set("Content-Type", "image/svg+xml")
			_, _ = io.WriteString(w, `<svg>ok</svg>`)
			return
		}
		http.Error(w, "Error 400: Parse error on line 1:\nExpecting 'NEWLINE'", http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestKrokiEngine_Render(t *testing.T) {
	var calls atomic.Int32
	srv := newKrokiServer(t, &calls)
	a := NewAdapter(NewKrokiEngine(srv.URL, time.Second), time.Second)

	out := a.Render(context.Background(), domain.RenderRequest{Source: "flowchart TD\n    A --> B --> C"})

	require.True(t, out.IsRendered(), "outcome: %+v", out)
	assert.Equal(t, "<svg>ok</svg>", out.SVG)
	assert.Equal(t, int32(1), calls.Load(), "parse result should be reused by render")
}

func TestKrokiEngine_SyntaxError(t *testing.T) {
	var calls atomic.Int32
	srv := newKrokiServer(t, &calls)
	a := NewAdapter(NewKrokiEngine(srv.URL, time.Second), time.Second)

	out := a.Render(context.Background(), domain.RenderRequest{Source: "flowchart TD\n    A --> B"})

	require.Equal(t, domain.RenderKindSyntaxError, out.Kind)
	assert.Contains(t, out.Message, "Expecting 'NEWLINE'")
}

func TestKrokiEngine_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewKrokiEngine(srv.URL, time.Second).Parse(context.Background(), "flowchart TD\nA-->B")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
