package render_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/webcrawler/internal/render"
)

func TestRender_Success(t *testing.T) {
	var captured map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("/content", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "test-agent/1.0", r.Header.Get("User-Agent"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Write([]byte("<html>rendered</html>"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := render.NewHTTPClient(server.URL, "test-agent/1.0", nil)
	result := client.Render(context.Background(), "https://example.com/spa", 5*time.Second, true)

	assert.True(t, result.Success())
	assert.Equal(t, http.StatusOK, result.StatusCode())
	assert.Equal(t, "<html>rendered</html>", result.HTML())
	assert.Greater(t, result.RenderTime(), time.Duration(0))

	// request contract: url, waitFor, rejectResourceTypes
	assert.Equal(t, "https://example.com/spa", captured["url"])
	assert.Equal(t, float64(20000), captured["waitFor"])
	assert.ElementsMatch(t, []any{"image", "media", "font"}, captured["rejectResourceTypes"])
}

func TestRender_SimpleWaitUsesShortWaitFor(t *testing.T) {
	var captured map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("/content", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &captured)
		w.Write([]byte("<html>x</html>"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := render.NewHTTPClient(server.URL, "test-agent/1.0", nil)
	client.Render(context.Background(), "https://example.com/", 5*time.Second, false)

	assert.Equal(t, float64(5000), captured["waitFor"])
}

func TestRender_CustomHeadersForwarded(t *testing.T) {
	var captured map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("/content", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &captured)
		w.Write([]byte("<html>x</html>"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := render.NewHTTPClient(server.URL, "test-agent/1.0", nil)
	client.SetCustomHeaders(map[string]string{"Authorization": "Bearer tok"})
	client.Render(context.Background(), "https://example.com/", time.Second, false)

	headers, ok := captured["headers"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Bearer tok", headers["Authorization"])
}

func TestRender_ErrorStatusKeepsPartialBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/content", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("partial diagnostics"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := render.NewHTTPClient(server.URL, "test-agent/1.0", nil)
	result := client.Render(context.Background(), "https://example.com/", time.Second, false)

	assert.False(t, result.Success())
	assert.Equal(t, http.StatusBadGateway, result.StatusCode())
	assert.Equal(t, "partial diagnostics", result.HTML())
	assert.NotEmpty(t, result.ErrMessage())
}

func TestRender_EmptyBodyIsFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/content", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := render.NewHTTPClient(server.URL, "test-agent/1.0", nil)
	result := client.Render(context.Background(), "https://example.com/", time.Second, false)

	assert.False(t, result.Success())
	assert.NotEmpty(t, result.ErrMessage())
}

func TestRender_Timeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/content", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte("<html>late</html>"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := render.NewHTTPClient(server.URL, "test-agent/1.0", nil)
	result := client.Render(context.Background(), "https://example.com/", 50*time.Millisecond, false)

	assert.False(t, result.Success())
	assert.NotEmpty(t, result.ErrMessage())
}

func TestIsAvailable(t *testing.T) {
	mux := http.NewServeMux()
	healthy := true
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := render.NewHTTPClient(server.URL, "test-agent/1.0", nil)

	assert.True(t, client.IsAvailable(context.Background()))

	healthy = false
	assert.False(t, client.IsAvailable(context.Background()))
}

func TestIsAvailable_Unreachable(t *testing.T) {
	client := render.NewHTTPClient("http://127.0.0.1:1", "test-agent/1.0", nil)
	assert.False(t, client.IsAvailable(context.Background()))
}
