package remote

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
)

func TestCaptionClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		file, _, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			return
		}
		data, _ := io.ReadAll(file)
		assert.Equal(t, []byte("jpeg bytes"), data)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"description":"a dog on a couch"}`))
	}))
	defer srv.Close()

	got, err := NewCaptionClient(srv.URL, time.Second).Caption(context.Background(), []byte("jpeg bytes"))
	require.NoError(t, err)
	assert.Equal(t, "a dog on a couch", got)
}

func TestCaptionClient_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"model down"}`},
		{"empty description", http.StatusOK, `{"description":"  "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewCaptionClient(srv.URL, time.Second).Caption(context.Background(), []byte("x"))
			assert.ErrorIs(t, err, ErrBadResponse)
		})
	}
}

func TestCaptionClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewCaptionClient(url, time.Second).Caption(context.Background(), []byte("x"))
	assert.Error(t, err)
}

func TestTranslateClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req translateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, translateRequest{Q: "dog", Source: "auto", Target: "pt", Format: "text"}, req)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"translatedText":"cachorro"}`))
	}))
	defer srv.Close()

	got, err := NewTranslateClient(srv.URL, "secret", time.Second).Translate(context.Background(), "dog", "pt")
	require.NoError(t, err)
	assert.Equal(t, "cachorro", got)
}

func TestTranslateClient_EmptyTextSkipsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	got, err := NewTranslateClient(srv.URL, "", time.Second).Translate(context.Background(), "", "pt")
	require.NoError(t, err)
	assert.Equal(t, "", got)
	assert.False(t, called)
}

func TestTranslateClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewTranslateClient(srv.URL, "", time.Second).Translate(context.Background(), "dog", "pt")
	assert.ErrorIs(t, err, ErrBadResponse)
}
