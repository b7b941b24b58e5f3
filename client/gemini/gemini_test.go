package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lalomorales22/roundtable/core"
	"github.com/pkoukk/tiktoken-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordCounter counts whitespace separated words.
type wordCounter struct{}

func (wordCounter) CountTokens(text string) (int, error) { return len(strings.Fields(text)), nil }

// blockingCounter never answers until release is closed.
type blockingCounter struct{ release chan struct{} }

func (b blockingCounter) CountTokens(string) (int, error) {
	<-b.release
	return 1, nil
}

// stalledLoader blocks in Load until ctx ends.
type stalledLoader struct{ wordCounter }

func (stalledLoader) Load(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

type brokenCounter struct{}

func (brokenCounter) CountTokens(string) (int, error) { return 0, errors.New("no encoding") }

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return New(func(o *Options) {
		o.APIKey = "g-key"
		o.BaseURL = srv.URL
		o.HTTPClient = srv.Client()
		o.Counter = wordCounter{}
	})
}

func TestComplete_Success(t *testing.T) {
	var got generateRequest

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-1.5-pro:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &got))
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Hi from Gemini"}]}}]}`)
	})

	out, err := c.Complete(context.Background(), core.Agent{Name: "Gemini", Persona: "You are Gemini.", Model: "gemini-1.5-pro"}, "User: hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi from Gemini", out)

	require.Len(t, got.Contents, 1)
	assert.Equal(t, "You are Gemini.\n\nConversation so far:\nUser: hello", got.Contents[0].Parts[0].Text)
}

func TestComplete_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   core.ErrorKind
	}{
		{"upstream status", http.StatusTooManyRequests, `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`, core.KindUpstream},
		{"blocked", http.StatusOK, `{"promptFeedback":{"blockReason":"SAFETY"}}`, core.KindUpstream},
		{"no candidates", http.StatusOK, `{"candidates":[]}`, core.KindMalformedResponse},
		{"not json", http.StatusOK, `<html>`, core.KindMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := c.Complete(context.Background(), core.Agent{Name: "Gemini"}, "x")
			require.Error(t, err)
			assert.Equal(t, tt.kind, core.AsAgentError(err).Kind)
		})
	}
}

func TestComplete_MissingCredential(t *testing.T) {
	c := New(func(o *Options) { o.Counter = wordCounter{} })

	_, err := c.Complete(context.Background(), core.Agent{Name: "Gemini"}, "")
	require.Error(t, err)
	assert.Equal(t, core.KindMissingCredential, core.AsAgentError(err).Kind)
}

func TestTruncate(t *testing.T) {
	text := "A: one two\nB: three four\nC: five six"

	// Each line costs three words plus one separator.
	assert.Equal(t, text, Truncate(text, 100, 4, wordCounter{}))
	assert.Equal(t, "B: three four\nC: five six", Truncate(text, 8, 4, wordCounter{}))
	assert.Equal(t, "C: five six", Truncate(text, 1, 4, wordCounter{}))
	assert.Equal(t, text, Truncate(text, 0, 4, wordCounter{}))
	assert.Equal(t, "C: five six", Truncate(text, 5, 1, brokenCounter{}))
	assert.Equal(t, "", Truncate("", 5, 1, wordCounter{}))
}

func TestComplete_SlowCounterFallsBackToTail(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	counters := map[string]TokenCounter{
		"blocking count": blockingCounter{release: release},
		"stalled load":   stalledLoader{},
	}

	for name, counter := range counters {
		t.Run(name, func(t *testing.T) {
			var got generateRequest

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				raw, _ := io.ReadAll(r.Body)
				require.NoError(t, json.Unmarshal(raw, &got))
				_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`)
			}))
			t.Cleanup(srv.Close)

			c := New(func(o *Options) {
				o.APIKey = "g-key"
				o.BaseURL = srv.URL
				o.HTTPClient = srv.Client()
				o.Counter = counter
				o.FallbackLines = 2
				o.CountTimeout = 30 * time.Millisecond
			})

			start := time.Now()
			out, err := c.Complete(context.Background(), core.Agent{Name: "Gemini", Persona: "P"}, "A: 1\nB: 2\nC: 3\nD: 4")
			require.NoError(t, err)
			assert.Equal(t, "ok", out)
			assert.Less(t, time.Since(start), 2*time.Second)
			assert.Equal(t, "P\n\nConversation so far:\nC: 3\nD: 4", got.Contents[0].Parts[0].Text)
		})
	}
}

func TestTiktokenCounter_LoadingDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	c := NewTiktokenCounter("cl100k_base")
	c.getEncoding = func(string) (*tiktoken.Tiktoken, error) {
		<-release
		return nil, errors.New("offline")
	}

	_, err := c.CountTokens("hello")
	assert.ErrorIs(t, err, ErrEncodingLoading)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Load(ctx), context.DeadlineExceeded)

	close(release)
	require.Error(t, c.Load(context.Background()))

	_, err = c.CountTokens("hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offline")
}
