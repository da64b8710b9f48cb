package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeService(t *testing.T, calls *atomic.Int64, translations map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		out, ok := translations[body["q"]]
		if !ok {
			out = "translated:" + body["q"]
		}
		fmt.Fprintf(w, `{"data":{"translations":[{"translatedText":%q}]}}`, out)
	}))
}

func TestText_TranslatesViaRemote(t *testing.T) {
	var calls atomic.Int64
	srv := newFakeService(t, &calls, map[string]string{"你好": "Hello"})
	defer srv.Close()

	tr := NewTranslator(srv.URL, "k", "zh", "en", time.Second)
	out, err := tr.Text(context.Background(), "你好")
	require.NoError(t, err)
	assert.Equal(t, "Hello", out)
	assert.Equal(t, int64(1), calls.Load())
}

func TestText_WhitespaceIsPassthrough(t *testing.T) {
	var calls atomic.Int64
	srv := newFakeService(t, &calls, nil)
	defer srv.Close()

	tr := NewTranslator(srv.URL, "k", "zh", "en", time.Second)
	for _, in := range []string{"", "   ", "\n\t"} {
		out, err := tr.Text(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
	assert.Zero(t, calls.Load(), "whitespace input must not hit the remote service")
}

func TestText_SkipsTextAlreadyInTargetLanguage(t *testing.T) {
	var calls atomic.Int64
	srv := newFakeService(t, &calls, nil)
	defer srv.Close()

	tr := NewTranslator(srv.URL, "k", "zh", "en", time.Second)
	in := "This summer dress is made from lightweight breathable cotton and ships worldwide."
	out, err := tr.Text(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Zero(t, calls.Load(), "already-translated text must not hit the remote service")
}

func TestText_RemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	tr := NewTranslator(srv.URL, "k", "zh", "en", time.Second)
	_, err := tr.Text(context.Background(), "连衣裙")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestTags_TranslatesEachElement(t *testing.T) {
	var calls atomic.Int64
	srv := newFakeService(t, &calls, map[string]string{
		"夏天": "summer",
		"裙子": "dress",
	})
	defer srv.Close()

	tr := NewTranslator(srv.URL, "k", "zh", "en", time.Second)
	out, err := tr.Tags(context.Background(), "夏天, 裙子,  ,")
	require.NoError(t, err)
	assert.Equal(t, "summer, dress", out)
	assert.Equal(t, int64(2), calls.Load())
}

func TestConvertPrice(t *testing.T) {
	// 100 at rate 18.5 with 20% markup.
	assert.Equal(t, 2220.0, ConvertPrice(100, 18.5, 20))
	assert.Equal(t, 0.0, ConvertPrice(0, 18.5, 20))
	assert.Equal(t, 19.0, ConvertPrice(1, 18.5, 0))
}
