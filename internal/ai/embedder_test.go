package ai

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func vectorNorm(v []float32) float64 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	return math.Sqrt(norm)
}

func TestLocalEmbedderDeterministic(t *testing.T) {
	e := NewLocalEmbedder(64)

	a, err := e.Embed(context.Background(), []string{"machine learning is great"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, err := e.Embed(context.Background(), []string{"machine learning is great"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatalf("same text produced different vectors at %d", i)
		}
	}
}

func TestLocalEmbedderUnitNorm(t *testing.T) {
	e := NewLocalEmbedder(64)

	vectors, err := e.Embed(context.Background(), []string{"some document text", "", "!!!"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for i, v := range vectors {
		if len(v) != 64 {
			t.Fatalf("vector %d has dimension %d, want 64", i, len(v))
		}
		if math.Abs(vectorNorm(v)-1.0) > 1e-5 {
			t.Errorf("vector %d not unit norm: %f", i, vectorNorm(v))
		}
	}
}

func TestLocalEmbedderRelatedTextsCloser(t *testing.T) {
	e := NewLocalEmbedder(256)

	vectors, err := e.Embed(context.Background(), []string{
		"machine learning trains models on data",
		"machine learning builds models from data",
		"the cafeteria lunch menu changes weekly",
	})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	dot := func(a, b []float32) float64 {
		var s float64
		for i := range a {
			s += float64(a[i]) * float64(b[i])
		}
		return s
	}

	related := dot(vectors[0], vectors[1])
	unrelated := dot(vectors[0], vectors[2])
	if related <= unrelated {
		t.Errorf("related texts not closer: related=%f unrelated=%f", related, unrelated)
	}
}

func TestFakeEmbedderDeterministic(t *testing.T) {
	e := NewFakeEmbedder(32)

	a, _ := e.Embed(context.Background(), []string{"hello"})
	b, _ := e.Embed(context.Background(), []string{"hello"})
	c, _ := e.Embed(context.Background(), []string{"world"})

	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatal("same text produced different fake vectors")
		}
	}

	same := true
	for i := range a[0] {
		if a[0][i] != c[0][i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different texts produced identical fake vectors")
	}
	if math.Abs(vectorNorm(a[0])-1.0) > 1e-5 {
		t.Errorf("fake vector not unit norm: %f", vectorNorm(a[0]))
	}
}

func TestAPIEmbedderNoToken(t *testing.T) {
	e := NewAPIEmbedder(&HFClient{}, 384, 5000)

	_, err := e.Embed(context.Background(), []string{"text"})
	if err == nil {
		t.Fatal("expected error without token")
	}
	if _, ok := err.(*EmbeddingUnavailableError); !ok {
		t.Fatalf("expected EmbeddingUnavailableError, got %T", err)
	}
}

func TestAPIEmbedderTruncatesLongInput(t *testing.T) {
	var receivedLen int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req hfEmbeddingsRequest
		if err := decodeJSONBody(r, &req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		receivedLen = len(req.Inputs[0])
		w.Write([]byte(`[[0.1,0.2,0.3,0.4]]`))
	}))
	defer server.Close()

	client := newTestHFClient(server.URL)
	e := NewAPIEmbedder(client, 4, 100)

	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := e.Embed(context.Background(), []string{string(long)}); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if receivedLen != 100 {
		t.Fatalf("expected input truncated to 100 chars, got %d", receivedLen)
	}
}

func TestWithFallbackDegradesToFake(t *testing.T) {
	// API backend with no token always fails; the wrapper must fall
	// back to deterministic fake vectors of the same dimension.
	primary := NewAPIEmbedder(&HFClient{}, 16, 5000)
	e := WithFallback(primary)

	vectors, err := e.Embed(context.Background(), []string{"text one", "text two"})
	if err != nil {
		t.Fatalf("fallback Embed: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	for i, v := range vectors {
		if len(v) != 16 {
			t.Fatalf("vector %d dimension %d, want 16", i, len(v))
		}
	}
}

func TestNewEmbedderAutoPrefersLocal(t *testing.T) {
	e := NewEmbedder(EmbedderOptions{Provider: "auto", Dimension: 48})
	if e.Name() != "local" {
		t.Fatalf("auto should pick local, got %q", e.Name())
	}
	if e.Dimension() != 48 {
		t.Fatalf("unexpected dimension %d", e.Dimension())
	}
}
