package parser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"NewsRelay/internal/domain"
)

func TestArticleImageResolver(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/og", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head>
			<meta name="twitter:image" content="https://img.example.com/tw.jpg">
			<meta property="og:image" content="/static/lead.jpg">
		</head><body><img src="/first.png"></body></html>`))
	})
	mux.HandleFunc("/img-only", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><img src="data:image/gif;base64,AAAA"><img src="pics/a.png"></body></html>`))
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/og", http.StatusFound)
	})
	mux.HandleFunc("/pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF"))
	})
	mux.HandleFunc("/bare", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><p>no pictures</p></body></html>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	r := NewArticleImageResolver(server.Client())
	ctx := context.Background()

	got, err := r.ArticleImage(ctx, server.URL+"/moved")
	if err != nil {
		t.Fatalf("ArticleImage error: %v", err)
	}
	// httptest serves plain http; normalisation upgrades the scheme.
	if want := "https://" + server.Listener.Addr().String() + "/static/lead.jpg"; got != want {
		t.Fatalf("got %s, want %s", got, want)
	}

	got, err = r.ArticleImage(ctx, server.URL+"/img-only")
	if err != nil {
		t.Fatalf("ArticleImage error: %v", err)
	}
	if want := "https://" + server.Listener.Addr().String() + "/pics/a.png"; got != want {
		t.Fatalf("got %s, want %s", got, want)
	}

	for _, path := range []string{"/pdf", "/bare"} {
		if _, err := r.ArticleImage(ctx, server.URL+path); !errors.Is(err, domain.ErrNoImage) {
			t.Fatalf("%s: expected ErrNoImage, got %v", path, err)
		}
	}

	if _, err := r.ArticleImage(ctx, server.URL+"/missing"); err == nil || errors.Is(err, domain.ErrNoImage) {
		t.Fatalf("expected http error, got %v", err)
	}
}
