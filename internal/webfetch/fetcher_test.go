package webfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	xerrors "agentic-browser/internal/errors"
)

const samplePage = `<!doctype html>
<html><head>
<title> Cartões Itaú </title>
<meta name="description" content="Conheça os cartões">
<meta name="keywords" content="cartão, crédito , ">
<meta name="author" content="Itaú">
<script>var secret = 1;</script>
</head>
<body>
<header>Menu topo</header>
<nav>Links</nav>
<div class="page-content">
  <p>Cartão   sem
  anuidade.</p>
  <script>track()</script>
</div>
<footer>Rodapé</footer>
</body></html>`

func TestFetchExtractsMainContent(t *testing.T) {
	var gotUA, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	page, err := New(Config{}).Fetch(context.Background(), srv.URL+"/cartoes")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if page.Title != "Cartões Itaú" {
		t.Fatalf("unexpected title %q", page.Title)
	}
	if page.Content != "Cartão sem anuidade." {
		t.Fatalf("unexpected content %q", page.Content)
	}
	want := Metadata{
		Description: "Conheça os cartões",
		Keywords:    []string{"cartão", "crédito"},
		Author:      "Itaú",
		Domain:      strings.TrimPrefix(srv.URL, "http://"),
	}
	if diff := cmp.Diff(want, page.Metadata); diff != "" {
		t.Fatalf("metadata mismatch (-want +got):\n%s", diff)
	}
	if gotUA != defaultUserAgent || !strings.HasPrefix(gotLang, "pt-BR") {
		t.Fatalf("unexpected headers: %q %q", gotUA, gotLang)
	}
}

func TestFetchTitleFallbacks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/h1" {
			_, _ = w.Write([]byte(`<html><body><h1>Investimentos</h1><p>CDB</p></body></html>`))
			return
		}
		_, _ = w.Write([]byte(`<html><body><p>sem nada</p></body></html>`))
	}))
	defer srv.Close()

	f := New(Config{})
	page, err := f.Fetch(context.Background(), srv.URL+"/h1")
	if err != nil || page.Title != "Investimentos" || page.Content != "Investimentos CDB" {
		t.Fatalf("unexpected page %+v err=%v", page, err)
	}
	page, err = f.Fetch(context.Background(), srv.URL+"/none")
	if err != nil || page.Title != "Sem título" {
		t.Fatalf("unexpected page %+v err=%v", page, err)
	}
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(Config{}).Fetch(context.Background(), srv.URL)
	if !xerrors.IsCode(err, xerrors.CodeRemoteError) {
		t.Fatalf("expected remote error, got %v", err)
	}
}

func TestSearchParsesResultLinks(t *testing.T) {
	var gotQuery, gotNum string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotNum = r.URL.Query().Get("num")
		_, _ = w.Write([]byte(`<html><body>
<a href="/search?q=other">Nav</a>
<a href="/url?q=https://www.itau.com.br/pix&sa=U">Pix <b>Itaú</b></a>
<a href="/url?q=https://maps.google.com/x&sa=U">Mapa</a>
<a href="/url?q=https%3A%2F%2Fwww.b3.com.br%2F&sa=U">B3</a>
<a href="/url?q=https://third.example/&sa=U">Terceiro</a>
</body></html>`))
	}))
	defer srv.Close()

	results, err := New(Config{SearchURL: srv.URL + "/search"}).Search(context.Background(), "pix itaú", 2)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	want := []SearchResult{
		{Title: "Pix Itaú", URL: "https://www.itau.com.br/pix", Source: "google_search"},
		{Title: "B3", URL: "https://www.b3.com.br/", Source: "google_search"},
	}
	if diff := cmp.Diff(want, results); diff != "" {
		t.Fatalf("results mismatch (-want +got):\n%s", diff)
	}
	if gotQuery != "pix itaú" || gotNum != "4" {
		t.Fatalf("unexpected query params q=%q num=%q", gotQuery, gotNum)
	}
}

func TestFetchAllSkipsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			http.Error(w, "x", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`<html><body><main>ok</main></body></html>`))
	}))
	defer srv.Close()

	pages := New(Config{}).FetchAll(context.Background(), []string{srv.URL + "/a", srv.URL + "/bad"}, 2)
	if len(pages) != 2 || pages[0] == nil || pages[1] != nil {
		t.Fatalf("unexpected pages %+v", pages)
	}
	if pages[0].Content != "ok" {
		t.Fatalf("unexpected content %q", pages[0].Content)
	}
}
