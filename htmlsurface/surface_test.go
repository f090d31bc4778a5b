package htmlsurface

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/leadscrape/cache"
	"github.com/use-agent/leadscrape/config"
	"github.com/use-agent/leadscrape/models"
	"github.com/use-agent/leadscrape/surface"
)

const (
	homeURL    = "https://search.test/"
	resultsURL = "https://search.test/search?hl=en&q=pizza+near+me"
)

var fixture = Pages{
	homeURL: `<html><body>
		<form action="/search" method="get">
			<input type="hidden" name="hl" value="en">
			<textarea name="q"></textarea>
			<input type="submit" name="btnK" value="Search">
		</form>
	</body></html>`,
	resultsURL: `<html><head><title>ignored</title><script>var x = "555-000-0000";</script></head><body>
		<div class="g"><h3>Tony's  Pizza</h3><a href="/biz/tony">site</a></div>
		<div class="g"><h3>Luigi's</h3><a href="https://luigi.test/">site</a></div>
		<div class="g"><h3>No Link</h3></div>
		<a id="next" href="?hl=en&amp;q=pizza+near+me&amp;start=10">Next</a>
	</body></html>`,
	"https://search.test/biz/tony": `<html><body><p>Call</p><p>+1 (555) 123-4567</p></body></html>`,
}

func TestSurface_SubmitBuildsGetRequest(t *testing.T) {
	s := New(fixture)
	ctx := context.Background()

	require.NoError(t, s.Navigate(ctx, homeURL))
	input, err := s.WaitElement(ctx, "textarea[name='q'], input[name='q']", time.Second)
	require.NoError(t, err)

	require.NoError(t, input.Submit("pizza near me"))

	entries, err := s.FindElements(ctx, "div.g")
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestElement_TextLinkFind(t *testing.T) {
	s := New(fixture)
	ctx := context.Background()
	require.NoError(t, s.Navigate(ctx, resultsURL))

	entries, err := s.FindElements(ctx, "div.g")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	name, err := entries[0].Find("h3")
	require.NoError(t, err)
	text, err := name.Text()
	require.NoError(t, err)
	assert.Equal(t, "Tony's Pizza", text)

	link, err := entries[0].Find("a")
	require.NoError(t, err)
	href, err := link.Link()
	require.NoError(t, err)
	assert.Equal(t, "https://search.test/biz/tony", href)

	_, err = entries[2].Find("a")
	assert.True(t, models.IsCode(err, models.ErrCodeElementMissing))
}

func TestElement_TextSkipsScripts(t *testing.T) {
	s := New(fixture)
	ctx := context.Background()
	require.NoError(t, s.Navigate(ctx, resultsURL))

	els, err := s.FindElements(ctx, "html")
	require.NoError(t, err)
	require.Len(t, els, 1)

	text, err := els[0].Text()
	require.NoError(t, err)
	assert.NotContains(t, text, "555-000-0000")
	assert.NotContains(t, text, "ignored")
	assert.Contains(t, text, "Luigi's")
}

func TestElement_ClickFollowsRelativeLink(t *testing.T) {
	s := New(fixture)
	ctx := context.Background()
	s.fetcher = Pages{
		resultsURL: fixture[resultsURL],
		"https://search.test/search?hl=en&q=pizza+near+me&start=10": `<html><body><div class="g"><h3>Page Two</h3></div></body></html>`,
	}
	require.NoError(t, s.Navigate(ctx, resultsURL))

	next, err := s.WaitElement(ctx, "#next", time.Second)
	require.NoError(t, err)
	require.NoError(t, next.Click())

	els, err := s.FindElements(ctx, "h3")
	require.NoError(t, err)
	require.Len(t, els, 1)
	text, _ := els[0].Text()
	assert.Equal(t, "Page Two", text)
}

func TestSurface_WaitTimesOut(t *testing.T) {
	s := New(fixture)
	ctx := context.Background()
	require.NoError(t, s.Navigate(ctx, homeURL))

	start := time.Now()
	_, err := s.WaitElement(ctx, "#captcha-form", 150*time.Millisecond)

	assert.True(t, models.IsCode(err, models.ErrCodeNavigationTimeout))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSurface_WaitInterrupted(t *testing.T) {
	s := New(fixture)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Navigate(ctx, homeURL))

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := s.WaitElement(ctx, "#captcha-form", time.Minute)

	assert.True(t, models.IsCode(err, models.ErrCodeInterrupted))
}

func TestSurface_InvalidSelector(t *testing.T) {
	s := New(fixture)

	_, err := s.FindElements(context.Background(), "div[")

	assert.True(t, models.IsCode(err, models.ErrCodeSurface))
}

func TestSurface_Contexts(t *testing.T) {
	s := New(fixture)
	ctx := context.Background()
	primary := s.Current()

	h, err := s.OpenContext(ctx, "https://search.test/biz/tony")
	require.NoError(t, err)
	assert.Equal(t, primary, s.Current(), "opening must not steal focus")
	assert.Equal(t, []surface.Handle{primary, h}, s.Contexts())

	require.NoError(t, s.SwitchContext(ctx, h))
	body, err := s.WaitElement(ctx, "body", time.Second)
	require.NoError(t, err)
	text, _ := body.Text()
	assert.Equal(t, "Call\n+1 (555) 123-4567", text)

	require.NoError(t, s.CloseContext(ctx, h))
	assert.Equal(t, surface.Handle(""), s.Current())
	require.NoError(t, s.SwitchContext(ctx, primary))
	assert.Equal(t, []surface.Handle{primary}, s.Contexts())
}

func TestSurface_OpenContextFailureLeavesNoContext(t *testing.T) {
	s := New(fixture)

	_, err := s.OpenContext(context.Background(), "https://search.test/missing")

	assert.True(t, models.IsCode(err, models.ErrCodeSurface))
	assert.Len(t, s.Contexts(), 1)
}

func TestSurface_CaptureDiagnostic(t *testing.T) {
	s := New(fixture)
	ctx := context.Background()
	require.NoError(t, s.Navigate(ctx, homeURL))
	path := filepath.Join(t.TempDir(), "diag.html")

	require.NoError(t, s.CaptureDiagnostic(ctx, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `action="/search"`)
}

func TestHTTPFetcher_PlainHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/new", http.StatusFound)
			return
		}
		assert.Equal(t, "en-GB", r.Header.Get("Accept-Language"))
		w.Write([]byte("<p>ok</p>"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(config.HTTPConfig{RequestsPerSecond: 100, Burst: 1, Timeout: 5 * time.Second}, "", "en-GB")
	defer f.Close()

	body, final, err := f.Fetch(context.Background(), srv.URL+"/old")
	require.NoError(t, err)
	assert.Equal(t, "<p>ok</p>", string(body))
	assert.Equal(t, srv.URL+"/new", final)
}

func TestHTTPFetcher_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(config.HTTPConfig{}, "", "")
	_, _, err := f.Fetch(context.Background(), srv.URL)

	assert.ErrorContains(t, err, "HTTP 429")
}

// countingFetcher counts fetches per URL.
type countingFetcher struct {
	Pages
	calls map[string]int
}

func (c *countingFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	c.calls[rawURL]++
	return c.Pages.Fetch(ctx, rawURL)
}

func TestCachingFetcher(t *testing.T) {
	next := &countingFetcher{Pages: fixture, calls: map[string]int{}}
	f := NewCachingFetcher(next, cache.New(8, time.Minute))

	for range 3 {
		body, final, err := f.Fetch(context.Background(), homeURL)
		require.NoError(t, err)
		assert.Contains(t, string(body), "<textarea")
		assert.Equal(t, homeURL, final)
	}
	_, _, err := f.Fetch(context.Background(), "https://search.test/missing")
	require.Error(t, err)
	_, _, err = f.Fetch(context.Background(), "https://search.test/missing")
	require.Error(t, err)

	assert.Equal(t, 1, next.calls[homeURL])
	assert.Equal(t, 2, next.calls["https://search.test/missing"], "failures are not cached")
	assert.NoError(t, f.Close())
}

// redirectingFetcher sends the first request for a URL to a challenge page.
type redirectingFetcher struct {
	calls map[string]int
}

func (f *redirectingFetcher) Fetch(_ context.Context, rawURL string) ([]byte, string, error) {
	f.calls[rawURL]++
	if f.calls[rawURL] == 1 {
		return []byte(`<html><body><form id="captcha-form"></form></body></html>`), "https://search.test/sorry", nil
	}
	return []byte(fixture[resultsURL]), rawURL, nil
}

func TestSurface_ReloadRequestsOriginalURL(t *testing.T) {
	f := &redirectingFetcher{calls: map[string]int{}}
	s := New(f)
	ctx := context.Background()

	require.NoError(t, s.Reload(ctx), "a blank context has nothing to reload")
	assert.Empty(t, f.calls)

	require.NoError(t, s.Navigate(ctx, resultsURL))
	els, err := s.FindElements(ctx, "#captcha-form")
	require.NoError(t, err)
	assert.Len(t, els, 1)

	require.NoError(t, s.Reload(ctx))

	assert.Equal(t, 2, f.calls[resultsURL])
	els, err = s.FindElements(ctx, "#captcha-form")
	require.NoError(t, err)
	assert.Empty(t, els)
	entries, err := s.FindElements(ctx, "div.g")
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}
