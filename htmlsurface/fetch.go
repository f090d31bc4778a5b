package htmlsurface

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	tls2 "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"

	"github.com/use-agent/leadscrape/cache"
	"github.com/use-agent/leadscrape/config"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// maxBodyBytes caps a fetched document.
const maxBodyBytes = 10 * 1024 * 1024

// Fetcher retrieves a document. It returns the body and the final URL after
// redirects.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, string, error)
}

type fetchFunc func(ctx context.Context, rawURL string) ([]byte, string, error)

// refetcher is implemented by fetchers that can skip their cache.
type refetcher interface {
	Refetch(ctx context.Context, rawURL string) ([]byte, string, error)
}

// Pages serves fixed documents keyed by exact URL. It backs offline replays
// of a captured search session.
type Pages map[string]string

// Fetch implements Fetcher.
func (p Pages) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	body, ok := p[rawURL]
	if !ok {
		return nil, "", fmt.Errorf("httpfetch: HTTP 404 for %s", rawURL)
	}
	return []byte(body), rawURL, nil
}

// HTTPFetcher performs paced HTTP requests with a Chrome TLS fingerprint (utls).
type HTTPFetcher struct {
	client   *http.Client
	limiter  *rate.Limiter
	timeout  time.Duration
	language string
}

// NewHTTPFetcher creates a fetcher. A non-empty proxy routes every request
// through the standard transport instead of the fingerprinted one.
func NewHTTPFetcher(cfg config.HTTPConfig, proxy, acceptLanguage string) *HTTPFetcher {
	plain := &http.Transport{}
	var rt http.RoundTripper = &chromeTransport{plain: plain}

	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			plain.Proxy = http.ProxyURL(proxyURL)
			rt = plain
		}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &HTTPFetcher{
		client:   &http.Client{Transport: rt},
		limiter:  rate.NewLimiter(limit, burst),
		timeout:  cfg.Timeout,
		language: acceptLanguage,
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, targetURL string) ([]byte, string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("httpfetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	if f.language != "" {
		req.Header.Set("Accept-Language", f.language)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("httpfetch: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("httpfetch: HTTP %d for %s", resp.StatusCode, targetURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, "", fmt.Errorf("httpfetch: read body: %w", err)
	}

	return body, resp.Request.URL.String(), nil
}

// Close releases idle connections.
func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

// chromeTransport dials https origins with a Chrome ClientHello and speaks
// whichever protocol the server selects through ALPN. One connection serves
// one request.
type chromeTransport struct {
	plain *http.Transport
}

func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.plain.RoundTrip(req)
	}

	conn, err := dialTLSChrome(req.Context(), canonicalAddr(req.URL))
	if err != nil {
		return nil, err
	}

	if conn.ConnectionState().NegotiatedProtocol == http2.NextProtoTLS {
		cc, err := (&http2.Transport{}).NewClientConn(conn)
		if err != nil {
			conn.Close()
			return nil, err
		}
		resp, err := cc.RoundTrip(req)
		if err != nil {
			cc.Close()
			return nil, err
		}
		resp.Body = &connBody{ReadCloser: resp.Body, closeConn: cc.Close}
		return resp, nil
	}

	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, err
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		conn.Close()
		return nil, err
	}
	resp.Body = &connBody{ReadCloser: resp.Body, closeConn: conn.Close}
	return resp, nil
}

// connBody closes the underlying connection together with the body.
type connBody struct {
	io.ReadCloser
	closeConn func() error
}

func (b *connBody) Close() error {
	err := b.ReadCloser.Close()
	_ = b.closeConn()
	return err
}

// dialTLSChrome establishes a TLS connection using a Chrome fingerprint via utls.
func dialTLSChrome(ctx context.Context, addr string) (*tls2.UConn, error) {
	dialer := &net.Dialer{}
	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls2.UClient(rawConn, &tls2.Config{
		ServerName: host,
	}, tls2.HelloChrome_Auto)

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}

func canonicalAddr(u *url.URL) string {
	port := u.Port()
	if port == "" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}

// CachingFetcher serves repeated URLs from a page cache. Businesses that show
// up on several result pages are fetched once.
type CachingFetcher struct {
	next  Fetcher
	pages *cache.Cache
}

// NewCachingFetcher wraps next with pages.
func NewCachingFetcher(next Fetcher, pages *cache.Cache) *CachingFetcher {
	return &CachingFetcher{next: next, pages: pages}
}

// Fetch implements Fetcher.
func (f *CachingFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	if p, ok := f.pages.Get(rawURL); ok {
		slog.Debug("page served from cache", "url", rawURL)
		return p.Body, p.FinalURL, nil
	}
	return f.Refetch(ctx, rawURL)
}

// Refetch fetches rawURL from the wrapped fetcher and replaces the cached copy.
func (f *CachingFetcher) Refetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	body, finalURL, err := f.next.Fetch(ctx, rawURL)
	if err != nil {
		return nil, "", err
	}
	f.pages.Set(rawURL, cache.Page{Body: body, FinalURL: finalURL})
	return body, finalURL, nil
}

// Close closes the wrapped fetcher if it holds resources.
func (f *CachingFetcher) Close() error {
	if c, ok := f.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
