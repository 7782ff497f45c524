package mqtt311

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http/httpproxy"
	"golang.org/x/net/proxy"
)

// Proxy errors.
var (
	ErrUnsupportedProxy = errors.New("unsupported proxy scheme")
	ErrProxyRefused     = errors.New("proxy refused CONNECT")
)

// ProxyConfig describes an explicit proxy.
type ProxyConfig struct {
	// URL is http://host:port or socks5://host:port.
	URL string

	// Username and Password override credentials embedded in URL.
	Username string
	Password string
}

// ProxyDialer tunnels TCP connections through an HTTP CONNECT or SOCKS5 proxy.
type ProxyDialer struct {
	proxyURL *url.URL
	auth     *proxy.Auth
	forward  net.Dialer
}

// NewProxyDialer parses proxyURL and returns a dialer for it.
func NewProxyDialer(cfg ProxyConfig) (*ProxyDialer, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}

	switch u.Scheme {
	case "http", "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProxy, u.Scheme)
	}

	d := &ProxyDialer{proxyURL: u}

	user, pass := cfg.Username, cfg.Password
	if user == "" && u.User != nil {
		user = u.User.Username()
		pass, _ = u.User.Password()
	}
	if user != "" {
		d.auth = &proxy.Auth{User: user, Password: pass}
	}

	return d, nil
}

// URL returns the proxy URL.
func (d *ProxyDialer) URL() *url.URL { return d.proxyURL }

func (d *ProxyDialer) proxyAddr() string {
	if d.proxyURL.Port() != "" {
		return d.proxyURL.Host
	}
	if d.proxyURL.Scheme == "http" {
		return net.JoinHostPort(d.proxyURL.Hostname(), "8080")
	}
	return net.JoinHostPort(d.proxyURL.Hostname(), "1080")
}

// DialContext connects to addr through the proxy.
func (d *ProxyDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if d.proxyURL.Scheme == "http" {
		return d.dialConnect(ctx, addr)
	}

	socks, err := proxy.SOCKS5("tcp", d.proxyAddr(), d.auth, &d.forward)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy: %w", err)
	}

	cd, ok := socks.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("%w: socks5 dialer without context support", ErrUnsupportedProxy)
	}

	conn, err := cd.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy: %w", err)
	}
	return conn, nil
}

func (d *ProxyDialer) dialConnect(ctx context.Context, addr string) (net.Conn, error) {
	conn, err := d.forward.DialContext(ctx, "tcp", d.proxyAddr())
	if err != nil {
		return nil, fmt.Errorf("http proxy: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if d.auth != nil {
		creds := base64.StdEncoding.EncodeToString([]byte(d.auth.User + ":" + d.auth.Password))
		req.Header.Set("Proxy-Authorization", "Basic "+creds)
	}

	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("http proxy: %w", err)
	}

	// MQTT CONNECT has not been sent yet, so nothing follows the headers.
	resp, err := http.ReadResponse(bufio.NewReaderSize(conn, 1024), req)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("http proxy: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrProxyRefused, resp.Status)
	}

	return conn, nil
}

// ProxyFromEnvironment returns the proxy for a broker URL according to
// HTTP_PROXY, HTTPS_PROXY and NO_PROXY (and their lower case forms).
// It returns nil when no proxy applies.
func ProxyFromEnvironment(brokerURL string) (*url.URL, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, err
	}

	// httpproxy only knows http and https; everything else is treated as http.
	target := &url.URL{Scheme: "http", Host: u.Host}
	return httpproxy.FromEnvironment().ProxyFunc()(target)
}
