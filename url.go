package eftl

import (
	"fmt"
	"math/rand"
	"net/url"
	"strings"
)

// endpoint is one parsed candidate server URL: "ws[s]://[user[:pass]@]host[:port]/channel[?client_id=...]".
type endpoint struct {
	raw      string
	scheme   string
	host     string // host:port, with the default port filled in
	path     string
	user     string
	password string
	clientID string
}

// parseEndpoints splits a pipe-separated URL list and parses each
// member. Returns a ValueError if any member is malformed or uses an
// unsupported scheme.
func parseEndpoints(urls string) ([]*endpoint, error) {
	parts := strings.Split(urls, "|")
	eps := make([]*endpoint, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		ep, err := parseEndpoint(p)
		if err != nil {
			return nil, err
		}
		eps = append(eps, ep)
	}
	if len(eps) == 0 {
		return nil, &ValueError{Reason: "no URLs supplied"}
	}
	return eps, nil
}

func parseEndpoint(raw string) (*endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &ValueError{Reason: fmt.Sprintf("malformed URL %q: %v", raw, err)}
	}

	var scheme, defaultPort string
	switch u.Scheme {
	case "ws":
		scheme, defaultPort = "ws", "80"
	case "wss":
		scheme, defaultPort = "wss", "443"
	default:
		return nil, &ValueError{Reason: fmt.Sprintf("unsupported scheme in URL %q", raw)}
	}

	host := u.Host
	if host == "" {
		return nil, &ValueError{Reason: fmt.Sprintf("missing host in URL %q", raw)}
	}
	if !strings.Contains(host, ":") {
		host = host + ":" + defaultPort
	}

	ep := &endpoint{
		raw:      raw,
		scheme:   scheme,
		host:     host,
		path:     u.Path,
		clientID: u.Query().Get("client_id"),
	}
	if u.User != nil {
		ep.user = u.User.Username()
		ep.password, _ = u.User.Password()
	}
	return ep, nil
}

// dialURL builds the ws[s]://host/path string gorilla/websocket dials,
// with credentials and query parameters stripped (those are applied
// separately to the LOGIN frame, not the transport handshake).
func (e *endpoint) dialURL() string {
	path := e.path
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("%s://%s%s", e.scheme, e.host, path)
}

// shuffleEndpoints returns a copy of eps in uniformly random order, so
// a fleet of clients spreads its initial connects across endpoints.
func shuffleEndpoints(eps []*endpoint) []*endpoint {
	out := make([]*endpoint, len(eps))
	copy(out, eps)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
