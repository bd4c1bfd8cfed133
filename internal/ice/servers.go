// Package ice builds ICE server lists for peer connections and for the
// advertisement returned to browsers, and runs the optional embedded TURN server.
package ice

import (
	"log/slog"
	"net"
	"strings"

	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
)

// TurnURL is a turn address with its credentials split out.
type TurnURL struct {
	Host     string
	Username string
	Password string
}

// ParseTurnURL splits "user:pass@host[:port]". Without '@' the whole string is the
// host; without ':' in the credentials part only a username is set. A leading
// turn: scheme is ignored.
func ParseTurnURL(raw string) TurnURL {
	raw = stripScheme(strings.TrimSpace(raw))

	at := strings.LastIndex(raw, "@")
	if at < 0 {
		return TurnURL{Host: raw}
	}

	t := TurnURL{Host: raw[at+1:]}
	creds := raw[:at]
	if colon := strings.Index(creds, ":"); colon >= 0 {
		t.Username = creds[:colon]
		t.Password = creds[colon+1:]
	} else {
		t.Username = creds
	}
	return t
}

func stripScheme(s string) string {
	for _, scheme := range []string{"stun:", "stuns:", "turn:", "turns:"} {
		if strings.HasPrefix(s, scheme) {
			return s[len(scheme):]
		}
	}
	return s
}

// Servers builds the list handed to the engine. Wildcard hosts become loopback,
// since a wildcard is only ever configured for a server bound on this machine.
// Entries that do not parse as STUN/TURN URIs are dropped with a warning.
func Servers(stunURL string, turnURLs []string) []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, 1+len(turnURLs))

	if stunURL = strings.TrimSpace(stunURL); stunURL != "" {
		uri := "stun:" + replaceWildcard(stripScheme(stunURL), "127.0.0.1")
		if valid(uri) {
			servers = append(servers, webrtc.ICEServer{URLs: []string{uri}})
		}
	}

	for _, raw := range turnURLs {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		t := ParseTurnURL(raw)
		uri := "turn:" + replaceWildcard(t.Host, "127.0.0.1")
		if !valid(uri) {
			continue
		}
		server := webrtc.ICEServer{URLs: []string{uri}}
		if t.Username != "" {
			server.Username = t.Username
			server.Credential = t.Password
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		servers = append(servers, server)
	}

	return servers
}

func valid(uri string) bool {
	if _, err := stun.ParseURI(uri); err != nil {
		slog.Warn("ignoring invalid ice server", "url", uri, "error", err)
		return false
	}
	return true
}

func isWildcard(host string) bool {
	return host == "0.0.0.0" || host == "::"
}

func replaceWildcard(hostport, with string) string {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil || !isWildcard(host) {
		return hostport
	}
	return net.JoinHostPort(with, port)
}
