package ice

import (
	"net"

	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/api"
)

// Resolver answers the ICE advertisement for a given client. A wildcard STUN or
// TURN host is replaced by the local address on the client's subnet, then by
// PublicIP, and otherwise left as configured.
type Resolver struct {
	PublicIP string
	// Networks lists local interface networks; defaults to LocalNetworks.
	Networks func() ([]*net.IPNet, error)
}

// IceServers builds the advertisement for clientIP. An empty stunURL or turnURL
// leaves that entry out.
func (r Resolver) IceServers(stunURL, turnURL, clientIP string) api.IceServers {
	out := api.IceServers{IceServers: []api.IceServer{}}

	if stunURL != "" {
		out.IceServers = append(out.IceServers, api.IceServer{
			URL: "stun:" + r.resolve(stripScheme(stunURL), clientIP),
		})
	}

	if turnURL != "" {
		t := ParseTurnURL(turnURL)
		out.IceServers = append(out.IceServers, api.IceServer{
			URL:        "turn:" + r.resolve(t.Host, clientIP),
			Username:   t.Username,
			Credential: t.Password,
		})
	}

	return out
}

func (r Resolver) resolve(hostport, clientIP string) string {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil || !isWildcard(host) {
		return hostport
	}

	networks := r.Networks
	if networks == nil {
		networks = LocalNetworks
	}
	if nets, err := networks(); err == nil {
		if addr := MatchInterface(net.ParseIP(clientIP), nets); addr != nil {
			return net.JoinHostPort(addr.String(), port)
		}
	}

	if r.PublicIP != "" {
		return net.JoinHostPort(r.PublicIP, port)
	}
	return hostport
}

// MatchInterface returns the address of the first network containing client.
func MatchInterface(client net.IP, nets []*net.IPNet) net.IP {
	if client == nil {
		return nil
	}
	if v4 := client.To4(); v4 != nil {
		client = v4
	}
	for _, n := range nets {
		if n.Contains(client) {
			return n.IP
		}
	}
	return nil
}

func LocalNetworks() ([]*net.IPNet, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	nets := make([]*net.IPNet, 0, len(addrs))
	for _, a := range addrs {
		if n, ok := a.(*net.IPNet); ok {
			nets = append(nets, n)
		}
	}
	return nets, nil
}
