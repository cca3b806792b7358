package middleware

import (
	"net"
	"net/http"

	"github.com/platinummonkey/permcache/pkg/config"
	"github.com/platinummonkey/permcache/pkg/contextkeys"
	"github.com/platinummonkey/permcache/pkg/observability"
	"github.com/sirupsen/logrus"
)

// TrustPolicy trusts callers whose remote address falls inside a set of
// internal networks. Only trusted callers may assert an acting user id or a
// gateway-verified subject through headers.
type TrustPolicy struct {
	header         string
	identityHeader string
	networks       []*net.IPNet
}

// NewTrustPolicy builds a policy from the trust configuration. With no
// networks configured nobody is trusted.
func NewTrustPolicy(cfg config.TrustConfig) (*TrustPolicy, error) {
	networks, err := cfg.Networks()
	if err != nil {
		return nil, err
	}
	return &TrustPolicy{
		header:         cfg.Header,
		identityHeader: cfg.IdentityHeader,
		networks:       networks,
	}, nil
}

// HeaderName returns the acting user id header
func (p *TrustPolicy) HeaderName() string {
	return p.header
}

// IdentityHeaderName returns the gateway subject header
func (p *TrustPolicy) IdentityHeaderName() string {
	return p.identityHeader
}

// Trusts reports whether the request came from a trusted network.
// Forwarding headers are not consulted; they are caller controlled.
func (p *TrustPolicy) Trusts(r *http.Request) bool {
	ip := remoteIP(r.RemoteAddr)
	if ip == nil {
		return false
	}
	for _, n := range p.networks {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func remoteIP(remoteAddr string) net.IP {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	return net.ParseIP(host)
}

// StripUntrusted removes the policy's identity headers from requests that
// did not come from a trusted network, so nothing downstream can act on them
func StripUntrusted(policy *TrustPolicy, logger logrus.FieldLogger) func(http.Handler) http.Handler {
	logger = observability.OrNop(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if policy.Trusts(r) {
				next.ServeHTTP(w, r)
				return
			}

			for _, name := range []string{policy.header, policy.identityHeader} {
				if name == "" || r.Header.Get(name) == "" {
					continue
				}
				logger.WithFields(logrus.Fields{
					"request_id":  contextkeys.GetRequestID(r.Context()),
					"header":      name,
					"remote_addr": r.RemoteAddr,
				}).Warn("Stripping identity header from untrusted caller")
				r.Header.Del(name)
			}

			next.ServeHTTP(w, r)
		})
	}
}
