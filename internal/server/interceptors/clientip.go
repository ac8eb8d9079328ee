package interceptors

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

// ClientIPResolver derives the client address of a call. x-forwarded-for and x-real-ip are
// honored only when the direct peer is one of the trusted proxies; otherwise the peer address is used.
type ClientIPResolver struct {
	trusted []netip.Prefix
}

// NewClientIPResolver parses trustedProxies as CIDRs or single addresses. Empty entries are skipped.
func NewClientIPResolver(trustedProxies []string) (*ClientIPResolver, error) {
	r := &ClientIPResolver{}
	for _, s := range trustedProxies {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if strings.Contains(s, "/") {
			p, err := netip.ParsePrefix(s)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", s, err)
			}
			r.trusted = append(r.trusted, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", s, err)
		}
		a = a.Unmap()
		r.trusted = append(r.trusted, netip.PrefixFrom(a, a.BitLen()))
	}
	return r, nil
}

// ClientIP returns the client IP, or "unknown". A nil resolver trusts no proxy.
func (r *ClientIPResolver) ClientIP(ctx context.Context) string {
	host, addr, ok := peerAddr(ctx)
	if !ok {
		if host != "" {
			return host
		}
		return "unknown"
	}
	if !r.isTrusted(addr) {
		return host
	}
	md, _ := metadata.FromIncomingContext(ctx)
	// Walk x-forwarded-for from the nearest hop; the first untrusted entry is the client.
	var hops []string
	for _, v := range md.Get("x-forwarded-for") {
		hops = append(hops, strings.Split(v, ",")...)
	}
	for i := len(hops) - 1; i >= 0; i-- {
		a, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			break
		}
		if !r.isTrusted(a.Unmap()) || i == 0 {
			return a.Unmap().String()
		}
	}
	if vals := md.Get("x-real-ip"); len(vals) > 0 {
		if a, err := netip.ParseAddr(strings.TrimSpace(vals[0])); err == nil {
			return a.Unmap().String()
		}
	}
	return host
}

func (r *ClientIPResolver) isTrusted(a netip.Addr) bool {
	if r == nil {
		return false
	}
	for _, p := range r.trusted {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// peerAddr returns the peer host and, when it is an IP, the parsed address.
func peerAddr(ctx context.Context) (string, netip.Addr, bool) {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "", netip.Addr{}, false
	}
	host := p.Addr.String()
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	a, err := netip.ParseAddr(host)
	if err != nil {
		return host, netip.Addr{}, false
	}
	return a.Unmap().String(), a.Unmap(), true
}

// ClientIP returns the peer IP of the call, or "unknown". Forwarded headers are ignored.
func ClientIP(ctx context.Context) string {
	return (*ClientIPResolver)(nil).ClientIP(ctx)
}
