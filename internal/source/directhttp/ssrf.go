package directhttp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	maxRedirects   = 10
	requestTimeout = 30 * time.Second
)

var privateIPBlocks []*net.IPNet

func init() {
	privateCIDRs := []string{
		"0.0.0.0/8", "10.0.0.0/8", "100.64.0.0/10", "127.0.0.0/8",
		"169.254.0.0/16", "172.16.0.0/12", "192.0.0.0/24", "192.0.2.0/24",
		"192.168.0.0/16", "198.18.0.0/15", "198.51.100.0/24", "203.0.113.0/24",
		"224.0.0.0/4", "240.0.0.0/4", "255.255.255.255/32",
		"::1/128", "fc00::/7", "fe80::/10", "ff00::/8", "2001:db8::/32",
		"2001::/32", "64:ff9b::/96",
	}
	for _, cidr := range privateCIDRs {
		if _, block, err := net.ParseCIDR(cidr); err == nil {
			privateIPBlocks = append(privateIPBlocks, block)
		}
	}
}

func isPrivateIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsLoopback() || ip.IsLinkLocalMulticast() || ip.IsLinkLocalUnicast() || ip.IsPrivate() {
		return true
	}
	for _, block := range privateIPBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

// resolveAndValidateHost resolves DNS and ensures every returned address is
// public, returning the first valid IP for dial pinning.
func resolveAndValidateHost(ctx context.Context, hostname string) (net.IP, error) {
	if ip := net.ParseIP(hostname); ip != nil {
		if isPrivateIP(ip) {
			return nil, fmt.Errorf("blocked private IP: %s", ip)
		}
		return ip, nil
	}
	if strings.EqualFold(hostname, "localhost") {
		return nil, errors.New("blocked access to localhost")
	}

	resolver := net.DefaultResolver
	ips, err := resolver.LookupIPAddr(ctx, hostname)
	if err != nil {
		return nil, fmt.Errorf("dns resolution failed: %w", err)
	}
	if len(ips) == 0 {
		return nil, errors.New("no addresses found for host")
	}

	var pinned net.IP
	for _, addr := range ips {
		if isPrivateIP(addr.IP) {
			return nil, fmt.Errorf("dns returned a private address for %s", hostname)
		}
		if pinned == nil {
			pinned = addr.IP
		}
	}
	return pinned, nil
}

// validateURL ensures url uses http(s), has a resolvable public hostname,
// and is otherwise safe to fetch.
func validateURL(ctx context.Context, rawURL string) (string, net.IP, error) {
	u, err := parseURL(rawURL)
	if err != nil {
		return "", nil, err
	}
	hostname := u.Hostname()
	if hostname == "" {
		return "", nil, errors.New("empty hostname")
	}
	ip, err := resolveAndValidateHost(ctx, hostname)
	if err != nil {
		return "", nil, err
	}
	return rawURL, ip, nil
}

// pinnedClient builds an http.Client that dials pinnedIP directly (DNS
// pinning, preventing a TOCTOU rebind between validation and fetch) and
// validates every redirect target before following it.
func pinnedClient(ctx context.Context, targetPort string, pinnedIP net.IP) *http.Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}

	transport := &http.Transport{
		Proxy: nil, // a proxy could redirect into the private network; disallow it
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, net.JoinHostPort(pinnedIP.String(), targetPort))
		},
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       30 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   requestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.New("too many redirects")
			}
			_, _, err := validateURL(req.Context(), req.URL.String())
			if err != nil {
				return fmt.Errorf("blocked redirect: %w", err)
			}
			return nil
		},
	}
}
