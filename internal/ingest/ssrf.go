package ingest

import (
	"context"
	"fmt"
	"net"
	"net/url"
)

const maxURLLength = 2048

var allowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"rtmp":  true,
	"rtmps": true,
	"rtsp":  true,
	"srt":   true,
}

// Resolver is the subset of net.Resolver URL validation needs.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// ValidateURL checks that a media URL is safe to hand to ffmpeg:
//   - max length 2048 characters
//   - scheme must be one of http, https, rtmp, rtmps, rtsp or srt
//   - no embedded credentials (user:pass@host)
//   - hostname must resolve to a public IP (no private/reserved ranges)
func ValidateURL(ctx context.Context, rawURL string) error {
	return validateURL(ctx, rawURL, net.DefaultResolver)
}

func validateURL(ctx context.Context, rawURL string, r Resolver) error {
	if len(rawURL) > maxURLLength {
		return fmt.Errorf("URL too long (%d chars, max %d)", len(rawURL), maxURLLength)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if !allowedSchemes[u.Scheme] {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if u.User != nil {
		return fmt.Errorf("URLs with embedded credentials are not allowed")
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("URL has no hostname")
	}

	addrs, err := r.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("DNS resolution failed for %q: %w", host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("no DNS results for %q", host)
	}

	for _, a := range addrs {
		if isPrivateIP(a.IP) {
			return fmt.Errorf("URL resolves to private/reserved IP %s", a.IP)
		}
	}
	return nil
}

var privateRanges []*net.IPNet

func init() {
	cidrs := []string{
		"0.0.0.0/8",
		"127.0.0.0/8",
		"10.0.0.0/8",
		"100.64.0.0/10",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16",
		"::/128",
		"::1/128",
		"fc00::/7",
		"fe80::/10",
	}
	for _, cidr := range cidrs {
		_, network, _ := net.ParseCIDR(cidr)
		privateRanges = append(privateRanges, network)
	}
}

func isPrivateIP(ip net.IP) bool {
	for _, network := range privateRanges {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
