package policy

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// CheckURL rejects URLs an agent-driven fetch must never reach: malformed
// URLs, non-http schemes, loopback and link-local hosts, the RFC1918 private
// ranges, obfuscated numeric loopback encodings, and internal-looking DNS
// suffixes. Pure string/IP analysis; no DNS resolution is performed.
func CheckURL(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fmt.Errorf("url is required")
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("malformed url: %w", err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("unsupported url scheme %q", parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return fmt.Errorf("url has no host")
	}

	if host == "localhost" || strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
		return fmt.Errorf("host %q resolves to internal infrastructure", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ip = parseObfuscatedHost(host)
	}
	if ip == nil {
		return nil
	}

	switch {
	case ip.IsLoopback():
		return fmt.Errorf("host %q is a loopback address", host)
	case ip.IsUnspecified():
		return fmt.Errorf("host %q is an unspecified address", host)
	case ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast():
		return fmt.Errorf("host %q is a link-local address", host)
	case ip.IsPrivate():
		return fmt.Errorf("host %q is a private address", host)
	}
	return nil
}

// parseObfuscatedHost decodes numeric host spellings that net.ParseIP does
// not accept: a single decimal/octal/hex number ("2130706433", "0x7f000001",
// "017700000001") or dotted quads with octal/hex octets ("0177.0.0.1").
func parseObfuscatedHost(host string) net.IP {
	if value, ok := parseNumericOctet(host, 1<<32-1); ok {
		return net.IPv4(byte(value>>24), byte(value>>16), byte(value>>8), byte(value))
	}

	parts := strings.Split(host, ".")
	if len(parts) != 4 {
		return nil
	}
	octets := make([]byte, 4)
	for i, part := range parts {
		value, ok := parseNumericOctet(part, 255)
		if !ok {
			return nil
		}
		octets[i] = byte(value)
	}
	return net.IPv4(octets[0], octets[1], octets[2], octets[3])
}

func parseNumericOctet(s string, max uint64) (uint64, bool) {
	if s == "" {
		return 0, false
	}
	base := 10
	digits := s
	switch {
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		base = 16
		digits = s[2:]
	case len(s) > 1 && s[0] == '0':
		base = 8
		digits = s[1:]
	}
	value, err := strconv.ParseUint(digits, base, 64)
	if err != nil || value > max {
		return 0, false
	}
	return value, true
}
