package policy

import (
	"errors"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"

	"github.com/runnerr0/trailmark/internal/coreerr"
)

// Canonicalizer maps a full URI to its security origin string.
type Canonicalizer interface {
	SecurityOrigin(uri string) (string, error)
}

// CanonicalizerFunc adapts a function to Canonicalizer.
type CanonicalizerFunc func(uri string) (string, error)

func (f CanonicalizerFunc) SecurityOrigin(uri string) (string, error) { return f(uri) }

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
	"ftp":   "21",
}

// URLCanonicalizer derives scheme://host[:port] from a URI. Scheme and host
// are lowercased, internationalized hosts are converted to their ASCII
// form, and the scheme's default port is dropped.
type URLCanonicalizer struct{}

func (URLCanonicalizer) SecurityOrigin(uri string) (string, error) {
	return SecurityOrigin(uri)
}

// SecurityOrigin is the URLCanonicalizer mapping.
func SecurityOrigin(uri string) (string, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return "", coreerr.New(coreerr.ErrInvalidInput, "security origin", errors.New("empty uri"))
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", coreerr.New(coreerr.ErrInvalidInput, "security origin", err)
	}
	scheme := strings.ToLower(u.Scheme)
	host := u.Hostname()
	if scheme == "" || host == "" {
		return "", coreerr.New(coreerr.ErrInvalidInput, "security origin", errors.New("uri has no scheme or host: "+uri))
	}

	if ip := net.ParseIP(host); ip != nil {
		host = ip.String()
		if ip.To4() == nil {
			host = "[" + host + "]"
		}
	} else {
		ascii, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return "", coreerr.New(coreerr.ErrInvalidInput, "security origin", err)
		}
		host = strings.ToLower(ascii)
	}

	origin := scheme + "://" + host
	if port := u.Port(); port != "" && port != defaultPorts[scheme] {
		origin += ":" + port
	}
	return origin, nil
}
