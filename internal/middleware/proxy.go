package middleware

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/labstack/echo/v4"
)

// TrustedProxies makes c.RealIP() see through the given reverse proxies.
// Login rate limits are keyed on that address, so only forwarding headers
// set by a listed proxy are believed; everyone else is identified by the
// peer address of the connection.
func TrustedProxies(e *echo.Echo, trustedCIDRs []string) {
	e.IPExtractor = proxyIPExtractor(trustedCIDRs)
}

// proxyIPExtractor prefers X-Real-IP and falls back to X-Forwarded-For,
// where the rightmost untrusted hop is taken as the client.
func proxyIPExtractor(trustedCIDRs []string) echo.IPExtractor {
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, cidr := range trustedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			slog.Warn("ignoring invalid trusted proxy CIDR", slog.String("cidr", cidr))
			continue
		}
		opts = append(opts, echo.TrustIPRange(network))
	}

	fromRealIP := echo.ExtractIPFromRealIPHeader(opts...)
	fromXFF := echo.ExtractIPFromXFFHeader(opts...)

	return func(req *http.Request) string {
		if req.Header.Get(echo.HeaderXRealIP) != "" {
			return fromRealIP(req)
		}
		return fromXFF(req)
	}
}
