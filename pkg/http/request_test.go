package http_test

import (
	"net/http/httptest"
	"testing"

	pkghttp "github.com/BradenHooton/metered-finance/pkg/http"
	"github.com/stretchr/testify/assert"
)

func TestExtractClientIP(t *testing.T) {
	internal := &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8", "2001:db8::/32"}}

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		config     *pkghttp.IPConfig
		want       string
	}{
		{
			name:       "direct connection ignores forwarding headers",
			remoteAddr: "203.0.113.10:54321",
			headers:    map[string]string{"X-Forwarded-For": "1.2.3.4", "X-Real-IP": "5.6.7.8"},
			config:     internal,
			want:       "203.0.113.10",
		},
		{
			name:       "trusted proxy uses first forwarded address",
			remoteAddr: "10.0.0.5:54321",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.42, 203.0.113.43, 10.0.0.5"},
			config:     internal,
			want:       "203.0.113.42",
		},
		{
			name:       "trusted proxy skips garbage entries",
			remoteAddr: "10.0.0.5:54321",
			headers:    map[string]string{"X-Forwarded-For": "not-an-ip, 203.0.113.7"},
			config:     internal,
			want:       "203.0.113.7",
		},
		{
			name:       "trusted proxy falls back to X-Real-IP",
			remoteAddr: "10.1.2.3:80",
			headers:    map[string]string{"X-Real-IP": "198.51.100.9"},
			config:     internal,
			want:       "198.51.100.9",
		},
		{
			name:       "ipv6 trusted proxy",
			remoteAddr: "[2001:db8::1]:443",
			headers:    map[string]string{"X-Forwarded-For": "2001:db8:ffff::10"},
			config:     internal,
			want:       "2001:db8:ffff::10",
		},
		{
			name:       "nil config defaults to remote address",
			remoteAddr: "203.0.113.10:54321",
			headers:    map[string]string{"X-Forwarded-For": "1.2.3.4"},
			config:     nil,
			want:       "203.0.113.10",
		},
		{
			name:       "invalid cidr ranges trust nobody",
			remoteAddr: "10.0.0.5:54321",
			headers:    map[string]string{"X-Forwarded-For": "1.2.3.4"},
			config:     &pkghttp.IPConfig{TrustedProxies: []string{"invalid-cidr-range"}},
			want:       "10.0.0.5",
		},
		{
			name:       "localhost claim from untrusted peer",
			remoteAddr: "203.0.113.10:54321",
			headers:    map[string]string{"X-Forwarded-For": "127.0.0.1"},
			config:     internal,
			want:       "203.0.113.10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, pkghttp.ExtractClientIP(req, tt.config))
		})
	}
}
