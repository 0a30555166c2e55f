package shield

import "net/http"

// HeaderConfig defines the security headers applied to every response.
type HeaderConfig struct {
	CSP                 string
	XFrameOptions       string
	XContentTypeOptions string
	ReferrerPolicy      string
	PermissionsPolicy   string
}

// APIHeaders returns headers for endpoints that only ever serve JSON: nothing
// may be loaded, framed or sniffed from their responses.
func APIHeaders() HeaderConfig {
	return HeaderConfig{
		CSP:                 "default-src 'none'; frame-ancestors 'none'",
		XFrameOptions:       "DENY",
		XContentTypeOptions: "nosniff",
		ReferrerPolicy:      "no-referrer",
		PermissionsPolicy:   "camera=(), microphone=(), geolocation=()",
	}
}

// SecurityHeaders returns middleware that sets the non-empty headers of cfg
// on every response.
func SecurityHeaders(cfg HeaderConfig) func(http.Handler) http.Handler {
	headers := [][2]string{
		{"X-Content-Type-Options", cfg.XContentTypeOptions},
		{"X-Frame-Options", cfg.XFrameOptions},
		{"Referrer-Policy", cfg.ReferrerPolicy},
		{"Content-Security-Policy", cfg.CSP},
		{"Permissions-Policy", cfg.PermissionsPolicy},
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, h := range headers {
				if h[1] != "" {
					w.Header().Set(h[0], h[1])
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
