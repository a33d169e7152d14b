package server

import "fmt"

// displayServerInfo prints the endpoints and the security posture at startup
func (s *Server) displayServerInfo(addr string) {
	scheme := "http"
	if s.cfg.TLS.Enabled() {
		scheme = "https"
	}
	fmt.Printf("Serving on %s://%s (TLS mode: %s)\n", scheme, addr, tlsModeName(s.cfg.TLS.Mode))

	fmt.Println("Available endpoints:")
	fmt.Println("  GET  /health                  - Health check")
	fmt.Println("  GET  /stats                   - Server and cache statistics")
	fmt.Println("  GET  /metrics                 - Prometheus metrics")
	fmt.Println("  POST /api/v1/stats            - Cohort statistics for a position")
	fmt.Println("  POST /api/v1/recommendations  - Realtime writing recommendations")
	fmt.Println("  POST /api/v1/review           - Review a complete application")

	if n := len(s.keys()); n > 0 {
		fmt.Printf("API authentication: ENABLED (%d keys configured)\n", n)
	} else {
		fmt.Println("API authentication: DISABLED (no API keys configured)")
	}

	if s.cfg.MaxRequestSize > 0 {
		fmt.Printf("Request size limit: %d bytes (%.1f MB)\n", s.cfg.MaxRequestSize, float64(s.cfg.MaxRequestSize)/(1024*1024))
	} else {
		fmt.Println("Request size limit: DISABLED")
	}

	if rl := s.cfg.RateLimit; rl.Enabled {
		fmt.Printf("Rate limiting: ENABLED (%d requests/min, burst: %d, by API key: %t, by IP: %t)\n",
			rl.RequestsPerMin, rl.BurstCapacity, rl.ByAPIKey, rl.ByIP)
	} else {
		fmt.Println("Rate limiting: DISABLED")
	}
}

func tlsModeName(mode string) string {
	if mode == "" {
		return "disabled"
	}
	return mode
}
