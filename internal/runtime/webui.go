package runtime

import (
	"net/http"
	"strings"

	"github.com/drblury/flowguard/internal/runtime/jsoncodec"
)

// DefaultWebUIPort serves the introspection API when WebUIPort is unset.
const DefaultWebUIPort = 8081

// StartWebUIServer mounts the introspection API when it is enabled:
//
//	GET /api/workflows     registered workflows and their interceptor chains
//	GET /api/interceptors  state of every interceptor, windows included
//	GET /api/resources     process resource usage
func (s *Service) StartWebUIServer() {
	if !s.Conf.WebUIEnabled {
		return
	}

	port := s.Conf.WebUIPort
	if port == 0 {
		port = DefaultWebUIPort
	}

	s.RegisterHTTPHandler(port, "/api/workflows", s.apiHandler(func() any { return s.Workflows() }))
	s.RegisterHTTPHandler(port, "/api/interceptors", s.apiHandler(func() any { return s.Inspect() }))
	s.RegisterHTTPHandler(port, "/api/resources", s.apiHandler(func() any { return s.resources.Snapshot() }))
}

func (s *Service) apiHandler(body func() any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if s.Conf != nil && len(s.Conf.WebUICORSAllowedOrigins) > 0 {
			if allowed := s.getAllowedCORSOrigin(r.Header.Get("Origin")); allowed != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowed)
				w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}
		}

		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
			return
		case http.MethodGet:
		default:
			w.Header().Set("Allow", "GET, OPTIONS")
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}

		data, err := jsoncodec.Marshal(body())
		if err != nil {
			s.Logger.Error("Failed to encode API response", err, nil)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(data)
	})
}

// getAllowedCORSOrigin checks if the request origin is allowed and returns the appropriate
// Access-Control-Allow-Origin value.
func (s *Service) getAllowedCORSOrigin(requestOrigin string) string {
	if s.Conf == nil {
		return ""
	}
	for _, allowed := range s.Conf.WebUICORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
