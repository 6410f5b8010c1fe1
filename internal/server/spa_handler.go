package server

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// SPAMiddleware serves the single page web client from staticDir. API,
// health and metrics paths pass through to next; unknown paths fall back to
// index.html so client-side routes such as /compare resolve.
func SPAMiddleware(next http.Handler, staticDir string) http.Handler {
	index := filepath.Join(staticDir, "index.html")
	files := http.FileServer(http.Dir(staticDir))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") ||
			r.URL.Path == "/healthz" ||
			r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}

		clean := path.Clean("/" + r.URL.Path)
		if clean == "/" {
			http.ServeFile(w, r, index)
			return
		}

		info, err := os.Stat(filepath.Join(staticDir, filepath.FromSlash(clean)))
		if err != nil || info.IsDir() {
			http.ServeFile(w, r, index)
			return
		}

		files.ServeHTTP(w, r)
	})
}
