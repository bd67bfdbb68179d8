package api

import (
	"net/http"
	"os"
	"path/filepath"
)

// servePage serves one document from the static directory. Pages are
// opaque files; a missing file is a deployment problem surfaced as 404.
func (h *Handler) servePage(name string) http.HandlerFunc {
	path := filepath.Join(h.cfg.Static.Dir, name)
	return func(w http.ResponseWriter, r *http.Request) {
		if name == "" {
			http.NotFound(w, r)
			return
		}
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, path)
	}
}
