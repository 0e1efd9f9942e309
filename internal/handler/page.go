package handler

import (
	"net/http"

	"prophub/internal/access"
	"prophub/internal/httputil"
	"prophub/internal/routes"
)

// PageDescriptor is what a gated page route renders when access is granted
type PageDescriptor struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Path  string `json:"path"`
}

// PageContent renders the descriptor of entry
func PageContent(entry routes.Entry) http.Handler {
	descriptor := PageDescriptor{Name: entry.Page, Title: entry.Title, Path: entry.Path}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.RespondJSON(w, http.StatusOK, descriptor)
	})
}

// RegisterPages mounts one gated GET route per policy entry.
// Denied callers get the Access Restricted problem.
func RegisterPages(mux *http.ServeMux, guard *access.Guard, table *routes.Table) {
	for _, entry := range table.Entries() {
		mux.Handle("GET "+entry.Path, guard.Protect(
			entry.Path,
			entry.Allowed,
			PageContent(entry),
			access.AccessRestricted(entry.Title),
		))
	}
}
