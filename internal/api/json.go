package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// maxBody bounds request bodies; instances with dense travel matrices are the
// largest payloads.
const maxBody = 8 << 20

// problemNS prefixes the problem types of this service.
const problemNS = "urn:techroute:problem:"

// Problem is an RFC7807 body. Type is problemNS followed by the slug of
// Title, e.g. urn:techroute:problem:no-feasible-insertion.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	writeBody(w, "application/json", status, v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeBody(w, "application/problem+json", status, Problem{
		Type:     problemType(title),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

func writeBody(w http.ResponseWriter, contentType string, status int, v any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func problemType(title string) string {
	return problemNS + strings.Join(strings.Fields(strings.ToLower(title)), "-")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	return json.NewDecoder(r.Body).Decode(v)
}
