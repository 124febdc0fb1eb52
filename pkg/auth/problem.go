package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// problemDetail mirrors the RFC 7807 shape the API error helpers produce.
// Duplicated here rather than imported: the api package consumes this
// package's Principal, so the dependency has to point that way.
type problemDetail struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	p := &problemDetail{
		Type:   fmt.Sprintf("https://oceanlog.io/errors/%d", status),
		Title:  title,
		Status: status,
		Detail: detail,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(p)
}

func writeUnauthorized(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Authentication required"
	}
	writeProblem(w, http.StatusUnauthorized, "Unauthorized", detail)
}

func writeForbidden(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Insufficient permissions"
	}
	writeProblem(w, http.StatusForbidden, "Forbidden", detail)
}

func writeTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	writeProblem(w, http.StatusTooManyRequests, "Too Many Requests",
		"Rate limit exceeded. Retry after the specified interval.")
}
