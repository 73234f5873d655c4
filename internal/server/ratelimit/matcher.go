package ratelimit

import (
	"net/http"
	"strings"
)

// Route is the tier a request falls into and the subject its bucket is keyed
// on: the session id for per-session tiers, the client otherwise.
type Route struct {
	Tier      Tier
	SessionID string
}

// Classify maps a request onto its rate limit tier.
func Classify(method, path string) Route {
	path = strings.TrimSuffix(path, "/")
	if path == "/health" {
		return Route{Tier: TierUnlimited}
	}
	if path == "/knowledge/search" && method == http.MethodGet {
		return Route{Tier: TierSearch}
	}
	if path == "/sessions" && method == http.MethodPost {
		return Route{Tier: TierSessionCreate}
	}

	rest, ok := strings.CutPrefix(path, "/sessions/")
	if !ok {
		return Route{Tier: TierDefault}
	}
	id, action, _ := strings.Cut(rest, "/")
	switch {
	case method == http.MethodPost && (action == "assessment" || action == "assessment/stream"):
		return Route{Tier: TierAssessment}
	case method == http.MethodPost && (action == "answers" || action == "reset"):
		return Route{Tier: TierSessionWrite, SessionID: id}
	case method == http.MethodDelete && action == "":
		return Route{Tier: TierSessionWrite, SessionID: id}
	}
	return Route{Tier: TierDefault}
}

// key is the bucket key for a client on a route.
func (r Route) key(clientID string) string {
	if r.SessionID != "" {
		return string(r.Tier) + ":session:" + r.SessionID
	}
	return string(r.Tier) + ":client:" + clientID
}
