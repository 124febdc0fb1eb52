package api

import (
	"net/http"

	"github.com/oceanlog/oceanlog/pkg/auth"
)

// Scope sets per operation class. Admin always passes via the scope check
// itself.
var (
	eventReadScopes = []string{
		auth.ScopeReadEvents, auth.ScopeEventManager, auth.ScopeEventLogger,
		auth.ScopeEventWatcher, auth.ScopeCruiseManager,
	}
	eventWriteScopes = []string{
		auth.ScopeWriteEvents, auth.ScopeEventManager, auth.ScopeEventLogger,
	}
	eventDeleteScopes = []string{auth.ScopeEventManager, auth.ScopeEventLogger}
	adminScopes       = []string{auth.ScopeAdmin}
)

// NewRouter assembles the API mux. Auth, rate limiting, request ids, and
// logging are applied outside, around the returned handler.
func NewRouter(events *EventsHandler, auxData *AuxDataHandler, health http.HandlerFunc) *http.ServeMux {
	mux := http.NewServeMux()

	require := func(scopes []string, h http.HandlerFunc) http.Handler {
		return auth.RequireScopes(scopes...)(h)
	}

	// Events.
	mux.Handle("GET /api/v1/events", require(eventReadScopes, events.HandleList))
	mux.Handle("GET /api/v1/events/bycruise/{id}", require(eventReadScopes, events.HandleListByCruise))
	mux.Handle("GET /api/v1/events/bylowering/{id}", require(eventReadScopes, events.HandleListByLowering))
	mux.Handle("GET /api/v1/events/{id}", require(eventReadScopes, events.HandleGet))
	mux.Handle("POST /api/v1/events", require(eventWriteScopes, events.HandleCreate))
	mux.Handle("PATCH /api/v1/events/{id}", require(eventWriteScopes, events.HandleUpdate))
	mux.Handle("DELETE /api/v1/events/all", require(adminScopes, events.HandleDeleteAll))
	mux.Handle("DELETE /api/v1/events/{id}", require(eventDeleteScopes, events.HandleDelete))

	// Aux data.
	mux.Handle("GET /api/v1/event_aux_data", require(eventReadScopes, auxData.HandleList))
	mux.Handle("GET /api/v1/event_aux_data/bycruise/{id}", require(eventReadScopes, auxData.HandleListByCruise))
	mux.Handle("GET /api/v1/event_aux_data/bylowering/{id}", require(eventReadScopes, auxData.HandleListByLowering))
	mux.Handle("GET /api/v1/event_aux_data/{id}", require(eventReadScopes, auxData.HandleGet))
	mux.Handle("POST /api/v1/event_aux_data", require(eventWriteScopes, auxData.HandleCreate))
	mux.Handle("PATCH /api/v1/event_aux_data/{id}", require(eventWriteScopes, auxData.HandleUpdate))
	mux.Handle("DELETE /api/v1/event_aux_data/{id}", require(eventDeleteScopes, auxData.HandleDelete))

	if health != nil {
		mux.HandleFunc("GET /health", health)
		mux.HandleFunc("GET /readiness", health)
	}

	return mux
}

