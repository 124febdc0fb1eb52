package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/oceanlog/oceanlog/pkg/auth"
	"github.com/oceanlog/oceanlog/pkg/auxdata"
	"github.com/oceanlog/oceanlog/pkg/events"
	"github.com/oceanlog/oceanlog/pkg/models"
	"github.com/oceanlog/oceanlog/pkg/query"
	"github.com/oceanlog/oceanlog/pkg/scope"
)

// noRecordsDetail is the detail string list endpoints return when nothing
// matched. Clients depend on the wording.
const noRecordsDetail = "No records found"

// EventsHandler serves the /events endpoints.
type EventsHandler struct {
	svc             *events.Service
	schemas         *Schemas
	literalFreetext bool
}

func NewEventsHandler(svc *events.Service, schemas *Schemas, literalFreetext bool) *EventsHandler {
	return &EventsHandler{svc: svc, schemas: schemas, literalFreetext: literalFreetext}
}

// writeServiceError maps service-layer failures onto problem responses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, query.ErrBadPattern):
		WriteBadRequest(w, err.Error())
	case errors.Is(err, scope.ErrUnauthorized):
		WriteUnauthorized(w, "")
	case errors.Is(err, scope.ErrNotFound),
		errors.Is(err, events.ErrNotFound),
		errors.Is(err, events.ErrUserNotFound),
		errors.Is(err, auxdata.ErrNotFound):
		WriteNotFound(w, err.Error())
	case errors.Is(err, auxdata.ErrEventNotFound):
		WriteBadRequest(w, err.Error())
	default:
		WriteServiceUnavailable(w, err)
	}
}

func (h *EventsHandler) listOptions(r *http.Request) (events.ListOptions, error) {
	q := r.URL.Query()
	f, err := parseEventFilter(q, h.literalFreetext)
	if err != nil {
		return events.ListOptions{}, err
	}
	page, err := parsePage(q)
	if err != nil {
		return events.ListOptions{}, err
	}
	return events.ListOptions{
		Filter:      f,
		Page:        page,
		DataSources: q["datasource"],
		IncludeAux:  len(q["datasource"]) > 0,
	}, nil
}

func (h *EventsHandler) writeList(w http.ResponseWriter, r *http.Request, evs []models.Event) {
	if len(evs) == 0 {
		WriteNotFound(w, noRecordsDetail)
		return
	}
	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		if err := events.WriteCSV(w, evs); err != nil {
			WriteInternal(w, err)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(evs)
}

// HandleList serves GET /events.
func (h *EventsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	opts, err := h.listOptions(r)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	opts.Filter = defaultTimeBounds(opts.Filter, time.Now().UTC())
	evs, err := h.svc.List(r.Context(), opts)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.writeList(w, r, evs)
}

// HandleListByCruise serves GET /events/bycruise/{id}.
func (h *EventsHandler) HandleListByCruise(w http.ResponseWriter, r *http.Request) {
	h.handleListScoped(w, r, h.svc.ListByCruise)
}

// HandleListByLowering serves GET /events/bylowering/{id}.
func (h *EventsHandler) HandleListByLowering(w http.ResponseWriter, r *http.Request) {
	h.handleListScoped(w, r, h.svc.ListByLowering)
}

func (h *EventsHandler) handleListScoped(w http.ResponseWriter, r *http.Request,
	list func(ctx context.Context, p auth.Principal, id string, opts events.ListOptions) ([]models.Event, error)) {
	id, err := pathID(r)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	opts, err := h.listOptions(r)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	principal, err := auth.GetPrincipal(r.Context())
	if err != nil {
		WriteUnauthorized(w, "")
		return
	}
	evs, err := list(r.Context(), principal, id, opts)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.writeList(w, r, evs)
}

// HandleGet serves GET /events/{id}.
func (h *EventsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	ev, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ev)
}

// HandleCreate serves POST /events.
func (h *EventsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var ev models.Event
	if err := decodeValidated(w, r, h.schemas.eventWrite, &ev); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	if ev.ID != "" {
		if err := uuid.Validate(ev.ID); err != nil {
			WriteBadRequest(w, "malformed id")
			return
		}
	}
	principal, err := auth.GetPrincipal(r.Context())
	if err != nil {
		WriteUnauthorized(w, "")
		return
	}
	res, err := h.svc.Create(r.Context(), principal, &ev)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(res)
}

type eventPatchRequest struct {
	Author   *string              `json:"event_author"`
	TS       *time.Time           `json:"ts"`
	Value    *string              `json:"event_value"`
	FreeText *string              `json:"event_free_text"`
	Options  []models.EventOption `json:"event_options"`
}

// HandleUpdate serves PATCH /events/{id}. A patch against a missing event
// is a Bad Request, not a Not Found; clients rely on the distinction.
func (h *EventsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	var req eventPatchRequest
	if err := decodeValidated(w, r, h.schemas.eventPatch, &req); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	err = h.svc.Update(r.Context(), id, events.Patch{
		Author:   req.Author,
		TS:       req.TS,
		Value:    req.Value,
		FreeText: req.FreeText,
		Options:  req.Options,
	})
	if errors.Is(err, events.ErrNotFound) {
		WriteBadRequest(w, noRecordsDetail)
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDelete serves DELETE /events/{id}.
func (h *EventsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeleteAll serves DELETE /events/all.
func (h *EventsHandler) HandleDeleteAll(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.DeleteAll(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
