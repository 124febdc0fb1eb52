package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/oceanlog/oceanlog/pkg/auth"
	"github.com/oceanlog/oceanlog/pkg/auxdata"
	"github.com/oceanlog/oceanlog/pkg/models"
)

// AuxDataHandler serves the /event_aux_data endpoints.
type AuxDataHandler struct {
	svc             *auxdata.Service
	schemas         *Schemas
	literalFreetext bool
}

func NewAuxDataHandler(svc *auxdata.Service, schemas *Schemas, literalFreetext bool) *AuxDataHandler {
	return &AuxDataHandler{svc: svc, schemas: schemas, literalFreetext: literalFreetext}
}

func (h *AuxDataHandler) listOptions(r *http.Request) (auxdata.ListOptions, error) {
	q := r.URL.Query()
	opts := auxdata.ListOptions{
		EventIDs:    q["eventID"],
		DataSources: q["datasource"],
	}
	var err error
	if opts.Offset, err = parseIntParam(q, "offset"); err != nil {
		return auxdata.ListOptions{}, err
	}
	if opts.Limit, err = parseIntParam(q, "limit"); err != nil {
		return auxdata.ListOptions{}, err
	}

	hasEventFilter := len(q["author"]) > 0 || len(q["value"]) > 0 ||
		q.Get("freetext") != "" || q.Get("startTS") != "" || q.Get("stopTS") != ""
	if hasEventFilter {
		if len(opts.EventIDs) > 0 {
			return auxdata.ListOptions{}, errEventIDConflict
		}
		f, err := parseEventFilter(q, h.literalFreetext)
		if err != nil {
			return auxdata.ListOptions{}, err
		}
		opts.EventFilter = &f
	}

	for _, id := range opts.EventIDs {
		if err := uuid.Validate(id); err != nil {
			return auxdata.ListOptions{}, errMalformedEventID
		}
	}
	return opts, nil
}

var (
	errEventIDConflict  = badParamError("eventID cannot be combined with event filter parameters")
	errMalformedEventID = badParamError("malformed eventID")
)

type badParamError string

func (e badParamError) Error() string { return string(e) }

func (h *AuxDataHandler) writeList(w http.ResponseWriter, ads []models.EventAuxData) {
	if len(ads) == 0 {
		WriteNotFound(w, noRecordsDetail)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ads)
}

// HandleList serves GET /event_aux_data.
func (h *AuxDataHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	opts, err := h.listOptions(r)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	if opts.EventFilter != nil {
		f := defaultTimeBounds(*opts.EventFilter, time.Now().UTC())
		opts.EventFilter = &f
	}
	ads, err := h.svc.List(r.Context(), opts)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.writeList(w, ads)
}

// HandleListByCruise serves GET /event_aux_data/bycruise/{id}.
func (h *AuxDataHandler) HandleListByCruise(w http.ResponseWriter, r *http.Request) {
	h.handleListScoped(w, r, h.svc.ListByCruise)
}

// HandleListByLowering serves GET /event_aux_data/bylowering/{id}.
func (h *AuxDataHandler) HandleListByLowering(w http.ResponseWriter, r *http.Request) {
	h.handleListScoped(w, r, h.svc.ListByLowering)
}

func (h *AuxDataHandler) handleListScoped(w http.ResponseWriter, r *http.Request,
	list func(ctx context.Context, p auth.Principal, id string, opts auxdata.ListOptions) ([]models.EventAuxData, error)) {
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
	ads, err := list(r.Context(), principal, id, opts)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.writeList(w, ads)
}

// HandleGet serves GET /event_aux_data/{id}.
func (h *AuxDataHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	ad, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ad)
}

// HandleCreate serves POST /event_aux_data.
func (h *AuxDataHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var ad models.EventAuxData
	if err := decodeValidated(w, r, h.schemas.auxDataWrite, &ad); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	if err := uuid.Validate(ad.EventID); err != nil {
		WriteBadRequest(w, "malformed event_id")
		return
	}
	if ad.ID != "" {
		if err := uuid.Validate(ad.ID); err != nil {
			WriteBadRequest(w, "malformed id")
			return
		}
	}
	res, err := h.svc.Upsert(r.Context(), &ad)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(res)
}

type auxDataPatchRequest struct {
	EventID    *string           `json:"event_id"`
	DataSource *string           `json:"data_source"`
	DataArray  []models.DataItem `json:"data_array"`
}

// HandleUpdate serves PATCH /event_aux_data/{id}.
func (h *AuxDataHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	var req auxDataPatchRequest
	if err := decodeValidated(w, r, h.schemas.auxDataPatch, &req); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	err = h.svc.Update(r.Context(), id, auxdata.Patch{
		EventID:    req.EventID,
		DataSource: req.DataSource,
		DataArray:  req.DataArray,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDelete serves DELETE /event_aux_data/{id}.
func (h *AuxDataHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
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
