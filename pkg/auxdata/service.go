package auxdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/oceanlog/oceanlog/pkg/auth"
	"github.com/oceanlog/oceanlog/pkg/models"
	"github.com/oceanlog/oceanlog/pkg/notify"
	"github.com/oceanlog/oceanlog/pkg/observability"
	"github.com/oceanlog/oceanlog/pkg/query"
	"github.com/oceanlog/oceanlog/pkg/scope"
	"github.com/oceanlog/oceanlog/pkg/store"
)

var (
	// ErrNotFound marks a lookup that matched no aux-data record.
	ErrNotFound = errors.New("aux data not found")
	// ErrEventNotFound marks a write naming an event that does not exist.
	ErrEventNotFound = errors.New("event not found")
)

// AuxStore is the persistence surface the service needs.
type AuxStore interface {
	Insert(ctx context.Context, ad *models.EventAuxData) error
	Get(ctx context.Context, id string) (*models.EventAuxData, error)
	GetByNaturalKey(ctx context.Context, eventID, dataSource string) (*models.EventAuxData, error)
	Find(ctx context.Context, p query.AuxPredicate, offset, limit int) ([]models.EventAuxData, error)
	Update(ctx context.Context, ad *models.EventAuxData) error
	Delete(ctx context.Context, id string) error
}

// EventReader resolves events for the join listings and the upsert's
// existence and recency checks.
type EventReader interface {
	Get(ctx context.Context, id string) (*models.Event, error)
	FindIDs(ctx context.Context, p query.Predicate) ([]string, error)
}

type Service struct {
	aux      AuxStore
	events   EventReader
	resolver *scope.Resolver
	ann      *notify.Announcer
	uploads  *Uploader
	obs      *observability.Provider
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(aux AuxStore, events EventReader, resolver *scope.Resolver, ann *notify.Announcer, uploads *Uploader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		aux:      aux,
		events:   events,
		resolver: resolver,
		ann:      ann,
		uploads:  uploads,
		logger:   logger,
		now:      time.Now,
	}
}

// WithObservability attaches the telemetry provider to the service's write
// paths. A nil provider leaves tracking off.
func (s *Service) WithObservability(obs *observability.Provider) *Service {
	s.obs = obs
	return s
}

func (s *Service) track(ctx context.Context, name string, attrs []attribute.KeyValue) (context.Context, func(error)) {
	if s.obs == nil {
		return ctx, func(error) {}
	}
	return s.obs.TrackOperation(ctx, name, attrs...)
}

// ListOptions selects aux-data records either directly (EventIDs) or by
// filtering the owning events (EventFilter). The handler rejects requests
// that try both at once.
type ListOptions struct {
	EventIDs    []string
	DataSources []string
	EventFilter *query.Filter
	Offset      int
	Limit       int
}

// List returns aux-data records. An event filter is resolved to event ids
// first, then joined against the aux-data collection.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]models.EventAuxData, error) {
	eventIDs := opts.EventIDs
	if opts.EventFilter != nil {
		p, err := opts.EventFilter.Compile()
		if err != nil {
			return nil, err
		}
		ids, err := s.events.FindIDs(ctx, p)
		if err != nil {
			return nil, err
		}
		if ids == nil {
			ids = []string{}
		}
		eventIDs = ids
	}
	ap := query.AuxFilter{EventIDs: eventIDs, DataSources: opts.DataSources}.Compile()
	return s.aux.Find(ctx, ap, opts.Offset, opts.Limit)
}

// ListByCruise returns aux data for events inside a cruise's window.
func (s *Service) ListByCruise(ctx context.Context, p auth.Principal, cruiseID string, opts ListOptions) ([]models.EventAuxData, error) {
	w, err := s.resolver.Cruise(ctx, cruiseID, p, nil, nil)
	if err != nil {
		return nil, err
	}
	return s.listWindow(ctx, w, opts)
}

// ListByLowering returns aux data for events inside a lowering's window.
func (s *Service) ListByLowering(ctx context.Context, p auth.Principal, loweringID string, opts ListOptions) ([]models.EventAuxData, error) {
	w, err := s.resolver.Lowering(ctx, loweringID, p, nil, nil)
	if err != nil {
		return nil, err
	}
	return s.listWindow(ctx, w, opts)
}

func (s *Service) listWindow(ctx context.Context, w scope.Window, opts ListOptions) ([]models.EventAuxData, error) {
	ids, err := s.events.FindIDs(ctx, query.Predicate{Start: &w.Start, Stop: &w.Stop})
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	ap := query.AuxFilter{EventIDs: ids, DataSources: opts.DataSources}.Compile()
	return s.aux.Find(ctx, ap, opts.Offset, opts.Limit)
}

// Get fetches one aux-data record.
func (s *Service) Get(ctx context.Context, id string) (*models.EventAuxData, error) {
	ad, err := s.aux.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ad == nil {
		return nil, ErrNotFound
	}
	return ad, nil
}

// Upsert creates or replaces the record for the (event, data source) pair.
// An existing record gets its data array replaced; a concurrent insert that
// loses the unique-key race degrades to the same replacement. The create
// notification is gated on the owning event's timestamp; the update
// notification is not gated.
func (s *Service) Upsert(ctx context.Context, ad *models.EventAuxData) (res *models.InsertResult, err error) {
	ctx, finish := s.track(ctx, "auxdata.upsert", observability.AuxDataOperation(ad.EventID, ad.DataSource, "upsert"))
	defer func() { finish(err) }()

	ev, err := s.events.Get(ctx, ad.EventID)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, fmt.Errorf("aux data for event %s: %w", ad.EventID, ErrEventNotFound)
	}
	if ad.DataArray == nil {
		ad.DataArray = []models.DataItem{}
	}

	if s.uploads != nil && ad.DataSource == FilePondSource {
		if err := s.uploads.Ingest(ctx, ad); err != nil {
			return nil, err
		}
	}

	existing, err := s.aux.GetByNaturalKey(ctx, ad.EventID, ad.DataSource)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.replace(ctx, existing, ad)
	}

	if ad.ID == "" {
		ad.ID = uuid.NewString()
	}
	if err := s.aux.Insert(ctx, ad); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			// Lost the natural-key race; the winner's record gets replaced.
			existing, gerr := s.aux.GetByNaturalKey(ctx, ad.EventID, ad.DataSource)
			if gerr != nil {
				return nil, gerr
			}
			if existing != nil {
				return s.replace(ctx, existing, ad)
			}
		}
		return nil, err
	}

	if ad.DataSource == FilePondSource {
		// File intake always notifies, whatever the event's age.
		s.ann.Announce(ctx, notify.TopicNewEventAuxData, ad)
	} else {
		s.ann.AnnounceLive(ctx, notify.TopicNewEventAuxData, ad, ev.TS, s.now().UTC())
	}
	return &models.InsertResult{N: 1, OK: 1, InsertedCount: 1, InsertedID: ad.ID}, nil
}

func (s *Service) replace(ctx context.Context, existing, incoming *models.EventAuxData) (*models.InsertResult, error) {
	existing.DataArray = incoming.DataArray
	if err := s.aux.Update(ctx, existing); err != nil {
		return nil, err
	}
	s.ann.Announce(ctx, notify.TopicUpdateEventAuxData, existing)
	return &models.InsertResult{N: 1, OK: 1, InsertedCount: 0}, nil
}

// Patch carries the fields an aux-data update may change.
type Patch struct {
	EventID    *string
	DataSource *string
	DataArray  []models.DataItem
}

// Update applies a partial update. A supplied data array is merged with the
// stored one, the stored item winning on a name collision.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (err error) {
	ctx, finish := s.track(ctx, "auxdata.update", observability.AuxDataOperation("", "", "update"))
	defer func() { finish(err) }()

	ad, err := s.aux.Get(ctx, id)
	if err != nil {
		return err
	}
	if ad == nil {
		return fmt.Errorf("update aux data %s: %w", id, ErrNotFound)
	}
	observability.AddSpanEvent(ctx, "record loaded",
		observability.AttrEventID.String(ad.EventID),
		observability.AttrAuxDataSource.String(ad.DataSource))

	if patch.EventID != nil {
		ad.EventID = *patch.EventID
	}
	if patch.DataSource != nil {
		ad.DataSource = *patch.DataSource
	}
	if patch.DataArray != nil {
		ad.DataArray = mergeDataArrays(ad.DataArray, patch.DataArray)
	}

	if err := s.aux.Update(ctx, ad); err != nil {
		return err
	}
	s.ann.Announce(ctx, notify.TopicUpdateEventAuxData, ad)
	return nil
}

// Delete removes one aux-data record, announcing the removed record.
func (s *Service) Delete(ctx context.Context, id string) (err error) {
	ctx, finish := s.track(ctx, "auxdata.delete", observability.AuxDataOperation("", "", "delete"))
	defer func() { finish(err) }()

	ad, err := s.aux.Get(ctx, id)
	if err != nil {
		return err
	}
	if ad == nil {
		return fmt.Errorf("delete aux data %s: %w", id, ErrNotFound)
	}
	observability.AddSpanEvent(ctx, "record loaded",
		observability.AttrEventID.String(ad.EventID),
		observability.AttrAuxDataSource.String(ad.DataSource))
	if err := s.aux.Delete(ctx, id); err != nil {
		return err
	}
	s.ann.Announce(ctx, notify.TopicDeleteEventAuxData, ad)
	return nil
}
