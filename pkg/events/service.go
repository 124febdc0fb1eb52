// Package events orchestrates event CRUD: filtering, scope-window listings,
// insert/update conversion, cascade delete, and change notifications.
package events

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
	// ErrNotFound marks a lookup that matched no record.
	ErrNotFound = errors.New("event not found")
	// ErrUserNotFound marks a create whose caller has no user record to
	// default the author from.
	ErrUserNotFound = errors.New("user record not found")
)

// EventStore is the persistence surface the service needs.
type EventStore interface {
	Insert(ctx context.Context, ev *models.Event) error
	Get(ctx context.Context, id string) (*models.Event, error)
	Find(ctx context.Context, p query.Predicate, page query.Page) ([]models.Event, error)
	Update(ctx context.Context, ev *models.Event) error
	DeleteCascade(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int64, error)
}

// AuxReader exposes the aux-data lookups event listings and deletes need.
type AuxReader interface {
	FindByEvent(ctx context.Context, eventID string) ([]models.EventAuxData, error)
	FindEventIDsByDataSource(ctx context.Context, sources []string) ([]string, error)
}

// UserGetter resolves the caller's user record for author defaulting.
type UserGetter interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

type Service struct {
	events   EventStore
	aux      AuxReader
	users    UserGetter
	resolver *scope.Resolver
	ann      *notify.Announcer
	obs      *observability.Provider
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(events EventStore, aux AuxReader, users UserGetter, resolver *scope.Resolver, ann *notify.Announcer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		events:   events,
		aux:      aux,
		users:    users,
		resolver: resolver,
		ann:      ann,
		logger:   logger,
		now:      time.Now,
	}
}

// WithObservability attaches the telemetry provider to the service's write
// and scoped-listing paths. A nil provider leaves tracking off.
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

// ListOptions carries the caller-supplied filter and paging for listings.
type ListOptions struct {
	Filter      query.Filter
	Page        query.Page
	DataSources []string
	IncludeAux  bool
}

// List returns events matching the filter. A datasource constraint narrows
// the result to events carrying aux data from those sources.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]models.Event, error) {
	f := opts.Filter
	if len(opts.DataSources) > 0 {
		ids, err := s.aux.FindEventIDsByDataSource(ctx, opts.DataSources)
		if err != nil {
			return nil, err
		}
		if ids == nil {
			ids = []string{}
		}
		f = f.WithIDs(ids)
	}
	p, err := f.Compile()
	if err != nil {
		return nil, err
	}
	out, err := s.events.Find(ctx, p, opts.Page)
	if err != nil {
		return nil, err
	}
	if opts.IncludeAux {
		if err := s.attachAux(ctx, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ListByCruise lists events inside a cruise's time window, oldest first.
// Requested start/stop bounds are honored only where they fall inside the
// window.
func (s *Service) ListByCruise(ctx context.Context, p auth.Principal, cruiseID string, opts ListOptions) (out []models.Event, err error) {
	ctx, finish := s.track(ctx, "events.list_bycruise", observability.ScopedQuery(cruiseID, "", p.GetID()))
	defer func() { finish(err) }()
	w, err := s.resolver.Cruise(ctx, cruiseID, p, opts.Filter.Start, opts.Filter.Stop)
	if err != nil {
		return nil, err
	}
	return s.listWindow(ctx, w, opts)
}

// ListByLowering is ListByCruise for a lowering's window.
func (s *Service) ListByLowering(ctx context.Context, p auth.Principal, loweringID string, opts ListOptions) (out []models.Event, err error) {
	ctx, finish := s.track(ctx, "events.list_bylowering", observability.ScopedQuery("", loweringID, p.GetID()))
	defer func() { finish(err) }()
	w, err := s.resolver.Lowering(ctx, loweringID, p, opts.Filter.Start, opts.Filter.Stop)
	if err != nil {
		return nil, err
	}
	return s.listWindow(ctx, w, opts)
}

func (s *Service) listWindow(ctx context.Context, w scope.Window, opts ListOptions) ([]models.Event, error) {
	opts.Filter.Start = &w.Start
	opts.Filter.Stop = &w.Stop
	opts.Page.Sort = query.SortOldestFirst
	return s.List(ctx, opts)
}

// Get fetches one event with its aux data attached.
func (s *Service) Get(ctx context.Context, id string) (*models.Event, error) {
	ev, err := s.events.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, ErrNotFound
	}
	aux, err := s.aux.FindByEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	ev.AuxData = aux
	return ev, nil
}

// Create inserts an event, defaulting the timestamp to now, the author to
// the caller's username, and the option list to empty. A create that names
// an already-existing id reports success without writing anything.
func (s *Service) Create(ctx context.Context, p auth.Principal, ev *models.Event) (res *models.InsertResult, err error) {
	ctx, finish := s.track(ctx, "events.create", observability.EventOperation(ev.ID, ev.Value, ev.Author, "create"))
	defer func() { finish(err) }()

	now := s.now().UTC()
	if ev.TS.IsZero() {
		ev.TS = now
	}
	if ev.Options == nil {
		ev.Options = []models.EventOption{}
	}
	if ev.Author == "" {
		u, err := s.users.GetUser(ctx, p.GetID())
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, fmt.Errorf("author for caller %s: %w", p.GetID(), ErrUserNotFound)
		}
		ev.Author = u.Username
	}
	explicitID := ev.ID != ""
	if !explicitID {
		ev.ID = uuid.NewString()
	}

	if err := s.events.Insert(ctx, ev); err != nil {
		if explicitID && errors.Is(err, store.ErrDuplicateKey) {
			return &models.InsertResult{N: 1, OK: 1, InsertedCount: 0}, nil
		}
		return nil, err
	}

	ev.AuxData = []models.EventAuxData{}
	s.ann.AnnounceLive(ctx, notify.TopicNewEvent, ev, ev.TS, now)
	return &models.InsertResult{N: 1, OK: 1, InsertedCount: 1, InsertedID: ev.ID}, nil
}

// Patch carries the fields an update may change. Nil pointers leave the
// stored value alone.
type Patch struct {
	Author   *string
	TS       *time.Time
	Value    *string
	FreeText *string
	Options  []models.EventOption
}

// Update applies a partial update. Supplied options are merged over the
// stored ones, the incoming value winning on a name collision.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (err error) {
	ctx, finish := s.track(ctx, "events.update", observability.EventOperation(id, "", "", "update"))
	defer func() { finish(err) }()

	ev, err := s.events.Get(ctx, id)
	if err != nil {
		return err
	}
	if ev == nil {
		return fmt.Errorf("update event %s: %w", id, ErrNotFound)
	}

	if patch.Author != nil {
		ev.Author = *patch.Author
	}
	if patch.TS != nil {
		ev.TS = patch.TS.UTC()
	}
	if patch.Value != nil {
		ev.Value = *patch.Value
	}
	if patch.FreeText != nil {
		ev.FreeText = *patch.FreeText
	}
	if patch.Options != nil {
		ev.Options = mergeOptions(ev.Options, patch.Options)
	}

	if err := s.events.Update(ctx, ev); err != nil {
		return err
	}

	aux, err := s.aux.FindByEvent(ctx, id)
	if err == nil {
		ev.AuxData = aux
	} else {
		s.logger.Warn("aux snapshot for update notification failed", "event_id", id, "error", err)
	}
	s.ann.AnnounceLive(ctx, notify.TopicUpdateEvent, ev, ev.TS, s.now().UTC())
	return nil
}

// mergeOptions overlays incoming options onto stored ones. Incoming wins on
// a name collision; stored options the patch does not mention survive.
func mergeOptions(stored, incoming []models.EventOption) []models.EventOption {
	out := make([]models.EventOption, len(stored))
	copy(out, stored)
	for _, in := range incoming {
		replaced := false
		for i := range out {
			if out[i].Name == in.Name {
				out[i].Value = in.Value
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, in)
		}
	}
	return out
}

// Delete removes an event and its aux data, announcing the deletion with a
// snapshot of the removed children. The notification is not recency-gated.
func (s *Service) Delete(ctx context.Context, id string) (err error) {
	ctx, finish := s.track(ctx, "events.delete", observability.EventOperation(id, "", "", "delete"))
	defer func() { finish(err) }()

	ev, err := s.events.Get(ctx, id)
	if err != nil {
		return err
	}
	if ev == nil {
		return fmt.Errorf("delete event %s: %w", id, ErrNotFound)
	}
	aux, err := s.aux.FindByEvent(ctx, id)
	if err != nil {
		return err
	}
	ev.AuxData = aux

	if err := s.events.DeleteCascade(ctx, id); err != nil {
		return err
	}
	s.ann.Announce(ctx, notify.TopicDeleteEvent, ev)
	return nil
}

// DeleteAll wipes the events and aux-data collections.
func (s *Service) DeleteAll(ctx context.Context) (int64, error) {
	return s.events.DeleteAll(ctx)
}

func (s *Service) attachAux(ctx context.Context, evs []models.Event) error {
	for i := range evs {
		aux, err := s.aux.FindByEvent(ctx, evs[i].ID)
		if err != nil {
			return err
		}
		evs[i].AuxData = aux
	}
	return nil
}
