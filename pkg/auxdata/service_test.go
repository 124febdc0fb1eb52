package auxdata

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanlog/oceanlog/pkg/images"
	"github.com/oceanlog/oceanlog/pkg/models"
	"github.com/oceanlog/oceanlog/pkg/notify"
	"github.com/oceanlog/oceanlog/pkg/observability"
	"github.com/oceanlog/oceanlog/pkg/query"
	"github.com/oceanlog/oceanlog/pkg/store"
)

type fakeAuxStore struct {
	byID      map[string]*models.EventAuxData
	insertErr error
}

func newFakeAuxStore() *fakeAuxStore {
	return &fakeAuxStore{byID: map[string]*models.EventAuxData{}}
}

func (f *fakeAuxStore) Insert(_ context.Context, ad *models.EventAuxData) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	cp := *ad
	f.byID[ad.ID] = &cp
	return nil
}

func (f *fakeAuxStore) Get(_ context.Context, id string) (*models.EventAuxData, error) {
	ad, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *ad
	return &cp, nil
}

func (f *fakeAuxStore) GetByNaturalKey(_ context.Context, eventID, dataSource string) (*models.EventAuxData, error) {
	for _, ad := range f.byID {
		if ad.EventID == eventID && ad.DataSource == dataSource {
			cp := *ad
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeAuxStore) Find(_ context.Context, p query.AuxPredicate, _, _ int) ([]models.EventAuxData, error) {
	var out []models.EventAuxData
	for _, ad := range f.byID {
		if p.Matches(ad) {
			out = append(out, *ad)
		}
	}
	return out, nil
}

func (f *fakeAuxStore) Update(_ context.Context, ad *models.EventAuxData) error {
	cp := *ad
	f.byID[ad.ID] = &cp
	return nil
}

func (f *fakeAuxStore) Delete(_ context.Context, id string) error {
	delete(f.byID, id)
	return nil
}

type fakeEventReader struct {
	byID map[string]*models.Event
	ids  []string
}

func (f *fakeEventReader) Get(_ context.Context, id string) (*models.Event, error) {
	return f.byID[id], nil
}

func (f *fakeEventReader) FindIDs(context.Context, query.Predicate) ([]string, error) {
	return f.ids, nil
}

func newTestService(aux *fakeAuxStore, events *fakeEventReader, hub *notify.Hub, up *Uploader) *Service {
	return NewService(aux, events, nil, notify.NewAnnouncer(hub, nil), up, nil)
}

func freshEvent(id string) *models.Event {
	return &models.Event{ID: id, TS: time.Now().UTC(), Value: "FISH"}
}

func TestUpsertInsertsAndPublishes(t *testing.T) {
	aux := newFakeAuxStore()
	events := &fakeEventReader{byID: map[string]*models.Event{"ev-1": freshEvent("ev-1")}}
	hub := notify.NewHub()
	sub := hub.Subscribe()
	svc := newTestService(aux, events, hub, nil)

	res, err := svc.Upsert(context.Background(), &models.EventAuxData{
		EventID:    "ev-1",
		DataSource: "vehicleRealtimeNavData",
		DataArray:  []models.DataItem{{Name: "latitude", Value: "41.5"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.InsertedCount)
	require.NotEmpty(t, res.InsertedID)

	select {
	case msg := <-sub:
		assert.Equal(t, notify.TopicNewEventAuxData, msg.Topic)
	default:
		t.Fatal("expected a newEventAuxData notification")
	}
}

func TestUpsertStaleEventSuppressesNotification(t *testing.T) {
	aux := newFakeAuxStore()
	old := &models.Event{ID: "ev-1", TS: time.Now().UTC().Add(-time.Hour)}
	events := &fakeEventReader{byID: map[string]*models.Event{"ev-1": old}}
	hub := notify.NewHub()
	sub := hub.Subscribe()
	svc := newTestService(aux, events, hub, nil)

	_, err := svc.Upsert(context.Background(), &models.EventAuxData{
		EventID:    "ev-1",
		DataSource: "vehicleRealtimeNavData",
	})
	require.NoError(t, err)
	assert.Empty(t, sub)
}

func TestUpsertUnknownEvent(t *testing.T) {
	svc := newTestService(newFakeAuxStore(), &fakeEventReader{byID: map[string]*models.Event{}}, notify.NewHub(), nil)

	_, err := svc.Upsert(context.Background(), &models.EventAuxData{EventID: "nope", DataSource: "x"})
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestUpsertExistingNaturalKeyReplaces(t *testing.T) {
	aux := newFakeAuxStore()
	aux.byID["ad-1"] = &models.EventAuxData{
		ID: "ad-1", EventID: "ev-1", DataSource: "vehicleRealtimeNavData",
		DataArray: []models.DataItem{{Name: "latitude", Value: "0.0"}},
	}
	events := &fakeEventReader{byID: map[string]*models.Event{"ev-1": freshEvent("ev-1")}}
	hub := notify.NewHub()
	sub := hub.Subscribe()
	svc := newTestService(aux, events, hub, nil)

	res, err := svc.Upsert(context.Background(), &models.EventAuxData{
		EventID:    "ev-1",
		DataSource: "vehicleRealtimeNavData",
		DataArray:  []models.DataItem{{Name: "latitude", Value: "41.5"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.InsertedCount)
	assert.Equal(t, "41.5", aux.byID["ad-1"].DataArray[0].Value)

	select {
	case msg := <-sub:
		assert.Equal(t, notify.TopicUpdateEventAuxData, msg.Topic)
	default:
		t.Fatal("expected an updateEventAuxData notification")
	}
}

func TestUpsertLostRaceDegradesToUpdate(t *testing.T) {
	aux := newFakeAuxStore()
	aux.insertErr = store.ErrDuplicateKey
	// The race winner's row, visible on the re-read after the failed insert.
	aux.byID["ad-1"] = &models.EventAuxData{
		ID: "ad-1", EventID: "ev-1", DataSource: "vehicleRealtimeNavData",
	}
	events := &fakeEventReader{byID: map[string]*models.Event{"ev-1": freshEvent("ev-1")}}
	svc := newTestService(aux, events, notify.NewHub(), nil)

	// GetByNaturalKey is consulted before insert; make the winner invisible
	// to that first check so the insert path runs and collides.
	calls := 0
	svc.aux = naturalKeyRacer{fakeAuxStore: aux, calls: &calls}

	res, err := svc.Upsert(context.Background(), &models.EventAuxData{
		EventID:    "ev-1",
		DataSource: "vehicleRealtimeNavData",
		DataArray:  []models.DataItem{{Name: "depth", Value: "1200"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.InsertedCount)
	assert.Equal(t, "depth", aux.byID["ad-1"].DataArray[0].Name)
}

// naturalKeyRacer reports no existing record on the first natural-key probe,
// simulating a concurrent insert landing between probe and insert.
type naturalKeyRacer struct {
	*fakeAuxStore
	calls *int
}

func (r naturalKeyRacer) GetByNaturalKey(ctx context.Context, eventID, dataSource string) (*models.EventAuxData, error) {
	*r.calls++
	if *r.calls == 1 {
		return nil, nil
	}
	return r.fakeAuxStore.GetByNaturalKey(ctx, eventID, dataSource)
}

func TestUpdateMergesStoredWins(t *testing.T) {
	aux := newFakeAuxStore()
	aux.byID["ad-1"] = &models.EventAuxData{
		ID: "ad-1", EventID: "ev-1", DataSource: "nav",
		DataArray: []models.DataItem{{Name: "latitude", Value: "41.5", UOM: "ddeg"}},
	}
	svc := newTestService(aux, &fakeEventReader{}, notify.NewHub(), nil)

	err := svc.Update(context.Background(), "ad-1", Patch{
		DataArray: []models.DataItem{
			{Name: "latitude", Value: "0.0", UOM: "rad"},
			{Name: "heading", Value: "270"},
		},
	})
	require.NoError(t, err)

	got := aux.byID["ad-1"].DataArray
	assert.Equal(t, []models.DataItem{
		{Name: "latitude", Value: "41.5", UOM: "ddeg"},
		{Name: "heading", Value: "270"},
	}, got)
}

func TestDeleteAlwaysPublishes(t *testing.T) {
	aux := newFakeAuxStore()
	aux.byID["ad-1"] = &models.EventAuxData{ID: "ad-1", EventID: "ev-1", DataSource: "nav"}
	hub := notify.NewHub()
	sub := hub.Subscribe()
	svc := newTestService(aux, &fakeEventReader{}, hub, nil)

	require.NoError(t, svc.Delete(context.Background(), "ad-1"))
	assert.NotContains(t, aux.byID, "ad-1")

	select {
	case msg := <-sub:
		assert.Equal(t, notify.TopicDeleteEventAuxData, msg.Topic)
	default:
		t.Fatal("delete must always notify")
	}
}

func TestUpsertFilePondIngestsStagedFile(t *testing.T) {
	staging := t.TempDir()
	stageDir := filepath.Join(staging, "tmp123")
	require.NoError(t, os.MkdirAll(stageDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(stageDir, "capture.jpeg"), []byte("jpeg"), 0o644))

	imgDir := t.TempDir()
	imgStore, err := images.NewFileStore(imgDir)
	require.NoError(t, err)

	aux := newFakeAuxStore()
	events := &fakeEventReader{byID: map[string]*models.Event{"ev-1": freshEvent("ev-1")}}
	svc := newTestService(aux, events, notify.NewHub(), NewUploader(staging, imgStore))

	res, err := svc.Upsert(context.Background(), &models.EventAuxData{
		EventID:    "ev-1",
		DataSource: FilePondSource,
		DataArray: []models.DataItem{
			{Name: "source", Value: "vesselCam1"},
			{Name: "filename", Value: "tmp123|dive42_bowcam.png"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.InsertedCount)

	stored := aux.byID[res.InsertedID]
	require.NotNil(t, stored)
	// Requested base name, staged file's extension.
	assert.Equal(t, "dive42_bowcam.jpeg", stored.DataArray[1].Value)

	ok, err := imgStore.Exists(context.Background(), "dive42_bowcam.jpeg")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = os.Stat(stageDir)
	assert.True(t, os.IsNotExist(err), "staging dir should be cleared")
}

func TestUpsertFilePondMissingStagedFileAborts(t *testing.T) {
	imgStore, err := images.NewFileStore(t.TempDir())
	require.NoError(t, err)
	aux := newFakeAuxStore()
	events := &fakeEventReader{byID: map[string]*models.Event{"ev-1": freshEvent("ev-1")}}
	svc := newTestService(aux, events, notify.NewHub(), NewUploader(t.TempDir(), imgStore))

	_, err = svc.Upsert(context.Background(), &models.EventAuxData{
		EventID:    "ev-1",
		DataSource: FilePondSource,
		DataArray:  []models.DataItem{{Name: "filename", Value: "gone|x.png"}},
	})
	require.Error(t, err)
	assert.Empty(t, aux.byID, "nothing may be written when ingest fails")
}

func TestWriteOpsWithTelemetryAttached(t *testing.T) {
	aux := newFakeAuxStore()
	events := &fakeEventReader{byID: map[string]*models.Event{"ev-1": freshEvent("ev-1")}}
	svc := newTestService(aux, events, notify.NewHub(), nil)

	obs, err := observability.New(context.Background(), &observability.Config{Enabled: false})
	require.NoError(t, err)
	svc.WithObservability(obs)

	res, err := svc.Upsert(context.Background(), &models.EventAuxData{
		EventID:    "ev-1",
		DataSource: "ctd",
		DataArray:  []models.DataItem{{Name: "depth", Value: "120", UOM: "m"}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.InsertedCount)

	require.NoError(t, svc.Update(context.Background(), res.InsertedID, Patch{
		DataArray: []models.DataItem{{Name: "salinity", Value: "35", UOM: "psu"}},
	}))

	require.NoError(t, svc.Delete(context.Background(), res.InsertedID))
	assert.Empty(t, aux.byID)
}
