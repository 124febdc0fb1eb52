package scope

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanlog/oceanlog/pkg/auth"
	"github.com/oceanlog/oceanlog/pkg/models"
)

var (
	windowStart = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	windowStop  = time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
)

type staticCruises map[string]*models.Cruise

func (s staticCruises) GetCruise(_ context.Context, id string) (*models.Cruise, error) {
	return s[id], nil
}

type staticLowerings map[string]*models.Lowering

func (s staticLowerings) GetLowering(_ context.Context, id string) (*models.Lowering, error) {
	return s[id], nil
}

func watcher() auth.Principal {
	return &auth.BasePrincipal{ID: "user-1", Scopes: []string{auth.ScopeEventWatcher}}
}

func admin() auth.Principal {
	return &auth.BasePrincipal{ID: "root", Scopes: []string{auth.ScopeAdmin}}
}

func newTestResolver(accessControl bool, hidden bool, accessList []string) *Resolver {
	cruises := staticCruises{
		"cruise-1": {
			ID:         "cruise-1",
			CruiseID:   "AT42-07",
			StartTS:    windowStart,
			StopTS:     windowStop,
			Hidden:     hidden,
			AccessList: accessList,
		},
	}
	lowerings := staticLowerings{
		"lowering-1": {
			ID:         "lowering-1",
			LoweringID: "AT42-07-4928",
			StartTS:    windowStart.Add(24 * time.Hour),
			StopTS:     windowStart.Add(36 * time.Hour),
			Hidden:     hidden,
			AccessList: accessList,
		},
	}
	return NewResolver(cruises, lowerings, accessControl)
}

func TestClampAdoptsInWindowBounds(t *testing.T) {
	w := Window{Start: windowStart, Stop: windowStop}

	reqStart := windowStart.Add(48 * time.Hour)
	reqStop := windowStop.Add(-48 * time.Hour)

	got := w.Clamp(&reqStart, &reqStop)
	assert.Equal(t, reqStart, got.Start)
	assert.Equal(t, reqStop, got.Stop)
}

func TestClampRejectsOutOfWindowBounds(t *testing.T) {
	w := Window{Start: windowStart, Stop: windowStop}

	// A request can never widen its scope.
	early := windowStart.Add(-time.Hour)
	late := windowStop.Add(time.Hour)

	got := w.Clamp(&early, &late)
	assert.Equal(t, windowStart, got.Start)
	assert.Equal(t, windowStop, got.Stop)
}

func TestClampBoundsAreInclusive(t *testing.T) {
	w := Window{Start: windowStart, Stop: windowStop}

	got := w.Clamp(&windowStart, &windowStop)
	assert.Equal(t, w, got)
}

func TestCruiseResolvesAndClamps(t *testing.T) {
	r := newTestResolver(false, false, nil)

	reqStart := windowStart.Add(-time.Hour) // outside, falls back to edge
	reqStop := windowStop.Add(-24 * time.Hour)

	w, err := r.Cruise(context.Background(), "cruise-1", watcher(), &reqStart, &reqStop)
	require.NoError(t, err)
	assert.Equal(t, windowStart, w.Start)
	assert.Equal(t, reqStop, w.Stop)
}

func TestCruiseMissing(t *testing.T) {
	r := newTestResolver(false, false, nil)

	_, err := r.Cruise(context.Background(), "nope", watcher(), nil, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoweringResolves(t *testing.T) {
	r := newTestResolver(false, false, nil)

	w, err := r.Lowering(context.Background(), "lowering-1", watcher(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, windowStart.Add(24*time.Hour), w.Start)
	assert.Equal(t, windowStart.Add(36*time.Hour), w.Stop)
}

func TestHiddenCruiseDeniedForRegularUser(t *testing.T) {
	r := newTestResolver(false, true, nil)

	_, err := r.Cruise(context.Background(), "cruise-1", watcher(), nil, nil)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestHiddenCruiseVisibleToAdmin(t *testing.T) {
	r := newTestResolver(false, true, nil)

	_, err := r.Cruise(context.Background(), "cruise-1", admin(), nil, nil)
	require.NoError(t, err)
}

func TestAccessListHonoredOnlyWithAccessControl(t *testing.T) {
	withoutAC := newTestResolver(false, true, []string{"user-1"})
	_, err := withoutAC.Cruise(context.Background(), "cruise-1", watcher(), nil, nil)
	require.ErrorIs(t, err, ErrUnauthorized)

	withAC := newTestResolver(true, true, []string{"user-1"})
	_, err = withAC.Cruise(context.Background(), "cruise-1", watcher(), nil, nil)
	require.NoError(t, err)

	_, err = withAC.Cruise(context.Background(), "cruise-1",
		&auth.BasePrincipal{ID: "user-2", Scopes: []string{auth.ScopeEventWatcher}}, nil, nil)
	require.ErrorIs(t, err, ErrUnauthorized)
}
