// Package scope resolves a cruise or lowering identifier into the effective
// time window a request may query, enforcing the visibility rules of hidden
// scopes along the way.
package scope

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oceanlog/oceanlog/pkg/auth"
	"github.com/oceanlog/oceanlog/pkg/models"
)

var (
	ErrNotFound     = errors.New("scope not found")
	ErrUnauthorized = errors.New("not authorized for this scope")
)

// CruiseGetter fetches a cruise by identifier.
type CruiseGetter interface {
	GetCruise(ctx context.Context, id string) (*models.Cruise, error)
}

// LoweringGetter fetches a lowering by identifier.
type LoweringGetter interface {
	GetLowering(ctx context.Context, id string) (*models.Lowering, error)
}

// Window is an inclusive [Start, Stop] time range.
type Window struct {
	Start time.Time
	Stop  time.Time
}

// Clamp narrows the window by caller-supplied bounds. A requested bound is
// adopted only when it lies inside the window; out-of-window bounds fall
// back to the window's own edge, so a request can never widen its scope.
func (w Window) Clamp(requestedStart, requestedStop *time.Time) Window {
	out := w
	if requestedStart != nil && within(*requestedStart, w) {
		out.Start = *requestedStart
	}
	if requestedStop != nil && within(*requestedStop, w) {
		out.Stop = *requestedStop
	}
	return out
}

func within(t time.Time, w Window) bool {
	return !t.Before(w.Start) && !t.After(w.Stop)
}

// Resolver turns cruise/lowering identifiers into effective windows.
type Resolver struct {
	cruises   CruiseGetter
	lowerings LoweringGetter
	// accessControl enables the per-scope access list check for hidden
	// scopes in addition to the admin bypass.
	accessControl bool
}

func NewResolver(cruises CruiseGetter, lowerings LoweringGetter, accessControl bool) *Resolver {
	return &Resolver{cruises: cruises, lowerings: lowerings, accessControl: accessControl}
}

// Cruise resolves a cruise id into the effective window for the caller,
// clamping the requested bounds into the cruise's own window.
func (r *Resolver) Cruise(ctx context.Context, id string, p auth.Principal, requestedStart, requestedStop *time.Time) (Window, error) {
	cruise, err := r.cruises.GetCruise(ctx, id)
	if err != nil {
		return Window{}, fmt.Errorf("resolve cruise %s: %w", id, err)
	}
	if cruise == nil {
		return Window{}, fmt.Errorf("cruise %s: %w", id, ErrNotFound)
	}
	if err := r.authorize(cruise.Hidden, cruise.AccessList, p); err != nil {
		return Window{}, err
	}
	return Window{Start: cruise.StartTS, Stop: cruise.StopTS}.Clamp(requestedStart, requestedStop), nil
}

// Lowering resolves a lowering id the same way Cruise does.
func (r *Resolver) Lowering(ctx context.Context, id string, p auth.Principal, requestedStart, requestedStop *time.Time) (Window, error) {
	lowering, err := r.lowerings.GetLowering(ctx, id)
	if err != nil {
		return Window{}, fmt.Errorf("resolve lowering %s: %w", id, err)
	}
	if lowering == nil {
		return Window{}, fmt.Errorf("lowering %s: %w", id, ErrNotFound)
	}
	if err := r.authorize(lowering.Hidden, lowering.AccessList, p); err != nil {
		return Window{}, err
	}
	return Window{Start: lowering.StartTS, Stop: lowering.StopTS}.Clamp(requestedStart, requestedStop), nil
}

func (r *Resolver) authorize(hidden bool, accessList []string, p auth.Principal) error {
	if !hidden || p.HasScope(auth.ScopeAdmin) {
		return nil
	}
	if r.accessControl {
		for _, id := range accessList {
			if id == p.GetID() {
				return nil
			}
		}
	}
	return ErrUnauthorized
}
