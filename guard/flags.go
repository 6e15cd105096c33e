package guard

import (
	"context"
	"strconv"
)

// Flags are the two user-toggled switches gating restricted request classes.
// Both default to off; an absent key reads as false.
type Flags struct {
	AdminEnabled      bool `json:"admin_enabled"`
	ProductionEnabled bool `json:"production_enabled"`
}

// Flags reads the current flag values from the store.
func (g *Guard) Flags(ctx context.Context) (Flags, error) {
	admin, err := g.adminEnabled(ctx)
	if err != nil {
		return Flags{}, err
	}
	production, err := g.productionEnabled(ctx)
	if err != nil {
		return Flags{}, err
	}
	return Flags{AdminEnabled: admin, ProductionEnabled: production}, nil
}

// SetFlags persists both flag values.
func (g *Guard) SetFlags(ctx context.Context, f Flags) error {
	if err := g.store.Set(ctx, keyAdminEnabled, strconv.FormatBool(f.AdminEnabled)); err != nil {
		return err
	}
	return g.store.Set(ctx, keyProductionEnabled, strconv.FormatBool(f.ProductionEnabled))
}

func (g *Guard) adminEnabled(ctx context.Context) (bool, error) {
	return g.flag(ctx, keyAdminEnabled)
}

func (g *Guard) productionEnabled(ctx context.Context) (bool, error) {
	return g.flag(ctx, keyProductionEnabled)
}

func (g *Guard) flag(ctx context.Context, key string) (bool, error) {
	v, ok, err := g.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return ok && v == "true", nil
}
