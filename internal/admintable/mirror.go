package admintable

import (
	"context"

	"uniportal/internal/fanout"
	"uniportal/internal/reconciler"
)

// Mirror seeds r's admin-table cache with the page currently held.
func (c *Controller) Mirror(r *reconciler.Reconciler) {
	c.mu.RLock()
	rows := make([]fanout.Payload, 0, len(c.rows))
	for _, n := range c.rows {
		rows = append(rows, fanout.PayloadFrom(n))
	}
	total := c.total
	c.mu.RUnlock()

	r.SeedTable(rows, int(total))
}

// RefreshStale reloads the page and reseeds r once a new record has made
// r's table cache stale. It reports whether a reload happened.
func (c *Controller) RefreshStale(ctx context.Context, r *reconciler.Reconciler) (bool, error) {
	if !r.State().Table.Stale {
		return false, nil
	}
	if err := c.Refresh(ctx); err != nil {
		return false, err
	}
	c.Mirror(r)
	return true, nil
}
