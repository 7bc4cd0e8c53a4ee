package bulksync

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/partsline/catalog/internal/catalog"
)

// plan is the store work derived from one batch and its existing-row snapshot.
type plan struct {
	creates []catalog.Product
	// updates holds one group per code in first-seen order; a group runs sequentially.
	updates [][]catalog.Product
	skipped int
}

// planBatch applies the mode policy. Input order breaks ties: a code already queued
// in this batch is treated as existing in the state that earlier row leaves behind.
func planBatch(batch []Candidate, existing []catalog.Product, mode Mode, sc *SyncContext) plan {
	active := make(map[string]bool, len(existing))
	for _, p := range existing {
		active[p.Code] = p.IsActive
	}
	var (
		p      plan
		groups = map[string]int{}
	)
	queueUpdate := func(prod catalog.Product) {
		i, ok := groups[prod.Code]
		if !ok {
			i = len(p.updates)
			groups[prod.Code] = i
			p.updates = append(p.updates, nil)
		}
		p.updates[i] = append(p.updates[i], prod)
	}
	for _, c := range batch {
		prod := toProduct(c, sc)
		isActive, exists := active[c.Code]
		switch {
		case !exists && mode == ModeUpdate:
			p.skipped++
			continue
		case !exists:
			p.creates = append(p.creates, prod)
		case mode == ModeCreate && isActive:
			p.skipped++
			continue
		default:
			queueUpdate(prod)
		}
		active[c.Code] = prod.IsActive
	}
	return p
}

func toProduct(c Candidate, sc *SyncContext) catalog.Product {
	return catalog.Product{
		Code:           c.Code,
		OriginalCode:   c.OriginalCode,
		Description:    c.Description,
		Application:    c.Application,
		Stock:          c.Stock,
		RetailPrice:    c.RetailPrice,
		WholesalePrice: c.WholesalePrice,
		BrandID:        sc.BrandID(c.Brand),
		FamilyID:       sc.FamilyID(c.Family),
		Category:       c.Category,
		IsOffer:        c.IsOffer,
		IsNew:          c.IsNew,
		IsActive:       !c.Deactivate,
	}
}

// flush executes one batch and folds its outcome into res.
func (e *Engine) flush(ctx context.Context, sc *SyncContext, batch []Candidate, mode Mode, res *Result) error {
	if len(batch) == 0 {
		return nil
	}
	if mode == ModeDelete {
		return e.flushDelete(ctx, batch, res)
	}
	if err := e.meta.Resolve(ctx, sc, batch); err != nil {
		return err
	}
	codes := distinctCodes(batch)
	existing, err := retry(ctx, e.retrier, "find products", func(ctx context.Context) ([]catalog.Product, error) {
		return e.store.FindProductsByCodes(ctx, codes)
	})
	if err != nil {
		return err
	}
	p := planBatch(batch, existing, mode, sc)
	res.Skipped += p.skipped

	if len(p.creates) > 0 {
		n, err := retry(ctx, e.retrier, "insert products", func(ctx context.Context) (int64, error) {
			return e.store.InsertProducts(ctx, p.creates)
		})
		if err != nil {
			return err
		}
		res.Inserted += int(n)
		// Rows created concurrently by someone else are ignored by the insert.
		res.Skipped += len(p.creates) - int(n)
	}

	updated, err := e.runUpdates(ctx, p.updates)
	if err != nil {
		return err
	}
	res.Inserted += updated
	return nil
}

// runUpdates applies update groups with at most UpdateParallelism calls in flight.
func (e *Engine) runUpdates(ctx context.Context, groups [][]catalog.Product) (int, error) {
	if len(groups) == 0 {
		return 0, nil
	}
	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.UpdateParallelism)
	for _, group := range groups {
		g.Go(func() error {
			for _, prod := range group {
				if err := e.retrier.Do(gctx, "update product "+prod.Code, func(ctx context.Context) error {
					return e.store.UpdateProduct(ctx, prod)
				}); err != nil {
					return err
				}
				done.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()
	return int(done.Load()), err
}

func (e *Engine) flushDelete(ctx context.Context, batch []Candidate, res *Result) error {
	codes := make([]string, 0, len(batch))
	for _, c := range batch {
		codes = append(codes, c.Code)
	}
	n, err := retry(ctx, e.retrier, "deactivate products", func(ctx context.Context) (int64, error) {
		return e.store.DeactivateByCodes(ctx, codes)
	})
	if err != nil {
		return err
	}
	matched := int(n)
	if matched > len(codes) {
		matched = len(codes)
	}
	res.Inserted += matched
	res.Skipped += len(codes) - matched
	return nil
}

func distinctCodes(batch []Candidate) []string {
	seen := make(map[string]struct{}, len(batch))
	codes := make([]string, 0, len(batch))
	for _, c := range batch {
		if _, ok := seen[c.Code]; ok {
			continue
		}
		seen[c.Code] = struct{}{}
		codes = append(codes, c.Code)
	}
	return codes
}
