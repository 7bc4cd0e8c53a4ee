package bulksync

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/partsline/catalog/internal/catalog"
)

// Store is the catalog surface the engine writes through.
type Store interface {
	FindProductsByCodes(ctx context.Context, codes []string) ([]catalog.Product, error)
	InsertProducts(ctx context.Context, products []catalog.Product) (int64, error)
	UpdateProduct(ctx context.Context, p catalog.Product) error
	DeactivateByCodes(ctx context.Context, codes []string) (int64, error)
	DeactivateAll(ctx context.Context) (int64, error)
	FindBrandsByNames(ctx context.Context, names []string) ([]catalog.Brand, error)
	InsertBrands(ctx context.Context, names []string) error
	FindFamiliesByNames(ctx context.Context, names []string) ([]catalog.Family, error)
	InsertFamilies(ctx context.Context, names []string) error
}

// SyncContext holds the per-job brand and family caches. It is created for one run
// and discarded with it.
type SyncContext struct {
	Brands   map[string]int64
	Families map[string]int64
}

// NewSyncContext returns empty caches.
func NewSyncContext() *SyncContext {
	return &SyncContext{Brands: map[string]int64{}, Families: map[string]int64{}}
}

// BrandID returns the cached id for name, nil when name is empty or unresolved.
func (s *SyncContext) BrandID(name string) *int64 {
	return lookup(s.Brands, name)
}

// FamilyID returns the cached id for name, nil when name is empty or unresolved.
func (s *SyncContext) FamilyID(name string) *int64 {
	return lookup(s.Families, name)
}

func lookup(m map[string]int64, name string) *int64 {
	if name == "" {
		return nil
	}
	id, ok := m[name]
	if !ok {
		return nil
	}
	return &id
}

// MetadataSync resolves brand and family names referenced by a batch.
type MetadataSync struct {
	store   Store
	retrier *Retrier
}

// NewMetadataSync wires the synchronizer.
func NewMetadataSync(store Store, retrier *Retrier) *MetadataSync {
	return &MetadataSync{store: store, retrier: retrier}
}

// Resolve makes sure every brand and family named in batch is present in sc.
// Brands and families resolve concurrently; each touches only its own map.
func (m *MetadataSync) Resolve(ctx context.Context, sc *SyncContext, batch []Candidate) error {
	brandNames := uncached(sc.Brands, batch, func(c Candidate) string { return c.Brand })
	familyNames := uncached(sc.Families, batch, func(c Candidate) string { return c.Family })
	if len(brandNames) == 0 && len(familyNames) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	if len(brandNames) > 0 {
		g.Go(func() error {
			return m.resolve(gctx, "brands", sc.Brands, brandNames, m.findBrands, m.store.InsertBrands)
		})
	}
	if len(familyNames) > 0 {
		g.Go(func() error {
			return m.resolve(gctx, "families", sc.Families, familyNames, m.findFamilies, m.store.InsertFamilies)
		})
	}
	return g.Wait()
}

type findFunc func(ctx context.Context, names []string) (map[string]int64, error)

// resolve runs lookup, insert-if-absent and re-read. The insert never counts as proof
// of existence; only the re-read populates the cache.
func (m *MetadataSync) resolve(ctx context.Context, kind string, cache map[string]int64, names []string,
	find findFunc, insert func(context.Context, []string) error) error {
	found, err := retry(ctx, m.retrier, "find "+kind, func(ctx context.Context) (map[string]int64, error) {
		return find(ctx, names)
	})
	if err != nil {
		return err
	}
	var missing []string
	for _, n := range names {
		if id, ok := found[n]; ok {
			cache[n] = id
			continue
		}
		missing = append(missing, n)
	}
	if len(missing) == 0 {
		return nil
	}
	if err := m.retrier.Do(ctx, "insert "+kind, func(ctx context.Context) error {
		return insert(ctx, missing)
	}); err != nil {
		return err
	}
	created, err := retry(ctx, m.retrier, "reload "+kind, func(ctx context.Context) (map[string]int64, error) {
		return find(ctx, missing)
	})
	if err != nil {
		return err
	}
	for _, n := range missing {
		id, ok := created[n]
		if !ok {
			return fmt.Errorf("bulksync: %s %q not found after insert", kind, n)
		}
		cache[n] = id
	}
	return nil
}

func (m *MetadataSync) findBrands(ctx context.Context, names []string) (map[string]int64, error) {
	brands, err := m.store.FindBrandsByNames(ctx, names)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(brands))
	for _, b := range brands {
		out[b.Name] = b.ID
	}
	return out, nil
}

func (m *MetadataSync) findFamilies(ctx context.Context, names []string) (map[string]int64, error) {
	families, err := m.store.FindFamiliesByNames(ctx, names)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(families))
	for _, f := range families {
		out[f.Name] = f.ID
	}
	return out, nil
}

// uncached returns distinct non-empty names in first-seen order that are not in cache.
func uncached(cache map[string]int64, batch []Candidate, name func(Candidate) string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range batch {
		n := name(c)
		if n == "" {
			continue
		}
		if _, ok := cache[n]; ok {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
