package bulksync

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/partsline/catalog/internal/catalog"
)

// memStore is an in-memory catalog. Failures can be injected per operation.
type memStore struct {
	mu       sync.Mutex
	products map[string]catalog.Product
	brands   map[string]int64
	families map[string]int64
	nextID   int64

	writes        int
	updateCalls   map[string]int
	failUpdates   map[string]int
	updateErr     error
	insertCalls   int
	deactivateAll int
}

func newMemStore() *memStore {
	return &memStore{
		products:    map[string]catalog.Product{},
		brands:      map[string]int64{},
		families:    map[string]int64{},
		updateCalls: map[string]int{},
		failUpdates: map[string]int{},
	}
}

func (s *memStore) seed(products ...catalog.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range products {
		s.nextID++
		p.ID = s.nextID
		s.products[p.Code] = p
	}
}

func (s *memStore) product(code string) (catalog.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[code]
	return p, ok
}

func (s *memStore) codes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.products))
	for c := range s.products {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (s *memStore) snapshot() map[string]catalog.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]catalog.Product, len(s.products))
	for k, v := range s.products {
		v.UpdatedAt = time.Time{}
		out[k] = v
	}
	return out
}

func (s *memStore) FindProductsByCodes(ctx context.Context, codes []string) ([]catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []catalog.Product
	for _, c := range codes {
		if p, ok := s.products[c]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) InsertProducts(ctx context.Context, products []catalog.Product) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertCalls++
	var n int64
	for _, p := range products {
		if _, ok := s.products[p.Code]; ok {
			continue
		}
		s.nextID++
		p.ID = s.nextID
		s.products[p.Code] = p
		s.writes++
		n++
	}
	return n, nil
}

func (s *memStore) UpdateProduct(ctx context.Context, p catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls[p.Code]++
	if s.updateErr != nil {
		return s.updateErr
	}
	if s.failUpdates[p.Code] > 0 {
		s.failUpdates[p.Code]--
		return catalog.Transient("update product "+p.Code, errors.New("connection reset by peer"))
	}
	cur, ok := s.products[p.Code]
	if !ok {
		return nil
	}
	p.ID = cur.ID
	if p.OriginalCode == "" {
		p.OriginalCode = cur.OriginalCode
	}
	if p.Description == "" {
		p.Description = cur.Description
	}
	if p.Application == "" {
		p.Application = cur.Application
	}
	if p.WholesalePrice == nil {
		p.WholesalePrice = cur.WholesalePrice
	}
	if p.BrandID == nil {
		p.BrandID = cur.BrandID
	}
	if p.FamilyID == nil {
		p.FamilyID = cur.FamilyID
	}
	if p.Category == "" {
		p.Category = cur.Category
	}
	s.products[p.Code] = p
	s.writes++
	return nil
}

func (s *memStore) DeactivateByCodes(ctx context.Context, codes []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range codes {
		p, ok := s.products[c]
		if !ok {
			continue
		}
		p.IsActive = false
		s.products[c] = p
		s.writes++
		n++
	}
	return n, nil
}

func (s *memStore) DeactivateAll(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deactivateAll++
	var n int64
	for c, p := range s.products {
		if !p.IsActive {
			continue
		}
		p.IsActive = false
		s.products[c] = p
		s.writes++
		n++
	}
	return n, nil
}

func (s *memStore) FindBrandsByNames(ctx context.Context, names []string) ([]catalog.Brand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []catalog.Brand
	for _, n := range names {
		if id, ok := s.brands[n]; ok {
			out = append(out, catalog.Brand{ID: id, Name: n})
		}
	}
	return out, nil
}

func (s *memStore) InsertBrands(ctx context.Context, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		if _, ok := s.brands[n]; !ok {
			s.nextID++
			s.brands[n] = s.nextID
		}
	}
	return nil
}

func (s *memStore) FindFamiliesByNames(ctx context.Context, names []string) ([]catalog.Family, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []catalog.Family
	for _, n := range names {
		if id, ok := s.families[n]; ok {
			out = append(out, catalog.Family{ID: id, Name: n})
		}
	}
	return out, nil
}

func (s *memStore) InsertFamilies(ctx context.Context, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		if _, ok := s.families[n]; !ok {
			s.nextID++
			s.families[n] = s.nextID
		}
	}
	return nil
}

// memoryRepo is an in-memory job table honouring the status guards.
type memoryRepo struct {
	mu     sync.Mutex
	jobs   map[int64]Job
	nextID int64
	gets   int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{jobs: map[int64]Job{}}
}

func (r *memoryRepo) InsertJob(ctx context.Context, req CreateRequest) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	job := Job{
		ID:        r.nextID,
		Status:    StatusPending,
		Mode:      req.Mode,
		Filename:  req.Filename,
		FilePath:  req.FilePath,
		UserID:    req.UserID,
		Errors:    []RowError{},
		CreatedAt: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	r.jobs[job.ID] = job
	return job, nil
}

func (r *memoryRepo) GetJob(ctx context.Context, id int64) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	job, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return job, nil
}

func (r *memoryRepo) MarkProcessing(ctx context.Context, id int64, startedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status != StatusPending {
		return ErrInvalidStatus
	}
	job.Status = StatusProcessing
	job.StartedAt = &startedAt
	r.jobs[id] = job
	return nil
}

func (r *memoryRepo) MarkCompleted(ctx context.Context, id int64, res Result, finishedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status != StatusProcessing {
		return ErrInvalidStatus
	}
	job.Status = StatusCompleted
	job.TotalRows = res.TotalRows
	job.Inserted = res.Inserted
	job.Skipped = res.Skipped
	job.ErrorsCount = res.ErrorsCount
	job.Errors = res.Errors
	job.FinishedAt = &finishedAt
	r.jobs[id] = job
	return nil
}

func (r *memoryRepo) MarkFailed(ctx context.Context, id int64, msg string, finishedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status.Terminal() {
		return ErrInvalidStatus
	}
	job.Status = StatusFailed
	job.ErrorMessage = truncateError(msg)
	job.FinishedAt = &finishedAt
	r.jobs[id] = job
	return nil
}

func (r *memoryRepo) job(id int64) Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id]
}

// noSleep records requested delays without waiting.
type noSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (n *noSleep) Sleep(ctx context.Context, d time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delays = append(n.delays, d)
	return nil
}

func (n *noSleep) recorded() []time.Duration {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]time.Duration(nil), n.delays...)
}

func testRetrier(s *noSleep) *Retrier {
	r := NewRetrier(nil)
	r.Sleep = s.Sleep
	return r
}
