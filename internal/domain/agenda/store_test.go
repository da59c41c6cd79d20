package agenda

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore is an in-memory Repository and OverlayRepository. Apply is atomic:
// the changeset is applied to a copy that replaces the live rows only when
// every step succeeds.
type memStore struct {
	mu         sync.Mutex
	entries    map[uuid.UUID]*WeeklyEntry
	versions   map[uuid.UUID]int
	exceptions map[uuid.UUID]*ExceptionDate
	blocks     map[uuid.UUID]*BlockPeriod

	// failApply makes the next Apply fail after staging its changes.
	failApply error
	applies   int
}

func newMemStore() *memStore {
	return &memStore{
		entries:    map[uuid.UUID]*WeeklyEntry{},
		versions:   map[uuid.UUID]int{},
		exceptions: map[uuid.UUID]*ExceptionDate{},
		blocks:     map[uuid.UUID]*BlockPeriod{},
	}
}

// seed stores rows directly, bypassing the engine.
func (m *memStore) seed(professionalID uuid.UUID, rows ...*WeeklyEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range rows {
		e.ProfessionalID = professionalID
		m.entries[e.ID] = e.clone()
	}
}

// rows returns the stored rows of a professional sorted by period and weekday.
func (m *memStore) rows(professionalID uuid.UUID) []*WeeklyEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*WeeklyEntry
	for _, e := range m.entries {
		if e.ProfessionalID == professionalID {
			out = append(out, e.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ValidFrom.Equal(out[j].ValidFrom) {
			return out[i].ValidFrom.Before(out[j].ValidFrom)
		}
		if out[i].Weekday.Rank() != out[j].Weekday.Rank() {
			return out[i].Weekday.Rank() < out[j].Weekday.Rank()
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out
}

func (m *memStore) ListEntries(_ context.Context, professionalID uuid.UUID, opts ListOptions) ([]*WeeklyEntry, error) {
	var out []*WeeklyEntry
	for _, e := range m.rows(professionalID) {
		if !opts.IncludeHistorical && e.ValidTo != nil && e.ValidTo.Before(opts.Today) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memStore) GetEntry(_ context.Context, id uuid.UUID) (*WeeklyEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.clone(), nil
}

func (m *memStore) AgendaVersion(_ context.Context, professionalID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions[professionalID], nil
}

func (m *memStore) Apply(_ context.Context, cs *Changeset) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applies++

	current := m.versions[cs.ProfessionalID]
	if cs.ExpectedVersion != nil && *cs.ExpectedVersion != current {
		return 0, ErrVersionConflict
	}

	staged := make(map[uuid.UUID]*WeeklyEntry, len(m.entries))
	for id, e := range m.entries {
		staged[id] = e
	}
	now := time.Now()
	for _, id := range cs.Deletes {
		if _, ok := staged[id]; !ok {
			return 0, &TransactionFailure{Op: "delete entry", Err: ErrNotFound}
		}
		delete(staged, id)
	}
	for _, e := range cs.Updates {
		prev, ok := staged[e.ID]
		if !ok {
			return 0, &TransactionFailure{Op: "update entry", Err: ErrNotFound}
		}
		u := e.clone()
		u.VersionID = prev.VersionID + 1
		u.UpdatedAt = now
		staged[e.ID] = u
	}
	for _, e := range cs.Creates {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		e.VersionID, e.CreatedAt, e.UpdatedAt = 1, now, now
		staged[e.ID] = e.clone()
	}
	if m.failApply != nil {
		err := m.failApply
		m.failApply = nil
		return 0, &TransactionFailure{Op: "apply changeset", Err: err}
	}

	m.entries = staged
	m.versions[cs.ProfessionalID] = current + 1
	return current + 1, nil
}

func (m *memStore) ListExceptions(_ context.Context, professionalID uuid.UUID, r DateRange) ([]*ExceptionDate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ExceptionDate
	for _, x := range m.exceptions {
		if x.ProfessionalID == professionalID && r.Contains(x.Date) {
			c := *x
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *memStore) GetException(_ context.Context, id uuid.UUID) (*ExceptionDate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	x, ok := m.exceptions[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *x
	return &c, nil
}

func (m *memStore) GetExceptionByDate(_ context.Context, professionalID uuid.UUID, d Date) (*ExceptionDate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.exceptions {
		if x.ProfessionalID == professionalID && x.Date.Equal(d) {
			c := *x
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) CreateException(_ context.Context, x *ExceptionDate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	x.ID = uuid.New()
	x.CreatedAt = time.Now()
	x.UpdatedAt = x.CreatedAt
	c := *x
	m.exceptions[x.ID] = &c
	return nil
}

func (m *memStore) DeleteException(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.exceptions[id]; !ok {
		return ErrNotFound
	}
	delete(m.exceptions, id)
	return nil
}

func (m *memStore) ListBlocks(_ context.Context, professionalID uuid.UUID, from, to time.Time) ([]*BlockPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*BlockPeriod
	for _, b := range m.blocks {
		if b.ProfessionalID == professionalID && b.Overlaps(from, to) {
			c := *b
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (m *memStore) GetBlock(_ context.Context, id uuid.UUID) (*BlockPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blocks[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *b
	return &c, nil
}

func (m *memStore) CreateBlock(_ context.Context, b *BlockPeriod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.ID = uuid.New()
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	c := *b
	m.blocks[b.ID] = &c
	return nil
}

func (m *memStore) DeleteBlock(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blocks[id]; !ok {
		return ErrNotFound
	}
	delete(m.blocks, id)
	return nil
}

// memCache records invalidations and keeps values per professional under a
// generation, like the Redis cache.
type memCache struct {
	mu            sync.Mutex
	values        map[string][]byte
	generations   map[uuid.UUID]int64
	invalidations map[uuid.UUID]int
	failGet       error
}

func newMemCache() *memCache {
	return &memCache{values: map[string][]byte{}, generations: map[uuid.UUID]int64{}, invalidations: map[uuid.UUID]int{}}
}

func memCacheKey(professionalID uuid.UUID, gen int64, key string) string {
	return fmt.Sprintf("%s|%d|%s", professionalID, gen, key)
}

func (c *memCache) Get(_ context.Context, professionalID uuid.UUID, key string) ([]byte, int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet != nil {
		return nil, 0, false, c.failGet
	}
	gen := c.generations[professionalID]
	v, ok := c.values[memCacheKey(professionalID, gen, key)]
	return v, gen, ok, nil
}

func (c *memCache) Set(_ context.Context, professionalID uuid.UUID, gen int64, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[memCacheKey(professionalID, gen, key)] = value
	return nil
}

func (c *memCache) Invalidate(_ context.Context, professionalID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidations[professionalID]++
	c.generations[professionalID]++
	return nil
}

type memMetrics struct {
	mu          sync.Mutex
	mutations   map[string]int
	resolutions map[string]int
}

func newMemMetrics() *memMetrics {
	return &memMetrics{mutations: map[string]int{}, resolutions: map[string]int{}}
}

func (m *memMetrics) ObserveMutation(op, outcome string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutations[op+"/"+outcome]++
}

func (m *memMetrics) ObserveResolution(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolutions[status]++
}

type stubDirectory struct {
	ref *ProfessionalRef
	err error
}

func (d stubDirectory) Lookup(context.Context, uuid.UUID) (*ProfessionalRef, error) {
	return d.ref, d.err
}

var errDiskFull = errors.New("disk full")
