package statusstore

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/oceanco2/intake/intake/pkg/qcstatus"
)

// Memory is a Store kept in process memory.
type Memory struct {
	clock clockwork.Clock

	mu       sync.Mutex
	statuses map[string]*qcstatus.Status
	checks   map[string][]*qcstatus.CheckResult
	locks    map[string]*sync.Mutex
}

func NewMemory(clock clockwork.Clock) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{
		clock:    clock,
		statuses: make(map[string]*qcstatus.Status),
		checks:   make(map[string][]*qcstatus.CheckResult),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (m *Memory) Get(ctx context.Context, expocode string) (*qcstatus.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.statuses[expocode]
	if !ok {
		return nil, ErrNotFound
	}
	return st.Clone(), nil
}

func (m *Memory) List(ctx context.Context) ([]*qcstatus.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*qcstatus.Status, 0, len(m.statuses))
	for _, st := range m.statuses {
		out = append(out, st.Clone())
	}
	slices.SortFunc(out, func(a, b *qcstatus.Status) int {
		return cmp.Compare(a.Expocode, b.Expocode)
	})
	return out, nil
}

func (m *Memory) Update(ctx context.Context, expocode string, fn UpdateFunc) (*qcstatus.Status, error) {
	return m.update(ctx, expocode, false, fn)
}

func (m *Memory) Upsert(ctx context.Context, expocode string, fn UpdateFunc) (*qcstatus.Status, error) {
	return m.update(ctx, expocode, true, fn)
}

func (m *Memory) Checks(ctx context.Context, expocode string, limit int) ([]*qcstatus.CheckResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := m.checks[expocode]
	n := len(history)
	if limit > 0 {
		n = min(n, limit)
	}
	out := make([]*qcstatus.CheckResult, 0, n)
	for i := len(history) - 1; i >= 0 && len(out) < n; i-- {
		c := *history[i]
		out = append(out, &c)
	}
	return out, nil
}

func (m *Memory) update(ctx context.Context, expocode string, create bool, fn UpdateFunc) (*qcstatus.Status, error) {
	lock := m.lock(expocode)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	cur, ok := m.statuses[expocode]
	m.mu.Unlock()

	var st *qcstatus.Status
	switch {
	case ok:
		st = cur.Clone()
	case create:
		st = qcstatus.NewStatus(expocode, m.clock.Now())
	default:
		return nil, ErrNotFound
	}

	if err := fn(st); err != nil {
		return nil, err
	}
	st.Expocode = expocode
	st.Version++
	st.UpdatedAt = m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[expocode] = st.Clone()
	if st.LastCheck != nil && !m.hasCheck(expocode, st.LastCheck.ID) {
		c := *st.LastCheck
		m.checks[expocode] = append(m.checks[expocode], &c)
	}
	return st, nil
}

func (m *Memory) hasCheck(expocode, id string) bool {
	return slices.ContainsFunc(m.checks[expocode], func(c *qcstatus.CheckResult) bool {
		return c.ID == id
	})
}

func (m *Memory) lock(expocode string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[expocode]
	if !ok {
		l = &sync.Mutex{}
		m.locks[expocode] = l
	}
	return l
}
