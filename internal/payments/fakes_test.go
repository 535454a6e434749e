package payments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/campusdigs/campusdigs-backend/pkg/paystack"
	"github.com/campusdigs/campusdigs-backend/pkg/redis"
)

type fakeGateway struct {
	mu          sync.Mutex
	initialized []paystack.InitializeRequest
	verified    []string
	initErr     error
	verifyErr   error
	txn         *paystack.Transaction
}

func (g *fakeGateway) InitializeTransaction(_ context.Context, req paystack.InitializeRequest) (*paystack.InitializeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initialized = append(g.initialized, req)
	if g.initErr != nil {
		return nil, g.initErr
	}
	return &paystack.InitializeResult{
		AuthorizationURL: "https://checkout.paystack.com/" + req.Reference,
		AccessCode:       "access-" + req.Reference,
		Reference:        req.Reference,
	}, nil
}

func (g *fakeGateway) VerifyTransaction(_ context.Context, reference string) (*paystack.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verified = append(g.verified, reference)
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	if g.txn == nil {
		return nil, nil
	}
	txn := *g.txn
	txn.Reference = reference
	return &txn, nil
}

func (g *fakeGateway) verifyCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.verified)
}

// memoryIntents is an IntentStore kept in a map.
type memoryIntents struct {
	mu      sync.Mutex
	intents map[string]Intent
	saveErr error
}

func newMemoryIntents() *memoryIntents {
	return &memoryIntents{intents: map[string]Intent{}}
}

func (m *memoryIntents) Save(_ context.Context, intent Intent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.intents[intent.Reference] = intent
	return nil
}

func (m *memoryIntents) Get(_ context.Context, reference string) (*Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	intent, ok := m.intents[reference]
	if !ok {
		return nil, nil
	}
	return &intent, nil
}

func (m *memoryIntents) Delete(_ context.Context, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.intents, reference)
	return nil
}

func (m *memoryIntents) ListCreatedBefore(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var refs []string
	for ref, intent := range m.intents {
		if intent.CreatedAt.Before(cutoff) {
			refs = append(refs, ref)
		}
	}
	sort.Strings(refs)
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

func (m *memoryIntents) Forget(context.Context, ...string) error { return nil }

func (m *memoryIntents) has(reference string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.intents[reference]
	return ok
}

// fakeRedis implements redis.IntentStore in memory.
type fakeRedis struct {
	values map[string]string
	ttls   map[string]time.Duration
	sets   map[string]map[string]float64
}

var _ redis.IntentStore = (*fakeRedis)(nil)

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		values: map[string]string{},
		ttls:   map[string]time.Duration{},
		sets:   map[string]map[string]float64{},
	}
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.values[key] = value.(string)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	value, ok := f.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func (f *fakeRedis) ZAdd(_ context.Context, key string, score float64, member string) error {
	if f.sets[key] == nil {
		f.sets[key] = map[string]float64{}
	}
	f.sets[key][member] = score
	return nil
}

func (f *fakeRedis) ZRangeByScore(_ context.Context, key string, min, max float64, limit int64) ([]string, error) {
	var members []string
	for member, score := range f.sets[key] {
		if score >= min && score <= max {
			members = append(members, member)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		return f.sets[key][members[i]] < f.sets[key][members[j]]
	})
	if limit > 0 && int64(len(members)) > limit {
		members = members[:limit]
	}
	return members, nil
}

func (f *fakeRedis) ZRem(_ context.Context, key string, members ...string) error {
	for _, member := range members {
		delete(f.sets[key], member)
	}
	return nil
}

func (f *fakeRedis) IntentKey(reference string) string { return "intent:" + reference }

func (f *fakeRedis) IntentIndexKey() string { return "intent:index" }

type countingMetrics struct {
	mu         sync.Mutex
	outcomes   map[string]int
	mismatches int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{outcomes: map[string]int{}}
}

func (c *countingMetrics) IncReconciliation(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes[outcome]++
}

func (c *countingMetrics) IncAmountMismatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mismatches++
}
