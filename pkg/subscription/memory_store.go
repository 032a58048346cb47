package subscription

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. It is used by tests and by single
// instance deployments without Postgres.
type MemoryStore struct {
	mu      sync.RWMutex
	subs    map[uuid.UUID]*Subscription // by user
	methods map[uuid.UUID]*PaymentMethod
	applied map[string]uuid.UUID // payment reference -> user

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subs:    make(map[uuid.UUID]*Subscription),
		methods: make(map[uuid.UUID]*PaymentMethod),
		applied: make(map[string]uuid.UUID),
		locks:   make(map[uuid.UUID]*sync.Mutex),
	}
}

func (m *MemoryStore) userLock(userID uuid.UUID) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[userID] = l
	}
	return l
}

func (m *MemoryStore) GetSubscription(_ context.Context, userID uuid.UUID) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.subs[userID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return sub.Clone(), nil
}

func (m *MemoryStore) ListPaymentMethods(_ context.Context, userID uuid.UUID) ([]PaymentMethod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.methodsOf(userID), nil
}

func (m *MemoryStore) methodsOf(userID uuid.UUID) []PaymentMethod {
	var out []PaymentMethod
	for _, pm := range m.methods {
		if pm.UserID == userID {
			out = append(out, *pm)
		}
	}
	return out
}

func (m *MemoryStore) FindSubscriptionByCode(_ context.Context, code string) (*Subscription, error) {
	if code == "" {
		return nil, ErrSubscriptionNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sub := range m.subs {
		if sub.SubscriptionCode == code {
			return sub.Clone(), nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (m *MemoryStore) FindUserByCustomerCode(_ context.Context, customerCode string) (uuid.UUID, error) {
	if customerCode == "" {
		return uuid.Nil, ErrUserNotResolved
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, pm := range m.methods {
		if pm.CustomerCode == customerCode {
			return pm.UserID, nil
		}
	}
	return uuid.Nil, ErrUserNotResolved
}

func (m *MemoryStore) ListDueTrials(_ context.Context, now time.Time, after DueCursor, limit int) ([]Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var due []Subscription
	for _, sub := range m.subs {
		if sub.TrialElapsed(now) && after.Precedes(*sub) {
			due = append(due, *sub.Clone())
		}
	}
	slices.SortFunc(due, func(a, b Subscription) int {
		if c := a.TrialEnd.Compare(*b.TrialEnd); c != 0 {
			return c
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// Atomic runs fn against a staged copy of the user's rows and commits the
// copy when fn succeeds.
func (m *MemoryStore) Atomic(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, tx Tx) error) error {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	tx := &memoryTx{
		store:   m,
		userID:  userID,
		sub:     m.subs[userID].Clone(),
		methods: make(map[uuid.UUID]PaymentMethod),
		deleted: make(map[uuid.UUID]bool),
		applied: make(map[string]bool),
	}
	for _, pm := range m.methodsOf(userID) {
		tx.methods[pm.ID] = pm
	}
	m.mu.RUnlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return m.commit(tx)
}

func (m *MemoryStore) commit(tx *memoryTx) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ref := range tx.applied {
		if _, ok := m.applied[ref]; ok {
			return fmt.Errorf("payment %s already applied", ref)
		}
	}
	// authorization_code is unique across users
	for _, pm := range tx.methods {
		for id, other := range m.methods {
			if id != pm.ID && other.UserID != tx.userID && other.AuthorizationCode == pm.AuthorizationCode {
				return fmt.Errorf("%w: %s", ErrDuplicateAuthorization, pm.AuthorizationCode)
			}
		}
	}

	if tx.sub != nil {
		m.subs[tx.userID] = tx.sub.Clone()
	}
	for id := range tx.deleted {
		delete(m.methods, id)
	}
	for id, pm := range tx.methods {
		v := pm
		m.methods[id] = &v
	}
	for ref := range tx.applied {
		m.applied[ref] = tx.userID
	}
	return nil
}

type memoryTx struct {
	store   *MemoryStore
	userID  uuid.UUID
	sub     *Subscription
	methods map[uuid.UUID]PaymentMethod
	deleted map[uuid.UUID]bool
	applied map[string]bool
}

func (tx *memoryTx) checkUser(userID uuid.UUID) error {
	if userID != tx.userID {
		return fmt.Errorf("unit of work for user %s cannot touch user %s", tx.userID, userID)
	}
	return nil
}

func (tx *memoryTx) GetSubscription(_ context.Context, userID uuid.UUID) (*Subscription, error) {
	if err := tx.checkUser(userID); err != nil {
		return nil, err
	}
	if tx.sub == nil {
		return nil, ErrSubscriptionNotFound
	}
	return tx.sub.Clone(), nil
}

func (tx *memoryTx) ListPaymentMethods(_ context.Context, userID uuid.UUID) ([]PaymentMethod, error) {
	if err := tx.checkUser(userID); err != nil {
		return nil, err
	}
	out := make([]PaymentMethod, 0, len(tx.methods))
	for _, pm := range tx.methods {
		out = append(out, pm)
	}
	return out, nil
}

func (tx *memoryTx) SaveSubscription(_ context.Context, sub *Subscription) error {
	if err := tx.checkUser(sub.UserID); err != nil {
		return err
	}
	tx.sub = sub.Clone()
	return nil
}

func (tx *memoryTx) SavePaymentMethod(_ context.Context, pm *PaymentMethod) error {
	if err := tx.checkUser(pm.UserID); err != nil {
		return err
	}
	for id, other := range tx.methods {
		if id != pm.ID && other.AuthorizationCode == pm.AuthorizationCode {
			return fmt.Errorf("%w: %s", ErrDuplicateAuthorization, pm.AuthorizationCode)
		}
	}
	tx.methods[pm.ID] = *pm
	delete(tx.deleted, pm.ID)
	return nil
}

func (tx *memoryTx) DeletePaymentMethod(_ context.Context, userID, id uuid.UUID) error {
	if err := tx.checkUser(userID); err != nil {
		return err
	}
	if _, ok := tx.methods[id]; !ok {
		return ErrPaymentMethodNotFound
	}
	delete(tx.methods, id)
	tx.deleted[id] = true
	return nil
}

func (tx *memoryTx) PaymentApplied(_ context.Context, reference string) (bool, error) {
	if tx.applied[reference] {
		return true, nil
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	_, ok := tx.store.applied[reference]
	return ok, nil
}

func (tx *memoryTx) RecordPayment(_ context.Context, userID uuid.UUID, reference string, _ time.Time) error {
	if err := tx.checkUser(userID); err != nil {
		return err
	}
	tx.applied[reference] = true
	return nil
}
