// Package memdb is an in-memory implementation of the db repositories.
// It backs tests and STORE_DRIVER=memory, including live-query streams.
package memdb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"doubtsolver-backend/internal/db"
	"doubtsolver-backend/internal/models"
)

// Operation names accepted by FailOn.
const (
	OpUserGet       = "users.get"
	OpPaymentCreate = "payments.create"
	OpPaymentLatest = "payments.latest"
	OpPaymentReview = "payments.review"
	OpDoubtCreate   = "doubts.create"
	OpDoubtUpdate   = "doubts.update"
	OpMessageAppend = "messages.append"
)

type entry[T any] struct {
	value T
	seq   int64
}

// DB holds every collection behind one lock.
type DB struct {
	mu       sync.RWMutex
	seq      int64
	users    map[string]entry[models.User]
	payments map[string]entry[models.Payment]
	doubts   map[string]entry[models.Doubt]
	messages map[string][]entry[models.Message]
	audit    []models.AuditLog
	failures map[string]error

	subMu   sync.Mutex
	subs    map[int]chan struct{}
	nextSub int
}

// New returns an empty database.
func New() *DB {
	return &DB{
		users:    make(map[string]entry[models.User]),
		payments: make(map[string]entry[models.Payment]),
		doubts:   make(map[string]entry[models.Doubt]),
		messages: make(map[string][]entry[models.Message]),
		failures: make(map[string]error),
		subs:     make(map[int]chan struct{}),
	}
}

// Store exposes the database through the db repository interfaces.
func (d *DB) Store() *db.Store {
	return &db.Store{
		Users:    &userRepo{d},
		Payments: &paymentRepo{d},
		Doubts:   &doubtRepo{d},
		Messages: &messageRepo{d},
		Audit:    &auditRepo{d},
	}
}

// FailOn makes every later call of op return err. A nil err clears it.
func (d *DB) FailOn(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failures, op)
		return
	}
	d.failures[op] = err
}

// AuditLogs returns a copy of everything written to the audit collection.
func (d *DB) AuditLogs() []models.AuditLog {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]models.AuditLog(nil), d.audit...)
}

// failure must be called with d.mu held.
func (d *DB) failure(op string) error {
	if err, ok := d.failures[op]; ok {
		return fmt.Errorf("memdb %s: %w", op, err)
	}
	return nil
}

// next must be called with d.mu held for writing.
func (d *DB) next() int64 {
	d.seq++
	return d.seq
}

func (d *DB) subscribe() (<-chan struct{}, func()) {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	id := d.nextSub
	d.nextSub++
	ch := make(chan struct{}, 1)
	d.subs[id] = ch
	return ch, func() {
		d.subMu.Lock()
		delete(d.subs, id)
		d.subMu.Unlock()
	}
}

// changed wakes every live query. Wake-ups coalesce; each woken stream re-reads
// the current state, so no committed write is ever skipped.
func (d *DB) changed() {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	for _, ch := range d.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribers reports how many live queries are open.
func (d *DB) Subscribers() int {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	return len(d.subs)
}

func watch[T any](ctx context.Context, d *DB, read func() ([]T, error)) db.Stream[T] {
	return db.Run(ctx, func(ctx context.Context, send func(db.Snapshot[T]) bool) error {
		wake, unsubscribe := d.subscribe()
		defer unsubscribe()
		for {
			items, err := read()
			if err != nil {
				return err
			}
			if !send(db.Snapshot[T]{Items: items, ReadTime: time.Now().UTC()}) {
				return nil
			}
			select {
			case <-wake:
			case <-ctx.Done():
				return nil
			}
		}
	})
}

// --- users ---

type userRepo struct{ d *DB }

func (r *userRepo) GetByID(ctx context.Context, userID string) (*models.User, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	if err := r.d.failure(OpUserGet); err != nil {
		return nil, err
	}
	e, ok := r.d.users[userID]
	if !ok {
		return nil, fmt.Errorf("user with ID '%s' not found: %w", userID, db.ErrNotFound)
	}
	u := e.value
	return &u, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	for _, e := range r.d.users {
		if strings.EqualFold(e.value.Email, email) {
			u := e.value
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user with email '%s' not found: %w", email, db.ErrNotFound)
}

func (r *userRepo) Create(ctx context.Context, user *models.User) error {
	r.d.mu.Lock()
	if _, ok := r.d.users[user.ID]; ok {
		r.d.mu.Unlock()
		return fmt.Errorf("user with ID '%s': %w", user.ID, db.ErrAlreadyExists)
	}
	r.d.users[user.ID] = entry[models.User]{value: *user, seq: r.d.next()}
	r.d.mu.Unlock()
	r.d.changed()
	return nil
}

func (r *userRepo) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	r.d.mu.Lock()
	e, ok := r.d.users[userID]
	if !ok {
		e = entry[models.User]{value: models.User{ID: userID}, seq: r.d.next()}
	}
	e.value.LastLoginAt = at
	r.d.users[userID] = e
	r.d.mu.Unlock()
	r.d.changed()
	return nil
}

func (r *userRepo) SetRole(ctx context.Context, userID string, role models.Role) error {
	r.d.mu.Lock()
	e, ok := r.d.users[userID]
	if !ok {
		r.d.mu.Unlock()
		return fmt.Errorf("user with ID '%s' not found: %w", userID, db.ErrNotFound)
	}
	e.value.Role = role
	r.d.users[userID] = e
	r.d.mu.Unlock()
	r.d.changed()
	return nil
}

func (r *userRepo) Count(ctx context.Context) (int, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	return len(r.d.users), nil
}

// --- payments ---

type paymentRepo struct{ d *DB }

func (r *paymentRepo) Create(ctx context.Context, payment *models.Payment) (string, error) {
	r.d.mu.Lock()
	if err := r.d.failure(OpPaymentCreate); err != nil {
		r.d.mu.Unlock()
		return "", err
	}
	payment.ID = uuid.NewString()
	r.d.payments[payment.ID] = entry[models.Payment]{value: clonePayment(*payment), seq: r.d.next()}
	r.d.mu.Unlock()
	r.d.changed()
	return payment.ID, nil
}

func (r *paymentRepo) GetByID(ctx context.Context, paymentID string) (*models.Payment, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	e, ok := r.d.payments[paymentID]
	if !ok {
		return nil, fmt.Errorf("payment with ID '%s' not found: %w", paymentID, db.ErrNotFound)
	}
	p := clonePayment(e.value)
	return &p, nil
}

func (r *paymentRepo) LatestByUser(ctx context.Context, userID string) (*models.Payment, error) {
	r.d.mu.RLock()
	failErr := r.d.failure(OpPaymentLatest)
	r.d.mu.RUnlock()
	if failErr != nil {
		return nil, failErr
	}
	payments, err := r.List(ctx, models.PaymentFilter{UserID: userID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		return nil, fmt.Errorf("no payment for user '%s': %w", userID, db.ErrNotFound)
	}
	return payments[0], nil
}

func (r *paymentRepo) List(ctx context.Context, filter models.PaymentFilter) ([]*models.Payment, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()

	matched := make([]entry[models.Payment], 0)
	for _, e := range r.d.payments {
		p := e.value
		if db.MatchPayment(&p, filter) {
			matched = append(matched, e)
		}
	}
	// createdAt descending, later inserts first on ties.
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.value.CreatedAt.Equal(b.value.CreatedAt) {
			return a.value.CreatedAt.After(b.value.CreatedAt)
		}
		return a.seq > b.seq
	})
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	out := make([]*models.Payment, 0, len(matched))
	for _, e := range matched {
		p := clonePayment(e.value)
		out = append(out, &p)
	}
	return out, nil
}

func (r *paymentRepo) Review(ctx context.Context, paymentID string, review db.PaymentReview) error {
	r.d.mu.Lock()
	if err := r.d.failure(OpPaymentReview); err != nil {
		r.d.mu.Unlock()
		return err
	}
	e, ok := r.d.payments[paymentID]
	if !ok {
		r.d.mu.Unlock()
		return fmt.Errorf("payment with ID '%s' not found: %w", paymentID, db.ErrNotFound)
	}
	reviewedAt := review.ReviewedAt
	reviewedBy := review.ReviewedBy
	e.value.Status = review.Status
	e.value.ReviewedAt = &reviewedAt
	e.value.ReviewedBy = &reviewedBy
	e.value.Notes = review.Notes
	r.d.payments[paymentID] = e
	r.d.mu.Unlock()
	r.d.changed()
	return nil
}

func (r *paymentRepo) Watch(ctx context.Context, filter models.PaymentFilter) db.Stream[*models.Payment] {
	return watch(ctx, r.d, func() ([]*models.Payment, error) { return r.List(ctx, filter) })
}

func clonePayment(p models.Payment) models.Payment {
	if p.ReviewedAt != nil {
		t := *p.ReviewedAt
		p.ReviewedAt = &t
	}
	if p.ReviewedBy != nil {
		s := *p.ReviewedBy
		p.ReviewedBy = &s
	}
	return p
}

// --- doubts ---

type doubtRepo struct{ d *DB }

func (r *doubtRepo) NewID() string { return uuid.NewString() }

func (r *doubtRepo) Create(ctx context.Context, doubt *models.Doubt) error {
	r.d.mu.Lock()
	if err := r.d.failure(OpDoubtCreate); err != nil {
		r.d.mu.Unlock()
		return err
	}
	if _, ok := r.d.doubts[doubt.ID]; ok {
		r.d.mu.Unlock()
		return fmt.Errorf("doubt with ID '%s': %w", doubt.ID, db.ErrAlreadyExists)
	}
	r.d.doubts[doubt.ID] = entry[models.Doubt]{value: cloneDoubt(*doubt), seq: r.d.next()}
	r.d.mu.Unlock()
	r.d.changed()
	return nil
}

func (r *doubtRepo) GetByID(ctx context.Context, doubtID string) (*models.Doubt, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	e, ok := r.d.doubts[doubtID]
	if !ok {
		return nil, fmt.Errorf("doubt with ID '%s' not found: %w", doubtID, db.ErrNotFound)
	}
	d := cloneDoubt(e.value)
	return &d, nil
}

func (r *doubtRepo) List(ctx context.Context, filter models.DoubtFilter) ([]*models.Doubt, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()

	matched := make([]entry[models.Doubt], 0)
	for _, e := range r.d.doubts {
		d := e.value
		if db.MatchDoubt(&d, filter) {
			matched = append(matched, e)
		}
	}
	key := func(d models.Doubt) time.Time {
		if filter.OrderByUpdated {
			return d.UpdatedAt
		}
		return d.CreatedAt
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := key(matched[i].value), key(matched[j].value)
		if !a.Equal(b) {
			return a.After(b)
		}
		return matched[i].seq > matched[j].seq
	})
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	out := make([]*models.Doubt, 0, len(matched))
	for _, e := range matched {
		d := cloneDoubt(e.value)
		out = append(out, &d)
	}
	return out, nil
}

func (r *doubtRepo) Update(ctx context.Context, doubtID string, change db.DoubtChange, at time.Time) error {
	return r.update(doubtID, func(d *models.Doubt) {
		if change.Status != "" {
			d.Status = change.Status
		}
		solution := change.Solution
		if solution.SolutionYouTubeURL != nil {
			d.SolutionYouTubeURL = *solution.SolutionYouTubeURL
		}
		if solution.SolutionNotes != nil {
			d.SolutionNotes = *solution.SolutionNotes
		}
		if solution.LiveSessionLink != nil {
			d.LiveSessionLink = *solution.LiveSessionLink
		}
		d.UpdatedAt = at
	})
}

func (r *doubtRepo) update(doubtID string, mutate func(*models.Doubt)) error {
	r.d.mu.Lock()
	if err := r.d.failure(OpDoubtUpdate); err != nil {
		r.d.mu.Unlock()
		return err
	}
	e, ok := r.d.doubts[doubtID]
	if !ok {
		r.d.mu.Unlock()
		return fmt.Errorf("doubt with ID '%s' not found: %w", doubtID, db.ErrNotFound)
	}
	mutate(&e.value)
	r.d.doubts[doubtID] = e
	r.d.mu.Unlock()
	r.d.changed()
	return nil
}

func (r *doubtRepo) Watch(ctx context.Context, filter models.DoubtFilter) db.Stream[*models.Doubt] {
	return watch(ctx, r.d, func() ([]*models.Doubt, error) { return r.List(ctx, filter) })
}

func cloneDoubt(d models.Doubt) models.Doubt {
	d.Images = append([]string{}, d.Images...)
	return d
}

// --- messages ---

type messageRepo struct{ d *DB }

func (r *messageRepo) Append(ctx context.Context, doubtID string, msg *models.Message) (string, error) {
	r.d.mu.Lock()
	if err := r.d.failure(OpMessageAppend); err != nil {
		r.d.mu.Unlock()
		return "", err
	}
	msg.ID = uuid.NewString()
	msg.DoubtID = doubtID
	stored := *msg
	stored.Attachments = append([]string{}, msg.Attachments...)
	r.d.messages[doubtID] = append(r.d.messages[doubtID], entry[models.Message]{value: stored, seq: r.d.next()})
	r.d.mu.Unlock()
	r.d.changed()
	return msg.ID, nil
}

func (r *messageRepo) List(ctx context.Context, doubtID string) ([]*models.Message, error) {
	r.d.mu.RLock()
	entries := append([]entry[models.Message](nil), r.d.messages[doubtID]...)
	r.d.mu.RUnlock()

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.value.CreatedAt.Equal(b.value.CreatedAt) {
			return a.value.CreatedAt.Before(b.value.CreatedAt)
		}
		return a.seq < b.seq
	})
	out := make([]*models.Message, 0, len(entries))
	for _, e := range entries {
		m := e.value
		m.Attachments = append([]string{}, m.Attachments...)
		out = append(out, &m)
	}
	return out, nil
}

func (r *messageRepo) Watch(ctx context.Context, doubtID string) db.Stream[*models.Message] {
	return watch(ctx, r.d, func() ([]*models.Message, error) { return r.List(ctx, doubtID) })
}

// --- audit ---

type auditRepo struct{ d *DB }

func (r *auditRepo) Create(ctx context.Context, logEntry models.AuditLog) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	logEntry.ID = uuid.NewString()
	r.d.audit = append(r.d.audit, logEntry)
	return nil
}
