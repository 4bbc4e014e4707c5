//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/bmosoluciones/now-lms-payments/internal/domain"
	"github.com/bmosoluciones/now-lms-payments/internal/domain/model"
	"github.com/bmosoluciones/now-lms-payments/internal/domain/ports/adapter"
	"github.com/bmosoluciones/now-lms-payments/internal/domain/ports/repository"
	"github.com/bmosoluciones/now-lms-payments/internal/usecase"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// =============================
// Repositories
// =============================

// ---- Mock PaymentRepository ----

type MockPaymentRepo struct {
	mu    sync.Mutex
	data  map[string]*model.Payment // by id
	byRef map[string]string         // reference -> id

	SaveFunc                  func(ctx context.Context, tx repository.Tx, p *model.Payment) error
	FindByIDFunc              func(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error)
	FindByReferenceFunc       func(ctx context.Context, tx repository.Tx, reference string) (*model.Payment, error)
	AttachReferenceFunc       func(ctx context.Context, tx repository.Tx, paymentID, reference string) error
	UpdateStatusIfPendingFunc func(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, paidAt *time.Time) (bool, error)
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{data: map[string]*model.Payment{}, byRef: map[string]string{}}
}

func (r *MockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.data[p.ID] = &cp
	if p.Reference != nil {
		r.byRef[*p.Reference] = p.ID
	}
	return nil
}

func (r *MockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	if r.FindByIDFunc != nil {
		return r.FindByIDFunc(ctx, tx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.data[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockPaymentRepo) FindByReference(ctx context.Context, tx repository.Tx, reference string) (*model.Payment, error) {
	if r.FindByReferenceFunc != nil {
		return r.FindByReferenceFunc(ctx, tx, reference)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byRef[reference]; ok {
		cp := *r.data[id]
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockPaymentRepo) FindPendingByUserCourse(ctx context.Context, tx repository.Tx, userID, courseCode string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.data {
		if p.UserID == userID && p.CourseCode == courseCode && p.Status == model.PaymentStatusPending {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockPaymentRepo) AttachReference(ctx context.Context, tx repository.Tx, paymentID, reference string) error {
	if r.AttachReferenceFunc != nil {
		return r.AttachReferenceFunc(ctx, tx, paymentID, reference)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.byRef[reference]; ok && owner != paymentID {
		return domain.ErrConflict
	}
	p, ok := r.data[paymentID]
	if !ok {
		return domain.ErrNotFound
	}
	ref := reference
	p.Reference = &ref
	r.byRef[reference] = paymentID
	return nil
}

func (r *MockPaymentRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, paidAt *time.Time) (bool, error) {
	if r.UpdateStatusIfPendingFunc != nil {
		return r.UpdateStatusIfPendingFunc(ctx, tx, id, status, paidAt)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if p.Status != model.PaymentStatusPending {
		return false, nil
	}
	p.Status = status
	p.PaidAt = paidAt
	p.UpdatedAt = time.Now()
	return true, nil
}

func (r *MockPaymentRepo) SetEnrollment(ctx context.Context, tx repository.Tx, paymentID, enrollmentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[paymentID]
	if !ok {
		return domain.ErrNotFound
	}
	eid := enrollmentID
	p.EnrollmentID = &eid
	return nil
}

func (r *MockPaymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Payment
	for _, p := range r.data {
		if p.Status == model.PaymentStatusPending && p.CreatedAt.Before(olderThan) {
			cp := *p
			out = append(out, &cp)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *MockPaymentRepo) SumCompletedByPeriod(ctx context.Context, tx repository.Tx, period string) (map[string]decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]decimal.Decimal{}
	for _, p := range r.data {
		if p.Status == model.PaymentStatusCompleted {
			out[p.Currency] = out[p.Currency].Add(p.Amount)
		}
	}
	return out, nil
}

func (r *MockPaymentRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.PaymentStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[model.PaymentStatus]int{}
	for _, p := range r.data {
		out[p.Status]++
	}
	return out, nil
}

func (r *MockPaymentRepo) snapshot() func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	data := make(map[string]*model.Payment, len(r.data))
	for k, v := range r.data {
		cp := *v
		data[k] = &cp
	}
	byRef := make(map[string]string, len(r.byRef))
	for k, v := range r.byRef {
		byRef[k] = v
	}
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.data = data
		r.byRef = byRef
	}
}

// Get returns the stored payment by id, for assertions.
func (r *MockPaymentRepo) Get(id string) *model.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.data[id]; ok {
		cp := *p
		return &cp
	}
	return nil
}

// ---- Mock CourseRepository ----

type MockCourseRepo struct {
	mu   sync.Mutex
	data map[string]*model.Course

	FindByCodeFunc func(ctx context.Context, tx repository.Tx, code string) (*model.Course, error)
}

var _ repository.CourseRepository = (*MockCourseRepo)(nil)

func NewMockCourseRepo() *MockCourseRepo {
	return &MockCourseRepo{data: map[string]*model.Course{}}
}

func (r *MockCourseRepo) Save(ctx context.Context, tx repository.Tx, c *model.Course) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.data[c.Code] = &cp
	return nil
}

func (r *MockCourseRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Course, error) {
	if r.FindByCodeFunc != nil {
		return r.FindByCodeFunc(ctx, tx, code)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.data[code]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockCourseRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Course, 0, len(r.data))
	for _, c := range r.data {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (r *MockCourseRepo) Delete(ctx context.Context, tx repository.Tx, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, code)
	return nil
}

// ---- Mock CouponRepository ----

type MockCouponRepo struct {
	mu   sync.Mutex
	data map[string]*model.Coupon

	FindByCodeFunc                func(ctx context.Context, tx repository.Tx, code string) (*model.Coupon, error)
	IncrementUsageIfAvailableFunc func(ctx context.Context, tx repository.Tx, code string) (bool, error)
}

var _ repository.CouponRepository = (*MockCouponRepo)(nil)

func NewMockCouponRepo() *MockCouponRepo {
	return &MockCouponRepo{data: map[string]*model.Coupon{}}
}

func (r *MockCouponRepo) Save(ctx context.Context, tx repository.Tx, c *model.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.data[strings.ToUpper(c.Code)] = &cp
	return nil
}

func (r *MockCouponRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Coupon, error) {
	if r.FindByCodeFunc != nil {
		return r.FindByCodeFunc(ctx, tx, code)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.data[strings.ToUpper(code)]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockCouponRepo) IncrementUsageIfAvailable(ctx context.Context, tx repository.Tx, code string) (bool, error) {
	if r.IncrementUsageIfAvailableFunc != nil {
		return r.IncrementUsageIfAvailableFunc(ctx, tx, code)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.data[strings.ToUpper(code)]
	if !ok {
		return false, nil
	}
	if c.UsageCount >= c.UsageLimit {
		return false, nil
	}
	c.UsageCount++
	return true, nil
}

func (r *MockCouponRepo) snapshot() func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	data := make(map[string]*model.Coupon, len(r.data))
	for k, v := range r.data {
		cp := *v
		data[k] = &cp
	}
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.data = data
	}
}

// ---- Mock EnrollmentRepository ----

type MockEnrollmentRepo struct {
	mu   sync.Mutex
	data map[string]*model.Enrollment // by user|course

	UpsertFunc func(ctx context.Context, tx repository.Tx, e *model.Enrollment) error
}

var _ repository.EnrollmentRepository = (*MockEnrollmentRepo)(nil)

func NewMockEnrollmentRepo() *MockEnrollmentRepo {
	return &MockEnrollmentRepo{data: map[string]*model.Enrollment{}}
}

func enrollKey(userID, courseCode string) string { return userID + "|" + courseCode }

func (r *MockEnrollmentRepo) Upsert(ctx context.Context, tx repository.Tx, e *model.Enrollment) error {
	if r.UpsertFunc != nil {
		return r.UpsertFunc(ctx, tx, e)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.data[enrollKey(e.UserID, e.CourseCode)] = &cp
	return nil
}

func (r *MockEnrollmentRepo) FindByUserCourse(ctx context.Context, tx repository.Tx, userID, courseCode string) (*model.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.data[enrollKey(userID, courseCode)]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockEnrollmentRepo) CountByAudit(ctx context.Context, tx repository.Tx) (map[bool]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[bool]int{}
	for _, e := range r.data {
		out[e.Audit]++
	}
	return out, nil
}

func (r *MockEnrollmentRepo) snapshot() func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	data := make(map[string]*model.Enrollment, len(r.data))
	for k, v := range r.data {
		cp := *v
		data[k] = &cp
	}
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.data = data
	}
}

// Get returns the stored enrollment for the pair, for assertions.
func (r *MockEnrollmentRepo) Get(userID, courseCode string) *model.Enrollment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.data[enrollKey(userID, courseCode)]; ok {
		cp := *e
		return &cp
	}
	return nil
}

// =============================
// Adapters
// =============================

// ---- Mock PaymentGateway ----

type MockPaymentGateway struct {
	mu      sync.Mutex
	counter int

	CreateOrderFunc func(ctx context.Context, amount decimal.Decimal, currency, description string) (string, string, error)
	VerifyOrderFunc func(ctx context.Context, orderID string) (adapter.VerifyResult, error)
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func (g *MockPaymentGateway) Name() string { return "mock" }

func (g *MockPaymentGateway) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, description string) (string, string, error) {
	if g.CreateOrderFunc != nil {
		return g.CreateOrderFunc(ctx, amount, currency, description)
	}
	g.mu.Lock()
	g.counter++
	orderID := fmt.Sprintf("order-%d", g.counter)
	g.mu.Unlock()
	return orderID, "https://gateway.test/approve/" + orderID, nil
}

func (g *MockPaymentGateway) VerifyOrder(ctx context.Context, orderID string) (adapter.VerifyResult, error) {
	if g.VerifyOrderFunc != nil {
		return g.VerifyOrderFunc(ctx, orderID)
	}
	return adapter.VerifyResult{Authorized: true, PayerID: "payer-1"}, nil
}

// ---- Mock ProgressIndex ----

type MockProgressIndex struct {
	mu          sync.Mutex
	Initialized []string // enrollment ids

	InitializeFunc func(ctx context.Context, e *model.Enrollment) error
}

var _ adapter.ProgressIndex = (*MockProgressIndex)(nil)

func (m *MockProgressIndex) Initialize(ctx context.Context, e *model.Enrollment) error {
	if m.InitializeFunc != nil {
		return m.InitializeFunc(ctx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Initialized = append(m.Initialized, e.ID)
	return nil
}

// ---- Mock CheckoutLocker ----

type MockLocker struct {
	TryLockFunc func(ctx context.Context, key string, ttl time.Duration) (string, error)
}

var _ usecase.CheckoutLocker = (*MockLocker)(nil)

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if l.TryLockFunc != nil {
		return l.TryLockFunc(ctx, key, ttl)
	}
	return "token", nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error { return nil }

// ---- Mock TransactionManager ----

// txSnapshotter is implemented by the mock repos above: snapshot copies the
// current state and hands back a closure that restores it.
type txSnapshotter interface {
	snapshot() func()
}

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error

	rollback []txSnapshotter
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

// EmulateRollback registers mocks whose state is restored when the
// transaction closure returns an error, mirroring a database rollback.
// Tests whose hooks mutate repo state on behalf of a concurrent
// transaction must not register those repos here.
func (m *MockTxManager) EmulateRollback(repos ...txSnapshotter) {
	m.rollback = repos
}

// WithTx executes the function immediately with NoTX by default. Tests
// that need to verify transactional behavior assign WithTxFunc or register
// repos via EmulateRollback.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	restores := make([]func(), 0, len(m.rollback))
	for _, r := range m.rollback {
		restores = append(restores, r.snapshot())
	}
	err := fn(ctx, repository.NoTX)
	if err != nil {
		for _, restore := range restores {
			restore()
		}
	}
	return err
}
