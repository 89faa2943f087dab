package testutil

import (
	"context"
	"database/sql/driver"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"github.com/medflow/medflow-stock/pkg/database"
	"github.com/medflow/medflow-stock/pkg/logger"
)

// MockDB wraps sqlmock behind a *database.DB.
//
//	mockDB := testutil.NewMockDB(t)
//	defer mockDB.Close()
//
//	mockDB.ExpectTenantTx(tenantID)
//	mockDB.ExpectQuery("SELECT").WillReturnRows(...)
//	mockDB.ExpectCommit()
//
//	repo := repository.NewBatchRepository(mockDB.DB)
type MockDB struct {
	DB   *database.DB
	Mock sqlmock.Sqlmock
}

// NewMockDB creates a new mock database for unit testing.
func NewMockDB(t *testing.T) *MockDB {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	return &MockDB{
		DB:   database.Wrap(db, logger.Nop()),
		Mock: mock,
	}
}

// Close closes the mock database connection
func (m *MockDB) Close() error {
	return m.DB.Close()
}

// ExpectQuery sets up an expected query
func (m *MockDB) ExpectQuery(query string) *sqlmock.ExpectedQuery {
	return m.Mock.ExpectQuery(regexp.QuoteMeta(query))
}

// ExpectExec sets up an expected exec
func (m *MockDB) ExpectExec(query string) *sqlmock.ExpectedExec {
	return m.Mock.ExpectExec(regexp.QuoteMeta(query))
}

// ExpectBegin sets up an expected transaction begin
func (m *MockDB) ExpectBegin() *sqlmock.ExpectedBegin {
	return m.Mock.ExpectBegin()
}

// ExpectCommit sets up an expected commit
func (m *MockDB) ExpectCommit() *sqlmock.ExpectedCommit {
	return m.Mock.ExpectCommit()
}

// ExpectRollback sets up an expected rollback
func (m *MockDB) ExpectRollback() *sqlmock.ExpectedRollback {
	return m.Mock.ExpectRollback()
}

// ExpectTenantTx expects the opening of a WithTenantRLS transaction.
func (m *MockDB) ExpectTenantTx(tenantID string) {
	m.Mock.ExpectBegin()
	m.Mock.ExpectExec(regexp.QuoteMeta("SELECT set_config('app.current_tenant', $1, true)")).
		WithArgs(tenantID).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

// ExpectLockTimeout expects SetLockTimeout with d.
func (m *MockDB) ExpectLockTimeout(d time.Duration) {
	m.Mock.ExpectExec(regexp.QuoteMeta("SELECT set_config('lock_timeout', $1, true)")).
		WithArgs(formatMillis(d)).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func formatMillis(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}

// ExpectationsWereMet verifies all expectations were met
func (m *MockDB) ExpectationsWereMet(t *testing.T) {
	t.Helper()
	if err := m.Mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled mock expectations: %v", err)
	}
}

// MockRows creates a new mock rows object
func MockRows(columns ...string) *sqlmock.Rows {
	return sqlmock.NewRows(columns)
}

// AnyTime is a matcher for any time.Time value
type AnyTime struct{}

// Match satisfies the sqlmock.Argument interface
func (a AnyTime) Match(v driver.Value) bool {
	_, ok := v.(time.Time)
	return ok
}

// AnyUUID is a matcher for any UUID string
type AnyUUID struct{}

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// Match satisfies the sqlmock.Argument interface
func (a AnyUUID) Match(v driver.Value) bool {
	s, ok := v.(string)
	return ok && uuidPattern.MatchString(s)
}

// DecimalArg matches a decimal driver value numerically, so "10" matches "10.0000".
type DecimalArg string

// Match satisfies the sqlmock.Argument interface
func (d DecimalArg) Match(v driver.Value) bool {
	want, err := decimal.NewFromString(string(d))
	if err != nil {
		return false
	}
	var got decimal.Decimal
	switch x := v.(type) {
	case string:
		got, err = decimal.NewFromString(x)
	case []byte:
		got, err = decimal.NewFromString(string(x))
	case int64:
		got = decimal.NewFromInt(x)
	case float64:
		got = decimal.NewFromFloat(x)
	default:
		return false
	}
	return err == nil && got.Equal(want)
}

// MockPublisher records published events. It satisfies the stock event sink.
type MockPublisher struct {
	mu              sync.Mutex
	PublishedEvents []PublishedEvent
}

// PublishedEvent represents an event that was published
type PublishedEvent struct {
	Type    string
	Payload any
}

// NewMockPublisher creates a new mock publisher
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{PublishedEvents: make([]PublishedEvent, 0)}
}

// Publish records an event for later verification
func (m *MockPublisher) Publish(ctx context.Context, eventType string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishedEvents = append(m.PublishedEvents, PublishedEvent{Type: eventType, Payload: payload})
	return nil
}

// Events returns a copy of what was published.
func (m *MockPublisher) Events() []PublishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PublishedEvent, len(m.PublishedEvents))
	copy(out, m.PublishedEvents)
	return out
}

// AssertEventPublished checks if an event of the given type was published
func (m *MockPublisher) AssertEventPublished(t *testing.T, eventType string) {
	t.Helper()
	for _, e := range m.Events() {
		if e.Type == eventType {
			return
		}
	}
	t.Errorf("expected event %q to be published, but it wasn't", eventType)
}

// AssertNoEventsPublished checks that no events were published
func (m *MockPublisher) AssertNoEventsPublished(t *testing.T) {
	t.Helper()
	if events := m.Events(); len(events) > 0 {
		t.Errorf("expected no events, but got %d: %+v", len(events), events)
	}
}
