package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/medflow/medflow-stock/pkg/database"
	"github.com/medflow/medflow-stock/pkg/logger"
)

var (
	// Shared across all integration tests of one test binary
	globalContainer *PostgresContainer
	globalDB        *sqlx.DB
	containerOnce   sync.Once
	containerErr    error
)

// IntegrationSuite provides a base for integration tests with real PostgreSQL
type IntegrationSuite struct {
	Container     *PostgresContainer
	RawDB         *sqlx.DB
	DB            *database.DB
	TenantManager *TenantManager
	Fixtures      *FixtureFactory
	Logger        *logger.Logger
}

// NewIntegrationSuite starts (or reuses) the shared container and applies
// the stock schema. Call it from TestMain.
//
//	var suite *testutil.IntegrationSuite
//
//	func TestMain(m *testing.M) {
//	    flag.Parse()
//	    if testing.Short() {
//	        os.Exit(m.Run())
//	    }
//	    ctx := context.Background()
//	    var err error
//	    suite, err = testutil.NewIntegrationSuite(ctx)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    code := m.Run()
//	    _ = suite.Cleanup(ctx)
//	    testutil.TerminateContainer(ctx)
//	    os.Exit(code)
//	}
func NewIntegrationSuite(ctx context.Context) (*IntegrationSuite, error) {
	container, db, err := getOrCreateContainer(ctx)
	if err != nil {
		return nil, err
	}

	if err := container.Migrate(ctx, db); err != nil {
		return nil, err
	}

	log := logger.Nop()
	wrappedDB, err := database.NewWithDSN(container.DSN, log)
	if err != nil {
		return nil, err
	}

	return &IntegrationSuite{
		Container:     container,
		RawDB:         db,
		DB:            wrappedDB,
		TenantManager: NewTenantManager(db),
		Fixtures:      NewFixtureFactory(),
		Logger:        log,
	}, nil
}

func getOrCreateContainer(ctx context.Context) (*PostgresContainer, *sqlx.DB, error) {
	containerOnce.Do(func() {
		globalContainer, containerErr = NewPostgresContainer(ctx, DefaultPostgresConfig())
		if containerErr != nil {
			return
		}
		globalDB, containerErr = globalContainer.Connect(ctx)
	})

	return globalContainer, globalDB, containerErr
}

// SetupTenant creates a fresh tenant for one test and removes its rows when
// the test ends.
func (s *IntegrationSuite) SetupTenant(t *testing.T, ctx context.Context) *TestTenant {
	t.Helper()

	tenant := s.TenantManager.CreateTenant()
	t.Cleanup(func() {
		if err := s.TenantManager.DropTenant(context.Background(), tenant); err != nil {
			t.Logf("warning: failed to drop tenant %s: %v", tenant.ID, err)
		}
	})

	return tenant
}

// TenantContext returns a context with the tenant set
func (s *IntegrationSuite) TenantContext(tenant *TestTenant) context.Context {
	return WithTestTenant(context.Background(), tenant)
}

// Cleanup removes every tenant the suite still tracks.
func (s *IntegrationSuite) Cleanup(ctx context.Context) error {
	return s.TenantManager.Cleanup(ctx)
}

// TerminateContainer terminates the shared container.
// Only call this in TestMain after all tests have completed.
func TerminateContainer(ctx context.Context) {
	if globalContainer != nil {
		_ = globalContainer.Terminate(ctx)
	}
}
