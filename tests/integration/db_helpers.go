package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/BradenHooton/metered-finance/internal/database"
	"github.com/BradenHooton/metered-finance/internal/models"
	"github.com/BradenHooton/metered-finance/internal/repositories"
	"github.com/BradenHooton/metered-finance/pkg/auth"
)

// TestDB manages PostgreSQL testcontainer and database operations
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("metered_finance"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := database.NewFromPool(pool, nil)

	// Same embedded migrations the server applies on boot
	if err := database.RunMigrations(ctx, db); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         db,
	}, nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"requests",
		"rate_limits",
		"quota_usage",
		"api_keys",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// testArgon2Params keeps hashing cheap in tests
var testArgon2Params = auth.Argon2Params{Memory: 64, Iterations: 1, Parallelism: 1}

// NewTestVerifier returns a low-cost verifier for seeding and authenticating keys
func NewTestVerifier() *auth.SecretVerifier {
	v, err := auth.NewSecretVerifier(testArgon2Params)
	if err != nil {
		panic(err)
	}
	return v
}

// SeedAPIKey inserts an active key with the given scopes and limits and returns its plaintext credential
func SeedAPIKey(ctx context.Context, db *database.DB, verifier *auth.SecretVerifier, keyID string, scopes []models.Scope, limits models.QuotaLimits) (string, *models.APIKey, error) {
	plainKey, prefix, err := auth.GenerateCredential()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate credential: %w", err)
	}

	hash, err := verifier.Hash(plainKey)
	if err != nil {
		return "", nil, fmt.Errorf("failed to hash credential: %w", err)
	}

	key := &models.APIKey{
		KeyID:              keyID,
		Prefix:             prefix,
		Name:               "seeded " + keyID,
		SecretHash:         hash,
		Scopes:             scopes,
		Active:             true,
		RateLimitPerMinute: limits.RateLimitPerMinute,
		DailyQuota:         limits.DailyQuota,
		MonthlyQuota:       limits.MonthlyQuota,
		CreatedAt:          time.Now().UTC(),
	}

	repo := repositories.NewAPIKeyRepository(db, models.DefaultQuotaLimits())
	if err := repo.Create(ctx, key); err != nil {
		return "", nil, fmt.Errorf("failed to insert api key: %w", err)
	}

	return plainKey, key, nil
}

// SeedDailyUsage sets a day's counter directly
func SeedDailyUsage(ctx context.Context, pool *pgxpool.Pool, keyID string, day time.Time, count int64) error {
	query := `
		INSERT INTO quota_usage (key_id, usage_date, request_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (key_id, usage_date) DO UPDATE SET request_count = EXCLUDED.request_count
	`
	if _, err := pool.Exec(ctx, query, keyID, models.DayStart(day), count); err != nil {
		return fmt.Errorf("failed to seed usage: %w", err)
	}
	return nil
}

// CountRequests returns the number of telemetry rows, optionally filtered to one key
func CountRequests(ctx context.Context, pool *pgxpool.Pool, keyID *string) (int, error) {
	var n int
	var err error
	if keyID == nil {
		err = pool.QueryRow(ctx, `SELECT COUNT(*) FROM requests WHERE key_id IS NULL`).Scan(&n)
	} else {
		err = pool.QueryRow(ctx, `SELECT COUNT(*) FROM requests WHERE key_id = $1`, *keyID).Scan(&n)
	}
	return n, err
}
