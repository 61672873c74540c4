package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
)

const DefaultDir = "pkg/migrate/migrations"

// Step is one applied or pending migration as reported to the CLI.
type Step struct {
	Version   int64
	Path      string
	State     string
	Duration  time.Duration
	AppliedAt time.Time
}

// Migrator drives the postgres SQL files through a goose provider.
// sqlite databases are built from the gorm models instead (see MaybeRunDev).
type Migrator struct {
	provider *goose.Provider
}

// NewMigrator binds the migrations in dir to db.
func NewMigrator(db *sql.DB, dir string) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if dir == "" {
		return nil, errors.New("dir is required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Migrator{provider: provider}, nil
}

// Up applies every pending migration.
func (m *Migrator) Up(ctx context.Context) ([]Step, error) {
	results, err := m.provider.Up(ctx)
	if err != nil {
		return stepsFromResults(results), fmt.Errorf("goose up: %w", err)
	}
	return stepsFromResults(results), nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) ([]Step, error) {
	result, err := m.provider.Down(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose down: %w", err)
	}
	return stepsFromResults([]*goose.MigrationResult{result}), nil
}

// Status lists every known migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Step, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose status: %w", err)
	}
	steps := make([]Step, 0, len(statuses))
	for _, st := range statuses {
		if st == nil || st.Source == nil {
			continue
		}
		steps = append(steps, Step{
			Version:   st.Source.Version,
			Path:      st.Source.Path,
			State:     string(st.State),
			AppliedAt: st.AppliedAt,
		})
	}
	return steps, nil
}

// To moves the schema up or down until it reaches target (YYYYMMDDHHMMSS).
func (m *Migrator) To(ctx context.Context, target string) ([]Step, error) {
	if target == "" {
		return nil, errors.New("target version is required")
	}
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", target, err)
	}

	current, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("get db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current == version:
		return nil, nil
	case current < version:
		results, err = m.provider.UpTo(ctx, version)
	default:
		results, err = m.provider.DownTo(ctx, version)
	}
	if err != nil {
		return stepsFromResults(results), fmt.Errorf("goose migrate to %d: %w", version, err)
	}
	return stepsFromResults(results), nil
}

// Close releases the provider's session locker.
func (m *Migrator) Close() error {
	return m.provider.Close()
}

func stepsFromResults(results []*goose.MigrationResult) []Step {
	steps := make([]Step, 0, len(results))
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		steps = append(steps, Step{
			Version:  r.Source.Version,
			Path:     r.Source.Path,
			State:    r.Direction,
			Duration: r.Duration,
		})
	}
	return steps
}
