package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"
)

const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Embedded returns the migrations compiled into the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Source picks the migration set for dir: the embedded copy for DefaultDir,
// otherwise the directory on disk.
func Source(dir string) fs.FS {
	if dir == "" || dir == DefaultDir {
		return Embedded()
	}
	return os.DirFS(dir)
}

// Runner applies goose migrations to the Postgres ledger database.
type Runner struct {
	provider *goose.Provider
}

func NewRunner(db *sql.DB, migrations fs.FS) (*Runner, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if migrations == nil {
		return nil, fmt.Errorf("migrations are required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Runner{provider: provider}, nil
}

// Report is one line of migration output.
type Report struct {
	Version int64
	Path    string
	State   string
}

// Run executes up, down or status.
func (r *Runner) Run(ctx context.Context, command string) ([]Report, error) {
	switch command {
	case "up":
		results, err := r.provider.Up(ctx)
		if err != nil {
			return nil, fmt.Errorf("goose up: %w", err)
		}
		return resultReports(results...), nil
	case "down":
		result, err := r.provider.Down(ctx)
		if err != nil {
			return nil, fmt.Errorf("goose down: %w", err)
		}
		return resultReports(result), nil
	case "status":
		statuses, err := r.provider.Status(ctx)
		if err != nil {
			return nil, fmt.Errorf("goose status: %w", err)
		}
		reports := make([]Report, 0, len(statuses))
		for _, st := range statuses {
			if st == nil || st.Source == nil {
				continue
			}
			reports = append(reports, Report{Version: st.Source.Version, Path: st.Source.Path, State: string(st.State)})
		}
		return reports, nil
	default:
		return nil, fmt.Errorf("unsupported goose command %q", command)
	}
}

// MigrateToVersion moves the schema up or down to targetVersion.
func (r *Runner) MigrateToVersion(ctx context.Context, targetVersion string) ([]Report, error) {
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}
	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("get db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current == target:
		return nil, nil
	case current < target:
		results, err = r.provider.UpTo(ctx, target)
	default:
		results, err = r.provider.DownTo(ctx, target)
	}
	if err != nil {
		return nil, fmt.Errorf("goose to %d: %w", target, err)
	}
	return resultReports(results...), nil
}

func resultReports(results ...*goose.MigrationResult) []Report {
	reports := make([]Report, 0, len(results))
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		reports = append(reports, Report{Version: res.Source.Version, Path: res.Source.Path, State: res.Direction})
	}
	return reports
}
