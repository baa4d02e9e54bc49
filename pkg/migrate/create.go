package migrate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"
)

const versionLayout = "20060102150405"

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

var sqlSkeleton = template.Must(template.New("migration").Parse(`-- +goose Up
-- +goose StatementBegin
-- {{.Version}} {{.Name}}
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- revert {{.Name}}
-- +goose StatementEnd
`))

// CreateSQLMigration writes an empty goose migration at
// <dir>/<version>_<slug>.sql and returns its path. It never overwrites.
func CreateSQLMigration(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", errors.New("dir is required")
	}
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		return "", fmt.Errorf("name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	version := now.UTC().Format(versionLayout)
	path := filepath.Join(dir, version+"_"+slug+".sql")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if err := sqlSkeleton.Execute(f, struct{ Name, Version string }{slug, version}); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
