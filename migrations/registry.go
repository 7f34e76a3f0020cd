package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	login "github.com/goliatone/go-login"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	DefaultSourceLabel = "go-login"
	migrationsRootPath = "data/sql/migrations"
)

var migrationFilePattern = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.(up|down)\.sql$`)

// Version is one numbered migration of a dialect tree.
type Version struct {
	Number int
	Name   string
	Up     string
	Down   string
}

// Source is the migration tree of one dialect.
type Source struct {
	Dialect  string
	Path     string
	FS       fs.FS
	Versions []Version
}

// Latest returns the highest migration number in the source, or 0.
func (s Source) Latest() int {
	if len(s.Versions) == 0 {
		return 0
	}
	return s.Versions[len(s.Versions)-1].Number
}

type Registration struct {
	SourceLabel string
	Dialects    []string
	Sources     []Source
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithSourceLabel(label string) Option {
	return func(r *Registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.SourceLabel = trimmed
		}
	}
}

// WithDialects limits registration to the named dialects.
func WithDialects(dialects ...string) Option {
	return func(r *Registration) {
		if next := normalizeDialects(dialects); len(next) > 0 {
			r.Dialects = next
		}
	}
}

// Sources resolves the postgres and sqlite trees of the embedded migrations,
// or of root when given. Every version must ship both an up and a down file
// and the two dialects must carry the same versions.
func Sources(root ...fs.FS) ([]Source, error) {
	tree := login.GetMigrationsFS()
	if len(root) > 0 && root[0] != nil {
		tree = root[0]
	}

	base, basePath, err := resolveRoot(tree)
	if err != nil {
		return nil, err
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite tree: %w", err)
	}

	sources := []Source{
		{Dialect: DialectPostgres, Path: basePath, FS: base},
		{Dialect: DialectSQLite, Path: joinPath(basePath, "sqlite"), FS: sqliteFS},
	}
	for i := range sources {
		versions, err := scanVersions(sources[i])
		if err != nil {
			return nil, err
		}
		sources[i].Versions = versions
	}
	if err := checkParity(sources[0], sources[1]); err != nil {
		return nil, err
	}
	return sources, nil
}

// Register hands the migration tree of every selected dialect to registerFn.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel: DefaultSourceLabel,
		Dialects:    []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}

	sources, err := Sources()
	if err != nil {
		return reg, err
	}
	reg.Sources = sources

	for _, source := range sources {
		if !slices.Contains(reg.Dialects, source.Dialect) {
			continue
		}
		if err := registerFn(ctx, source.Dialect, reg.SourceLabel, source.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", source.Dialect, source.Path, err)
		}
	}
	return reg, nil
}

func resolveRoot(tree fs.FS) (fs.FS, string, error) {
	if _, err := fs.Stat(tree, migrationsRootPath); err == nil {
		sub, err := fs.Sub(tree, migrationsRootPath)
		if err != nil {
			return nil, "", fmt.Errorf("migrations: resolve %s: %w", migrationsRootPath, err)
		}
		return sub, migrationsRootPath, nil
	}
	matches, err := fs.Glob(tree, "*.up.sql")
	if err == nil && len(matches) > 0 {
		return tree, ".", nil
	}
	return nil, "", fmt.Errorf("migrations: %s not found", migrationsRootPath)
}

func scanVersions(source Source) ([]Version, error) {
	entries, err := fs.ReadDir(source.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migrations: read %s tree %q: %w", source.Dialect, source.Path, err)
	}

	byNumber := map[int]*Version{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := migrationFilePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		number, _ := strconv.Atoi(match[1])
		version, ok := byNumber[number]
		if !ok {
			version = &Version{Number: number, Name: match[2]}
			byNumber[number] = version
		}
		if version.Name != match[2] {
			return nil, fmt.Errorf("migrations: %s version %d has conflicting names %q and %q", source.Dialect, number, version.Name, match[2])
		}
		if match[3] == "up" {
			version.Up = entry.Name()
		} else {
			version.Down = entry.Name()
		}
	}
	if len(byNumber) == 0 {
		return nil, fmt.Errorf("migrations: %s tree %q has no *.up.sql files", source.Dialect, source.Path)
	}

	versions := make([]Version, 0, len(byNumber))
	for _, version := range byNumber {
		if version.Up == "" || version.Down == "" {
			return nil, fmt.Errorf("migrations: %s version %d needs both up and down files", source.Dialect, version.Number)
		}
		versions = append(versions, *version)
	}
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Number < versions[j].Number
	})
	return versions, nil
}

func checkParity(left Source, right Source) error {
	if len(left.Versions) != len(right.Versions) {
		return fmt.Errorf("migrations: %s has %d versions, %s has %d", left.Dialect, len(left.Versions), right.Dialect, len(right.Versions))
	}
	for i := range left.Versions {
		a, b := left.Versions[i], right.Versions[i]
		if a.Number != b.Number || a.Name != b.Name {
			return fmt.Errorf("migrations: %s version %05d_%s has no %s counterpart", left.Dialect, a.Number, a.Name, right.Dialect)
		}
	}
	return nil
}

func normalizeDialects(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(strings.ToLower(value))
		if trimmed == "" || slices.Contains(out, trimmed) {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func joinPath(base string, suffix string) string {
	if base == "." {
		return suffix
	}
	return strings.TrimSuffix(base, "/") + "/" + suffix
}
