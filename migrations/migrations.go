package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/httpfs"
	"github.com/sirupsen/logrus"
)

const sourceURL = "embed://"

//go:embed *.sql
var files embed.FS

// embedDriver serves the schema files compiled into the binary. Host and path
// of an embed:// URL select a directory among them, the root by default.
type embedDriver struct {
	httpfs.PartialDriver
}

func init() {
	source.Register("embed", &embedDriver{})
}

func (*embedDriver) Open(rawURL string) (source.Driver, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse source URL: %w", err)
	}

	dir := strings.Trim(path.Join(u.Host, u.Path), "/")
	if dir == "" {
		dir = "."
	}

	d := &embedDriver{}
	err = d.PartialDriver.Init(http.FS(files), dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}

	return d, nil
}

// Migrate brings the food and purchase tables up to date.
func Migrate(sqlDB *sql.DB) error {
	d, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", d)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate: %w", err)
	}

	v, dirty, err := m.Version()
	if err == nil {
		logrus.WithField("version", v).WithField("dirty", dirty).Info("schema migrated")
	}

	return nil
}
