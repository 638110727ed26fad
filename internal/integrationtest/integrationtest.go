// Package integrationtest provides server and db helpers used in end to end tests.
package integrationtest

import (
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-lender/cmd/httpserver"
	"github.com/go-petr/pet-lender/internal/domain"
	"github.com/go-petr/pet-lender/internal/middleware"
	"github.com/go-petr/pet-lender/pkg/configpkg"
	"github.com/go-petr/pet-lender/pkg/dbpkg"
	"github.com/go-petr/pet-lender/pkg/tokenpkg"
)

// SetupServer returns a test server publishing to publisher. Depending on
// DB_DRIVER the server keeps its state in memory or in a freshly migrated
// database that is flushed after the test.
func SetupServer(t *testing.T, root string, publisher httpserver.Publisher) *httpserver.Server {
	t.Helper()

	config, err := configpkg.Load(root + "/configs")
	if err != nil {
		t.Fatalf(`configpkg.Load(%q) returned error: %v`, root+"/configs", err)
	}

	config.RateSchedulePath = root + "/configs/rate_schedule.yaml"

	zerolog.SetGlobalLevel(zerolog.FatalLevel)

	logger := middleware.CreateLogger(config)

	var db *sql.DB
	if config.DBDriver == "postgres" {
		db = SetupDB(t, config.DBDriver, config.DBSource, root+"/"+config.MigrationsPath)
	}

	gin.SetMode(gin.ReleaseMode)

	server, err := httpserver.New(db, logger, config, publisher)
	if err != nil {
		t.Fatalf(`httpserver.New(db, logger, config, publisher) returned error: %v`, err)
	}

	return server
}

// Authorize signs a short lived token for actor and sets it on r.
func Authorize(t *testing.T, server *httpserver.Server, r *http.Request, actor domain.Actor) {
	t.Helper()

	maker, err := tokenpkg.NewMaker(server.Config.TokenType, server.Config.TokenSymmetricKey)
	if err != nil {
		t.Fatalf("tokenpkg.NewMaker returned error: %v", err)
	}

	err = middleware.AddAuthorization(r, maker, middleware.AuthTypeBearer, actor.Username, string(actor.Role), time.Minute)
	if err != nil {
		t.Fatalf("middleware.AddAuthorization returned error: %v", err)
	}
}

// Flush flushes all db tables without droping them. Applied migrations are kept.
func Flush(t *testing.T, db *sql.DB) {
	t.Helper()

	var tables sql.NullString

	const query = `
	SELECT string_agg(table_name, ', ')
	FROM information_schema.tables
	WHERE table_schema = 'public' AND table_name <> 'schema_migrations';`

	if err := db.QueryRow(query).Scan(&tables); err != nil {
		t.Fatalf("db cleanup failed. err: %v", err)
	}

	if !tables.Valid {
		return
	}

	if _, err := db.Exec(`TRUNCATE TABLE ` + tables.String + " CASCADE"); err != nil {
		t.Fatalf("db cleanup failed. err: %v", err)
	}
}

// SetupDB connects to the database, applies the migrations in dir and flushes
// the tables once the test is done.
func SetupDB(t *testing.T, driver, source, dir string) *sql.DB {
	t.Helper()

	db, err := dbpkg.Setup(driver, source)
	if err != nil {
		t.Fatalf("db initialization failed. err: %v", err)
	}

	if err := dbpkg.Migrate(source, dir); err != nil {
		t.Fatalf("db migration failed. err: %v", err)
	}

	t.Cleanup(func() {
		Flush(t, db)

		if err := db.Close(); err != nil {
			t.Fatalf("db cleanup failed. err: %v", err)
		}
	})

	return db
}
