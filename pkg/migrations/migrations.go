package migrations

import (
	"embed"
	"fmt"
	"os"
	"path"

	"github.com/distcalc/orchestrator/internal/config"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed sql
var embedded embed.FS

// MigrateStore brings the schema up to date. Migrations come from
// cfg.Service.MigrationFolder when set, from the embedded scripts otherwise.
func MigrateStore(db *gorm.DB, cfg *config.Config) error {
	goose.SetLogger(&logger{})

	dialect, dir := "sqlite3", path.Join("sql", "sqlite3")
	if cfg.Database.Type == config.DBTypePostgres {
		dialect, dir = "postgres", path.Join("sql", "postgres")
	}

	if folder := cfg.Service.MigrationFolder; folder != "" {
		fi, err := os.Stat(folder)
		if err != nil {
			return err
		}
		if !fi.Mode().IsDir() {
			return fmt.Errorf("failed to open migration folder: %s is not a folder", folder)
		}
		goose.SetBaseFS(os.DirFS(folder))
		dir = "."
	} else {
		goose.SetBaseFS(embedded)
	}

	if err := goose.SetDialect(dialect); err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	return goose.Up(sqlDB, dir)
}

/*
logger implements goose.Logger interface

	type Logger interface {
		Fatalf(format string, v ...interface{})
		Printf(format string, v ...interface{})
	}
*/
type logger struct{}

func (m *logger) Printf(format string, v ...interface{}) { zap.S().Named("migrations").Infof(format, v...) }
func (m *logger) Fatalf(format string, v ...interface{}) { zap.S().Named("migrations").Fatalf(format, v...) }
