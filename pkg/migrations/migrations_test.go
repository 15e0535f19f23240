package migrations_test

import (
	"github.com/distcalc/orchestrator/internal/config"
	"github.com/distcalc/orchestrator/internal/store"
	"github.com/distcalc/orchestrator/pkg/migrations"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

var _ = Describe("migrations", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	BeforeAll(func() {
		cfg, err := config.NewDefault()
		Expect(err).To(BeNil())
		db, err := store.InitDB(cfg)
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db
	})

	AfterAll(func() {
		s.Close()
	})

	Context("store migrations", Ordered, func() {
		tableExists := func(name string) bool {
			var count int64
			tx := gormdb.Raw("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&count)
			Expect(tx.Error).To(BeNil())
			return count == 1
		}

		It("fails to migrate the db -- migration folder does not exist", func() {
			cfg, err := config.NewDefault()
			Expect(err).To(BeNil())
			cfg.Service.MigrationFolder = "some folder"

			err = migrations.MigrateStore(gormdb, cfg)
			Expect(err).NotTo(BeNil())
			Expect(tableExists("calculations")).To(BeFalse())
		})

		It("successfully migrates the db from the embedded scripts", func() {
			cfg, err := config.NewDefault()
			Expect(err).To(BeNil())

			err = migrations.MigrateStore(gormdb, cfg)
			Expect(err).To(BeNil())

			for _, table := range []string{"calculations", "users", "goose_db_version"} {
				Expect(tableExists(table)).To(BeTrue())
			}
		})

		It("is idempotent", func() {
			cfg, err := config.NewDefault()
			Expect(err).To(BeNil())

			Expect(migrations.MigrateStore(gormdb, cfg)).To(BeNil())
			Expect(migrations.MigrateStore(gormdb, cfg)).To(BeNil())
		})

		AfterAll(func() {
			gormdb.Exec("DROP TABLE IF EXISTS calculations;")
			gormdb.Exec("DROP TABLE IF EXISTS users;")
			gormdb.Exec("DROP TABLE IF EXISTS goose_db_version;")
		})
	})
})
