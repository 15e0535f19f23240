package store

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	Job() Job
	User() User
	Close() error
}

type DataStore struct {
	db   *gorm.DB
	log  logrus.FieldLogger
	job  Job
	user User
}

func NewStore(db *gorm.DB) Store {
	log := logrus.New().WithField("component", "store")
	return &DataStore{
		db:   db,
		log:  log,
		job:  NewJobStore(db, log),
		user: NewUserStore(db),
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db, s.log)
}

func (s *DataStore) Job() Job {
	return s.job
}

func (s *DataStore) User() User {
	return s.user
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
