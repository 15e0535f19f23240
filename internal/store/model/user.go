package model

import "time"

type User struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Login     string `gorm:"column:login;type:VARCHAR;size:256;uniqueIndex;not null"`
	Password  string `gorm:"column:password;not null"`
	CreatedAt time.Time
}

func (User) TableName() string {
	return "users"
}
