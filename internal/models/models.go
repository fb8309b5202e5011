package models

import (
	"time"

	"github.com/planetterp/planetterp/internal/passwords"
)

// User is the account model of the home app. The table name matches the one
// the legacy accounts were imported into.
type User struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	Username    string `gorm:"size:150;uniqueIndex;not null"`
	Email       string `gorm:"size:254"`
	FirstName   string `gorm:"size:150"`
	LastName    string `gorm:"size:150"`
	Password    string `gorm:"size:128;not null"`
	IsActive    bool   `gorm:"not null"`
	IsStaff     bool   `gorm:"not null"`
	IsSuperuser bool   `gorm:"not null"`
	DateJoined  time.Time
	LastLogin   *time.Time
}

// TableName implements gorm's tabler interface.
func (User) TableName() string { return "home_user" }

// Attributes exposes the personal details checked by the similarity validator.
func (u User) Attributes() passwords.UserAttributes {
	return passwords.UserAttributes{
		"username":   u.Username,
		"first_name": u.FirstName,
		"last_name":  u.LastName,
		"email":      u.Email,
	}
}

// Session persists server side session data keyed by the cookie value.
type Session struct {
	SessionKey  string    `gorm:"primaryKey;size:40"`
	SessionData string    `gorm:"type:text;not null"`
	ExpireDate  time.Time `gorm:"index;not null"`
}

// TableName implements gorm's tabler interface.
func (Session) TableName() string { return "sessions_session" }

// Site identifies the deployment for sitemaps and absolute links.
type Site struct {
	ID     uint   `gorm:"primaryKey"`
	Domain string `gorm:"size:100;uniqueIndex;not null"`
	Name   string `gorm:"size:50;not null"`
}

// TableName implements gorm's tabler interface.
func (Site) TableName() string { return "sites_site" }
