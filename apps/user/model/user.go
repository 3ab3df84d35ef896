package model

import "time"

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

type User struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Name             string    `gorm:"type:varchar(100);not null" json:"name"`
	Email            string    `gorm:"type:varchar(191);uniqueIndex;not null" json:"email"`
	Phone            string    `gorm:"type:varchar(20)" json:"phone"`
	Password         string    `gorm:"type:varchar(255);not null" json:"-"`
	Role             string    `gorm:"type:varchar(20);default:'USER'" json:"role"` // USER / ADMIN
	DefaultAddressID *uint     `json:"default_address_id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}
