package model

import "time"

// Address 收货地址，同一用户最多一条 is_default = true
type Address struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"index;not null" json:"user_id"`
	Label         string    `gorm:"type:varchar(50)" json:"label"`
	RecipientName string    `gorm:"type:varchar(100);not null" json:"recipient_name"`
	Phone         string    `gorm:"type:varchar(20);not null" json:"phone"`
	Street        string    `gorm:"type:varchar(255);not null" json:"street"`
	Province      string    `gorm:"type:varchar(100)" json:"province"`
	City          string    `gorm:"type:varchar(100)" json:"city"`
	District      string    `gorm:"type:varchar(100)" json:"district"`
	Village       string    `gorm:"type:varchar(100)" json:"village"`
	ProvinceCode  string    `gorm:"type:varchar(20)" json:"province_code"`
	CityCode      string    `gorm:"type:varchar(20)" json:"city_code"`
	DistrictCode  string    `gorm:"type:varchar(20)" json:"district_code"`
	VillageCode   string    `gorm:"type:varchar(20)" json:"village_code"` // 运费接口使用
	PostalCode    string    `gorm:"type:varchar(10)" json:"postal_code"`
	IsDefault     bool      `gorm:"not null;default:false" json:"is_default"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Address) TableName() string {
	return "addresses"
}
