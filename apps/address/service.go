// Package address 收货地址，维护每个用户至多一个默认地址
package address

import (
	"context"
	"errors"
	"strings"

	"oldmarket/apps/address/model"
	userModel "oldmarket/apps/user/model"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

type Input struct {
	Label         string `json:"label"`
	RecipientName string `json:"recipient_name"`
	Phone         string `json:"phone"`
	Street        string `json:"street"`
	Province      string `json:"province"`
	City          string `json:"city"`
	District      string `json:"district"`
	Village       string `json:"village"`
	ProvinceCode  string `json:"province_code"`
	CityCode      string `json:"city_code"`
	DistrictCode  string `json:"district_code"`
	VillageCode   string `json:"village_code"`
	PostalCode    string `json:"postal_code"`
	IsDefault     bool   `json:"is_default"`
}

func (in *Input) validate() error {
	in.RecipientName = strings.TrimSpace(in.RecipientName)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Street = strings.TrimSpace(in.Street)
	switch {
	case in.RecipientName == "":
		return status.Error(codes.InvalidArgument, "recipient_name is required")
	case in.Phone == "":
		return status.Error(codes.InvalidArgument, "phone is required")
	case in.Street == "":
		return status.Error(codes.InvalidArgument, "street is required")
	}
	return nil
}

func (in *Input) apply(a *model.Address) {
	a.Label = in.Label
	a.RecipientName = in.RecipientName
	a.Phone = in.Phone
	a.Street = in.Street
	a.Province = in.Province
	a.City = in.City
	a.District = in.District
	a.Village = in.Village
	a.ProvinceCode = in.ProvinceCode
	a.CityCode = in.CityCode
	a.DistrictCode = in.DistrictCode
	a.VillageCode = in.VillageCode
	a.PostalCode = in.PostalCode
}

// List 默认地址排在最前
func (s *Service) List(ctx context.Context, userID uint) ([]model.Address, error) {
	var addrs []model.Address
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("is_default DESC").Order("id ASC").Find(&addrs).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "list addresses: %v", err)
	}
	return addrs, nil
}

// Create 新增地址，首个地址自动成为默认
func (s *Service) Create(ctx context.Context, userID uint, in Input) (*model.Address, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	addr := model.Address{UserID: userID}
	in.apply(&addr)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Address{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			return status.Errorf(codes.Internal, "count addresses: %v", err)
		}

		if err := tx.Create(&addr).Error; err != nil {
			return status.Errorf(codes.Internal, "create address: %v", err)
		}
		if in.IsDefault || count == 0 {
			return markDefault(tx, userID, addr.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.get(ctx, userID, addr.ID)
}

// Update 仅本人可改；is_default=true 时排他更新
func (s *Service) Update(ctx context.Context, userID, id uint, in Input) (*model.Address, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var addr model.Address
		// 先查询是否存在，且属于该用户
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&addr).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return status.Error(codes.NotFound, "address not found")
			}
			return status.Errorf(codes.Internal, "get address: %v", err)
		}

		in.apply(&addr)
		if err := tx.Save(&addr).Error; err != nil {
			return status.Errorf(codes.Internal, "update address: %v", err)
		}

		switch {
		case in.IsDefault && !addr.IsDefault:
			return markDefault(tx, userID, addr.ID)
		case !in.IsDefault && addr.IsDefault:
			return clearDefault(tx, userID, addr.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.get(ctx, userID, id)
}

// Delete 带上 user_id 防止删错别人的
func (s *Service) Delete(ctx context.Context, userID, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&model.Address{})
		if result.Error != nil {
			return status.Errorf(codes.Internal, "delete address: %v", result.Error)
		}
		if result.RowsAffected == 0 {
			return status.Error(codes.NotFound, "address not found")
		}
		return tx.Model(&userModel.User{}).
			Where("id = ? AND default_address_id = ?", userID, id).
			Update("default_address_id", nil).Error
	})
}

func (s *Service) SetDefault(ctx context.Context, userID, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return markDefault(tx, userID, id)
	})
}

func (s *Service) get(ctx context.Context, userID, id uint) (*model.Address, error) {
	var addr model.Address
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&addr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, status.Error(codes.NotFound, "address not found")
		}
		return nil, status.Errorf(codes.Internal, "get address: %v", err)
	}
	return &addr, nil
}

// markDefault 排他性更新，必须在事务内调用
func markDefault(tx *gorm.DB, userID, id uint) error {
	// 1. 先把该用户下所有的地址都设为非默认
	if err := tx.Model(&model.Address{}).Where("user_id = ?", userID).Update("is_default", false).Error; err != nil {
		return status.Errorf(codes.Internal, "clear default: %v", err)
	}

	// 2. 把指定的地址设为默认
	result := tx.Model(&model.Address{}).Where("id = ? AND user_id = ?", id, userID).Update("is_default", true)
	if result.Error != nil {
		return status.Errorf(codes.Internal, "set default: %v", result.Error)
	}
	if result.RowsAffected == 0 {
		return status.Error(codes.NotFound, "address not found")
	}

	// 3. 同步 users.default_address_id
	if err := tx.Model(&userModel.User{}).Where("id = ?", userID).Update("default_address_id", id).Error; err != nil {
		return status.Errorf(codes.Internal, "update user default address: %v", err)
	}
	return nil
}

func clearDefault(tx *gorm.DB, userID, id uint) error {
	if err := tx.Model(&model.Address{}).Where("id = ? AND user_id = ?", id, userID).Update("is_default", false).Error; err != nil {
		return status.Errorf(codes.Internal, "clear default: %v", err)
	}
	return tx.Model(&userModel.User{}).
		Where("id = ? AND default_address_id = ?", userID, id).
		Update("default_address_id", nil).Error
}
