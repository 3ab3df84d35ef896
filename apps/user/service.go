// Package user 用户注册、登录与个人资料
package user

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"oldmarket/apps/user/model"
	"oldmarket/pkg/jwt"

	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

const minPasswordLen = 6

type Service struct {
	db  *gorm.DB
	jwt *jwt.Manager
}

func NewService(db *gorm.DB, jwtManager *jwt.Manager) *Service {
	return &Service{db: db, jwt: jwtManager}
}

type RegisterInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	// 1. 参数校验
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid email")
	}
	if len(in.Password) < minPasswordLen {
		return nil, status.Errorf(codes.InvalidArgument, "password must be at least %d characters", minPasswordLen)
	}

	// 2. 邮箱唯一
	var cnt int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", in.Email).Count(&cnt).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "count users: %v", err)
	}
	if cnt > 0 {
		return nil, status.Error(codes.AlreadyExists, "email already registered")
	}

	// 3. 密码加密存储
	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "hash password: %v", err)
	}

	u := model.User{
		Name:     in.Name,
		Email:    in.Email,
		Phone:    in.Phone,
		Password: string(hashed),
		Role:     model.RoleUser,
	}
	if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "create user: %v", err)
	}
	return &u, nil
}

// Login 校验密码并签发 JWT
func (s *Service) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	var u model.User
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, status.Error(codes.Unauthenticated, "invalid email or password")
	}
	if err != nil {
		return "", nil, status.Errorf(codes.Internal, "find user: %v", err)
	}

	// 数据库里的 Hash vs 输入的明文
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return "", nil, status.Error(codes.Unauthenticated, "invalid email or password")
	}

	token, err := s.jwt.GenerateToken(u.ID, u.Email, u.Role)
	if err != nil {
		return "", nil, status.Errorf(codes.Internal, "generate token: %v", err)
	}
	return token, &u, nil
}

func (s *Service) Me(ctx context.Context, id uint) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, status.Error(codes.NotFound, "user not found")
		}
		return nil, status.Errorf(codes.Internal, "find user: %v", err)
	}
	return &u, nil
}

// UpdateProfile 只更新非空字段
func (s *Service) UpdateProfile(ctx context.Context, id uint, name, phone string) (*model.User, error) {
	u, err := s.Me(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if v := strings.TrimSpace(name); v != "" {
		updates["name"] = v
	}
	if v := strings.TrimSpace(phone); v != "" {
		updates["phone"] = v
	}
	if len(updates) == 0 {
		return u, nil
	}

	if err := s.db.WithContext(ctx).Model(u).Updates(updates).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "update profile: %v", err)
	}
	return s.Me(ctx, id)
}

func (s *Service) UpdatePassword(ctx context.Context, id uint, oldPassword, newPassword string) error {
	u, err := s.Me(ctx, id)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(oldPassword)); err != nil {
		return status.Error(codes.InvalidArgument, "current password is incorrect")
	}
	if len(newPassword) < minPasswordLen {
		return status.Errorf(codes.InvalidArgument, "password must be at least %d characters", minPasswordLen)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return status.Errorf(codes.Internal, "hash password: %v", err)
	}
	if err := s.db.WithContext(ctx).Model(u).Update("password", string(hashed)).Error; err != nil {
		return status.Errorf(codes.Internal, "update password: %v", err)
	}
	return nil
}
