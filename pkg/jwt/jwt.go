package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "oldmarket"

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	UserId uint   `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Manager 持有签名密钥，密钥来自配置文件 (jwt.secret)
type Manager struct {
	key    []byte
	expire time.Duration
}

func NewManager(secret string, expire time.Duration) *Manager {
	if expire <= 0 {
		expire = 24 * time.Hour
	}
	return &Manager{key: []byte(secret), expire: expire}
}

// GenerateToken 生成 Token
func (m *Manager) GenerateToken(userId uint, email, role string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserId: userId,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expire)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.key)
}

// ParseToken 解析 Token，只接受 HS256
func (m *Manager) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.UserId != 0 {
		return claims, nil
	}

	return nil, ErrInvalidToken
}
