package util

import (
	"errors"
	"playstats_backend/internal/model"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// ContextUserKey gin 上下文中保存 *Claims 的键
	ContextUserKey = "user"

	// 允许与账号服务之间的时钟偏差
	clockSkew = 30 * time.Second
)

// Claims 由外部账号服务签发，这里只做校验。UserID 缺省时从 sub 读取
type Claims struct {
	UserID uint           `json:"user_id,omitempty"`
	Role   model.UserRole `json:"role"`
	jwt.RegisteredClaims
}

func ParseJWT(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		return nil, err
	}

	if claims.UserID == 0 {
		id, err := strconv.ParseUint(claims.Subject, 10, 64)
		if err != nil || id == 0 {
			return nil, errors.Join(ErrPermissionDenied, errors.New("token carries no user id"))
		}
		claims.UserID = uint(id)
	}
	if claims.Role == "" {
		claims.Role = model.Player
	}
	return claims, nil
}

func GetUserFromContext(c *gin.Context) *Claims {
	user, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := user.(*Claims)
	if !ok {
		return nil
	}
	return claims
}
