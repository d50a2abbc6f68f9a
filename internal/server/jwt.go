package server

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token 签名者
const tokenIssuer = "skirmish-server"

// Claims 重连令牌：连接槽位、会话序号与玩家实体
type Claims struct {
	Slot    uint32 `json:"slot"`
	Session uint32 `json:"session"`
	NetID   uint32 `json:"net_id"`
	jwt.RegisteredClaims
}

// getSigningKey 获取签名密钥
// 从环境变量 JWT_SECRET 读取，如果不存在则使用默认值
func getSigningKey() []byte {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		// 开发环境默认密钥，生产环境应设置环境变量
		secret = "skirmish-dev-secret-change-in-production"
	}
	return []byte(secret)
}

// GenerateSessionToken 生成会话 Token，返回 token 与其唯一 ID
func GenerateSessionToken(slot, session, netID uint32, ttl time.Duration) (string, string, error) {
	now := time.Now()
	id := uuid.NewString()
	claims := Claims{
		Slot:    slot,
		Session: session,
		NetID:   netID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    tokenIssuer,
			Subject:   fmt.Sprintf("slot-%d", slot),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(getSigningKey())
	if err != nil {
		return "", "", err
	}
	return signed, id, nil
}

// VerifySessionToken 验证并解析 Token
func VerifySessionToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// 验证签名算法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return getSigningKey(), nil
	}, jwt.WithIssuer(tokenIssuer))

	if err != nil {
		return nil, fmt.Errorf("token parsing failed: %w", err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}
