package token

import (
	"time"

	"chat_realtime_service/pkg/config"
)

// 這個變數會在測試時被覆蓋
var (
	GenerateJWTFunc = GenerateJWT
	ParseJWTFunc    = ParseJWT
)

// GenerateJWTWrapper 讓 `memberUseCase` test mock使用這個包裝函數
func GenerateJWTWrapper(memberID, username, role string) (string, error) {
	return GenerateJWTFunc(memberID, username, role, config.EnvConfig.ChatService)
}

// ParseJWTWrapper 讓 middleware test mock使用這個包裝函數
func ParseJWTWrapper(t string) (*Claims, error) {
	return ParseJWTFunc(t)
}

// GenerateRefreshTokenWrapper refresh token issued by this service
func GenerateRefreshTokenWrapper(memberID, tokenID string) (string, time.Time, error) {
	return GenerateRefreshToken(memberID, tokenID, config.EnvConfig.ChatService)
}
