package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength - минимальная длина секрета подписи токенов
const MinSecretLength = 32

var (
	ErrWeakSecret   = errors.New("api: jwt secret is too short")
	ErrInvalidToken = errors.New("api: invalid token")
	ErrAuthDisabled = errors.New("api: authentication disabled")
)

const issuer = "voxel-engine"

// Claims - утверждения токена оператора
type Claims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

// Authenticator выпускает и проверяет HMAC-токены операторов.
// С пустым секретом аутентификация отключена.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthenticator создаёт аутентификатор. Пустой secret отключает проверку.
func NewAuthenticator(secret string, ttl time.Duration) (*Authenticator, error) {
	if secret != "" && len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need at least %d bytes", ErrWeakSecret, MinSecretLength)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Enabled сообщает, требуется ли токен для изменяющих запросов
func (a *Authenticator) Enabled() bool {
	return len(a.secret) > 0
}

// Issue выпускает токен для оператора
func (a *Authenticator) Issue(operator string) (string, error) {
	if !a.Enabled() {
		return "", ErrAuthDisabled
	}
	now := a.now()
	claims := &Claims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   operator,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Validate проверяет подпись, срок действия и издателя токена
func (a *Authenticator) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, isHMAC := token.Method.(*jwt.SigningMethodHMAC); !isHMAC {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Middleware проверяет Bearer-токен в заголовке Authorization
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.Next()
			return
		}

		parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			abort(c, http.StatusUnauthorized, "Отсутствует или неверный токен авторизации")
			return
		}

		claims, err := a.Validate(parts[1])
		if err != nil {
			abort(c, http.StatusUnauthorized, "Недействительный токен")
			return
		}

		c.Set("operator", claims.Operator)
		c.Next()
	}
}
