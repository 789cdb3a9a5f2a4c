package auth

import (
	"errors"
	"time"

	"marketplace-order-service/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

const tokenLifetime = 72 * time.Hour

// GenerateToken mints an HS256 bearer token for a user. supplierID is
// zero for plain customers.
func GenerateToken(secret []byte, userID, supplierID int64) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(tokenLifetime).Unix(),
		"iat": time.Now().Unix(),
	}
	if supplierID != 0 {
		claims["supplier_id"] = supplierID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateToken parses a bearer token and resolves the acting principal.
func ValidateToken(secret []byte, tokenString string) (models.Actor, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return models.Actor{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Actor{}, ErrInvalidToken
	}

	sub, ok := claims["sub"].(float64)
	if !ok || sub <= 0 {
		return models.Actor{}, ErrInvalidToken
	}

	actor := models.Actor{UserID: int64(sub)}
	if sid, ok := claims["supplier_id"].(float64); ok {
		actor.SupplierID = int64(sid)
	}
	return actor, nil
}
