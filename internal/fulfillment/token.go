// Package fulfillment issues and verifies the opaque token handed to the
// student at checkout and presented at the pickup/delivery terminal. The
// payload binds the order id, student id, point total and issue time; the
// terminal-side caller must also compare these against the stored order.
package fulfillment

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/edupoints/edupoints/cmd/config"
)

var ErrInvalidToken = errors.New("invalid fulfillment token")

type Claims struct {
	jwt.RegisteredClaims
	OrderID     uuid.UUID `json:"orderID"`
	StudentID   uuid.UUID `json:"studentID"`
	TotalPoints int64     `json:"totalPoints"`
}

// Issue signs a token for a freshly created order. The payload is what a QR
// encoder would render; rendering itself happens outside the engine.
func Issue(orderID, studentID uuid.UUID, totalPoints int64, issuedAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(issuedAt),
		},
		OrderID:     orderID,
		StudentID:   studentID,
		TotalPoints: totalPoints,
	})

	return token.SignedString([]byte(config.TokenSecret))
}

// Verify checks the signature and returns the embedded claims.
func Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(config.TokenSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Matches reports whether the claims describe the given stored order.
func (c *Claims) Matches(orderID, studentID uuid.UUID, totalPoints int64) bool {
	return c.OrderID == orderID && c.StudentID == studentID && c.TotalPoints == totalPoints
}
