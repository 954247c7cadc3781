package fulfillment_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupoints/edupoints/cmd/config"
	"github.com/edupoints/edupoints/internal/fulfillment"
)

func TestIssueAndVerify(t *testing.T) {
	config.TokenSecret = "test-fulfillment-secret"

	orderID := uuid.New()
	studentID := uuid.New()
	issuedAt := time.Date(2026, 8, 14, 12, 0, 0, 0, time.UTC)

	token, err := fulfillment.Issue(orderID, studentID, 12000, issuedAt)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := fulfillment.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, orderID, claims.OrderID)
	assert.Equal(t, studentID, claims.StudentID)
	assert.Equal(t, int64(12000), claims.TotalPoints)
	assert.Equal(t, issuedAt.Unix(), claims.IssuedAt.Unix())
}

func TestVerify_Rejects(t *testing.T) {
	config.TokenSecret = "test-fulfillment-secret"

	token, err := fulfillment.Issue(uuid.New(), uuid.New(), 500, time.Now())
	require.NoError(t, err)

	t.Run("Garbage", func(t *testing.T) {
		_, err := fulfillment.Verify("not-a-token")
		assert.ErrorIs(t, err, fulfillment.ErrInvalidToken)
	})

	t.Run("TamperedPayload", func(t *testing.T) {
		parts := strings.Split(token, ".")
		require.Len(t, parts, 3)
		tampered := parts[0] + "." + parts[1][:len(parts[1])-2] + "xx." + parts[2]

		_, err := fulfillment.Verify(tampered)
		assert.ErrorIs(t, err, fulfillment.ErrInvalidToken)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		config.TokenSecret = "rotated-secret"
		defer func() { config.TokenSecret = "test-fulfillment-secret" }()

		_, err := fulfillment.Verify(token)
		assert.ErrorIs(t, err, fulfillment.ErrInvalidToken)
	})
}

func TestClaims_Matches(t *testing.T) {
	orderID := uuid.New()
	studentID := uuid.New()
	claims := &fulfillment.Claims{OrderID: orderID, StudentID: studentID, TotalPoints: 12000}

	assert.True(t, claims.Matches(orderID, studentID, 12000))
	assert.False(t, claims.Matches(uuid.New(), studentID, 12000))
	assert.False(t, claims.Matches(orderID, uuid.New(), 12000))
	assert.False(t, claims.Matches(orderID, studentID, 11999))
}
