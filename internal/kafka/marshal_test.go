package kafka

import (
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	type payload struct {
		BookingID int64  `json:"booking_id"`
		Email     string `json:"email"`
	}

	m := kafkago.Message{Topic: "passenger-added", Value: []byte(`{"booking_id": 7, "email": "p@example.com"}`)}
	p, err := Decode[payload](m)
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.BookingID)
	assert.Equal(t, "p@example.com", p.Email)

	_, err = Decode[payload](kafkago.Message{Topic: "passenger-added", Value: []byte(`{broken`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "passenger-added")
}
