package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode unmarshals a message value into a payload type.
func Decode[T any](m kafka.Message) (T, error) {
	var t T
	if err := json.Unmarshal(m.Value, &t); err != nil {
		return t, fmt.Errorf("decode %s payload: %w", m.Topic, err)
	}
	return t, nil
}
