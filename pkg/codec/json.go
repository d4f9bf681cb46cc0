package codec

import (
	"encoding/json"
)

// JSONCodec stores values of T as JSON documents.
type JSONCodec[T any] struct{}

func JSON[T any]() JSONCodec[T] {
	return JSONCodec[T]{}
}

func (JSONCodec[T]) Encode(v T) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec[T]) Decode(data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, decodeError("json", data, err)
	}
	return v, nil
}
