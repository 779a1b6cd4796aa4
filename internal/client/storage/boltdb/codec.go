package boltdb

import (
	"bytes"
	"fmt"

	"github.com/golang/snappy"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/iudanet/docsync/internal/client/storage"
)

// Значения в bbolt хранятся как msgpack, сжатый snappy

func encodeValue(v any) ([]byte, error) {
	raw, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	return snappy.Encode(nil, raw), nil
}

func decodeValue(data []byte, v any) error {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrCorruptedRecord, err)
	}

	dec := msgpack.NewDecoder(bytes.NewReader(raw))
	// целые числа декодируются как int64/uint64, а не как минимальный тип
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrCorruptedRecord, err)
	}
	return nil
}
