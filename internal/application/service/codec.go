package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"coinbook/internal/domain/model"
)

// Records are JSON documents at the store boundary only. Decimals are written as
// strings; numbers inside Extra keep their literal form via UseNumber.

func encodeFunds(f model.Funds) ([]byte, error) {
	return json.Marshal(f)
}

func decodeFunds(b []byte, base string) (model.Funds, error) {
	var f model.Funds
	if err := json.Unmarshal(b, &f); err != nil {
		return model.Funds{}, fmt.Errorf("decode funds: %w", err)
	}
	if !strings.EqualFold(f.Unit, base) {
		return model.Funds{}, fmt.Errorf("funds unit %q, want %q", f.Unit, base)
	}
	return f, nil
}

func encodePosition(p model.Position) ([]byte, error) {
	return json.Marshal(p)
}

func decodePosition(b []byte) (model.Position, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var p model.Position
	if err := dec.Decode(&p); err != nil {
		return model.Position{}, fmt.Errorf("decode position: %w", err)
	}
	if p.ID == "" || p.Currency == "" {
		return model.Position{}, fmt.Errorf("decode position: missing id or currency")
	}
	return p, nil
}
