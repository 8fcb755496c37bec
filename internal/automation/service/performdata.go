package service

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"subledger/internal/subscription"
)

const performDataVersion = 1

type performPayload struct {
	V       int    `json:"v"`
	Account string `json:"account"`
}

// EncodePerformData packs the candidate identity handed back to relays.
func EncodePerformData(account string) []byte {
	data, _ := json.Marshal(performPayload{V: performDataVersion, Account: account})
	return data
}

// DecodePerformData is the inverse of EncodePerformData.
func DecodePerformData(data []byte) (string, error) {
	var p performPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", fmt.Errorf("%w: %v", subscription.ErrInvalidPerformData, err)
	}
	if p.V != performDataVersion {
		return "", fmt.Errorf("%w: unsupported version %d", subscription.ErrInvalidPerformData, p.V)
	}
	account, err := subscription.NormalizeAccount(p.Account)
	if err != nil {
		return "", fmt.Errorf("%w: %v", subscription.ErrInvalidPerformData, err)
	}
	return account, nil
}

// FormatHex renders perform data as a 0x-prefixed hex string.
func FormatHex(data []byte) string {
	if len(data) == 0 {
		return "0x"
	}
	return "0x" + hex.EncodeToString(data)
}

// ParseHex accepts the output of FormatHex, with or without the prefix.
func ParseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", subscription.ErrInvalidPerformData, err)
	}
	return data, nil
}
