// Package payload implements the wire encoding shared by the signers and the
// oracle contract: JSON bytes as 0x-prefixed hex, and the keccak256 digest of
// abi.encode(bytes32 key, bytes value, bytes32 schemaHash, uint256 timestamp).
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var digestArgs abi.Arguments

func init() {
	bytes32, _ := abi.NewType("bytes32", "", nil)
	dynBytes, _ := abi.NewType("bytes", "", nil)
	uint256, _ := abi.NewType("uint256", "", nil)
	digestArgs = abi.Arguments{
		{Name: "key", Type: bytes32},
		{Name: "value", Type: dynBytes},
		{Name: "schemaHash", Type: bytes32},
		{Name: "timestamp", Type: uint256},
	}
}

// EncodeValue serializes v to compact JSON without HTML escaping and returns
// the bytes as a lowercase 0x-prefixed hex string. Map keys are sorted by
// encoding/json, so equal values always encode identically.
func EncodeValue(v interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode value: %w", err)
	}
	return hexutil.Encode(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// DecodeValue reverses EncodeValue into out.
func DecodeValue(hexValue string, out interface{}) error {
	raw, err := hexutil.Decode(hexValue)
	if err != nil {
		return fmt.Errorf("decode hex value: %w", err)
	}
	return json.Unmarshal(raw, out)
}

// Pack returns abi.encode(key, value, schemaHash, timestamp).
func Pack(key, value, schemaHash string, timestamp int64) ([]byte, error) {
	keyBytes, err := ToBytes32(key)
	if err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	schemaBytes, err := ToBytes32(schemaHash)
	if err != nil {
		return nil, fmt.Errorf("schemaHash: %w", err)
	}
	valueBytes, err := hexutil.Decode(value)
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	if timestamp < 0 {
		return nil, fmt.Errorf("timestamp must not be negative: %d", timestamp)
	}
	return digestArgs.Pack(keyBytes, valueBytes, schemaBytes, big.NewInt(timestamp))
}

// Digest returns keccak256(Pack(...)).
func Digest(key, value, schemaHash string, timestamp int64) (common.Hash, error) {
	packed, err := Pack(key, value, schemaHash, timestamp)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(packed), nil
}

// ToBytes32 parses a 0x-prefixed 32-byte hex string.
func ToBytes32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hexutil.Decode(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}
