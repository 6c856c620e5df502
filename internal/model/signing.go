package model

import "context"

// SignPayload is what a signer signs: the digest of
// abi.encode(bytes32 key, bytes value, bytes32 schemaHash, uint256 timestamp).
type SignPayload struct {
	Key        string `json:"key"`
	Value      string `json:"value"`
	SchemaHash string `json:"schemaHash"`
	Timestamp  int64  `json:"timestamp"`
}

type SignerOutput struct {
	Signature     string `json:"signature"`
	SigningTimeMs int64  `json:"signingTime"`
	// PublicKey is the PKP public key for threshold signers or the address for local keys.
	PublicKey string `json:"pkpPublicKey"`
}

// Receipt is the on-chain outcome of a mined transaction.
type Receipt struct {
	Status  uint64 `json:"status"`
	GasUsed uint64 `json:"gasUsed"`
}

// ReceiptStatusSuccessful mirrors the EVM receipt status for a successful transaction.
const ReceiptStatusSuccessful = 1

// PendingTx is a submitted transaction that can be waited on.
type PendingTx interface {
	Hash() string
	Wait(ctx context.Context) (*Receipt, error)
}
