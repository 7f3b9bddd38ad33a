package solana

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/spacecats-dao/spacecats-sync/ledger"
)

// instructionDiscriminator is the 8 byte prefix the program dispatches on.
func instructionDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

var garbageCollectDiscriminator = instructionDiscriminator("garbage_collect")

// appendCompactU16 appends n in the variable length "shortvec" encoding used
// for lengths inside transactions.
func appendCompactU16(buf []byte, n int) []byte {
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

// compactionMessage builds the legacy message for a garbage_collect
// instruction. The authority pays the fee and signs; the storage account is
// writable; the program id is a read-only unsigned key.
//
// Account keys: [authority, storage account, program]
func compactionMessage(authority, storage, program ledger.PublicKey, blockhash [32]byte) []byte {
	const (
		numRequiredSignatures       = 1
		numReadonlySignedAccounts   = 0
		numReadonlyUnsignedAccounts = 1
	)

	msg := []byte{numRequiredSignatures, numReadonlySignedAccounts, numReadonlyUnsignedAccounts}
	msg = appendCompactU16(msg, 3)
	msg = append(msg, authority[:]...)
	msg = append(msg, storage[:]...)
	msg = append(msg, program[:]...)
	msg = append(msg, blockhash[:]...)

	msg = appendCompactU16(msg, 1) // instructions
	msg = append(msg, 2)           // program id index
	msg = appendCompactU16(msg, 2)
	msg = append(msg, 0, 1) // garbage_collector, storage_account
	msg = appendCompactU16(msg, len(garbageCollectDiscriminator))
	msg = append(msg, garbageCollectDiscriminator[:]...)
	return msg
}

// signTransaction wraps a message with its single signature.
func signTransaction(key ed25519.PrivateKey, message []byte) (tx []byte, signature []byte) {
	signature = ed25519.Sign(key, message)
	tx = appendCompactU16(nil, 1)
	tx = append(tx, signature...)
	tx = append(tx, message...)
	return tx, signature
}

// ParseKeypair decodes a keypair file: a JSON array of the 64 secret key
// bytes (32 byte seed followed by the public key).
func ParseKeypair(data []byte) (ed25519.PrivateKey, error) {
	var raw []byte
	var ints []int
	if err := json.Unmarshal(bytes.TrimSpace(data), &ints); err != nil {
		return nil, fmt.Errorf("keypair is not a JSON byte array: %w", err)
	}
	for _, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("keypair byte out of range: %v", v)
		}
		raw = append(raw, byte(v))
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keypair is %d bytes, want %d", len(raw), ed25519.PrivateKeySize)
	}
	key := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
	if !bytes.Equal(key[ed25519.SeedSize:], raw[ed25519.SeedSize:]) {
		return nil, fmt.Errorf("keypair public key does not match its seed")
	}
	return key, nil
}

// PublicKeyOf returns the public half of an ed25519 key.
func PublicKeyOf(key ed25519.PrivateKey) ledger.PublicKey {
	var pk ledger.PublicKey
	copy(pk[:], key.Public().(ed25519.PublicKey))
	return pk
}
