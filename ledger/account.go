// Package ledger models the on-chain storage account that holds the most
// recent posts, and decodes it into posts.
//
// The account is a fixed ring of Capacity slots written at Index. Once the
// index passes CompactionThreshold an off-chain job asks the program to
// garbage collect it, which clears the oldest half and shifts the rest down.
package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
)

const (
	// Capacity is the number of post slots in the storage account.
	Capacity = 500
	// CompactionThreshold is the index at which garbage collection is due.
	CompactionThreshold = Capacity / 2

	ContentSize = 280
	KeySize     = 32

	discriminatorSize = 8
	slotSize          = KeySize + ContentSize + 8
	// AccountDataSize is the length of the raw zero-copy account data.
	AccountDataSize = discriminatorSize + 8 + Capacity*slotSize + KeySize
)

var (
	ErrShortAccount    = errors.New("account data too short")
	ErrIndexOutOfRange = errors.New("account index out of range")
)

// PublicKey is a 32 byte ed25519 public key, displayed as base58.
type PublicKey [KeySize]byte

func (k PublicKey) String() string {
	return base58.Encode(k[:])
}

func (k PublicKey) IsZero() bool {
	return k == PublicKey{}
}

// ParsePublicKey decodes a base58 encoded public key.
func ParsePublicKey(s string) (PublicKey, error) {
	raw := base58.Decode(s)
	if len(raw) != KeySize {
		return PublicKey{}, fmt.Errorf("invalid public key %q: decoded to %d bytes", s, len(raw))
	}
	var k PublicKey
	copy(k[:], raw)
	return k, nil
}

// Slot is one entry of the storage account ring. A zero Timestamp marks an
// empty slot.
type Slot struct {
	Author    PublicKey
	Content   [ContentSize]byte
	Timestamp int64 // unix seconds
}

func (s Slot) Empty() bool {
	return s.Timestamp == 0
}

type AccountState struct {
	Index               uint64
	Slots               [Capacity]Slot
	CompactionAuthority PublicKey
}

// CurrentIndex is the slot holding the most recent write.
func (a *AccountState) CurrentIndex() uint64 {
	if a.Index == 0 {
		return 0
	}
	return a.Index - 1
}

// DecodeAccount parses the raw account data. The leading 8 bytes are the
// account discriminator and are not checked.
func DecodeAccount(data []byte) (*AccountState, error) {
	if len(data) < AccountDataSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrShortAccount, len(data), AccountDataSize)
	}

	var state AccountState
	offset := discriminatorSize
	state.Index = binary.LittleEndian.Uint64(data[offset:])
	offset += 8

	for i := range state.Slots {
		slot := &state.Slots[i]
		copy(slot.Author[:], data[offset:offset+KeySize])
		offset += KeySize
		copy(slot.Content[:], data[offset:offset+ContentSize])
		offset += ContentSize
		slot.Timestamp = int64(binary.LittleEndian.Uint64(data[offset:]))
		offset += 8
	}
	copy(state.CompactionAuthority[:], data[offset:offset+KeySize])

	return &state, nil
}

// EncodeAccount is the inverse of DecodeAccount. The discriminator is
// written as given.
func EncodeAccount(discriminator [8]byte, state *AccountState) []byte {
	data := make([]byte, AccountDataSize)
	copy(data, discriminator[:])
	offset := discriminatorSize
	binary.LittleEndian.PutUint64(data[offset:], state.Index)
	offset += 8
	for _, slot := range state.Slots {
		copy(data[offset:], slot.Author[:])
		offset += KeySize
		copy(data[offset:], slot.Content[:])
		offset += ContentSize
		binary.LittleEndian.PutUint64(data[offset:], uint64(slot.Timestamp))
		offset += 8
	}
	copy(data[offset:], state.CompactionAuthority[:])
	return data
}
