package domain

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Common errors related to domain identifiers.
var (
	ErrInvalidID = errors.New("invalid id")
)

// -------------------------------
// Space
// -------------------------------

// Space defines the 160-bit ring identifier space used by the Chord DHT
// Engine. Identifiers are SHA-1 digests, stored big-endian using ByteLen
// bytes, and all arithmetic on them is modulo 2^Bits.
type Space struct {
	Bits    int // number of bits in the identifier space (160 for SHA-1)
	ByteLen int // bytes needed to represent an identifier (ceil(Bits/8))
}

// NewSpace initializes the identifier space. b must be > 0.
func NewSpace(b int) (Space, error) {
	if b <= 0 {
		return Space{}, fmt.Errorf("invalid identifier bits: %d (must be > 0)", b)
	}
	return Space{
		Bits:    b,
		ByteLen: (b + 7) / 8,
	}, nil
}

// StandardSpace returns the 160-bit SHA-1 ring used by the overlay.
func StandardSpace() Space {
	sp, err := NewSpace(160)
	if err != nil {
		panic(err) // unreachable: 160 is always valid
	}
	return sp
}

// -------------------------------
// ID type and methods
// -------------------------------

// ID is a ring identifier: a big-endian unsigned integer of Space.ByteLen
// bytes. The most significant byte is at index 0.
type ID []byte

// Zero returns the all-zero identifier for this space.
func (sp Space) Zero() ID {
	return make(ID, sp.ByteLen)
}

// NewIdFromString derives a ring ID from the SHA-1 digest of s, keeping the
// most significant sp.ByteLen bytes and masking any unused high-order bits.
func (sp Space) NewIdFromString(s string) ID {
	h := sha1.Sum([]byte(s))

	buf := make([]byte, sp.ByteLen)
	copy(buf, h[:sp.ByteLen])

	extraBits := sp.ByteLen*8 - sp.Bits
	if extraBits > 0 {
		mask := byte(0xFF >> extraBits)
		buf[0] &= mask
	}

	return buf
}

// IsValidID reports whether id has the expected length and no set bits
// outside the configured range.
func (sp Space) IsValidID(id []byte) error {
	if len(id) != sp.ByteLen {
		return ErrInvalidID
	}

	extraBits := sp.ByteLen*8 - sp.Bits
	if extraBits > 0 {
		mask := byte(0xFF << (8 - extraBits))
		if id[0]&mask != 0 {
			return ErrInvalidID
		}
	}

	return nil
}

// ToHexString returns the identifier as a lowercase hex string, "0x"-prefixed
// when prefix is true. Returns "<nil>" for a nil ID.
func (x ID) ToHexString(prefix bool) string {
	if x == nil {
		return "<nil>"
	}
	hexStr := hex.EncodeToString(x)
	if prefix {
		return "0x" + hexStr
	}
	return hexStr
}

// String implements fmt.Stringer as an unprefixed hex string, used as the
// storage/log key form throughout the engines.
func (x ID) String() string {
	return x.ToHexString(false)
}

// ToBigInt interprets the identifier as a non-negative big-endian integer.
func (x ID) ToBigInt() *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).SetBytes(x)
}

// ToBinaryString returns the binary representation of the ID, "0b"-prefixed
// when withPrefix is true.
func (x ID) ToBinaryString(withPrefix bool) string {
	if x == nil {
		return "<nil>"
	}

	var sb strings.Builder
	for _, b := range x {
		sb.WriteString(fmt.Sprintf("%08b", b))
	}

	if withPrefix {
		return "0b" + sb.String()
	}
	return sb.String()
}

// FromHexString parses a hex string into an ID, accepting leading zero
// padding but rejecting values that exceed the identifier space.
func (sp Space) FromHexString(s string) (ID, error) {
	str := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if str == "" {
		return nil, fmt.Errorf("invalid hex string: empty input")
	}

	bt, err := hex.DecodeString(str)
	if err != nil {
		return nil, fmt.Errorf("invalid hex string %q: %w", s, err)
	}

	if len(bt) > sp.ByteLen {
		leading := bt[:len(bt)-sp.ByteLen]
		for _, b := range leading {
			if b != 0 {
				return nil, fmt.Errorf("value exceeds %d-bit space (non-zero leading bytes)", sp.Bits)
			}
		}
		bt = bt[len(bt)-sp.ByteLen:]
	}

	id := make(ID, sp.ByteLen)
	copy(id[sp.ByteLen-len(bt):], bt)

	extraBits := sp.ByteLen*8 - sp.Bits
	if extraBits > 0 {
		topMask := byte(0xFF << (8 - extraBits))
		if id[0]&topMask != 0 {
			return nil, fmt.Errorf("value exceeds %d-bit space (non-zero in top %d unused bits)", sp.Bits, extraBits)
		}
	}

	return id, nil
}

// FromUint64 embeds a small integer into the identifier space, masking any
// unused high-order bits of the most significant byte.
func (sp Space) FromUint64(x uint64) ID {
	id := make(ID, sp.ByteLen)

	for i := sp.ByteLen - 1; i >= 0 && x > 0; i-- {
		id[i] = byte(x & 0xFF)
		x >>= 8
	}

	extraBits := sp.ByteLen*8 - sp.Bits
	if extraBits > 0 {
		mask := byte(0xFF >> extraBits)
		id[0] &= mask
	}

	return id
}

// Cmp compares two identifiers as unsigned big-endian integers: -1, 0, +1.
func (x ID) Cmp(b ID) int {
	return bytes.Compare(x, b)
}

// Equal reports whether x and b are byte-identical.
func (x ID) Equal(b ID) bool {
	return bytes.Equal(x, b)
}

// Between reports whether x lies in the circular interval (a, b], the
// inHalfOpen predicate used for key-ownership and finger-range checks;
// stabilize uses BetweenOpen instead.
func (x ID) Between(a, b ID) bool {
	acmp := a.Cmp(x)
	xbcmp := x.Cmp(b)
	abcmp := a.Cmp(b)

	if abcmp == 0 {
		// (a, a] covers the whole ring.
		return true
	}
	if abcmp < 0 {
		return acmp < 0 && xbcmp <= 0
	}
	// wrap-around case: a > b
	return acmp < 0 || xbcmp <= 0
}

// BetweenOpen reports whether x lies in the circular open interval (a, b),
// the inOpenInterval predicate used by stabilize and closestPrecedingFinger.
func (x ID) BetweenOpen(a, b ID) bool {
	acmp := a.Cmp(x)
	xbcmp := x.Cmp(b)
	abcmp := a.Cmp(b)

	if abcmp == 0 {
		// (a, a) is empty unless x == a, which acmp < 0 already excludes.
		return false
	}
	if abcmp < 0 {
		return acmp < 0 && xbcmp < 0
	}
	return acmp < 0 || xbcmp < 0
}

// AddMod computes (a + b) mod 2^Bits with per-byte carry propagation.
func (sp Space) AddMod(a, b ID) (ID, error) {
	if err := sp.IsValidID(a); err != nil {
		return nil, fmt.Errorf("invalid ID a: %w", err)
	}
	if err := sp.IsValidID(b); err != nil {
		return nil, fmt.Errorf("invalid ID b: %w", err)
	}

	res := make(ID, sp.ByteLen)
	carry := 0

	for i := sp.ByteLen - 1; i >= 0; i-- {
		sum := int(a[i]) + int(b[i]) + carry
		res[i] = byte(sum & 0xFF)
		carry = sum >> 8
	}

	extraBits := sp.ByteLen*8 - sp.Bits
	if extraBits > 0 {
		mask := byte(0xFF >> extraBits)
		res[0] &= mask
	}

	return res, nil
}

// PowerOfTwoMod computes 2^exp mod 2^Bits, used to build finger table
// targets selfId + 2^(i-1).
func (sp Space) PowerOfTwoMod(exp int) ID {
	id := make(ID, sp.ByteLen)
	if exp >= sp.Bits {
		return id // wraps to zero, matches modulo semantics
	}
	byteIndex := sp.ByteLen - 1 - exp/8
	id[byteIndex] = 1 << (exp % 8)
	return id
}
