package claim

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

const (
	ss58PublicKeyLen = 32
	ss58ChecksumLen  = 2
	ss58MaxPrefix    = 16383
)

var ss58Preimage = []byte("SS58PRE")

var ErrSS58Checksum = errors.New("ss58: checksum mismatch")

// DecodeSS58 decodes a Substrate network address carrying a 32-byte account
// public key. Both the single-byte (0..63) and the two-byte (64..16383)
// network prefix encodings are accepted.
func DecodeSS58(addr string) (prefix uint16, pubkey [32]byte, err error) {
	data, err := base58.Decode(addr)
	if err != nil {
		return 0, pubkey, fmt.Errorf("ss58: %w", err)
	}
	if len(data) < 1 {
		return 0, pubkey, errors.New("ss58: empty address")
	}

	var prefixLen int
	switch {
	case data[0] < 64:
		prefix, prefixLen = uint16(data[0]), 1
	case data[0] < 128:
		if len(data) < 2 {
			return 0, pubkey, errors.New("ss58: truncated prefix")
		}
		lower := (data[0] << 2) | (data[1] >> 6)
		upper := data[1] & 0x3f
		prefix, prefixLen = uint16(lower)|uint16(upper)<<8, 2
	default:
		return 0, pubkey, fmt.Errorf("ss58: invalid prefix byte 0x%02x", data[0])
	}

	if len(data) != prefixLen+ss58PublicKeyLen+ss58ChecksumLen {
		return 0, pubkey, fmt.Errorf("ss58: decoded payload is %d bytes, want a %d-byte public key", len(data)-prefixLen-ss58ChecksumLen, ss58PublicKeyLen)
	}

	body := data[:len(data)-ss58ChecksumLen]
	sum := ss58Checksum(body)
	if !bytes.Equal(sum[:ss58ChecksumLen], data[len(body):]) {
		return 0, pubkey, ErrSS58Checksum
	}

	copy(pubkey[:], body[prefixLen:])
	return prefix, pubkey, nil
}

// EncodeSS58 renders a public key as an SS58 address for the given network prefix.
func EncodeSS58(prefix uint16, pubkey [32]byte) (string, error) {
	var body []byte
	switch {
	case prefix < 64:
		body = append(body, byte(prefix))
	case prefix <= ss58MaxPrefix:
		first := byte((prefix&0x00fc)>>2) | 0x40
		second := byte(prefix>>8) | byte((prefix&0x03)<<6)
		body = append(body, first, second)
	default:
		return "", fmt.Errorf("ss58: prefix %d out of range", prefix)
	}
	body = append(body, pubkey[:]...)

	sum := ss58Checksum(body)
	return base58.Encode(append(body, sum[:ss58ChecksumLen]...)), nil
}

func ss58Checksum(body []byte) [blake2b.Size]byte {
	return blake2b.Sum512(append(append([]byte{}, ss58Preimage...), body...))
}
