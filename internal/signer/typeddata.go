package signer

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// Member is one field of a typed payload: a name and its domain type.
type Member struct {
	Name string
	Type string
}

// Domain separates signatures by network and signing-scheme version. Two
// payloads with identical fields hash differently under different domains.
type Domain struct {
	Name    string
	ChainID string
	Version string
}

var domainMembers = []Member{
	{Name: "name", Type: "felt"},
	{Name: "chainId", Type: "felt"},
	{Name: "version", Type: "felt"},
}

// Hash computes the domain separator.
func (d Domain) Hash() ([32]byte, error) {
	return hashStruct("StarkNetDomain", domainMembers, map[string]string{
		"name":    d.Name,
		"chainId": d.ChainID,
		"version": d.Version,
	})
}

// encodeType renders the canonical type signature, e.g.
// "Order(felt timestamp,felt market,...)", and hashes it.
func encodeType(name string, members []Member) [32]byte {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('(')
	for i, m := range members {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(m.Type)
		b.WriteByte(' ')
		b.WriteString(m.Name)
	}
	b.WriteByte(')')
	var out [32]byte
	copy(out[:], crypto.Keccak256([]byte(b.String())))
	return out
}

// encodeValue maps a field value onto one 32-byte word. Hex and decimal
// strings encode as integers; short strings encode as their big-endian
// bytes; anything longer is reduced by hashing.
func encodeValue(value string) ([32]byte, error) {
	var out [32]byte
	if strings.HasPrefix(value, "0x") {
		n, ok := new(big.Int).SetString(strings.TrimPrefix(value, "0x"), 16)
		if !ok {
			return out, fmt.Errorf("invalid hex value %q", value)
		}
		if n.BitLen() > 256 {
			return out, fmt.Errorf("hex value %q overflows word", value)
		}
		n.FillBytes(out[:])
		return out, nil
	}
	if n, ok := new(big.Int).SetString(value, 10); ok && n.Sign() >= 0 {
		if n.BitLen() > 256 {
			return out, fmt.Errorf("decimal value %q overflows word", value)
		}
		n.FillBytes(out[:])
		return out, nil
	}
	if len(value) <= 32 {
		// Short-string encoding: ASCII bytes as a big-endian integer.
		new(big.Int).SetBytes([]byte(value)).FillBytes(out[:])
		return out, nil
	}
	copy(out[:], crypto.Keccak256([]byte(value)))
	return out, nil
}

// hashStruct computes keccak(typeHash || enc(v1) || ... || enc(vn)) over the
// payload's ordered members.
func hashStruct(name string, members []Member, values map[string]string) ([32]byte, error) {
	typeHash := encodeType(name, members)
	buf := make([]byte, 0, 32*(len(members)+1))
	buf = append(buf, typeHash[:]...)
	for _, m := range members {
		v, ok := values[m.Name]
		if !ok {
			return [32]byte{}, fmt.Errorf("missing field %q", m.Name)
		}
		word, err := encodeValue(v)
		if err != nil {
			return [32]byte{}, fmt.Errorf("field %q: %w", m.Name, err)
		}
		buf = append(buf, word[:]...)
	}
	var out [32]byte
	copy(out[:], crypto.Keccak256(buf))
	return out, nil
}

// messageHash combines the domain separator and struct hash under the fixed
// 0x19 0x01 prefix. The result is what the secondary key signs.
func messageHash(domainHash, structHash [32]byte) [32]byte {
	buf := make([]byte, 0, 2+64)
	buf = append(buf, 0x19, 0x01)
	buf = append(buf, domainHash[:]...)
	buf = append(buf, structHash[:]...)
	var out [32]byte
	copy(out[:], crypto.Keccak256(buf))
	return out
}
