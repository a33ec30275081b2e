package keys

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
)

// SLIP-0010 Ed25519 derivation. Ed25519 supports hardened child keys only,
// so every path component must carry the hardened offset.

const slip10Ed25519Key = "ed25519 seed"

type slip10Node struct {
	key       []byte // 32-byte private key seed
	chainCode []byte // 32 bytes
}

// slip10MasterFromSeed computes the Ed25519 master node from a BIP-39 seed.
func slip10MasterFromSeed(seed []byte) (*slip10Node, error) {
	if len(seed) < 16 || len(seed) > 64 {
		return nil, fmt.Errorf("seed length %d out of range [16, 64]", len(seed))
	}

	mac := hmac.New(sha512.New, []byte(slip10Ed25519Key))
	mac.Write(seed)
	sum := mac.Sum(nil)

	return &slip10Node{
		key:       sum[:32],
		chainCode: sum[32:],
	}, nil
}

// deriveHardened derives the hardened child at the given index. index must
// already include the hardened offset.
func (n *slip10Node) deriveHardened(index uint32) (*slip10Node, error) {
	if index < 0x80000000 {
		return nil, fmt.Errorf("ed25519 derivation requires hardened index, got %d", index)
	}

	// Data is 0x00 || key || ser32(index) per SLIP-0010.
	data := make([]byte, 1+32+4)
	copy(data[1:], n.key)
	binary.BigEndian.PutUint32(data[33:], index)

	mac := hmac.New(sha512.New, n.chainCode)
	mac.Write(data)
	sum := mac.Sum(nil)

	return &slip10Node{
		key:       sum[:32],
		chainCode: sum[32:],
	}, nil
}
