package core

import (
	"crypto/sha256"
	"encoding/binary"
)

const GenesisHashSeed = "CoverPool:genesis:v1"

// GenesisHash is the PrevHash of the first logged command.
func GenesisHash() [32]byte {
	return sha256.Sum256([]byte(GenesisHashSeed))
}

// hashChain links every accepted command to the one before it:
//
//	link[N] = SHA-256(link[N-1] || big-endian sequence || engine digest)
//
// Replaying the log must reproduce every link.
type hashChain struct {
	tip [32]byte
}

func newHashChain() *hashChain {
	return &hashChain{tip: GenesisHash()}
}

// Tip is the hash of the last linked command, or the genesis hash.
func (c *hashChain) Tip() [32]byte {
	return c.tip
}

// Link appends one command and returns its hash.
func (c *hashChain) Link(sequence int64, digest []byte) [32]byte {
	buf := make([]byte, 0, len(c.tip)+8+len(digest))
	buf = append(buf, c.tip[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(sequence))
	buf = append(buf, digest...)
	c.tip = sha256.Sum256(buf)
	return c.tip
}
