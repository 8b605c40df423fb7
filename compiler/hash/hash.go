package hash

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/abooishaaq/sahl/compiler"
)

// HashVersion is mixed into every hash. Bump it whenever codegen output for
// the same AST changes, so cached programs are not reused across versions.
const HashVersion byte = 0x01

// Hash is a SHA-256 content hash.
type Hash [32]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Program computes the content hash of a parsed program.
//
// The hash covers the program's canonical tree rendering, not its source
// text, so edits to whitespace and comments keep the same hash. Two
// programs with the same hash compile to the same bytecode.
func Program(prog *compiler.Program) Hash {
	data := append([]byte{HashVersion}, compiler.Dump(prog)...)
	return sha256.Sum256(data)
}
