// Package dist ships compiled programs between processes as canonical CBOR
// envelopes. Canonical encoding makes the envelope hash a stable content
// address: the same program always yields the same bytes.
package dist

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/abooishaaq/sahl/vm"
	"github.com/fxamacker/cbor/v2"
)

// WireVersion is bumped on incompatible changes to the wire types.
const WireVersion uint16 = 1

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dist: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Hash is the SHA-256 of an envelope body.
type Hash [32]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Envelope wraps the encoded program with its content hash.
type Envelope struct {
	Version uint16 `cbor:"1,keyasint"`
	Hash    Hash   `cbor:"2,keyasint"`
	Body    []byte `cbor:"3,keyasint"`
}

// WireProgram mirrors vm.Program.
type WireProgram struct {
	Start     int               `cbor:"1,keyasint"`
	Functions []WireFunction    `cbor:"2,keyasint"`
	Code      []WireInstruction `cbor:"3,keyasint"`
}

type WireFunction struct {
	Name   string `cbor:"1,keyasint"`
	Entry  int    `cbor:"2,keyasint"`
	Params int    `cbor:"3,keyasint,omitempty"`
	Locals int    `cbor:"4,keyasint,omitempty"`
}

type WireInstruction struct {
	Op    uint8      `cbor:"1,keyasint"`
	A     int        `cbor:"2,keyasint,omitempty"`
	B     int        `cbor:"3,keyasint,omitempty"`
	Const *WireValue `cbor:"4,keyasint,omitempty"`
}

// WireValue mirrors vm.Value. Int carries the Int, Char and Bool payloads.
type WireValue struct {
	Kind  uint8       `cbor:"1,keyasint"`
	Int   int64       `cbor:"2,keyasint,omitempty"`
	Float float64     `cbor:"3,keyasint,omitempty"`
	Str   string      `cbor:"4,keyasint,omitempty"`
	List  []WireValue `cbor:"5,keyasint,omitempty"`
}

func toWireValue(v vm.Value) WireValue {
	w := WireValue{Kind: uint8(v.Kind), Int: v.I, Float: v.F, Str: v.S}
	for _, e := range v.Elems() {
		w.List = append(w.List, toWireValue(e))
	}
	return w
}

func fromWireValue(w WireValue) vm.Value {
	v := vm.Value{Kind: vm.Kind(w.Kind), I: w.Int, F: w.Float, S: w.Str}
	if v.Kind == vm.KindList {
		elems := make([]vm.Value, len(w.List))
		for i, e := range w.List {
			elems[i] = fromWireValue(e)
		}
		v = vm.ListValue(elems...)
	}
	return v
}

// ToWire converts a program to its wire form.
func ToWire(p *vm.Program) *WireProgram {
	w := &WireProgram{
		Start:     p.Start,
		Functions: make([]WireFunction, len(p.Functions)),
		Code:      make([]WireInstruction, len(p.Code)),
	}
	for i, fn := range p.Functions {
		w.Functions[i] = WireFunction{Name: fn.Name, Entry: fn.Entry, Params: fn.Params, Locals: fn.Locals}
	}
	for i, in := range p.Code {
		wi := WireInstruction{Op: uint8(in.Op), A: in.A, B: in.B}
		if in.Op == vm.OpConst {
			cv := toWireValue(in.Const)
			wi.Const = &cv
		}
		w.Code[i] = wi
	}
	return w
}

// FromWire converts a wire program back.
func FromWire(w *WireProgram) *vm.Program {
	p := &vm.Program{
		Start:     w.Start,
		Functions: make([]vm.FunctionInfo, len(w.Functions)),
		Code:      make([]vm.Instruction, len(w.Code)),
	}
	for i, fn := range w.Functions {
		p.Functions[i] = vm.FunctionInfo{Name: fn.Name, Entry: fn.Entry, Params: fn.Params, Locals: fn.Locals}
	}
	for i, wi := range w.Code {
		in := vm.Instruction{Op: vm.Opcode(wi.Op), A: wi.A, B: wi.B}
		if wi.Const != nil {
			in.Const = fromWireValue(*wi.Const)
		}
		p.Code[i] = in
	}
	return p
}

// Marshal encodes p as a hashed envelope.
func Marshal(p *vm.Program) ([]byte, Hash, error) {
	body, err := cborEncMode.Marshal(ToWire(p))
	if err != nil {
		return nil, Hash{}, fmt.Errorf("dist: marshal program: %w", err)
	}
	env := Envelope{Version: WireVersion, Hash: sha256.Sum256(body), Body: body}
	data, err := cborEncMode.Marshal(&env)
	if err != nil {
		return nil, Hash{}, fmt.Errorf("dist: marshal envelope: %w", err)
	}
	return data, env.Hash, nil
}

// Unmarshal decodes an envelope, checking its version and hash.
func Unmarshal(data []byte) (*vm.Program, Hash, error) {
	var env Envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, Hash{}, fmt.Errorf("dist: unmarshal envelope: %w", err)
	}
	if env.Version > WireVersion {
		return nil, Hash{}, fmt.Errorf("dist: envelope version %d is newer than supported version %d", env.Version, WireVersion)
	}
	sum := sha256.Sum256(env.Body)
	if !bytes.Equal(sum[:], env.Hash[:]) {
		return nil, Hash{}, fmt.Errorf("dist: hash mismatch: envelope says %s, body hashes to %s", env.Hash, Hash(sum))
	}
	var w WireProgram
	if err := cbor.Unmarshal(env.Body, &w); err != nil {
		return nil, Hash{}, fmt.Errorf("dist: unmarshal program: %w", err)
	}
	return FromWire(&w), env.Hash, nil
}
