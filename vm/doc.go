// Package vm implements the sahl virtual machine.
//
// This package contains:
//   - Tagged value representation with list copy semantics
//   - Opcodes, instructions, and the flat Program layout
//   - Stack interpreter with call frames
//   - Static verifier and disassembler
//   - Binary image reader and writer
package vm
