// Package vm implements the latino virtual machine.
//
// This package contains:
//   - Tagged value representation and the string intern table
//   - Copy-on-write scope contexts and the bounded context stack
//   - Bytecode definitions, the instruction builder and the disassembler
//   - The stack interpreter and its call protocol
//   - Builtin native functions
//   - CBOR images of compiled units
package vm
