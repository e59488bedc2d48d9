// Package args owns the positional argument buffer handed to object modules.
//
// Wire contract:
// - records are concatenated in list order with no count prefix and no type tags
//
// - Int32 / Int16: fixed width, two's complement, little-endian
//
// - String: u32le byte count (including terminator), bytes, 0x00
//
// - WString: u32le length (including terminator), UTF-16LE units, 0x0000
//
// - Bytes: u32le byte count, raw bytes
//
// The receiving module knows its arity and types from its schema; the buffer
// is not self-describing.
package args
