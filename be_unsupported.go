//go:build !(amd64 || arm64 || 386 || arm || riscv64 || loong64 || mipsle || mips64le || ppc64le || wasm)

package main

// Guest memory is little-endian: the decoder reads literals with
// binary.LittleEndian and the block cache packs values low byte first.
// This file rejects any target outside le_check.go's list.
var _ = "this core requires a little-endian architecture" + 1
