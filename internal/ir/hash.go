package ir

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/zeebo/blake3"
)

// HashStrategy selects how a Fingerprint is derived from bytecode.
type HashStrategy int

const (
	// HashFNV hashes the whole buffer with 64-bit FNV-1. Robust across
	// heterogeneous content; the default.
	HashFNV HashStrategy = iota

	// HashHeader trusts the checksum the compiler embeds in the container
	// header and reinterprets its first 8 bytes (little endian) as identity.
	HashHeader

	// HashSections hashes only the semantic sections of the container
	// (instruction stream and signatures), ignoring toolchain stamps and
	// debug data.
	HashSections
)

var strategyNames = [...]string{"fnv", "header", "sections"}

func (s HashStrategy) String() string {
	if s < 0 || int(s) >= len(strategyNames) {
		return fmt.Sprintf("strategy(%d)", int(s))
	}
	return strategyNames[s]
}

// ParseHashStrategy parses "fnv", "header" or "sections". Empty means fnv.
func ParseHashStrategy(s string) (HashStrategy, error) {
	if s == "" {
		return HashFNV, nil
	}
	for i, name := range strategyNames {
		if name == s {
			return HashStrategy(i), nil
		}
	}
	return 0, fmt.Errorf("unknown hash strategy %q (want fnv, header or sections)", s)
}

// semanticSections is the whitelist hashed by HashSections: instruction
// streams and input/output/patch-constant signatures. Everything else
// (RDEF, STAT, SDBG, SPDB, ...) varies with toolchain version and debug
// paths rather than with program semantics.
var semanticSections = map[string]bool{
	"SHDR": true,
	"SHEX": true,
	"ISGN": true,
	"ISG1": true,
	"OSGN": true,
	"OSG5": true,
	"OSG1": true,
	"PCSG": true,
	"PSG1": true,
}

// sectionsDomainKey keys the BLAKE3 hash so section fingerprints never
// coincide with hashes computed for other purposes.
var sectionsDomainKey = [32]byte{
	's', 'h', 'a', 'd', 'e', 'r', 'h', 'u', 'n', 't', '.', 's', 'e', 'c', 't', 'i',
	'o', 'n', 's', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Hasher computes fingerprints with a fixed strategy.
//
// Thread-safety: Hasher is immutable and safe for concurrent use.
type Hasher struct {
	strategy HashStrategy
}

// NewHasher creates a Hasher for the strategy.
func NewHasher(strategy HashStrategy) *Hasher {
	return &Hasher{strategy: strategy}
}

// Strategy returns the configured strategy.
func (h *Hasher) Strategy() HashStrategy {
	return h.strategy
}

// Hash returns the fingerprint of bytecode. It never fails: strategies that
// cannot parse their input fall back to HashFNV.
func (h *Hasher) Hash(bytecode []byte) Fingerprint {
	fp, _ := h.HashWithStrategy(bytecode)
	return fp
}

// HashWithStrategy is Hash that also reports the strategy actually used,
// which differs from the configured one after a fallback.
func (h *Hasher) HashWithStrategy(bytecode []byte) (Fingerprint, HashStrategy) {
	switch h.strategy {
	case HashHeader:
		if fp, err := HeaderFingerprint(bytecode); err == nil {
			return fp, HashHeader
		}
	case HashSections:
		if fp, err := SectionsFingerprint(bytecode); err == nil {
			return fp, HashSections
		}
	}
	return FNVFingerprint(bytecode), HashFNV
}

// FNVFingerprint is the 64-bit FNV-1 hash of the whole buffer.
func FNVFingerprint(b []byte) Fingerprint {
	h := fnv.New64()
	h.Write(b)
	return Fingerprint(h.Sum64())
}

// HeaderFingerprint reads the compiler-assigned identity from the container
// header.
func HeaderFingerprint(b []byte) (Fingerprint, error) {
	if len(b) < checksumOffset+8 || !IsContainer(b) {
		return 0, fmt.Errorf("%w: no container header", ErrMalformedContainer)
	}
	return Fingerprint(binary.LittleEndian.Uint64(b[checksumOffset : checksumOffset+8])), nil
}

// SectionsFingerprint hashes the whitelisted sections in container order.
// Returns ErrMalformedContainer when the container cannot be parsed or
// contains no semantic section.
func SectionsFingerprint(b []byte) (Fingerprint, error) {
	sections, err := ParseSections(b)
	if err != nil {
		return 0, err
	}
	h, err := blake3.NewKeyed(sectionsDomainKey[:])
	if err != nil {
		return 0, fmt.Errorf("blake3 keyed hasher: %w", err)
	}
	var lenBuf [4]byte
	hashed := 0
	for _, s := range sections {
		if !semanticSections[s.FourCC] {
			continue
		}
		h.Write([]byte(s.FourCC))
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s.Data)))
		h.Write(lenBuf[:])
		h.Write(s.Data)
		hashed++
	}
	if hashed == 0 {
		return 0, fmt.Errorf("%w: no semantic sections", ErrMalformedContainer)
	}
	sum := h.Sum(nil)
	return Fingerprint(binary.LittleEndian.Uint64(sum[:8])), nil
}
