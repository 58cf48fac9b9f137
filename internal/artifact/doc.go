// Package artifact implements the filesystem-backed artifact store.
//
// Artifacts live under two roots:
//
//	{overrides}/   operator-edited files, always consulted first
//	{cache}/       machine-generated files
//
// Every file is named "{fingerprint}-{kind}{suffix}" where the suffix encodes
// its ir.Role:
//
//	{key}_replace.txt   editable replacement source
//	{key}_replace.bin   compiled replacement, tagged with the source's mtime
//	{key}.txt           assembly (overrides) or disassembly export (cache)
//	{key}_bad.txt       presence-only marker disabling auto-patch
//	{key}.bin           raw original bytecode export
//
// # Staleness
//
// A compiled binary is tagged by setting its modification time to exactly
// the modification time of the source it was built from. Any later edit of
// the source changes the source's mtime and makes the pair unequal, which is
// the only staleness signal. There is no sidecar metadata.
//
// Writes go through a temp file and rename so readers on other threads never
// observe a partial artifact.
package artifact
