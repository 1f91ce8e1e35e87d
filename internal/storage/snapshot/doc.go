// Package snapshot persists the respkv key space to a single file.
//
// File layout:
//
//	[magic:8 "RESPKV01"]
//	[HeaderLen:4][HeaderJSON:HeaderLen]
//	[DataLen:8][Data:DataLen]   (JSON entries, or sealed bytes)
//	[checksum:32 SHA-256 of all bytes above]
//
// Entries carry the key, the value variant, the payload and the absolute
// deadline in Unix milliseconds. Saves are atomic: temp file, fsync,
// rename, directory fsync. A file that fails any check refuses to load.
//
// When an encryption key is configured the data block is sealed with
// ChaCha20-Poly1305 under a per-file key derived by HKDF-SHA256 from the
// configured secret and a random salt stored in the header.
package snapshot
