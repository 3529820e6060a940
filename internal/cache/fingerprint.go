package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"strconv"

	"llm_proxy/internal/providers"
)

// Fingerprint derives the cache key for a chat-completion request. It
// hashes every field that changes the upstream answer: provider, model,
// the full ordered message list, temperature, the max-token cap and the
// workspace id. Any change to message content, even whitespace, yields a
// different fingerprint; returning a cached answer for a semantically
// different prompt would be a silent correctness bug, so the serialization
// uses unambiguous field separators rather than plain concatenation.
func Fingerprint(provider, workspaceID string, req providers.ChatRequest) string {
	h := sha256.New()
	writeField(h, provider)
	writeField(h, workspaceID)
	writeField(h, req.Model)
	writeField(h, strconv.FormatFloat(req.Temperature, 'g', -1, 64))
	writeField(h, strconv.Itoa(req.MaxTokens))
	for _, m := range req.Messages {
		writeField(h, m.Role)
		writeField(h, m.Content)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// writeField length-prefixes each field so that adjacent fields can never
// collide by shifting bytes between them ("ab"+"c" vs "a"+"bc").
func writeField(h hash.Hash, s string) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], uint64(len(s)))
	h.Write(buf[:n])
	h.Write([]byte(s))
}
