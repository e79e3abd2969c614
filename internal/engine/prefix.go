package engine

import "swapkv/internal/model"

// MatchesPrefix reports whether incoming, submitted at offset, is consistent with the
// already accepted original: no gap before offset, and the overlapping part of incoming
// equals original[offset:]. Incoming may extend past the end of original.
func MatchesPrefix(original model.Chunks, offset uint64, incoming model.Chunks) bool {
	n := uint64(len(original))
	if n < offset {
		return false
	}
	if n > offset+uint64(len(incoming)) {
		return false
	}
	return original[offset:].Equal(incoming[:n-offset])
}

// resume returns original[:offset] followed by incoming in a fresh slice.
func resume(original model.Chunks, offset uint64, incoming model.Chunks) model.Chunks {
	out := make(model.Chunks, 0, int(offset)+len(incoming))
	out = append(out, original[:offset]...)
	return append(out, incoming.Clone()...)
}
