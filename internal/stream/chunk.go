package stream

// DefaultChunkSize is the content delta size used when configuration
// does not override it.
const DefaultChunkSize = 100

// Chunks slices content into rune-safe pieces of at most size runes,
// in order, with no gaps or overlaps. Bengali text must never be cut
// mid-code-point, so the split is by rune, not by byte. Empty content
// yields no chunks.
func Chunks(content string, size int) []string {
	if content == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}

	runes := []rune(content)
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
