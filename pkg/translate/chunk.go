package translate

import "strings"

// SplitIntoChunks splits text into chunks of at most maxChunkSize bytes,
// breaking at paragraph boundaries first and sentence boundaries when a
// single paragraph is too large.
func SplitIntoChunks(text string, maxChunkSize int) []string {
	if len(text) <= maxChunkSize {
		return []string{text}
	}

	var chunks []string
	currentChunk := ""

	// Split by paragraphs first (double newline)
	paragraphs := strings.Split(text, "\n\n")

	for _, para := range paragraphs {
		// If adding this paragraph would exceed chunk size, save current chunk and start new one
		if len(currentChunk)+len(para)+2 > maxChunkSize && currentChunk != "" {
			chunks = append(chunks, currentChunk)
			currentChunk = ""
		}

		if len(para) > maxChunkSize {
			if currentChunk != "" {
				chunks = append(chunks, currentChunk)
				currentChunk = ""
			}

			for _, sentence := range splitBySentences(para) {
				if len(currentChunk)+len(sentence)+1 > maxChunkSize && currentChunk != "" {
					chunks = append(chunks, currentChunk)
					currentChunk = ""
				}
				if currentChunk != "" {
					currentChunk += " "
				}
				currentChunk += sentence
			}
		} else {
			if currentChunk != "" {
				currentChunk += "\n\n"
			}
			currentChunk += para
		}
	}

	if currentChunk != "" {
		chunks = append(chunks, currentChunk)
	}

	return chunks
}

// splitBySentences splits text by sentence boundaries (., !, ? followed by whitespace).
func splitBySentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i := 0; i < len(text); i++ {
		c := text[i]
		current.WriteByte(c)

		if (c == '.' || c == '!' || c == '?') && i+1 < len(text) {
			next := text[i+1]
			if next == ' ' || next == '\n' || next == '\t' {
				sentences = append(sentences, strings.TrimSpace(current.String()))
				current.Reset()
			}
		}
	}

	if rest := strings.TrimSpace(current.String()); rest != "" {
		sentences = append(sentences, rest)
	}

	return sentences
}

// joinChunks reassembles translated chunks with a blank line between them.
// A paragraph larger than the chunk size comes back as several paragraphs.
func joinChunks(chunks []string) string {
	return strings.Join(chunks, "\n\n")
}
