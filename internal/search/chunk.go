package search

import "strings"

// DefaultChunkSize is the target maximum chunk length in characters.
const DefaultChunkSize = 1200

// ChunkText splits plain text into ingestion-sized chunks. Paragraphs are
// the unit of splitting: consecutive paragraphs are packed into one chunk
// while they fit under maxChars, and a single oversized paragraph is split
// on sentence boundaries (hard-split as a last resort). Whitespace-only
// input yields no chunks.
func ChunkText(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultChunkSize
	}

	var chunks []string
	var cur strings.Builder

	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if len(para) > maxChars {
			flush()
			chunks = append(chunks, splitLongParagraph(para, maxChars)...)
			continue
		}

		if cur.Len() > 0 && cur.Len()+2+len(para) > maxChars {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	flush()

	return chunks
}

// splitLongParagraph breaks one oversized paragraph on sentence boundaries,
// falling back to a hard character split for sentences that alone exceed
// maxChars.
func splitLongParagraph(para string, maxChars int) []string {
	var chunks []string
	var cur strings.Builder

	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}

	for _, sentence := range splitSentences(para) {
		if len(sentence) > maxChars {
			flush()
			for len(sentence) > maxChars {
				chunks = append(chunks, strings.TrimSpace(sentence[:maxChars]))
				sentence = sentence[maxChars:]
			}
			sentence = strings.TrimSpace(sentence)
			if sentence == "" {
				continue
			}
		}
		if cur.Len() > 0 && cur.Len()+1+len(sentence) > maxChars {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString(" ")
		}
		cur.WriteString(sentence)
	}
	flush()

	return chunks
}

// splitSentences splits on sentence-terminating punctuation followed by a
// space. Crude but sufficient for chunk sizing; the punctuation stays with
// its sentence.
func splitSentences(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s)-1; i++ {
		if (s[i] == '.' || s[i] == '!' || s[i] == '?') && s[i+1] == ' ' {
			out = append(out, strings.TrimSpace(s[start:i+1]))
			start = i + 2
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}
