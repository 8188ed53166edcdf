package probgen

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// ChunkThreshold is the source length above which preprocessing kicks in.
// Below it the full text is used unmodified.
const ChunkThreshold = 5000

// DefaultChunkSize is the target chunk size in characters. A chunk may
// slightly exceed it to avoid splitting a sentence.
const DefaultChunkSize = 1000

// DefaultMaxChunks bounds how many chunks survive stratified sampling.
const DefaultMaxChunks = 12

var (
	importanceMarkerRe = regexp.MustCompile(`(?i)(important|essential|key point|note that|remember|must|core|핵심|중요|주의|반드시|필수)`)
	properTermRe       = regexp.MustCompile(`[A-Z][a-z]+(?: [A-Z][a-z]+)+`)
	enumerationRe      = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+[.)])\s+`)
	emphasisRe         = regexp.MustCompile(`\*\*[^*\n]+\*\*|__[^_\n]+__|"[^"\n]{3,}"|'[^'\n]{3,}'`)
)

// SplitIntoChunks splits text on sentence boundaries and greedily packs
// sentences into chunks of at most chunkSize characters. Each chunk gets a
// monotonically increasing index and a normalized position over the document.
func SplitIntoChunks(text string, chunkSize int) []TextChunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	sentences := splitSentences(text)
	total := len(text)

	var chunks []TextChunk
	var current strings.Builder
	offset := 0
	chunkStart := 0

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, TextChunk{
			Text:     strings.TrimSpace(current.String()),
			Index:    len(chunks),
			Position: float64(chunkStart) / float64(total),
		})
		current.Reset()
	}

	for _, sentence := range sentences {
		if current.Len() > 0 && current.Len()+len(sentence)+1 > chunkSize {
			flush()
			chunkStart = offset
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
		offset += len(sentence) + 1
	}
	flush()

	for i := range chunks {
		chunks[i].Importance = CalculateImportance(chunks[i], len(chunks))
	}
	return chunks
}

// splitSentences breaks text at sentence terminators and newlines.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		terminal := r == '.' || r == '!' || r == '?'
		if terminal {
			// Only split when followed by whitespace or end of text, so
			// decimals and version numbers stay together.
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				s := strings.TrimSpace(current.String())
				if s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		} else if r == '\n' {
			s := strings.TrimSpace(current.String())
			if s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// CalculateImportance scores a chunk for relative ranking within one run.
// Domain-signal pattern hits count double, chunks in the first or last 10%
// of the document get a lead/conclusion bonus, and a small complexity term
// rewards denser prose. Scores are not normalized.
func CalculateImportance(chunk TextChunk, totalChunks int) float64 {
	score := 0.0

	signals := len(importanceMarkerRe.FindAllString(chunk.Text, -1)) +
		len(properTermRe.FindAllString(chunk.Text, -1)) +
		len(enumerationRe.FindAllString(chunk.Text, -1)) +
		len(emphasisRe.FindAllString(chunk.Text, -1))
	score += float64(signals) * 2

	if chunk.Position <= 0.1 || chunk.Position >= 0.9 {
		score += 3
	}

	words := strings.Fields(chunk.Text)
	if len(words) > 0 {
		letters := 0
		for _, w := range words {
			letters += len([]rune(w))
		}
		avgWordLen := float64(letters) / float64(len(words))
		score += avgWordLen * 0.5
	}
	score += float64(len(splitSentences(chunk.Text))) * 0.3

	return score
}

// StratifiedSample partitions chunks into contiguous front/middle/back thirds
// and draws count chunks across them. Quotas are handed out round-robin, so
// every non-empty third contributes a chunk before any third contributes a
// second one, even when count is not a multiple of three. Within a third the
// highest-importance chunks win. This keeps coverage across the whole document
// even when importance concentrates in one region. When the input already
// fits, it is returned unchanged.
func StratifiedSample(chunks []TextChunk, count int) []TextChunk {
	if count <= 0 || len(chunks) <= count {
		return chunks
	}

	third := len(chunks) / 3
	sections := [][]TextChunk{chunks[:third], chunks[third : 2*third], chunks[2*third:]}

	quotas := make([]int, len(sections))
	for remaining := count; remaining > 0; {
		progressed := false
		for i, section := range sections {
			if remaining == 0 {
				break
			}
			if quotas[i] < len(section) {
				quotas[i]++
				remaining--
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}

	sampled := make([]TextChunk, 0, count)
	for i, section := range sections {
		sampled = append(sampled, topByImportance(section, quotas[i])...)
	}
	return sampled
}

func topByImportance(section []TextChunk, n int) []TextChunk {
	if len(section) <= n {
		return append([]TextChunk(nil), section...)
	}
	sorted := append([]TextChunk(nil), section...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Importance > sorted[j].Importance
	})
	return sorted[:n]
}

// PreprocessSource applies the chunk-sample-rejoin pass to oversized source
// text. Text at or under the threshold passes through untouched. Sampled
// chunks are re-sorted by original index before joining so the reconstruction
// reads in document order.
func PreprocessSource(text string, chunkSize, maxChunks int) (string, ChunkingStats) {
	if len(text) <= ChunkThreshold {
		return text, ChunkingStats{Applied: false}
	}
	if maxChunks <= 0 {
		maxChunks = DefaultMaxChunks
	}

	chunks := SplitIntoChunks(text, chunkSize)
	sampled := StratifiedSample(chunks, maxChunks)

	ordered := append([]TextChunk(nil), sampled...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	parts := make([]string, len(ordered))
	for i, c := range ordered {
		parts[i] = c.Text
	}
	rebuilt := strings.Join(parts, "\n\n")

	return rebuilt, ChunkingStats{
		Applied:        true,
		TotalChunks:    len(chunks),
		SampledChunks:  len(sampled),
		OriginalLength: len(text),
		SampledLength:  len(rebuilt),
	}
}
