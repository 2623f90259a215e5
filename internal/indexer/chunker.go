package indexer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

const (
	// DefaultChunkSize is the maximum chunk length in runes.
	DefaultChunkSize = 500
	// DefaultChunkOverlap is the maximum number of runes carried into the next chunk.
	DefaultChunkOverlap = 100
	paragraphSeparator  = "\n\n"
)

// Splitter cuts markdown text into overlapping chunks of bounded size.
// Splitting is deterministic: the same text and parameters always give the same chunks.
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
	parser       goldmark.Markdown
}

// NewSplitter creates a Splitter. Overlap must be smaller than size.
func NewSplitter(chunkSize, chunkOverlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", chunkSize, chunkOverlap)
	}
	return &Splitter{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		parser: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		),
	}, nil
}

// unit is an indivisible piece of text. sep goes between it and the previous unit.
type unit struct {
	text string
	sep  string
}

// Split returns the chunks of text, empty for blank text.
//
// Markdown blocks (paragraphs, lists, fenced code, headings) are kept whole when they fit.
// Larger blocks fall back to sentences, and sentences that still do not fit are cut at
// word boundaries. Units are packed greedily and every chunk after the first starts with
// the trailing units of the previous chunk, up to ChunkOverlap runes.
func (s *Splitter) Split(content string) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if runeLen(content) <= s.ChunkSize {
		return []string{content}
	}

	var units []unit
	for i, block := range s.blocks(content) {
		sep := paragraphSeparator
		if i == 0 {
			sep = ""
		}
		if runeLen(block) <= s.ChunkSize {
			units = append(units, unit{text: block, sep: sep})
			continue
		}
		for j, piece := range s.splitOversized(block) {
			if j > 0 {
				sep = ""
			}
			units = append(units, unit{text: piece, sep: sep})
		}
	}

	return s.pack(units)
}

// blocks partitions content at the start of each top-level markdown block.
func (s *Splitter) blocks(content string) []string {
	source := []byte(content)
	doc := s.parser.Parser().Parse(text.NewReader(source))

	starts := []int{0}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		start, ok := blockStart(n, source)
		if !ok || start <= starts[len(starts)-1] {
			continue
		}
		starts = append(starts, start)
	}

	blocks := make([]string, 0, len(starts))
	for i, start := range starts {
		end := len(source)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		if block := strings.TrimSpace(content[start:end]); block != "" {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

// blockStart returns the offset of the line a block begins on, markers included.
// Blocks without source lines of their own (thematic breaks, empty fences) report false
// and stay attached to the preceding block.
func blockStart(n ast.Node, source []byte) (int, bool) {
	if n.Type() != ast.TypeBlock {
		return 0, false
	}

	if lines := n.Lines(); lines != nil && lines.Len() > 0 {
		start := lineStart(source, lines.At(0).Start)
		if _, fenced := n.(*ast.FencedCodeBlock); fenced && start > 0 {
			// Lines begin after the opening fence
			start = lineStart(source, start-1)
		}
		return start, true
	}

	if _, fenced := n.(*ast.FencedCodeBlock); fenced {
		return 0, false
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if start, ok := blockStart(c, source); ok {
			return start, true
		}
	}
	return 0, false
}

func lineStart(source []byte, pos int) int {
	for pos > 0 && source[pos-1] != '\n' {
		pos--
	}
	return pos
}

// splitOversized splits a block into sentences, hard-splitting sentences longer than ChunkSize.
func (s *Splitter) splitOversized(block string) []string {
	var pieces []string
	for _, sentence := range splitSentences(block) {
		if runeLen(sentence) <= s.ChunkSize {
			pieces = append(pieces, sentence)
			continue
		}
		pieces = append(pieces, hardSplit(sentence, s.ChunkSize)...)
	}
	return pieces
}

// splitSentences cuts after sentence-ending punctuation followed by whitespace, and after newlines.
// Trailing whitespace stays with the sentence, so concatenating the result gives back s.
func splitSentences(s string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(s); {
		r, w := utf8.DecodeRuneInString(s[i:])
		i += w

		boundary := r == '\n'
		if (r == '.' || r == '!' || r == '?') && i < len(s) {
			next, _ := utf8.DecodeRuneInString(s[i:])
			boundary = unicode.IsSpace(next)
		}
		if !boundary {
			continue
		}

		for i < len(s) {
			next, w := utf8.DecodeRuneInString(s[i:])
			if !unicode.IsSpace(next) {
				break
			}
			i += w
		}
		sentences = append(sentences, s[start:i])
		start = i
	}
	if start < len(s) {
		sentences = append(sentences, s[start:])
	}
	return sentences
}

// hardSplit cuts s into windows of at most size runes, breaking after the last space
// in the second half of a window when there is one.
func hardSplit(s string, size int) []string {
	runes := []rune(s)
	var parts []string
	for len(runes) > size {
		cut := size
		for i := size - 1; i >= size/2; i-- {
			if unicode.IsSpace(runes[i]) {
				cut = i + 1
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

// pack greedily fills chunks with units. Every unit is at most ChunkSize runes.
func (s *Splitter) pack(units []unit) []string {
	var (
		chunks  []string
		current []unit
	)
	for _, u := range units {
		if len(current) > 0 && joinedLen(append(current[:len(current):len(current)], u)) > s.ChunkSize {
			chunks = appendChunk(chunks, current)
			current = s.overlapTail(current, u)
		}
		current = append(current, u)
	}
	if len(current) > 0 {
		chunks = appendChunk(chunks, current)
	}
	return chunks
}

// overlapTail returns the trailing units of prev that fit in ChunkOverlap runes and
// still leave room for next.
func (s *Splitter) overlapTail(prev []unit, next unit) []unit {
	if s.ChunkOverlap == 0 {
		return nil
	}

	start := len(prev)
	for i := len(prev) - 1; i >= 0; i-- {
		tail := prev[i:]
		if joinedLen(tail) > s.ChunkOverlap {
			break
		}
		candidate := append(tail[:len(tail):len(tail)], next)
		if joinedLen(candidate) > s.ChunkSize {
			break
		}
		start = i
	}

	tail := make([]unit, len(prev)-start)
	copy(tail, prev[start:])
	return tail
}

// joinedLen is the rune length of units joined with their separators, the first one dropped.
func joinedLen(units []unit) int {
	n := 0
	for i, u := range units {
		if i > 0 {
			n += runeLen(u.sep)
		}
		n += runeLen(u.text)
	}
	return n
}

func appendChunk(chunks []string, units []unit) []string {
	var b strings.Builder
	for i, u := range units {
		if i > 0 {
			b.WriteString(u.sep)
		}
		b.WriteString(u.text)
	}
	if chunk := strings.TrimSpace(b.String()); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
