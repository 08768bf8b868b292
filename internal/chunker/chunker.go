// Package chunker provides a deterministic, paragraph-aware text splitter.
package chunker

import "strings"

// DefaultMaxSize is the default maximum number of characters per chunk.
const DefaultMaxSize = 1200

// Splitter splits extracted text into size-bounded chunks. Paragraph
// boundaries are respected where possible; a paragraph longer than the
// limit is split at word boundaries. Splitting is a pure function of
// the input, so re-ingesting unchanged text yields identical chunks.
type Splitter struct {
	maxSize int
}

// Option configures the splitter.
type Option func(*Splitter)

// WithMaxSize sets the maximum chunk size in characters.
func WithMaxSize(size int) Option {
	return func(s *Splitter) {
		if size > 0 {
			s.maxSize = size
		}
	}
}

// New creates a splitter with the given options.
func New(opts ...Option) *Splitter {
	s := &Splitter{maxSize: DefaultMaxSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxSize returns the configured chunk size limit.
func (s *Splitter) MaxSize() int {
	return s.maxSize
}

// Split returns the chunks for the given text, in document order.
// Whitespace-only input produces no chunks.
func (s *Splitter) Split(text string) []string {
	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, para := range paragraphs {
		if len(para) > s.maxSize {
			// Oversized paragraph: flush what we have and hard-split it.
			flush()
			chunks = append(chunks, splitWords(para, s.maxSize)...)
			continue
		}

		// +2 for the paragraph separator when joining.
		if current.Len() > 0 && current.Len()+2+len(para) > s.maxSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return chunks
}

// splitParagraphs breaks text on blank lines and trims each paragraph.
func splitParagraphs(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")

	var paragraphs []string
	for _, para := range strings.Split(normalized, "\n\n") {
		para = strings.TrimSpace(para)
		if para != "" {
			paragraphs = append(paragraphs, para)
		}
	}
	return paragraphs
}

// splitWords splits an oversized paragraph at word boundaries. A single
// word longer than the limit is cut mid-word as a last resort.
func splitWords(para string, maxSize int) []string {
	var chunks []string
	var current strings.Builder

	for _, word := range strings.Fields(para) {
		for len(word) > maxSize {
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
			chunks = append(chunks, word[:maxSize])
			word = word[maxSize:]
		}
		if word == "" {
			continue
		}

		if current.Len() > 0 && current.Len()+1+len(word) > maxSize {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
