// Package chunker splits long atom bodies into coherent sub-units before
// embedding. Structure goes first: markdown headings open sections and
// blank-line paragraph breaks bound the units within them. When an embedder
// is available, adjacent units are scored for cosine similarity and a chunk
// break is placed where the similarity drops below the threshold; without
// one, units are packed by size alone.
package chunker

import (
	"context"
	"strings"

	"github.com/Chunkys0up7/atomindex/internal/atom"
	"github.com/Chunkys0up7/atomindex/internal/embedding"
)

// Embedder scores adjacent units for boundary detection.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Options control when and how bodies are split.
type Options struct {
	// Threshold is the body length in runes above which splitting kicks in.
	// Bodies at or below it are indexed whole.
	Threshold int
	// ChunkSize is the target chunk length in runes.
	ChunkSize int
	// SimilarityThreshold is the adjacent-unit cosine similarity below which
	// SplitSemantic places a chunk break.
	SimilarityThreshold float32
}

// DefaultOptions mirror the indexer configuration defaults.
func DefaultOptions() Options {
	return Options{Threshold: 4000, ChunkSize: 1500, SimilarityThreshold: 0.8}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Threshold <= 0 {
		o.Threshold = def.Threshold
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = def.ChunkSize
	}
	if o.SimilarityThreshold <= 0 || o.SimilarityThreshold > 1 {
		o.SimilarityThreshold = def.SimilarityThreshold
	}
	return o
}

// SplitSemantic breaks an atom body into chunks using embedding similarity
// between adjacent units to place boundaries. Any embedder failure degrades
// to the structural Split; it is never fatal. Deterministic for identical
// input, model and threshold.
func SplitSemantic(ctx context.Context, a *atom.Atom, opts Options, embedder Embedder) []atom.Chunk {
	opts = opts.withDefaults()
	if runeLen(a.Body) <= opts.Threshold {
		return nil
	}
	if embedder == nil {
		return Split(a, opts)
	}

	sections := splitByHeadings(a.Body)

	// One embed call for every unit across all sections.
	type unit struct {
		section int
		text    string
	}
	var units []unit
	for si, sec := range sections {
		for _, seg := range segment(sec.content, opts.ChunkSize) {
			if strings.TrimSpace(seg) == "" {
				continue
			}
			units = append(units, unit{section: si, text: seg})
		}
	}
	if len(units) == 0 {
		return nil
	}

	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = strings.TrimSpace(u.text)
	}
	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil || len(vectors) != len(units) {
		return Split(a, opts)
	}

	var chunks []atom.Chunk
	seq := 0
	var cur []string
	curLen := 0
	curScore := float32(1)

	flush := func(section int) {
		if curLen == 0 {
			return
		}
		chunks = append(chunks, atom.Chunk{
			ParentID:      a.ID,
			ChunkID:       atom.ChunkID(a.ID, seq),
			Title:         sections[section].title,
			Text:          strings.Join(cur, "\n"),
			SequenceIndex: seq,
			BoundaryScore: curScore,
		})
		seq++
		cur = nil
		curLen = 0
	}

	for i, u := range units {
		segLen := runeLen(u.text)
		if curLen > 0 {
			prev := units[i-1]
			sim := float32(0)
			if len(vectors[i-1]) == len(vectors[i]) {
				sim = embedding.Similarity(vectors[i-1], vectors[i])
			}
			if prev.section != u.section || sim < opts.SimilarityThreshold || curLen+segLen > opts.ChunkSize {
				flush(prev.section)
				curScore = sim
				if prev.section != u.section {
					curScore = 1
				}
			}
		}
		cur = append(cur, u.text)
		curLen += segLen
	}
	if len(units) > 0 {
		flush(units[len(units)-1].section)
	}
	return chunks
}

// Split breaks an atom body into chunks on structure alone. It returns nil
// when the body is short enough to index whole. Chunk sequence indices start
// at 0 and chunk IDs follow the "<parent>#<seq>" convention.
func Split(a *atom.Atom, opts Options) []atom.Chunk {
	opts = opts.withDefaults()

	if runeLen(a.Body) <= opts.Threshold {
		return nil
	}

	sections := splitByHeadings(a.Body)

	var chunks []atom.Chunk
	seq := 0
	for _, sec := range sections {
		for _, text := range packSegments(segment(sec.content, opts.ChunkSize), opts.ChunkSize) {
			if strings.TrimSpace(text) == "" {
				continue
			}
			chunks = append(chunks, atom.Chunk{
				ParentID:      a.ID,
				ChunkID:       atom.ChunkID(a.ID, seq),
				Title:         sec.title,
				Text:          text,
				SequenceIndex: seq,
			})
			seq++
		}
	}
	return chunks
}

type section struct {
	title   string
	content string
}

// splitByHeadings cuts the body at markdown headings, carrying the heading
// path as the section title. Bodies without headings come back as a single
// untitled section.
func splitByHeadings(body string) []section {
	lines := strings.Split(body, "\n")

	var sections []section
	var current *section
	var currentLines []string
	var headingStack []string
	var headingLevels []int

	flush := func() {
		if current != nil {
			current.content = strings.Join(currentLines, "\n")
			sections = append(sections, *current)
		}
	}

	for _, line := range lines {
		level, title, ok := parseHeading(line)
		if ok {
			flush()

			for len(headingLevels) > 0 && headingLevels[len(headingLevels)-1] >= level {
				headingLevels = headingLevels[:len(headingLevels)-1]
				headingStack = headingStack[:len(headingStack)-1]
			}
			headingLevels = append(headingLevels, level)
			headingStack = append(headingStack, title)

			current = &section{title: strings.Join(headingStack, " / ")}
			currentLines = []string{line}
			continue
		}

		if current == nil {
			current = &section{}
			currentLines = nil
		}
		currentLines = append(currentLines, line)
	}
	flush()

	return sections
}

func parseHeading(line string) (int, string, bool) {
	trimmed := strings.TrimLeft(line, " ")
	if !strings.HasPrefix(trimmed, "#") {
		return 0, "", false
	}
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return 0, "", false
	}
	if len(trimmed) > level && trimmed[level] != ' ' {
		return 0, "", false
	}
	title := strings.TrimSpace(trimmed[level:])
	return level, title, true
}

// segment splits section content at blank lines, further splitting any
// paragraph that alone exceeds maxChars.
func segment(content string, maxChars int) []string {
	lines := strings.Split(content, "\n")

	var segments []string
	var segLines []string
	for _, line := range lines {
		segLines = append(segLines, line)
		if strings.TrimSpace(line) == "" {
			segments = append(segments, strings.Join(segLines, "\n"))
			segLines = nil
		}
	}
	if len(segLines) > 0 {
		segments = append(segments, strings.Join(segLines, "\n"))
	}

	var expanded []string
	for _, seg := range segments {
		if runeLen(seg) <= maxChars {
			expanded = append(expanded, seg)
			continue
		}
		expanded = append(expanded, splitByLines(seg, maxChars)...)
	}
	return expanded
}

func splitByLines(seg string, maxChars int) []string {
	var out []string
	var curLines []string
	curLen := 0
	flush := func() {
		if len(curLines) > 0 {
			out = append(out, strings.Join(curLines, "\n"))
			curLines = nil
			curLen = 0
		}
	}
	for _, line := range strings.Split(seg, "\n") {
		// A single line above the cap gets a hard rune split; line
		// boundaries alone cannot bound it.
		if runeLen(line) > maxChars {
			flush()
			out = append(out, splitByRunes(line, maxChars)...)
			continue
		}
		lineLen := runeLen(line) + 1
		if curLen+lineLen > maxChars && curLen > 0 {
			flush()
		}
		curLines = append(curLines, line)
		curLen += lineLen
	}
	flush()
	return out
}

func splitByRunes(line string, maxChars int) []string {
	runes := []rune(line)
	var out []string
	for len(runes) > maxChars {
		out = append(out, string(runes[:maxChars]))
		runes = runes[maxChars:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}

// packSegments greedily merges consecutive segments up to maxChars.
func packSegments(segments []string, maxChars int) []string {
	var out []string
	var cur []string
	curLen := 0
	for _, seg := range segments {
		segLen := runeLen(seg)
		if curLen+segLen > maxChars && curLen > 0 {
			out = append(out, strings.Join(cur, "\n"))
			cur = nil
			curLen = 0
		}
		cur = append(cur, seg)
		curLen += segLen
	}
	if curLen > 0 {
		out = append(out, strings.Join(cur, "\n"))
	}
	return out
}

func runeLen(s string) int {
	return len([]rune(s))
}
