package nlp

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Whitespace classes include \p{Zs} so the ideographic space U+3000 counts.
var (
	cleanPatterns = []*regexp.Regexp{
		regexp.MustCompile(`#.*`),
		regexp.MustCompile(`第.*章.*`),
		regexp.MustCompile(`\[\d+\]`),
		regexp.MustCompile(`[\s\p{Zs}]+`),
	}
	sentenceBoundary = regexp.MustCompile(`[。！？；]`)
	headingMarks     = regexp.MustCompile(`[#\s\p{Zs}]`)
	chapterNumber    = regexp.MustCompile(`第[一二三四五六七八九十0-9]+章`)
)

// synonym is an ordered normalization rule.
type synonym struct {
	pattern *regexp.Regexp
	replace string
}

// DefaultSynonyms maps English operation names onto the domain vocabulary.
var DefaultSynonyms = [][2]string{
	{"enqueue", "入队"},
	{"dequeue", "出队"},
	{"push", "入栈"},
	{"pop", "出栈"},
	{"LIFO", "后进先出"},
	{"FIFO", "先进先出"},
}

// Preprocessor cleans raw lines and splits them into sentences.
type Preprocessor struct {
	synonyms []synonym
}

// NewPreprocessor creates a preprocessor with the given synonym pairs; nil
// selects DefaultSynonyms.
func NewPreprocessor(pairs [][2]string) *Preprocessor {
	if pairs == nil {
		pairs = DefaultSynonyms
	}
	p := &Preprocessor{}
	for _, pair := range pairs {
		p.synonyms = append(p.synonyms, synonym{
			pattern: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(pair[0])),
			replace: pair[1],
		})
	}
	return p
}

// Clean normalizes synonyms and strips headings, chapter titles, citation
// marks and whitespace runs.
func (p *Preprocessor) Clean(text string) string {
	for _, s := range p.synonyms {
		text = s.pattern.ReplaceAllLiteralString(text, s.replace)
	}
	for _, re := range cleanPatterns {
		text = re.ReplaceAllLiteralString(text, " ")
	}
	return strings.TrimSpace(text)
}

// Split cuts text on sentence-final punctuation and drops fragments of at
// most one character.
func (p *Preprocessor) Split(text string) []string {
	var out []string
	for _, part := range sentenceBoundary.Split(text, -1) {
		part = strings.TrimSpace(part)
		if utf8.RuneCountInString(part) > 1 {
			out = append(out, part)
		}
	}
	return out
}

// Sentences is Clean followed by Split.
func (p *Preprocessor) Sentences(line string) []string {
	return p.Split(p.Clean(line))
}

// IsHeading reports whether a trimmed line is a section heading.
func IsHeading(line string) bool {
	return strings.HasPrefix(line, "#") ||
		(strings.HasPrefix(line, "第") && strings.Contains(line, "章"))
}

// HeadingTopic extracts the topic of a heading line, or "" when nothing but
// markers and the chapter number remain.
func HeadingTopic(line string) string {
	topic := headingMarks.ReplaceAllString(line, "")
	return chapterNumber.ReplaceAllString(topic, "")
}
