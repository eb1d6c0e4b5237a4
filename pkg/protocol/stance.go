// Package protocol parses the inline text tags personas emit: stance tags in
// discussion turns and judge verdict tags in debate judging.
package protocol

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Stance is a persona's position on a discussion topic.
type Stance string

// Stances in majority tie-break order.
const (
	StanceAgree    Stance = "agree"
	StanceDisagree Stance = "disagree"
	StanceNeutral  Stance = "neutral"
	StanceCautious Stance = "cautious"
)

// Stances lists every stance in tie-break order.
func Stances() []Stance {
	return []Stance{StanceAgree, StanceDisagree, StanceNeutral, StanceCautious}
}

// Label returns the Korean label used inside prompts.
func (s Stance) Label() string {
	switch s {
	case StanceAgree:
		return "찬성"
	case StanceDisagree:
		return "반대"
	case StanceCautious:
		return "신중/유보"
	default:
		return "중립"
	}
}

// Valid reports whether s is one of the four stances.
func (s Stance) Valid() bool {
	switch s {
	case StanceAgree, StanceDisagree, StanceNeutral, StanceCautious:
		return true
	}
	return false
}

// Source records how a stance was determined.
type Source int

const (
	// SourceDefault means nothing matched and the stance defaulted to neutral.
	SourceDefault Source = iota
	// SourceTag means an explicit tag or label was found and stripped.
	SourceTag
	// SourceKeyword means the stance was inferred from vocabulary.
	SourceKeyword
)

func (s Source) String() string {
	switch s {
	case SourceTag:
		return "tag"
	case SourceKeyword:
		return "keyword"
	default:
		return "default"
	}
}

// StanceResult is the outcome of ParseStance.
type StanceResult struct {
	Stance Stance
	// Clean is the text with the matched tag removed, trimmed.
	Clean  string
	Source Source
}

// Matched reports whether a tag was found in the text.
func (r StanceResult) Matched() bool {
	return r.Source == SourceTag
}

//nolint:gochecknoglobals // compiled once
var (
	labelStances = map[string]Stance{
		"찬성": StanceAgree,
		"반대": StanceDisagree,
		"중립": StanceNeutral,
		"신중": StanceCautious,
		"유보": StanceCautious,
	}

	// Tried in order; group 1 is the label.
	tagPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\[STANCE:[\s\p{Zs}]*(찬성|반대|중립|신중|유보)[\s\p{Zs}]*\]`),
		regexp.MustCompile(`(?i)\*?\*?\[?[\s\p{Zs}]*STANCE[\s\p{Zs}]*:[\s\p{Zs}]*(찬성|반대|중립|신중|유보)[\s\p{Zs}]*\]?\*?\*?`),
		regexp.MustCompile(`(?m)^[\s\p{Zs}]*\*?\*?[\s\p{Zs}]*\(?[\s\p{Zs}]*(찬성|반대|중립|신중)[\s\p{Zs}]*\)?[\s\p{Zs}]*\*?\*?`),
		regexp.MustCompile(`입장[\s\p{Zs}]*[:：][\s\p{Zs}]*(찬성|반대|중립|신중)`),
	}

	keywordPatterns = []struct {
		re     *regexp.Regexp
		stance Stance
	}{
		{regexp.MustCompile(`적극[\s\p{Zs}]*(찬성|동의|지지)|전적으로[\s\p{Zs}]*동의|강력히[\s\p{Zs}]*찬성`), StanceAgree},
		{regexp.MustCompile(`찬성합니다|동의합니다|지지합니다|좋은[\s\p{Zs}]*방향`), StanceAgree},
		{regexp.MustCompile(`반대합니다|반대[\s\p{Zs}]*입장|동의할[\s\p{Zs}]*수[\s\p{Zs}]*없|반대하|부정적`), StanceDisagree},
		{regexp.MustCompile(`신중하게|신중히|우려|리스크|검토가[\s\p{Zs}]*필요|재고`), StanceCautious},
	}
)

// ParseStance extracts a stance from a finished discussion turn. Only the
// first match of the first matching tag pattern is removed from the text.
func ParseStance(text string) StanceResult {
	for _, re := range tagPatterns {
		loc := re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		label := text[loc[2]:loc[3]]
		stance, ok := labelStances[label]
		if !ok {
			stance = StanceNeutral
		}
		clean := text[:loc[0]] + text[loc[1]:]
		return StanceResult{Stance: stance, Clean: strings.TrimSpace(clean), Source: SourceTag}
	}

	clean := strings.TrimSpace(text)
	for _, kw := range keywordPatterns {
		if kw.re.MatchString(text) {
			return StanceResult{Stance: kw.stance, Clean: clean, Source: SourceKeyword}
		}
	}
	return StanceResult{Stance: StanceNeutral, Clean: clean, Source: SourceDefault}
}

const (
	stanceKeyword = "STANCE"
	// A tag that has not closed within this many runes is treated as text.
	maxPendingRunes = 24
)

// PendingTag reports whether a partially streamed turn so far consists only
// of an unfinished stance tag, which should not be displayed yet.
func PendingTag(text string) bool {
	t := strings.TrimLeftFunc(text, func(r rune) bool { return unicode.IsSpace(r) || r == '*' })
	if !strings.HasPrefix(t, "[") || strings.Contains(t, "]") {
		return false
	}
	if utf8.RuneCountInString(t) > maxPendingRunes {
		return false
	}
	rest := strings.ToUpper(strings.TrimLeftFunc(t[1:], unicode.IsSpace))
	if len(rest) <= len(stanceKeyword) {
		return strings.HasPrefix(stanceKeyword, rest)
	}
	return strings.HasPrefix(rest, stanceKeyword)
}

// DisplayText is what a live view shows for a partially streamed discussion
// turn: blank while the stance tag is still arriving, the cleaned text after.
func DisplayText(partial string) string {
	if PendingTag(partial) {
		return ""
	}
	return ParseStance(partial).Clean
}
