// Package render turns the lightly formatted text returned by the model into
// typed display segments.
//
// The transform is line oriented. Each line is matched against the rules below
// in order and the first match wins:
//
//  1. wrapped in "**...**"                     -> Header
//  2. starts with "**" and has a later "**"    -> Header (up to the last "**")
//  3. starts with "** "                        -> Header (rest of line)
//  4. starts with "• ", "* " or "- "           -> Bullet
//  5. contains a backtick                      -> alternating PlainRun / CodeRun,
//     an unmatched trailing backtick starts a PlainRun
//  6. anything else                            -> PlainLine
package render

import (
	"iter"
	"slices"
	"strings"
)

type Kind string

const (
	KindHeader    Kind = "header"
	KindBullet    Kind = "bullet"
	KindPlainRun  Kind = "plain_run"
	KindCodeRun   Kind = "code_run"
	KindPlainLine Kind = "plain_line"
)

// Segment is one display unit. Line is the zero-based input line it came
// from, so runs of the same line can be regrouped by the caller.
type Segment struct {
	Kind Kind   `json:"kind"`
	Text string `json:"text"`
	Line int    `json:"line"`
}

const bold = "**"

var bulletPrefixes = []string{"• ", "* ", "- "}

// Segments lazily yields the segments of text.
func Segments(text string) iter.Seq[Segment] {
	return func(yield func(Segment) bool) {
		for i, line := range strings.Split(text, "\n") {
			for _, seg := range renderLine(line) {
				seg.Line = i
				if !yield(seg) {
					return
				}
			}
		}
	}
}

// Block renders text eagerly.
func Block(text string) []Segment {
	return slices.Collect(Segments(text))
}

func renderLine(line string) []Segment {
	if len(line) >= 2*len(bold) && strings.HasPrefix(line, bold) && strings.HasSuffix(line, bold) {
		return []Segment{{Kind: KindHeader, Text: line[len(bold) : len(line)-len(bold)]}}
	}

	if strings.HasPrefix(line, bold) && strings.Contains(line[len(bold):], bold) {
		end := strings.LastIndex(line, bold)
		return []Segment{{Kind: KindHeader, Text: line[len(bold):end]}}
	}

	if rest, ok := strings.CutPrefix(line, bold+" "); ok {
		return []Segment{{Kind: KindHeader, Text: rest}}
	}

	for _, p := range bulletPrefixes {
		if rest, ok := strings.CutPrefix(line, p); ok {
			return []Segment{{Kind: KindBullet, Text: rest}}
		}
	}

	if strings.Contains(line, "`") {
		return splitCode(line)
	}

	return []Segment{{Kind: KindPlainLine, Text: line}}
}

// splitCode alternates plain and code runs: even pieces are plain, odd pieces
// are code. With an odd number of backticks the last piece has no closing
// backtick and stays plain, backtick included. Empty pieces are dropped; a
// line left with nothing renders as one empty PlainLine.
func splitCode(line string) []Segment {
	pieces := strings.Split(line, "`")
	unmatched := len(pieces)%2 == 0
	out := make([]Segment, 0, len(pieces))
	for i, p := range pieces {
		kind := KindPlainRun
		if i%2 == 1 {
			kind = KindCodeRun
		}
		if unmatched && i == len(pieces)-1 {
			kind, p = KindPlainRun, "`"+p
		}
		if p == "" {
			continue
		}
		out = append(out, Segment{Kind: kind, Text: p})
	}
	if len(out) == 0 {
		return []Segment{{Kind: KindPlainLine}}
	}
	return out
}
