// Package tags separates control tags embedded by the model from the text
// shown to people.
package tags

import (
	"regexp"
	"strings"
)

var (
	boughtRe    = regexp.MustCompile(`(?i)\[\s*bought\s*\]`)
	notBoughtRe = regexp.MustCompile(`(?i)\[\s*not\s*bought\s*\]`)
	priceRe     = regexp.MustCompile(`(?i)\[\s*price\s*:\s*([^\]]*?)\s*\]`)
	anyTagRe    = regexp.MustCompile(`\[[^\]]*\]`)

	lineBreakRe  = regexp.MustCompile(`[^\S\n]*\n[^\S\n]*`)
	spaceRunRe   = regexp.MustCompile(`[^\S\n]+`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// Cleaned is the display form of a model reply.
type Cleaned struct {
	Text      string `json:"text"`
	Bought    bool   `json:"boughtTag"`
	NotBought bool   `json:"notBoughtTag"`
	Price     string `json:"price,omitempty"`
}

// Clean removes every bracketed tag from raw and reports which purchase tags
// were present. Clean(Clean(x).Text).Text == Clean(x).Text.
func Clean(raw string) Cleaned {
	out := Cleaned{
		Bought:    boughtRe.MatchString(raw),
		NotBought: notBoughtRe.MatchString(raw),
	}
	if m := priceRe.FindStringSubmatch(raw); m != nil {
		out.Price = m[1]
	}
	out.Text = Strip(raw)
	return out
}

// Strip returns raw without tags and with whitespace normalised.
func Strip(raw string) string {
	s := anyTagRe.ReplaceAllString(raw, "")
	s = lineBreakRe.ReplaceAllString(s, "\n")
	s = spaceRunRe.ReplaceAllString(s, " ")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Outcome names the purchase decision carried by the tags, if any.
// A reply carrying both tags is reported as not bought.
func (c Cleaned) Outcome() string {
	switch {
	case c.NotBought:
		return "not_bought"
	case c.Bought:
		return "bought"
	default:
		return ""
	}
}
