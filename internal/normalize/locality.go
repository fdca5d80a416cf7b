package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/width"
)

var (
	lotNoRe       = regexp.MustCompile(`([0-9]+)番地の([0-9]+)`)
	banGoRe       = regexp.MustCompile(`([0-9]+)番([0-9]+)号?`)
	katakanaNoRe  = regexp.MustCompile(`([0-9]|番地)ノ([0-9])`)
	markerRe      = regexp.MustCompile(`([市区町村])大?字`)
	localityRe    = regexp.MustCompile(`^(.*?[市区町村])(?:大字|字)?(\p{Han}+)[0-9]`)
	afterBanchiRe = regexp.MustCompile(`[0-9]+番地.*$`)
	afterChomeRe  = regexp.MustCompile(`[0-9]+丁目.*$`)
	afterAzaRe    = regexp.MustCompile(`字.+$`)
	municipalRe   = regexp.MustCompile(`^((?:北海道|東京都|(?:京都|大阪)府|.{2,3}県).+?[市区町村])`)
)

// localityMarker handles lot notation and locality markers. Candidates run
// from the most specific (full address in hyphen form) to the least
// (prefecture and municipality only).
func localityMarker(addr string) []string {
	folded := width.Fold.String(addr)

	canonical := katakanaNoRe.ReplaceAllString(folded, "${1}の${2}")
	canonical = lotNoRe.ReplaceAllString(canonical, "${1}-${2}")
	canonical = banGoRe.ReplaceAllString(canonical, "${1}-${2}")
	canonical = strings.ReplaceAll(canonical, "番地", "")

	cands := []string{
		folded,
		canonical,
		markerRe.ReplaceAllString(canonical, "${1}"),
	}

	if m := localityRe.FindStringSubmatch(folded); m != nil {
		cands = append(cands, m[1]+m[2])
	}
	if v := afterBanchiRe.ReplaceAllString(folded, ""); v != folded && runeLen(v) > 10 {
		cands = append(cands, v)
	}
	if v := afterChomeRe.ReplaceAllString(folded, ""); v != folded && runeLen(v) > 10 {
		cands = append(cands, v)
	}
	if v := afterAzaRe.ReplaceAllString(folded, ""); v != folded && runeLen(v) > 8 {
		cands = append(cands, v)
	}
	if m := municipalRe.FindStringSubmatch(folded); m != nil {
		cands = append(cands, m[1])
	}
	return cands
}
