package normalize

import (
	"regexp"
	"strings"
)

// Kyoto addresses embed street directions (烏丸通御池下る) that the service
// does not index. These patterns reduce them to ward + town.
var (
	kyotoWardRe = regexp.MustCompile(`^(.*京都府京都市[^区]+区)(.*)$`)

	// first town-like run that is not part of a street direction
	kyotoTownRe = regexp.MustCompile(`^.*?([^0-9０-９通入上下東西るル]+町)`)

	// town immediately followed by a lot number
	kyotoNumberedTownRe = regexp.MustCompile(`^.*?(\p{Han}+町)[0-9０-９]`)
	kyotoDirectionRe    = regexp.MustCompile(`^.*?(入|ル)`)

	// district name before N丁目
	kyotoChomeRe = regexp.MustCompile(`(\p{Han}{2,})[0-9０-９]+丁目`)

	kyotoAnyTownRe = regexp.MustCompile(`\p{Han}{2,}町`)
)

func streetConvention(addr string) []string {
	if strings.HasPrefix(addr, "京都市") {
		addr = "京都府" + addr
	}
	m := kyotoWardRe.FindStringSubmatch(addr)
	if m == nil {
		return nil
	}
	ward, rest := m[1], m[2]

	var cands []string
	if t := kyotoTownRe.FindStringSubmatch(rest); t != nil {
		cands = append(cands, ward+t[1])
	}
	if t := kyotoNumberedTownRe.FindStringSubmatch(rest); t != nil {
		town := kyotoDirectionRe.ReplaceAllString(t[1], "")
		if runeLen(town) > 1 {
			cands = append(cands, ward+town)
		}
	}
	if t := kyotoChomeRe.FindStringSubmatch(rest); t != nil {
		cands = append(cands, ward+t[1])
	}
	for _, town := range kyotoAnyTownRe.FindAllString(rest, -1) {
		if !strings.Contains(town, "通") && runeLen(town) >= 3 {
			cands = append(cands, ward+town)
		}
	}
	return append(cands, ward)
}
