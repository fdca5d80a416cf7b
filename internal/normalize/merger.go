package normalize

import "strings"

// mergers maps pre-merger municipality names to their successors. Order
// matters: candidates are emitted in table order.
var mergers = []struct{ old, new string }{
	// 奥州市 dropped its 区 designators
	{"奥州市水沢区", "奥州市水沢"},
	{"奥州市江刺区", "奥州市江刺"},
	{"奥州市前沢区", "奥州市前沢"},
	{"奥州市胆沢区", "奥州市胆沢"},
	{"奥州市衣川区", "奥州市衣川"},
	// 愛知県
	{"愛知郡長久手町", "長久手市"},
	{"西春日井郡新川町", "清須市"},
	{"海部郡七宝町", "あま市"},
	{"海部郡美和町", "あま市"},
	{"海部郡甚目寺町", "あま市"},
	{"西春日井郡春日町", "清須市"},
	{"西春日井郡西枇杷島町", "清須市"},
	// 長崎県
	{"北松浦郡江迎町", "佐世保市江迎町"},
	{"北松浦郡鹿町町", "佐世保市鹿町町"},
	{"西彼杵郡三和町", "長崎市三和町"},
	{"西彼杵郡野母崎町", "長崎市野母崎町"},
	// 宮城県
	{"黒川郡富谷町", "富谷市"},
	// 福島県
	{"安達郡本宮町", "本宮市"},
	// 茨城県
	{"稲敷郡茎崎町", "つくば市茎崎"},
	// 栃木県
	{"上都賀郡粟野町", "鹿沼市粟野"},
	{"河内郡河内町", "宇都宮市河内町"},
	// 千葉県
	{"山武郡成東町", "山武市成東"},
	// 新潟県
	{"北蒲原郡豊浦町", "新発田市豊浦町"},
	{"北蒲原郡紫雲寺町", "新発田市紫雲寺"},
	// 山梨県
	{"東八代郡石和町", "笛吹市石和町"},
	// 長野県
	{"更級郡大岡村", "長野市大岡"},
	// 奈良県
	{"北葛城郡新庄町", "葛城市新庄"},
	// 岡山県
	{"御津郡御津町", "岡山市北区御津"},
	// 香川県
	{"仲多度郡仲南町", "まんのう町"},
	// 熊本県
	{"下益城郡富合町", "熊本市南区富合町"},
	{"下益城郡城南町", "熊本市南区城南町"},
	// 鹿児島県
	{"揖宿郡頴娃町", "南九州市頴娃町"},
}

func mergerMapping(addr string) []string {
	var cands []string
	for _, m := range mergers {
		if strings.Contains(addr, m.old) {
			cands = append(cands, strings.ReplaceAll(addr, m.old, m.new))
		}
	}
	// 高そね in 高知市 arrives as 高＿ね from a lossy export.
	if strings.Contains(addr, "＿") {
		cands = append(cands, strings.ReplaceAll(addr, "＿", "そ"))
	}
	return cands
}
