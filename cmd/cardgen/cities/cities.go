package cities

import (
	"math/rand"
	"strings"
)

// All is the fixed city pool for scheduled runs: direct-administered
// municipalities, provincial capitals, and the special administrative
// regions.
var All = []string{
	"北京市", "天津市", "上海市", "重庆市",
	"石家庄市", "太原市", "呼和浩特市", "沈阳市", "长春市", "哈尔滨市",
	"南京市", "杭州市", "合肥市", "福州市", "南昌市", "济南市",
	"郑州市", "武汉市", "长沙市", "广州市", "南宁市", "海口市",
	"成都市", "贵阳市", "昆明市", "拉萨市",
	"西安市", "兰州市", "西宁市", "银川市", "乌鲁木齐市",
	"香港", "澳门", "台北市",
}

// PickRandom draws a city uniformly from the pool
func PickRandom(rng *rand.Rand) string {
	if rng == nil {
		return All[rand.Intn(len(All))]
	}
	return All[rng.Intn(len(All))]
}

// slugs maps city names to filesystem/URL-safe identifiers (pinyin
// romanization, pregenerated)
var slugs = map[string]string{
	"北京市":   "beijing",
	"天津市":   "tianjin",
	"上海市":   "shanghai",
	"重庆市":   "chongqing",
	"石家庄市": "shijiazhuang",
	"太原市":   "taiyuan",
	"呼和浩特市": "huhehaote",
	"沈阳市":   "shenyang",
	"长春市":   "changchun",
	"哈尔滨市": "haerbin",
	"南京市":   "nanjing",
	"杭州市":   "hangzhou",
	"合肥市":   "hefei",
	"福州市":   "fuzhou",
	"南昌市":   "nanchang",
	"济南市":   "jinan",
	"郑州市":   "zhengzhou",
	"武汉市":   "wuhan",
	"长沙市":   "changsha",
	"广州市":   "guangzhou",
	"南宁市":   "nanning",
	"海口市":   "haikou",
	"成都市":   "chengdu",
	"贵阳市":   "guiyang",
	"昆明市":   "kunming",
	"拉萨市":   "lasa",
	"西安市":   "xian",
	"兰州市":   "lanzhou",
	"西宁市":   "xining",
	"银川市":   "yinchuan",
	"乌鲁木齐市": "wulumuqi",
	"香港":     "xianggang",
	"澳门":     "aomen",
	"台北市":   "taibei",
	"東京":     "tokyo",
	"大阪":     "osaka",
	"京都":     "kyoto",
	"横浜":     "yokohama",
	"ソウル":   "seoul",
	"釜山":     "busan",
}

// Slug returns a filesystem-safe identifier for a city name. Exact
// table lookup first, then with a 市 suffix, then a normalize fallback:
// lowercase, non-alphanumerics stripped, "unknown" if nothing is left.
func Slug(city string) string {
	if s, ok := slugs[city]; ok {
		return s
	}
	if s, ok := slugs[city+"市"]; ok {
		return s
	}

	var b strings.Builder
	for _, r := range strings.ToLower(city) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
