package images

import (
	"net/url"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	// w_1600, width=1600, 1600w, 1600x1600, /2000/ in CDN paths
	widthHintRe = regexp.MustCompile(`(?i)(?:\bw_|[?&](?:w|width|wid|imwidth)=|[_/-])(\d{3,4})(?:w\b|x\d{3,4}|\b)`)
	sizeWords   = map[string]int{"original": 3000, "zoom": 2500, "xxl": 2200, "xl": 1800, "large": 1600, "big": 1400, "medium": 800, "small": 400, "thumb": 150, "thumbnail": 150}
	formatRank  = map[string]int{".avif": 3, ".webp": 3, ".jpg": 3, ".jpeg": 3, ".png": 2, ".gif": 0}
)

// inferWidth guesses the pixel width an image URL serves, or 0.
func inferWidth(raw string) int {
	best := 0
	for _, m := range widthHintRe.FindAllStringSubmatch(raw, -1) {
		if w, err := strconv.Atoi(m[1]); err == nil && w > best && w <= 8000 {
			best = w
		}
	}
	if best > 0 {
		return best
	}
	lower := strings.ToLower(raw)
	for word, w := range sizeWords {
		if strings.Contains(lower, word) && w > best {
			best = w
		}
	}
	return best
}

func formatScore(raw string) int {
	u, err := url.Parse(raw)
	if err != nil {
		return 1
	}
	if f := u.Query().Get("format"); f != "" {
		if s, ok := formatRank["."+strings.ToLower(f)]; ok {
			return s
		}
	}
	if s, ok := formatRank[strings.ToLower(path.Ext(u.Path))]; ok {
		return s
	}
	return 1
}

// Rank orders candidate URLs by inferred resolution, then format, then their
// original position. Duplicates and blanks are dropped.
func Rank(candidates []string) []string {
	type scored struct {
		url    string
		width  int
		format int
		pos    int
	}
	var all []scored
	seen := map[string]bool{}
	for i, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		all = append(all, scored{url: c, width: inferWidth(c), format: formatScore(c), pos: i})
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].width != all[j].width {
			return all[i].width > all[j].width
		}
		if all[i].format != all[j].format {
			return all[i].format > all[j].format
		}
		return all[i].pos < all[j].pos
	})
	out := make([]string, len(all))
	for i, s := range all {
		out[i] = s.url
	}
	return out
}
