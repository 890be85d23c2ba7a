package extract

import (
	"regexp"
	"strings"

	"watch-harvest/pkg/models"
)

type movementLabel struct {
	field string
	re    *regexp.Regexp
}

func labelRe(alternatives ...string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)^[ \t]*(?:` + strings.Join(alternatives, "|") + `)\b[ \t]*:?\s*([^\n]{1,80})`)
}

// longer labels come first so "total diameter" wins over "diameter"
var movementLabels = []movementLabel{
	{"name", labelRe("calibre", "caliber", "movement name")},
	{"mechanism", labelRe("mechanism", "movement type", "winding")},
	{"totalDiameter", labelRe("total diameter", "diameter")},
	{"frequency", labelRe("frequency of the balance", "balance frequency", "frequency")},
	{"numberOfJewels", labelRe("number of jewels", "jewels")},
	{"powerReserve", labelRe("power[ -]reserve")},
	{"numberOfParts", labelRe("number of parts", "number of components", "parts")},
	{"thickness", labelRe("total thickness", "thickness", "height")},
}

var mechanismRe = regexp.MustCompile(`(?i)\b(self-winding|automatic winding|automatic|hand-wound|manual winding|manually wound|quartz)\b`)

const functionMaxChars = 120

// parseMovement fills a MovementSpec from the movement block. Labeled
// sub-fields win; text before the first label becomes the functions list.
func parseMovement(b *specBlock) models.MovementSpec {
	mv := models.NewMovementSpec()
	if b == nil {
		return mv
	}

	firstLabel := len(b.Raw)
	values := map[string]string{}
	for _, l := range movementLabels {
		loc := l.re.FindStringSubmatchIndex(b.Raw)
		if loc == nil {
			continue
		}
		v := strings.Trim(strings.TrimSpace(b.Raw[loc[2]:loc[3]]), ":;,")
		if v == "" {
			continue
		}
		values[l.field] = v
		if loc[0] < firstLabel {
			firstLabel = loc[0]
		}
	}

	set := func(dst *string, key string) {
		if v, ok := values[key]; ok {
			*dst = v
		}
	}
	set(&mv.Name, "name")
	set(&mv.Mechanism, "mechanism")
	set(&mv.TotalDiameter, "totalDiameter")
	set(&mv.Frequency, "frequency")
	set(&mv.NumberOfJewels, "numberOfJewels")
	set(&mv.PowerReserve, "powerReserve")
	set(&mv.NumberOfParts, "numberOfParts")
	set(&mv.Thickness, "thickness")

	mv.Functions = splitFragments(b.Raw[:firstLabel], 0, functionMaxChars)

	if mv.Name == models.NotAvailable {
		head := strings.TrimSpace(b.Heading)
		if len(head) > len("movement") {
			if rest := strings.Trim(head[len("movement"):], " :-–"); rest != "" {
				mv.Name = rest
			}
		}
	}
	if mv.Mechanism == models.NotAvailable {
		if m := mechanismRe.FindString(b.Raw); m != "" {
			mv.Mechanism = strings.ToLower(m)
		}
	}
	mv.Normalize()
	return mv
}
