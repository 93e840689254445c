package steam

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// CraftOption is one entry of the badge-creation dropdown: a game whose
// booster pack can be crafted for a gem cost, possibly with an embedded
// cooldown hint.
type CraftOption struct {
	ItemID           string
	Name             string
	CraftCostGems    int
	NextCreationTime string // display format, empty when available now
}

type craftOptionJSON struct {
	AppID           json.Number `json:"appid"`
	Name            string      `json:"name"`
	Price           string      `json:"price"`
	Unavailable     bool        `json:"unavailable"`
	AvailableAtTime string      `json:"available_at_time"`
}

var optionTagPattern = regexp.MustCompile(
	`<option[^>]*\bvalue="(\d+)"[^>]*?(?:\bdata-available-at="([^"]*)")?[^>]*>(.+?)\s*\(([\d,]+) gems?\)</option>`)

// ParseCraftOptions turns a dump of the badge-creation option list into
// craft options keyed by item id. The format is auto-detected by line
// count: a single line is the JSON variant embedded in the page script, a
// multi-line blob is the rendered HTML dropdown.
func ParseCraftOptions(blob string) (map[string]CraftOption, error) {
	trimmed := strings.TrimSpace(blob)
	if trimmed == "" {
		return nil, fmt.Errorf("empty craft option blob")
	}
	if len(strings.Split(trimmed, "\n")) == 1 {
		return parseCraftOptionsJSON(trimmed)
	}
	return parseCraftOptionsHTML(trimmed)
}

func parseCraftOptionsJSON(line string) (map[string]CraftOption, error) {
	var raw []craftOptionJSON
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, fmt.Errorf("decode craft option JSON: %w", err)
	}
	out := make(map[string]CraftOption, len(raw))
	for _, r := range raw {
		cost, err := strconv.Atoi(r.Price)
		if err != nil {
			// A malformed cost degrades the entry, not the whole parse.
			continue
		}
		opt := CraftOption{
			ItemID:        r.AppID.String(),
			Name:          r.Name,
			CraftCostGems: cost,
		}
		if r.Unavailable {
			opt.NextCreationTime = r.AvailableAtTime
		}
		out[opt.ItemID] = opt
	}
	return out, nil
}

func parseCraftOptionsHTML(blob string) (map[string]CraftOption, error) {
	matches := optionTagPattern.FindAllStringSubmatch(blob, -1)
	if matches == nil {
		return nil, fmt.Errorf("no <option> entries found in craft option dump")
	}
	out := make(map[string]CraftOption, len(matches))
	for _, m := range matches {
		cost, err := strconv.Atoi(strings.ReplaceAll(m[4], ",", ""))
		if err != nil {
			continue
		}
		out[m[1]] = CraftOption{
			ItemID:           m[1],
			Name:             strings.TrimSpace(m[3]),
			CraftCostGems:    cost,
			NextCreationTime: m[2],
		}
	}
	return out, nil
}
