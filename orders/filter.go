package orders

import (
	"regexp"
	"slices"
	"strings"

	"github.com/lewismc/earthdata-search/cmr"
	"github.com/lewismc/earthdata-search/echo"
)

type DroppedItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SupportedOptions indexes order information by catalog item id.
func SupportedOptions(info []echo.OrderInformationEntry) map[string][]string {
	supported := make(map[string][]string, len(info))
	for _, entry := range info {
		oi := entry.OrderInformation
		names := make([]string, 0, len(oi.OptionDefinitionRefs))
		for _, ref := range oi.OptionDefinitionRefs {
			names = append(names, ref.Name)
		}
		supported[oi.CatalogItemRef.ID] = names
	}
	return supported
}

// Filter splits granules into those that support optionName and those that do
// not. With no optionName every granule is included. A granule without order
// information supports nothing. Names match exactly. Catalog order is kept
// and repeated ids count once.
func Filter(granules []cmr.Granule, supported map[string][]string, optionName string) ([]cmr.Granule, []DroppedItem) {
	included := make([]cmr.Granule, 0, len(granules))
	dropped := make([]DroppedItem, 0)
	seen := make(map[string]bool, len(granules))
	for _, g := range granules {
		if seen[g.ID] {
			continue
		}
		seen[g.ID] = true
		if optionName != "" && !slices.Contains(supported[g.ID], optionName) {
			dropped = append(dropped, DroppedItem{ID: g.ID, Name: g.DisplayName()})
			continue
		}
		included = append(included, g)
	}
	return included, dropped
}

var interTagWhitespace = regexp.MustCompile(`>\s+<`)

// CollapseXML removes whitespace between adjacent tags and trims the ends.
// Some providers reject option content otherwise.
func CollapseXML(payload string) string {
	return strings.TrimSpace(interTagWhitespace.ReplaceAllString(payload, "><"))
}
