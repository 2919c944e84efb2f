package upnpmodel

import "strings"

// categoryKeywords is consulted in priority order: the first category whose
// keyword list matches the lowercased action name wins.
var categoryKeywords = []struct {
	category Category
	keywords []string
}{
	{CategorySecurity, []string{"password", "account", "security", "protect"}},
	{CategoryVolumeControl, []string{"volume", "mute", "bass", "treble", "loudness"}},
	{CategoryMediaControl, []string{"play", "pause", "stop", "seek", "next", "previous", "uri", "queue"}},
	{CategoryConfiguration, []string{"set", "configure", "edit", "update", "write"}},
	{CategoryInformation, []string{"get", "query", "list", "browse", "read"}},
}

// ClassifyCategory implements the category rule of the data model.
func ClassifyCategory(actionName string) Category {
	lower := strings.ToLower(actionName)
	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.category
			}
		}
	}
	return CategoryOther
}
