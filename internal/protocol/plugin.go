package protocol

import "strings"

// Plugin enables a hub extension for a request.
type Plugin struct {
	ID       string `json:"id"`
	Category int    `json:"category"`
}

var pluginsByName = map[string]string{
	"Search":    "c310c353-b9f0-4d76-ab0d-1dd5e979cf68",
	"Instacart": "46664d33-1591-4ce8-b3fb-ba1022b66c11",
	"Kayak":     "d6be744c-2bd9-432f-95b7-76e103946e34",
	"Klarna":    "5f143ea3-8c80-4efd-9515-185e83b7cf8a",
	"OpenTable": "543a7b1b-ebc6-46f4-be76-00c202990a1b",
	"Shop":      "39e3566a-d481-4d99-82b2-6d739b1e716e",
	"Suno":      "22b7f79d-8ea4-437e-b5fd-3e21f09f7bc1",
}

// PluginByName looks a plugin up by its display name (case-insensitive).
func PluginByName(name string) (Plugin, bool) {
	for n, id := range pluginsByName {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return Plugin{ID: id, Category: 1}, true
		}
	}
	return Plugin{}, false
}

// Name returns the display name of a known plugin.
func (p Plugin) Name() string {
	for n, id := range pluginsByName {
		if id == p.ID {
			return n
		}
	}
	return "Unknown Plugin"
}

// SearchPlugin is enabled by default on new conversations.
func SearchPlugin() Plugin {
	p, _ := PluginByName("Search")
	return p
}
