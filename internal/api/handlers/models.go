package handlers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
)

// modelNamesSorted returns the client-facing model aliases known to this
// gateway: every key the configured or default alias table answers for,
// deduplicated and sorted for a stable listing.
func (h *Handlers) modelNamesSorted() []string {
	seen := map[string]bool{}
	var names []string
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	for name := range h.Config.ModelAliases {
		add(name)
	}
	for _, name := range []string{
		"gpt-4", "gpt-4o", "gpt-3.5-turbo", "claude-3-5-sonnet-20241022",
	} {
		add(name)
	}
	sort.Strings(names)
	return names
}

// ListModelsOpenAI serves GET /v1/models.
func (h *Handlers) ListModelsOpenAI(c *gin.Context) {
	var data []gin.H
	for _, name := range h.modelNamesSorted() {
		data = append(data, gin.H{"id": name, "object": "model", "owned_by": "antigravity-proxy"})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}

// ListModelsGemini serves GET /v1beta/models.
func (h *Handlers) ListModelsGemini(c *gin.Context) {
	var models []gin.H
	for _, name := range h.modelNamesSorted() {
		models = append(models, gin.H{"name": "models/" + name, "displayName": name})
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}
