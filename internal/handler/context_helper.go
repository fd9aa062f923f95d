package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const maxListLimit = 100

// queryLimit reads ?limit= and clamps it to (0, maxListLimit]; zero lets the
// repository apply its default.
func queryLimit(c *gin.Context) int {
	raw := c.Query("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// wantsJSON reports whether the client asked for JSON over HTML.
func wantsJSON(c *gin.Context) bool {
	if strings.EqualFold(c.Query("format"), "json") {
		return true
	}
	return strings.Contains(c.GetHeader("Accept"), "application/json")
}
