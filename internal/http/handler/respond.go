package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/voxline/voxline-agents/internal/domain"
)

func respondError(c *gin.Context, err error) {
	if domainErr, ok := domain.AsError(err); ok {
		c.JSON(domainErr.Status, gin.H{"error": domainErr.Code, "error_description": domainErr.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "error_description": "Internal server error."})
}

// Snowflake IDs overflow JavaScript numbers, so every ID crosses the wire
// as a string.
func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidation("invalid id %q", raw)
	}
	return id, nil
}

func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := parseID(c.Param(name))
	if err != nil {
		respondError(c, err)
		return 0, false
	}
	return id, true
}
