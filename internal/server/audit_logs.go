package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/warebill/internal/audit/domain"
)

func (s *Server) ListAuditLogs(c *gin.Context) {
	parentID, ok := queryID(c, "parent_account_id")
	if !ok {
		return
	}
	targetID, ok := queryID(c, "target_id")
	if !ok {
		return
	}
	page, ok := queryInt(c, "page")
	if !ok {
		return
	}
	pageSize, ok := queryInt(c, "pageSize")
	if !ok {
		return
	}

	res, err := s.auditSvc.List(c.Request.Context(), principalFrom(c), auditdomain.ListRequest{
		ParentAccountID: parentID,
		Action:          strings.TrimSpace(c.Query("action")),
		TargetID:        targetID,
		Page:            page,
		PageSize:        pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}
