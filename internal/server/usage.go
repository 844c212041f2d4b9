package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/warebill/internal/apperror"
	usagedomain "github.com/smallbiznis/warebill/internal/usage/domain"
)

// feedRequest is one producer's upload for a single feed kind.
type feedRequest struct {
	ParentAccountID snowflake.ID    `json:"parent_account_id"`
	ClientAccountID snowflake.ID    `json:"client_account_id"`
	WarehouseID     snowflake.ID    `json:"warehouse_id"`
	Source          string          `json:"source"`
	Rows            json.RawMessage `json:"rows"`
}

func (s *Server) ListUsage(c *gin.Context) {
	var filter usagedomain.UsageFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		AbortWithError(c, invalidRequestError("query", err))
		return
	}

	res, err := s.usageSvc.ListUsage(c.Request.Context(), principalFrom(c), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (s *Server) UsageSummary(c *gin.Context) {
	var filter usagedomain.UsageFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		AbortWithError(c, invalidRequestError("query", err))
		return
	}

	summary, err := s.usageSvc.Summary(c.Request.Context(), principalFrom(c), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) RecordFeed(c *gin.Context) {
	raw := strings.ToLower(strings.TrimSpace(c.Param("kind")))
	if raw == "extras" {
		raw = string(usagedomain.KindExtra)
	}
	kind, ok := usagedomain.ParseKind(raw)
	if !ok {
		AbortWithError(c, apperror.New(apperror.CodeInvalidArgument, "unknown feed kind").WithField("kind"))
		return
	}

	var req feedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError("body", err))
		return
	}

	batch, err := req.batch(kind)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	res, err := s.usageSvc.Record(c.Request.Context(), principalFrom(c), batch)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (r feedRequest) batch(kind usagedomain.Kind) (usagedomain.FeedBatch, error) {
	batch := usagedomain.FeedBatch{
		ParentAccountID: r.ParentAccountID,
		ClientAccountID: r.ClientAccountID,
		WarehouseID:     r.WarehouseID,
		Source:          r.Source,
	}
	if len(r.Rows) == 0 {
		return batch, nil
	}

	var target any
	switch kind {
	case usagedomain.KindStorage:
		target = &batch.Storage
	case usagedomain.KindHandling:
		target = &batch.Handling
	case usagedomain.KindOutbound:
		target = &batch.Outbound
	case usagedomain.KindExtra:
		target = &batch.Extras
	}
	if err := json.Unmarshal(r.Rows, target); err != nil {
		return usagedomain.FeedBatch{}, invalidRequestError("rows", err)
	}
	return batch, nil
}
