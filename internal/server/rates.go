package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/warebill/internal/catalog/domain"
)

// ResolveRate defaults the parent and client to the caller's own when omitted.
func (s *Server) ResolveRate(c *gin.Context) {
	parentID, ok := queryID(c, "parent_account_id")
	if !ok {
		return
	}
	clientID, ok := queryID(c, "client_account_id")
	if !ok {
		return
	}
	warehouseID, ok := queryID(c, "warehouse_id")
	if !ok {
		return
	}

	p := principalFrom(c)
	rate, err := s.catalogSvc.Resolve(c.Request.Context(), p, catalogdomain.RateKey{
		ParentAccountID: p.ParentOr(parentID),
		ClientAccountID: p.ClientOr(clientID),
		WarehouseID:     warehouseID,
		ServiceID:       strings.TrimSpace(c.Query("service_id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, rate)
}

func (s *Server) ListCatalog(c *gin.Context) {
	parentID, ok := queryID(c, "parent_account_id")
	if !ok {
		return
	}
	warehouseID, ok := queryID(c, "warehouse_id")
	if !ok {
		return
	}

	p := principalFrom(c)
	entries, err := s.catalogSvc.ListCatalog(c.Request.Context(), p, p.ParentOr(parentID), warehouseID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": entries})
}

func (s *Server) CreateCatalogEntry(c *gin.Context) {
	var req catalogdomain.CatalogEntryInput
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError("body", err))
		return
	}

	entry, err := s.catalogSvc.CreateCatalogEntry(c.Request.Context(), principalFrom(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

func (s *Server) UpsertOverride(c *gin.Context) {
	var req catalogdomain.OverrideInput
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError("body", err))
		return
	}

	override, err := s.catalogSvc.UpsertOverride(c.Request.Context(), principalFrom(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, override)
}
