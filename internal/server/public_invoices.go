package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Public share-link routes authenticate by token alone. Every miss is the same 404.

func (s *Server) GetPublicInvoice(c *gin.Context) {
	detail, err := s.shareSvc.GetInvoiceByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, detail)
}

func (s *Server) GetPublicInvoicePDF(c *gin.Context) {
	doc, err := s.shareSvc.RenderPublicPDF(c.Request.Context(), c.Param("token"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	writePDF(c, doc)
}
