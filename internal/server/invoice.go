package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/warebill/internal/invoice/domain"
)

type transitionRequest struct {
	Status string `json:"status"`
}

type shareTokenRequest struct {
	ValidForDays int `json:"valid_for_days"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req invoicedomain.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError("body", err))
		return
	}

	id, err := s.invoiceSvc.CreateInvoice(c.Request.Context(), principalFrom(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"invoice_id": id})
}

func (s *Server) ListInvoices(c *gin.Context) {
	var filter invoicedomain.InvoiceFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		AbortWithError(c, invalidRequestError("query", err))
		return
	}

	res, err := s.invoiceSvc.ListInvoices(c.Request.Context(), principalFrom(c), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (s *Server) GetInvoice(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	detail, err := s.invoiceSvc.GetInvoice(c.Request.Context(), principalFrom(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

func (s *Server) TransitionInvoiceStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError("body", err))
		return
	}

	inv, err := s.invoiceSvc.TransitionStatus(c.Request.Context(), principalFrom(c), id, req.Status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, inv)
}

func (s *Server) RenderInvoicePDF(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	doc, err := s.invoiceSvc.RenderPDF(c.Request.Context(), principalFrom(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	writePDF(c, doc)
}

func (s *Server) AddLineItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in invoicedomain.LineItemInput
	if err := c.ShouldBindJSON(&in); err != nil {
		AbortWithError(c, invalidRequestError("body", err))
		return
	}

	summary, err := s.invoiceSvc.AddLineItem(c.Request.Context(), principalFrom(c), id, in)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, summary)
}

func (s *Server) UpdateLineItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var patch invoicedomain.LineItemPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		AbortWithError(c, invalidRequestError("body", err))
		return
	}

	summary, err := s.invoiceSvc.UpdateLineItem(c.Request.Context(), principalFrom(c), id, patch)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) DeleteLineItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	summary, err := s.invoiceSvc.DeleteLineItem(c.Request.Context(), principalFrom(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) GenerateShareToken(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	// the body is optional, an empty one means the default validity
	var req shareTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError("body", err))
		return
	}

	link, err := s.shareSvc.GenerateShareToken(c.Request.Context(), principalFrom(c), id, req.ValidForDays)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, link)
}

func writePDF(c *gin.Context, doc *invoicedomain.PDFDocument) {
	c.Header("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "application/pdf", doc.Content)
}
