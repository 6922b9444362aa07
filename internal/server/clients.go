package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	clientdomain "github.com/smallbiznis/memberbill/internal/client/domain"
)

type createClientRequest struct {
	BusinessName  string           `json:"business_name"`
	ContactNumber string           `json:"contact_number"`
	Address       string           `json:"address"`
	PaymentMethod string           `json:"payment_method"`
	DurationDays  int              `json:"duration_days"`
	Amount        *decimal.Decimal `json:"amount"`
	Currency      string           `json:"currency"`
}

type renewClientRequest struct {
	DurationDays int              `json:"duration_days"`
	Amount       *decimal.Decimal `json:"amount"`
	Currency     string           `json:"currency"`
}

func (s *Server) CreateClient(c *gin.Context) {
	var req createClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.clientSvc.Create(c.Request.Context(), clientdomain.CreateClientRequest{
		BusinessName:  strings.TrimSpace(req.BusinessName),
		ContactNumber: strings.TrimSpace(req.ContactNumber),
		Address:       strings.TrimSpace(req.Address),
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		DurationDays:  req.DurationDays,
		Amount:        req.Amount,
		Currency:      strings.TrimSpace(req.Currency),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetClientByID(c *gin.Context) {
	resp, err := s.clientSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RenewClient(c *gin.Context) {
	var req renewClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.clientSvc.Renew(c.Request.Context(), clientdomain.RenewRequest{
		ID:           strings.TrimSpace(c.Param("id")),
		DurationDays: req.DurationDays,
		Amount:       req.Amount,
		Currency:     strings.TrimSpace(req.Currency),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
