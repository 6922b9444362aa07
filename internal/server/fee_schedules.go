package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	feescheduledomain "github.com/smallbiznis/memberbill/internal/feeschedule/domain"
	"github.com/smallbiznis/memberbill/pkg/db/pagination"
)

type createFeeScheduleRequest struct {
	Name            string                           `json:"name"`
	AdmissionFee    decimal.Decimal                  `json:"admission_fee"`
	CustomFees      []feescheduledomain.FeeComponent `json:"custom_fees"`
	CycleLengthDays int                              `json:"cycle_length_days"`
	Currency        string                           `json:"currency"`
}

type updateFeeScheduleRequest struct {
	Name            *string                           `json:"name"`
	AdmissionFee    *decimal.Decimal                  `json:"admission_fee"`
	CustomFees      *[]feescheduledomain.FeeComponent `json:"custom_fees"`
	CycleLengthDays *int                              `json:"cycle_length_days"`
}

func (s *Server) CreateFeeSchedule(c *gin.Context) {
	var req createFeeScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.scheduleSvc.Create(c.Request.Context(), feescheduledomain.CreateFeeScheduleRequest{
		Name:            strings.TrimSpace(req.Name),
		AdmissionFee:    req.AdmissionFee,
		CustomFees:      req.CustomFees,
		CycleLengthDays: req.CycleLengthDays,
		Currency:        strings.TrimSpace(req.Currency),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListFeeSchedules(c *gin.Context) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.scheduleSvc.List(c.Request.Context(), feescheduledomain.ListFeeScheduleRequest{
		Pagination: query,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.FeeSchedules, "page_info": resp.PageInfo})
}

func (s *Server) GetFeeScheduleByID(c *gin.Context) {
	resp, err := s.scheduleSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateFeeSchedule(c *gin.Context) {
	var req updateFeeScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.scheduleSvc.Update(c.Request.Context(), feescheduledomain.UpdateFeeScheduleRequest{
		ID:              strings.TrimSpace(c.Param("id")),
		Name:            req.Name,
		AdmissionFee:    req.AdmissionFee,
		CustomFees:      req.CustomFees,
		CycleLengthDays: req.CycleLengthDays,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// QuoteFeeSchedule prices one cycle, or the joining bill when include_joining is true.
func (s *Server) QuoteFeeSchedule(c *gin.Context) {
	includeJoining, err := parseOptionalBool(c.Query("include_joining"))
	if err != nil {
		AbortWithError(c, newValidationError("include_joining", "invalid_include_joining", "invalid include_joining"))
		return
	}

	resp, err := s.scheduleSvc.Quote(c.Request.Context(), strings.TrimSpace(c.Param("id")), includeJoining != nil && *includeJoining)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
