package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	billdomain "github.com/smallbiznis/memberbill/internal/bill/domain"
	memberdomain "github.com/smallbiznis/memberbill/internal/member/domain"
	"github.com/smallbiznis/memberbill/pkg/db/pagination"
)

type createMemberRequest struct {
	FullName        string          `json:"full_name"`
	ContactNumber   string          `json:"contact_number"`
	Email           string          `json:"email"`
	FeeScheduleID   string          `json:"fee_schedule_id"`
	NextBillingDate string          `json:"next_billing_date"`
	OutstandingFee  decimal.Decimal `json:"outstanding_fee"`
}

func (s *Server) CreateMember(c *gin.Context) {
	var req createMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	nextBillingDate, err := parseOptionalDate(req.NextBillingDate, s.billing.Get().Location())
	if err != nil {
		AbortWithError(c, newValidationError("next_billing_date", "invalid_next_billing_date", "next_billing_date must be YYYY-MM-DD"))
		return
	}

	resp, err := s.memberSvc.Create(c.Request.Context(), memberdomain.CreateMemberRequest{
		FullName:        strings.TrimSpace(req.FullName),
		ContactNumber:   strings.TrimSpace(req.ContactNumber),
		Email:           strings.TrimSpace(req.Email),
		FeeScheduleID:   strings.TrimSpace(req.FeeScheduleID),
		NextBillingDate: nextBillingDate,
		OutstandingFee:  req.OutstandingFee,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListMembers(c *gin.Context) {
	var query struct {
		pagination.Pagination
		FeeScheduleID string `form:"fee_schedule_id"`
		ActiveOnly    string `form:"active_only"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	activeOnly, err := parseOptionalBool(query.ActiveOnly)
	if err != nil {
		AbortWithError(c, newValidationError("active_only", "invalid_active_only", "invalid active_only"))
		return
	}

	resp, err := s.memberSvc.List(c.Request.Context(), memberdomain.ListMemberRequest{
		Pagination:    query.Pagination,
		FeeScheduleID: strings.TrimSpace(query.FeeScheduleID),
		ActiveOnly:    activeOnly != nil && *activeOnly,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Members, "page_info": resp.PageInfo})
}

func (s *Server) GetMemberByID(c *gin.Context) {
	resp, err := s.memberSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateMemberRequest struct {
	IsActive        *bool   `json:"is_active"`
	NextBillingDate *string `json:"next_billing_date"`
}

func (s *Server) UpdateMember(c *gin.Context) {
	var req updateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	update := memberdomain.UpdateMemberRequest{
		ID:       strings.TrimSpace(c.Param("id")),
		IsActive: req.IsActive,
	}
	if req.NextBillingDate != nil {
		next, err := parseOptionalDate(*req.NextBillingDate, s.billing.Get().Location())
		if err != nil || next == nil {
			AbortWithError(c, newValidationError("next_billing_date", "invalid_next_billing_date", "next_billing_date must be YYYY-MM-DD"))
			return
		}
		update.NextBillingDate = next
	}

	resp, err := s.memberSvc.Update(c.Request.Context(), update)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetMemberBalance(c *gin.Context) {
	resp, err := s.memberSvc.Balance(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListMemberBills(c *gin.Context) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	// resolve first so an unknown member is a 404 rather than an empty page
	member, err := s.memberSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.billSvc.ListByMember(c.Request.Context(), billdomain.ListBillRequest{
		Pagination: query,
		MemberID:   member.ID.String(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Bills, "page_info": resp.PageInfo})
}
