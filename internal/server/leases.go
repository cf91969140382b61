package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	leasedomain "github.com/smallbiznis/rentflow/internal/lease/domain"
	partydomain "github.com/smallbiznis/rentflow/internal/party/domain"
)

type createLeaseRequest struct {
	TenantID   string `json:"tenant_id" binding:"required"`
	LandlordID string `json:"landlord_id" binding:"required"`
	PropertyID string `json:"property_id" binding:"required"`
	UnitNumber string `json:"unit_number"`
	RentAmount int64  `json:"rent_amount" binding:"required"`
	BillingDay int    `json:"billing_day" binding:"required"`
	StartDate  string `json:"start_date" binding:"required"`
	EndDate    string `json:"end_date" binding:"required"`
}

func (s *Server) HandleCreateLease(c *gin.Context) {
	var req createLeaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tenantID, err := parsePathID(req.TenantID)
	if err != nil {
		AbortWithError(c, newValidationError("tenant_id", "invalid_id", "invalid tenant id"))
		return
	}
	landlordID, err := parsePathID(req.LandlordID)
	if err != nil {
		AbortWithError(c, newValidationError("landlord_id", "invalid_id", "invalid landlord id"))
		return
	}
	propertyID, err := parsePathID(req.PropertyID)
	if err != nil {
		AbortWithError(c, newValidationError("property_id", "invalid_id", "invalid property id"))
		return
	}
	if req.RentAmount <= 0 {
		AbortWithError(c, newValidationError("rent_amount", "invalid_amount", "rent amount must be positive"))
		return
	}
	if req.BillingDay < 1 || req.BillingDay > 31 {
		AbortWithError(c, newValidationError("billing_day", "invalid_billing_day", "billing day must be between 1 and 31"))
		return
	}

	startDate, err := time.Parse(dateOnlyLayout, strings.TrimSpace(req.StartDate))
	if err != nil {
		AbortWithError(c, newValidationError("start_date", "invalid_date", "invalid start date"))
		return
	}
	endDate, err := time.Parse(dateOnlyLayout, strings.TrimSpace(req.EndDate))
	if err != nil {
		AbortWithError(c, newValidationError("end_date", "invalid_date", "invalid end date"))
		return
	}
	if !endDate.After(startDate) {
		AbortWithError(c, newValidationError("end_date", "invalid_range", "end date must be after start date"))
		return
	}

	ctx := c.Request.Context()
	tenant, err := s.partyRepo.FindByID(ctx, s.db, tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if tenant == nil || tenant.Kind != partydomain.KindTenant {
		AbortWithError(c, newValidationError("tenant_id", "unknown_party", "tenant not found"))
		return
	}
	landlord, err := s.partyRepo.FindByID(ctx, s.db, landlordID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if landlord == nil || landlord.Kind != partydomain.KindLandlord {
		AbortWithError(c, newValidationError("landlord_id", "unknown_party", "landlord not found"))
		return
	}

	now := time.Now().UTC()
	lease := &leasedomain.Lease{
		ID:         s.genID.Generate(),
		TenantID:   tenantID,
		LandlordID: landlordID,
		PropertyID: propertyID,
		UnitNumber: strings.TrimSpace(req.UnitNumber),
		RentAmount: req.RentAmount,
		BillingDay: req.BillingDay,
		StartDate:  startDate,
		EndDate:    endDate,
		Status:     leasedomain.StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.leaseRepo.Insert(ctx, s.db, lease); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, lease)
}

func (s *Server) HandleGetLease(c *gin.Context) {
	id, err := parsePathID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid lease id"))
		return
	}

	lease, err := s.leaseRepo.FindByID(c.Request.Context(), s.db, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if lease == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, lease)
}
