package controllers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adityajain-27/medical-ai-sub000/models"
	"github.com/adityajain-27/medical-ai-sub000/security"
	"github.com/adityajain-27/medical-ai-sub000/store"
)

type BuyCreditsInput struct {
	PackageID string `json:"packageId" binding:"required"`
}

func (h *Handler) GetCredits(c *gin.Context) {
	credits, err := h.Store.Credits(c.Request.Context(), userID(c))
	if errors.Is(err, store.ErrNotFound) {
		security.SendNotFoundError(c, "User not found")
		return
	}
	if err != nil {
		h.dbError(c, "Failed to load credits", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"credits":  credits,
		"packages": models.CreditPackages,
	})
}

// DeductCredits debits the cost of one report.
func (h *Handler) DeductCredits(c *gin.Context) {
	credits, err := h.Store.DeductCredits(c.Request.Context(), userID(c), models.ReportCost)
	switch {
	case errors.Is(err, store.ErrInsufficientCredits):
		insufficientCredits(c, credits)
		return
	case errors.Is(err, store.ErrNotFound):
		security.SendNotFoundError(c, "User not found")
		return
	case err != nil:
		h.dbError(c, "Failed to deduct credits", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  fmt.Sprintf("%d credits deducted", models.ReportCost),
		"credits":  credits,
		"deducted": models.ReportCost,
	})
}

func (h *Handler) BuyCredits(c *gin.Context) {
	var input BuyCreditsInput
	if !bindJSON(c, &input, fieldMessages{"PackageID": "Invalid package"}) {
		return
	}
	pkg, ok := models.FindCreditPackage(input.PackageID)
	if !ok {
		security.SendValidationError(c, "Invalid package", gin.H{"packageId": input.PackageID})
		return
	}

	credits, err := h.Store.AddCredits(c.Request.Context(), userID(c), pkg.Credits)
	if errors.Is(err, store.ErrNotFound) {
		security.SendNotFoundError(c, "User not found")
		return
	}
	if err != nil {
		h.dbError(c, "Failed to add credits", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Successfully added %d credits", pkg.Credits),
		"credits": credits,
		"added":   pkg.Credits,
	})
}

// insufficientCredits replies 402 with the balance the caller still has.
func insufficientCredits(c *gin.Context, credits int) {
	c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
		"error":    "Insufficient credits",
		"message":  "Insufficient credits",
		"code":     security.CodeInsufficientCredits,
		"credits":  credits,
		"required": models.ReportCost,
	})
}
