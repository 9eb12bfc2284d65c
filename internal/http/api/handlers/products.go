package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/GroupBuyBusiness/internal/catalog"
	"github.com/router-for-me/GroupBuyBusiness/internal/models"
)

// ProductHandler serves the product catalog.
type ProductHandler struct {
	svc *catalog.Service
}

// NewProductHandler constructs a ProductHandler.
func NewProductHandler(svc *catalog.Service) *ProductHandler {
	return &ProductHandler{svc: svc}
}

// List returns approved products.
func (h *ProductHandler) List(c *gin.Context) {
	h.list(c, catalog.Filter{
		Status:     models.ProductStatusApproved,
		SupplierID: queryUint(c, "supplierId"),
	})
}

// ListForReview lets administrators browse products in any status.
func (h *ProductHandler) ListForReview(c *gin.Context) {
	status := models.ProductStatus(strings.ToUpper(strings.TrimSpace(c.Query("status"))))
	if status == "" {
		status = models.ProductStatusPending
	}
	h.list(c, catalog.Filter{Status: status, SupplierID: queryUint(c, "supplierId")})
}

// ListMine returns the caller's own products in every status.
func (h *ProductHandler) ListMine(c *gin.Context) {
	h.list(c, catalog.Filter{SupplierID: CurrentUser(c).ID})
}

func (h *ProductHandler) list(c *gin.Context, filter catalog.Filter) {
	filter.Search = c.Query("search")
	filter.Page = queryInt(c, "page")
	filter.Limit = queryInt(c, "limit")
	page, errList := h.svc.List(c.Request.Context(), filter)
	if errList != nil {
		WriteError(c, errList)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Get returns one product.
func (h *ProductHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	product, errGet := h.svc.Get(c.Request.Context(), id)
	if errGet != nil {
		WriteError(c, errGet)
		return
	}
	c.JSON(http.StatusOK, catalog.NewProductView(product))
}

// Create submits a product for review.
func (h *ProductHandler) Create(c *gin.Context) {
	var body catalog.ProductInput
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		badRequest(c, "invalid json")
		return
	}
	product, errCreate := h.svc.CreateProduct(c.Request.Context(), CurrentUser(c).ID, body)
	if errCreate != nil {
		WriteError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, catalog.NewProductView(product))
}

// reviewRequest carries a moderation decision.
type reviewRequest struct {
	Approve *bool `json:"approve"` // True approves, false rejects.
}

// Review approves or rejects a pending product.
func (h *ProductHandler) Review(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var body reviewRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || body.Approve == nil {
		badRequest(c, "approve is required")
		return
	}
	product, errReview := h.svc.Review(c.Request.Context(), id, *body.Approve)
	if errReview != nil {
		WriteError(c, errReview)
		return
	}
	c.JSON(http.StatusOK, catalog.NewProductView(product))
}

// Archive withdraws a product. Administrators may archive any product.
func (h *ProductHandler) Archive(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	user := CurrentUser(c)
	actorID := user.ID
	if user.Role == models.UserRoleAdmin {
		actorID = 0
	}
	product, errArchive := h.svc.Archive(c.Request.Context(), id, actorID)
	if errArchive != nil {
		WriteError(c, errArchive)
		return
	}
	c.JSON(http.StatusOK, catalog.NewProductView(product))
}
