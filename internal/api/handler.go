package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"pos-backend/internal/apperr"
	"pos-backend/internal/models"
	"pos-backend/internal/redisclient"
	"pos-backend/internal/service"
	"pos-backend/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	settlement  *service.SettlementService
	catalog     *service.CatalogService
	authService *service.AuthService
	store       *store.Store
	redis       *redisclient.Client
	rateLimit   int64
}

// NewHandler creates a new HTTP handler
func NewHandler(
	settlement *service.SettlementService,
	catalog *service.CatalogService,
	authService *service.AuthService,
	st *store.Store,
	redis *redisclient.Client,
	rateLimit int64,
) *Handler {
	return &Handler{
		settlement:  settlement,
		catalog:     catalog,
		authService: authService,
		store:       st,
		redis:       redis,
		rateLimit:   rateLimit,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(h.rateLimitMiddleware(h.rateLimit))

	v1.POST("/auth/login", h.login)

	authed := v1.Group("")
	authed.Use(h.authMiddleware())
	{
		authed.POST("/auth/logout", h.logout)

		authed.POST("/orders", h.placeOrder)
		authed.GET("/orders", h.listOrders)
		authed.GET("/orders/:id", h.getOrder)
		authed.DELETE("/orders/:id", h.reverseOrder)

		authed.GET("/products", h.listProducts)
		authed.GET("/products/:id", h.getProduct)
		authed.POST("/products", h.createProduct)
		authed.PUT("/products/:id", h.updateProduct)
		authed.DELETE("/products/:id", h.deleteProduct)

		authed.GET("/categories", h.listCategories)
		authed.POST("/categories", h.createCategory)
		authed.PUT("/categories/:id", h.updateCategory)
		authed.DELETE("/categories/:id", h.deleteCategory)

		authed.GET("/customers", h.listCustomers)
		authed.GET("/customers/:id", h.getCustomer)
		authed.POST("/customers", h.createCustomer)
		authed.PUT("/customers/:id", h.updateCustomer)
		authed.DELETE("/customers/:id", h.deleteCustomer)

		authed.GET("/reports/sales", h.salesReport)
		authed.GET("/reports/top-products", h.topProducts)

		admin := authed.Group("")
		admin.Use(h.requireRole(models.RoleAdmin))
		{
			admin.GET("/users", h.listUsers)
			admin.POST("/users", h.createUser)
			admin.GET("/logs", h.listAuditEntries)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.BadRequest("please input email and password"))
		return
	}

	result, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) logout(c *gin.Context) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if err := h.authService.Logout(c.Request.Context(), token); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

type placeOrderRequest struct {
	CustomerID *int64             `json:"customer_id"`
	Lines      []service.CartLine `json:"lines"`
}

// placeOrder submits a cart to the settlement engine
func (h *Handler) placeOrder(c *gin.Context) {
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.BadRequest("invalid request body: %v", err))
		return
	}

	order, err := h.settlement.PlaceOrder(c.Request.Context(), actorID(c), req.CustomerID, req.Lines)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": order})
}

// reverseOrder deletes an order and restores its stock
func (h *Handler) reverseOrder(c *gin.Context) {
	orderID, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.settlement.ReverseOrder(c.Request.Context(), orderID, actorID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "order reversed"})
}

func (h *Handler) getOrder(c *gin.Context) {
	orderID, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	order, err := h.store.GetOrderWithLines(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (h *Handler) listOrders(c *gin.Context) {
	limit, offset := pagination(c)
	orders, err := h.store.ListOrders(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) listProducts(c *gin.Context) {
	limit, offset := pagination(c)
	products, err := h.catalog.ListProducts(c.Request.Context(), c.Query("search"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) getProduct(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product": product})
}

type productRequest struct {
	Name       string `json:"name" binding:"required"`
	Price      int64  `json:"price" binding:"required,min=0"`
	Stock      int    `json:"stock" binding:"min=0"`
	CategoryID int64  `json:"category_id" binding:"required"`
}

func (h *Handler) createProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.BadRequest("invalid request body: %v", err))
		return
	}

	product := &models.Product{
		Name:       req.Name,
		Price:      req.Price,
		Stock:      req.Stock,
		CategoryID: req.CategoryID,
	}
	if err := h.catalog.CreateProduct(c.Request.Context(), actorID(c), product); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"product": product})
}

func (h *Handler) updateProduct(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.BadRequest("invalid request body: %v", err))
		return
	}

	product := &models.Product{
		ID:         id,
		Name:       req.Name,
		Price:      req.Price,
		CategoryID: req.CategoryID,
	}
	if err := h.catalog.UpdateProduct(c.Request.Context(), actorID(c), product); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product": product})
}

func (h *Handler) deleteProduct(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.catalog.DeleteProduct(c.Request.Context(), actorID(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "product deleted"})
}

func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.store.GetCategories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

type categoryRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *Handler) createCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.BadRequest("category name is required"))
		return
	}

	category := &models.Category{Name: req.Name}
	if err := h.store.CreateCategory(c.Request.Context(), category); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"category": category})
}

func (h *Handler) updateCategory(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.BadRequest("category name is required"))
		return
	}

	category := &models.Category{ID: id, Name: req.Name}
	if err := h.store.UpdateCategory(c.Request.Context(), category); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": category})
}

func (h *Handler) deleteCategory(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.store.DeleteCategory(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "category deleted"})
}

func (h *Handler) listCustomers(c *gin.Context) {
	customers, err := h.store.GetCustomers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customers": customers})
}

func (h *Handler) getCustomer(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	customer, err := h.store.GetCustomerByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customer": customer})
}

type customerRequest struct {
	Name  string `json:"name" binding:"required"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

func (h *Handler) createCustomer(c *gin.Context) {
	var req customerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.BadRequest("customer name is required"))
		return
	}

	customer := &models.Customer{Name: req.Name, Phone: req.Phone, Email: req.Email}
	if err := h.store.CreateCustomer(c.Request.Context(), customer); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"customer": customer})
}

func (h *Handler) updateCustomer(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req customerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.BadRequest("customer name is required"))
		return
	}

	customer := &models.Customer{ID: id, Name: req.Name, Phone: req.Phone, Email: req.Email}
	if err := h.store.UpdateCustomer(c.Request.Context(), customer); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customer": customer})
}

func (h *Handler) deleteCustomer(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.store.DeleteCustomer(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "customer deleted"})
}

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.store.GetUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

type createUserRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role" binding:"required"`
}

func (h *Handler) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.BadRequest("invalid request body: %v", err))
		return
	}

	user, err := h.authService.Register(c.Request.Context(), req.Name, req.Email, req.Password, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

func (h *Handler) listAuditEntries(c *gin.Context) {
	limit, offset := pagination(c)
	entries, err := h.store.ListAuditEntries(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries})
}

func (h *Handler) salesReport(c *gin.Context) {
	var start, end *time.Time
	if v := c.Query("start"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			respondError(c, apperr.BadRequest("invalid start date: %s", v))
			return
		}
		start = &t
	}
	if v := c.Query("end"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			respondError(c, apperr.BadRequest("invalid end date: %s", v))
			return
		}
		end = &t
	}

	group := c.DefaultQuery("group", "day")
	if group != "day" && group != "month" {
		respondError(c, apperr.BadRequest("group must be day or month"))
		return
	}

	report, err := h.store.SalesReport(c.Request.Context(), start, end, group)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

func (h *Handler) topProducts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	top, err := h.store.TopProducts(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": top})
}

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.BadRequest("invalid id: %s", c.Param("id"))
	}
	return id, nil
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	return limit, offset
}
