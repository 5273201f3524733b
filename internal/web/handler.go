package web

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ycliao/daigou-storefront/internal/analytics"
	"github.com/ycliao/daigou-storefront/internal/api"
	"github.com/ycliao/daigou-storefront/internal/cart"
	"github.com/ycliao/daigou-storefront/internal/catalog"
	"github.com/ycliao/daigou-storefront/internal/checkout"
	"github.com/ycliao/daigou-storefront/internal/domain"
	"github.com/ycliao/daigou-storefront/internal/session"
	"github.com/ycliao/daigou-storefront/internal/telemetry"
)

// Handler renders the storefront. Every page is a cache of the remote
// marketplace API: a request reads whatever the session's stores hold,
// mutations go to the API first and local state mirrors the response.
type Handler struct {
	catalog   *catalog.Service
	sessions  *session.Manager
	apiClient *api.Client
	producer  *analytics.Producer
	metrics   *telemetry.Metrics
	templates *template.Template
	logger    *slog.Logger
}

func NewHandler(catalogSvc *catalog.Service, sessions *session.Manager, apiClient *api.Client, producer *analytics.Producer, metrics *telemetry.Metrics, logger *slog.Logger) (*Handler, error) {
	templates, err := newTemplates()
	if err != nil {
		return nil, err
	}
	return &Handler{
		catalog:   catalogSvc,
		sessions:  sessions,
		apiClient: apiClient,
		producer:  producer,
		metrics:   metrics,
		templates: templates,
		logger:    logger,
	}, nil
}

// Register wires every route into mux, wrapped for span route attributes.
func (h *Handler) Register(mux *http.ServeMux) {
	route := func(pattern string, fn http.HandlerFunc) {
		mux.HandleFunc(pattern, telemetry.WithHTTPRoute(fn))
	}

	route("GET /{$}", h.HandleHome)
	route("GET /products/{id}", h.HandleProductDetail)

	route("GET /login", h.HandleLoginForm)
	route("POST /login", h.HandleLogin)
	route("POST /logout", h.HandleLogout)

	route("GET /cart", h.HandleCartPage)
	route("POST /cart/add", h.HandleCartAdd)
	route("POST /cart/{id}/quantity", h.HandleCartQuantity)
	route("POST /cart/{id}/remove", h.HandleCartRemove)
	route("POST /cart/clear", h.HandleCartClear)

	route("GET /checkout", h.HandleCheckoutForm)
	route("POST /checkout", h.HandleCheckoutSubmit)

	route("GET /orders", h.HandleOrders)
	route("GET /orders/all", h.HandleAllOrders)
	route("GET /orders/agent", h.HandleAgentOrders)
	route("GET /orders/{id}", h.HandleOrderDetail)
	route("POST /orders/{id}/cancel", h.HandleOrderCancel)
	route("POST /orders/{id}/status", h.HandleOrderStatus)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func (h *Handler) basePage(r *http.Request, title string) page {
	p := page{
		Title: title,
		Flash: r.URL.Query().Get("msg"),
		Error: r.URL.Query().Get("err"),
	}
	if sess, ok := h.sessions.FromRequest(r); ok {
		user := sess.User
		p.User = &user
		p.Cart = cartView{ItemCount: sess.Cart.State().Summary.ItemCount}
	}
	return p
}

// requireSession resolves the request's session or redirects to login.
func (h *Handler) requireSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, ok := h.sessions.FromRequest(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return nil, false
	}
	return sess, true
}

// --- catalog ---

func (h *Handler) HandleHome(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.Products(r.Context())
	if err != nil {
		h.logger.Error("failed to load products", "error", err)
		h.renderError(w, r, http.StatusBadGateway, "The marketplace is unavailable right now.")
		return
	}

	p := h.basePage(r, "Products")
	p.Data = products
	h.render(w, r, "home.gohtml", p)
}

type productDetailView struct {
	Product   domain.Product
	CanBuy    bool
	LoggedOut bool
}

func (h *Handler) HandleProductDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.renderError(w, r, http.StatusNotFound, "No such product.")
		return
	}

	product, err := h.catalog.Product(r.Context(), id)
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			h.renderError(w, r, http.StatusNotFound, "No such product.")
			return
		}
		h.logger.Error("failed to load product", "error", err, "product_id", id)
		h.renderError(w, r, http.StatusBadGateway, "The marketplace is unavailable right now.")
		return
	}

	p := h.basePage(r, product.Name)
	view := productDetailView{Product: *product, LoggedOut: p.User == nil}
	if p.User != nil {
		view.CanBuy = product.CanAddToCart(*p.User)
	}
	p.Data = view
	h.render(w, r, "product.gohtml", p)
}

// --- auth ---

func (h *Handler) HandleLoginForm(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.sessions.FromRequest(r); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render(w, r, "login.gohtml", h.basePage(r, "Sign in"))
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	password := r.FormValue("password")
	if email == "" || password == "" {
		redirectWithError(w, r, "/login", "email and password are required")
		return
	}

	auth, err := h.apiClient.Login(r.Context(), email, password)
	if err != nil {
		h.logger.Warn("login failed", "error", err, "email", email)
		redirectWithError(w, r, "/login", displayMessage(err, "sign-in failed, please try again"))
		return
	}

	client := h.apiClient.WithToken(auth.Token)
	store := cart.NewStore(client, h.metrics, h.logger)
	sess := h.sessions.Create(auth.Token, auth.User(), client, store)
	session.SetCookie(w, sess.ID)

	// Seed the session's cart; a failure here is recoverable on the cart
	// page, so the login itself still succeeds.
	if err := store.Refresh(r.Context()); err != nil {
		h.logger.Warn("initial cart refresh failed", "error", err, "user_id", auth.ID)
	}

	h.logger.Info("user signed in", "user_id", auth.ID, "user_type", auth.UserType)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := h.sessions.FromRequest(r); ok {
		h.sessions.Destroy(sess.ID)
		h.logger.Info("user signed out", "user_id", sess.User.ID)
	}
	session.ClearCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// --- cart ---

func (h *Handler) HandleCartPage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	// Reactive refresh on navigation; errors land in the store state.
	_ = sess.Cart.Refresh(r.Context())

	state := sess.Cart.State()
	p := h.basePage(r, "Your cart")
	if state.LastError != "" && p.Error == "" {
		p.Error = state.LastError
	}
	p.Data = state
	h.render(w, r, "cart.gohtml", p)
}

func (h *Handler) HandleCartAdd(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	productID, err := strconv.ParseInt(r.FormValue("productId"), 10, 64)
	if err != nil {
		redirectWithError(w, r, "/", "invalid product")
		return
	}
	quantity, err := strconv.Atoi(r.FormValue("quantity"))
	if err != nil || quantity < 1 {
		quantity = 1
	}

	if err := sess.Cart.Add(r.Context(), productID, quantity); err != nil {
		redirectWithError(w, r, "/products/"+strconv.FormatInt(productID, 10), sess.Cart.State().LastError)
		return
	}

	h.publishCartActivity(r.Context(), sess, "add", productID, quantity)
	redirectWithFlash(w, r, "/cart", "Added to cart")
}

func (h *Handler) HandleCartQuantity(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	lineID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		redirectWithError(w, r, "/cart", "invalid cart line")
		return
	}
	quantity, err := strconv.Atoi(r.FormValue("quantity"))
	if err != nil {
		redirectWithError(w, r, "/cart", "invalid quantity")
		return
	}

	err = sess.Cart.SetQuantity(r.Context(), lineID, quantity)
	switch {
	case errors.Is(err, cart.ErrLineBusy):
		redirectWithError(w, r, "/cart", "that item is still updating, try again")
	case err != nil:
		redirectWithError(w, r, "/cart", sess.Cart.State().LastError)
	default:
		h.publishCartActivity(r.Context(), sess, "set_quantity", 0, quantity)
		http.Redirect(w, r, "/cart", http.StatusSeeOther)
	}
}

func (h *Handler) HandleCartRemove(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	if r.FormValue("confirm") != "yes" {
		redirectWithError(w, r, "/cart", "please confirm removing the item")
		return
	}

	lineID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		redirectWithError(w, r, "/cart", "invalid cart line")
		return
	}

	if err := sess.Cart.Remove(r.Context(), lineID); err != nil {
		redirectWithError(w, r, "/cart", sess.Cart.State().LastError)
		return
	}
	h.publishCartActivity(r.Context(), sess, "remove", 0, 0)
	redirectWithFlash(w, r, "/cart", "Item removed")
}

func (h *Handler) HandleCartClear(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	if r.FormValue("confirm") != "yes" {
		redirectWithError(w, r, "/cart", "please confirm clearing the cart")
		return
	}

	if err := sess.Cart.Clear(r.Context()); err != nil {
		redirectWithError(w, r, "/cart", sess.Cart.State().LastError)
		return
	}
	h.publishCartActivity(r.Context(), sess, "clear", 0, 0)
	redirectWithFlash(w, r, "/cart", "Cart cleared")
}

// --- checkout ---

type checkoutView struct {
	State       cart.State
	Direct      *domain.Product
	DirectQty   int
	Recipient   checkout.Recipient
	FieldErrors checkout.FieldErrors
}

func (h *Handler) HandleCheckoutForm(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	view := checkoutView{
		Recipient: checkout.Recipient{
			Name: sess.User.FirstName + " " + sess.User.LastName,
		},
	}

	if productParam := r.URL.Query().Get("productId"); productParam != "" {
		// Buy-now entry: the order is built from one explicit item and the
		// cart is not touched.
		productID, err := strconv.ParseInt(productParam, 10, 64)
		if err != nil {
			redirectWithError(w, r, "/", "invalid product")
			return
		}
		product, err := h.catalog.Product(r.Context(), productID)
		if err != nil {
			redirectWithError(w, r, "/", "could not load the product")
			return
		}
		quantity, err := strconv.Atoi(r.URL.Query().Get("quantity"))
		if err != nil || quantity < 1 {
			quantity = 1
		}
		view.Direct = product
		view.DirectQty = quantity
	} else {
		state := sess.Cart.State()
		if len(state.Lines) == 0 {
			redirectWithError(w, r, "/cart", "your cart is empty")
			return
		}
		view.State = state
	}

	p := h.basePage(r, "Checkout")
	p.Data = view
	h.render(w, r, "checkout.gohtml", p)
}

func (h *Handler) HandleCheckoutSubmit(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	recipient := checkout.Recipient{
		Name:    r.FormValue("receiverName"),
		Phone:   r.FormValue("receiverPhone"),
		Address: r.FormValue("shippingAddress"),
		Notes:   r.FormValue("notes"),
	}

	workflow := checkout.NewWorkflow(sess.Client, sess.Cart, h.producer, h.metrics, h.logger)

	var (
		result *checkout.Result
		err    error
		view   = checkoutView{Recipient: recipient}
	)
	if productParam := r.FormValue("productId"); productParam != "" {
		// Direct buy-now path entered from a product page.
		productID, parseErr := strconv.ParseInt(productParam, 10, 64)
		quantity, _ := strconv.Atoi(r.FormValue("quantity"))
		if parseErr != nil || quantity < 1 {
			redirectWithError(w, r, "/", "invalid order")
			return
		}
		if product, catErr := h.catalog.Product(r.Context(), productID); catErr == nil {
			view.Direct = product
			view.DirectQty = quantity
		}
		items := []domain.OrderItemRequest{{ProductID: productID, Quantity: quantity}}
		result, err = workflow.SubmitItems(r.Context(), items, recipient)
	} else {
		view.State = sess.Cart.State()
		result, err = workflow.SubmitFromCart(r.Context(), recipient)
	}

	var vErr *checkout.ValidationError
	switch {
	case errors.As(err, &vErr):
		p := h.basePage(r, "Checkout")
		view.FieldErrors = vErr.Fields
		p.Data = view
		h.render(w, r, "checkout.gohtml", p)
	case errors.Is(err, checkout.ErrEmptyCart):
		redirectWithError(w, r, "/cart", "your cart is empty, nothing to check out")
	case err != nil:
		p := h.basePage(r, "Checkout")
		p.Error = displayMessage(err, "failed to place the order, please try again")
		if view.Direct == nil {
			view.State = sess.Cart.State()
		}
		p.Data = view
		h.render(w, r, "checkout.gohtml", p)
	default:
		// Stock levels just changed on the server; drop the cached views.
		for _, item := range result.Order.OrderItems {
			h.catalog.Invalidate(r.Context(), item.ProductID)
		}
		p := h.basePage(r, "Order placed")
		p.Flash = result.Message
		p.Data = result.Order
		h.render(w, r, "order_success.gohtml", p)
	}
}

// --- orders ---

type orderListView struct {
	Orders   []domain.Order
	Page     int
	HasNext  bool
	AgentTab bool
}

func (h *Handler) HandleOrders(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	pageNum, size := paging(r)
	orders, err := sess.Client.UserOrders(r.Context(), pageNum, size)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err, "user_id", sess.User.ID)
		h.renderError(w, r, http.StatusBadGateway, "Could not load your orders.")
		return
	}

	p := h.basePage(r, "Your orders")
	p.Data = orderListView{Orders: orders, Page: pageNum, HasNext: len(orders) == size}
	h.render(w, r, "orders.gohtml", p)
}

// HandleAllOrders lists the user's full history in one page, for printing
// and for accounts whose history is too short to page through.
func (h *Handler) HandleAllOrders(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	orders, err := sess.Client.AllUserOrders(r.Context())
	if err != nil {
		h.logger.Error("failed to list orders", "error", err, "user_id", sess.User.ID)
		h.renderError(w, r, http.StatusBadGateway, "Could not load your orders.")
		return
	}

	p := h.basePage(r, "Your orders")
	p.Data = orderListView{Orders: orders}
	h.render(w, r, "orders.gohtml", p)
}

func (h *Handler) HandleAgentOrders(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	if !sess.User.IsAgent() {
		h.renderError(w, r, http.StatusForbidden, "Only agents can view fulfillment orders.")
		return
	}

	pageNum, size := paging(r)
	orders, err := sess.Client.AgentOrders(r.Context(), pageNum, size)
	if err != nil {
		h.logger.Error("failed to list agent orders", "error", err, "user_id", sess.User.ID)
		h.renderError(w, r, http.StatusBadGateway, "Could not load fulfillment orders.")
		return
	}

	p := h.basePage(r, "Fulfillment orders")
	p.Data = orderListView{Orders: orders, Page: pageNum, HasNext: len(orders) == size, AgentTab: true}
	h.render(w, r, "orders.gohtml", p)
}

type orderDetailView struct {
	Order        domain.Order
	CanCancel    bool
	NextStatuses []domain.OrderStatus
}

func (h *Handler) HandleOrderDetail(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	orderID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.renderError(w, r, http.StatusNotFound, "No such order.")
		return
	}

	order, err := sess.Client.Order(r.Context(), orderID)
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			h.renderError(w, r, http.StatusNotFound, "No such order.")
			return
		}
		h.logger.Error("failed to load order", "error", err, "order_id", orderID)
		h.renderError(w, r, http.StatusBadGateway, "Could not load the order.")
		return
	}

	isOwner := order.User.ID == sess.User.ID
	view := orderDetailView{
		Order: *order,
		// Affordances only; the server re-validates every transition.
		CanCancel: isOwner && domain.CanCancel(order.Status),
	}
	if sess.User.IsAgent() && domain.CanAdvanceStatus(order.Status) {
		view.NextStatuses = domain.NextStatuses(order.Status)
	}

	p := h.basePage(r, "Order "+order.OrderNumber)
	p.Data = view
	h.render(w, r, "order_detail.gohtml", p)
}

func (h *Handler) HandleOrderCancel(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	orderID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.renderError(w, r, http.StatusNotFound, "No such order.")
		return
	}
	detailPath := "/orders/" + strconv.FormatInt(orderID, 10)

	if r.FormValue("confirm") != "yes" {
		redirectWithError(w, r, detailPath, "please confirm cancelling the order")
		return
	}

	order, err := sess.Client.CancelOrder(r.Context(), orderID)
	if err != nil {
		h.logger.Warn("order cancel rejected", "error", err, "order_id", orderID)
		redirectWithError(w, r, detailPath, displayMessage(err, "could not cancel the order"))
		return
	}

	for _, item := range order.OrderItems {
		h.catalog.Invalidate(r.Context(), item.ProductID)
	}
	h.logger.Info("order cancelled", "order_number", order.OrderNumber, "user_id", sess.User.ID)
	redirectWithFlash(w, r, detailPath, "Order cancelled, stock has been restored")
}

func (h *Handler) HandleOrderStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	if !sess.User.IsAgent() {
		h.renderError(w, r, http.StatusForbidden, "Only agents can update order status.")
		return
	}

	orderID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.renderError(w, r, http.StatusNotFound, "No such order.")
		return
	}
	detailPath := "/orders/" + strconv.FormatInt(orderID, 10)

	if r.FormValue("confirm") != "yes" {
		redirectWithError(w, r, detailPath, "please confirm the status change")
		return
	}

	status := domain.OrderStatus(r.FormValue("status"))
	// Only reject garbage here; whether the transition is legal for this
	// particular order is the server's call.
	if !status.Known() {
		redirectWithError(w, r, detailPath, "unknown order status")
		return
	}

	order, err := sess.Client.UpdateOrderStatus(r.Context(), orderID, status)
	if err != nil {
		h.logger.Warn("status update rejected", "error", err, "order_id", orderID, "status", status)
		redirectWithError(w, r, detailPath, displayMessage(err, "could not update the order status"))
		return
	}

	h.logger.Info("order status updated", "order_number", order.OrderNumber, "status", order.Status)
	redirectWithFlash(w, r, detailPath, "Order is now "+order.Status.DisplayName())
}

// --- helpers ---

func (h *Handler) publishCartActivity(ctx context.Context, sess *session.Session, action string, productID int64, quantity int) {
	if h.producer == nil {
		return
	}
	event := domain.CartActivityEvent{
		SessionID: sess.ID,
		UserID:    sess.User.ID,
		Action:    action,
		ProductID: productID,
		Quantity:  quantity,
		Timestamp: time.Now().UTC(),
	}
	if err := h.producer.Publish(ctx, sess.ID, event); err != nil {
		h.logger.Error("failed to publish cart activity", "error", err, "action", action)
	}
}

func paging(r *http.Request) (pageNum, size int) {
	pageNum, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if pageNum < 0 {
		pageNum = 0
	}
	size, err := strconv.Atoi(r.URL.Query().Get("size"))
	if err != nil || size < 1 || size > 100 {
		size = 10
	}
	return pageNum, size
}

// displayMessage prefers the server's message when one was sent.
func displayMessage(err error, fallback string) string {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
