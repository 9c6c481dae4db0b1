package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Arash3f/icart-pos/internal/pos/adapter/auth"
	"github.com/Arash3f/icart-pos/internal/pos/domain"
	"github.com/Arash3f/icart-pos/internal/pos/service"
)

// Handler exposes the POS surface and the small back-office surface.
type Handler struct {
	settlement *service.Settlement
	issuer     *service.CardIssuer
	tokens     *auth.JWT
	store      domain.Store
	log        *zap.Logger
}

func NewHandler(settlement *service.Settlement, issuer *service.CardIssuer, tokens *auth.JWT, store domain.Store, log *zap.Logger) *Handler {
	return &Handler{settlement: settlement, issuer: issuer, tokens: tokens, store: store, log: log}
}

// RegisterRoutes mounts the module's routes. authMW guards the admin
// group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, authMW gin.HandlerFunc) {
	pos := r.Group("/pos")
	{
		pos.POST("/balance", h.Balance)
		pos.POST("/purchase", h.Purchase)
		pos.POST("/installments/purchase", h.InstallmentsPurchase)
	}

	r.POST("/auth/login", h.Login)

	admin := r.Group("/admin", authMW)
	{
		admin.GET("/transactions/:code", h.TransactionByCode)
		admin.POST("/cards", h.IssueCard)
	}
}

// Purchase handles POST /pos/purchase.
func (h *Handler) Purchase(c *gin.Context) {
	var req PurchaseReq
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, domain.ErrIncorrectData)
		return
	}

	result, err := h.settlement.Purchase(c.Request.Context(), service.PurchaseRequest{
		TerminalNumber: req.TerminalNumber,
		MerchantNumber: req.MerchantNumber,
		CardNumber:     req.CardNumber,
		Password:       req.Password,
		Amount:         req.Amount,
		Kind:           domain.PurchaseKind(req.PurchaseType),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, PurchaseResp{
		Amount:          result.Amount,
		TransactionCode: result.Code,
		Fee:             result.Fee,
		Time:            result.Time,
	})
}

// InstallmentsPurchase handles POST /pos/installments/purchase.
func (h *Handler) InstallmentsPurchase(c *gin.Context) {
	var req InstallmentsPurchaseReq
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, domain.ErrIncorrectData)
		return
	}

	result, err := h.settlement.InstallmentsPurchase(c.Request.Context(), service.InstallmentsRequest{
		PurchaseRequest: service.PurchaseRequest{
			TerminalNumber: req.TerminalNumber,
			MerchantNumber: req.MerchantNumber,
			CardNumber:     req.CardNumber,
			Password:       req.Password,
			Amount:         req.Amount,
			Kind:           domain.PurchaseKind(req.PurchaseType),
		},
		NumberOfInstallments: req.NumberOfInstallments,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, PurchaseResp{
		Amount:          result.Amount,
		TransactionCode: result.Code,
		Fee:             result.Fee,
		Time:            result.Time,
	})
}

// Balance handles POST /pos/balance.
func (h *Handler) Balance(c *gin.Context) {
	var req BalanceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, domain.ErrIncorrectData)
		return
	}

	result, err := h.settlement.Balance(c.Request.Context(), service.BalanceRequest{
		TerminalNumber: req.TerminalNumber,
		MerchantNumber: req.MerchantNumber,
		CardNumber:     req.CardNumber,
		Password:       req.Password,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, BalanceResp{
		CashBalance:   result.CashBalance,
		CreditBalance: result.CreditBalance,
		Code:          result.Code,
		Time:          result.Time,
	})
}

// Login handles POST /auth/login for back-office users.
func (h *Handler) Login(c *gin.Context) {
	var req LoginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, domain.ErrIncorrectData)
		return
	}

	user, err := h.store.Users().FindByPhone(c.Request.Context(), req.Phone)
	if err != nil {
		h.writeError(c, domain.ErrIncorrectData)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		h.writeError(c, domain.ErrIncorrectData)
		return
	}

	token, err := h.tokens.IssueToken(user)
	if err != nil {
		h.log.Error("failed to sign token", zap.Error(err))
		h.writeError(c, domain.ErrTechnicalProblem)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// TransactionByCode handles GET /admin/transactions/:code.
func (h *Handler) TransactionByCode(c *gin.Context) {
	txn, err := h.store.Transactions().FindByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

// IssueCard handles POST /admin/cards.
func (h *Handler) IssueCard(c *gin.Context) {
	var req IssueCardReq
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, domain.ErrIncorrectData)
		return
	}

	card, err := h.issuer.Issue(c.Request.Context(), service.IssueCardRequest{
		WalletID:     req.WalletID,
		Type:         domain.CardType(req.Type),
		Password:     req.Password,
		ExpirationAt: req.ExpirationAt,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"card_number":   card.Number,
		"type":          card.Type,
		"expiration_at": card.ExpirationAt,
	})
}

// writeError maps a domain error to the envelope. Unclassified errors are
// logged and surface as the generic technical problem.
func (h *Handler) writeError(c *gin.Context, err error) {
	de := domain.AsDomain(err)
	if de == nil {
		h.log.Error("unclassified handler error", zap.Error(err))
		de = domain.ErrTechnicalProblem
	}

	c.JSON(statusFor(de), ErrorResp{
		Code:           de.Code,
		PersianMessage: de.Persian,
		EnglishMessage: de.English,
		Time:           time.Now(),
		TraceID:        uuid.NewString(),
	})
}

func statusFor(de *domain.Error) int {
	switch de.Code {
	case domain.ErrCardNotFound.Code, domain.ErrTerminalNotFound.Code,
		domain.ErrMerchantNotFound.Code, domain.ErrWalletNotFound.Code:
		return http.StatusNotFound
	case domain.ErrCardExpired.Code, domain.ErrCardPasswordInvalid.Code,
		domain.ErrIncorrectData.Code:
		return http.StatusBadRequest
	case domain.ErrLackOfMoney.Code, domain.ErrLackOfCredit.Code,
		domain.ErrMerchantLackOfMoney.Code:
		return http.StatusPaymentRequired
	case domain.ErrWalletLocked.Code:
		return http.StatusLocked
	case domain.ErrTransactionLimit.Code:
		return http.StatusTooManyRequests
	case domain.ErrDuplicateCode.Code, domain.ErrCardAlreadyExists.Code:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
