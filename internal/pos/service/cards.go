package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Arash3f/icart-pos/internal/pos/domain"
)

// binPrefixes are the issuing prefixes per card class.
var binPrefixes = map[domain.CardType]string{
	domain.CardBlue:     "621986",
	domain.CardGold:     "627488",
	domain.CardPlatinum: "636214",
	domain.CardCredit:   "504172",
}

// CardIssuer creates cards: Luhn number generation with retry on number
// collision, bcrypt-hashed initial password, one active card per funding
// class per wallet.
type CardIssuer struct {
	store domain.Store
	log   *zap.Logger
}

func NewCardIssuer(store domain.Store, log *zap.Logger) *CardIssuer {
	return &CardIssuer{store: store, log: log}
}

// IssueCardRequest describes the card to create.
type IssueCardRequest struct {
	WalletID     uint64
	Type         domain.CardType
	Password     string
	ExpirationAt time.Time
}

// Issue creates and persists the card.
func (ci *CardIssuer) Issue(ctx context.Context, req IssueCardRequest) (*domain.Card, error) {
	if !req.Type.IsValid() || len(req.Password) < 4 || !req.ExpirationAt.After(time.Now()) {
		return nil, domain.ErrIncorrectData
	}
	if _, err := ci.store.Wallets().FindByID(ctx, req.WalletID); err != nil {
		return nil, err
	}

	// Exactly one active card per funding class per wallet.
	existing, err := ci.store.Cards().ActiveForWallet(ctx, req.WalletID, req.Type.FundingClass())
	if err == nil && existing != nil {
		return nil, domain.ErrCardAlreadyExists
	}
	if err != nil && !errors.Is(err, domain.ErrCardNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		number, err := domain.GenerateCardNumber(binPrefixes[req.Type])
		if err != nil {
			return nil, err
		}
		card := &domain.Card{
			Number:       number,
			Type:         req.Type,
			PasswordHash: string(hash),
			ExpirationAt: req.ExpirationAt,
			IsActive:     true,
			WalletID:     req.WalletID,
		}
		err = ci.store.Cards().Create(ctx, card)
		if err == nil {
			ci.log.Info("card issued",
				zap.Uint64("wallet_id", req.WalletID),
				zap.String("type", string(req.Type)))
			return card, nil
		}
		if errors.Is(err, domain.ErrDuplicateCode) {
			continue
		}
		return nil, err
	}
	return nil, domain.ErrTechnicalProblem
}
