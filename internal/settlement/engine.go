// internal/settlement/engine.go
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/njuka/internal/apperr"
	"github.com/jason-s-yu/njuka/internal/game"
	"github.com/jason-s-yu/njuka/internal/ledger"
	"github.com/jason-s-yu/njuka/internal/lobby"
	"github.com/jason-s-yu/njuka/internal/models"
	"github.com/sirupsen/logrus"
)

// HouseCutRate is the share of every pot kept by the house.
const HouseCutRate = 0.10

// Payout is the split of a pot between the winner and the house.
type Payout struct {
	WinnerAmount float64 `json:"winner_amount"`
	HouseCut     float64 `json:"house_cut"`
}

// Split computes the payout for a pot, rounding each side to two decimals.
func Split(pot float64) Payout {
	cut := ledger.Round2(pot * HouseCutRate)
	return Payout{
		HouseCut:     cut,
		WinnerAmount: ledger.Round2(pot - cut),
	}
}

// Engine moves wagers between players and the house through the ledger.
// Each leg is independent: a failed leg is logged and reported, never rolled back.
type Engine struct {
	ledger ledger.Ledger
	house  string
	logger *logrus.Logger
}

func NewEngine(l ledger.Ledger, houseAccount string, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{ledger: l, house: houseAccount, logger: logger}
}

// HouseAccount returns the ledger account that receives house cuts.
func (e *Engine) HouseAccount() string {
	return e.house
}

// HouseBalance returns the accumulated house earnings. A missing account counts as zero.
func (e *Engine) HouseBalance(ctx context.Context) (float64, error) {
	bal, err := e.ledger.Balance(ctx, e.house)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, classify(err, "read house balance")
	}
	return bal, nil
}

// Balance returns a user's balance.
func (e *Engine) Balance(ctx context.Context, userID string) (float64, error) {
	bal, err := e.ledger.Balance(ctx, userID)
	if err != nil {
		return 0, classify(err, "read balance")
	}
	return bal, nil
}

// CheckBalance verifies a user could cover fee without charging them.
func (e *Engine) CheckBalance(ctx context.Context, userID string, fee float64) error {
	bal, err := e.Balance(ctx, userID)
	if err != nil {
		return err
	}
	if bal <= 0 || bal < fee {
		return apperr.InsufficientFunds("insufficient balance: K%.2f available, K%.2f required", bal, fee)
	}
	return nil
}

// CollectEntryFee debits exactly fee from userID and records the transaction.
func (e *Engine) CollectEntryFee(ctx context.Context, lobbyID, gameID uuid.UUID, userID string, fee float64) error {
	if _, err := e.ledger.Debit(ctx, userID, fee); err != nil {
		return classify(err, "collect entry fee")
	}
	e.record(ctx, models.Transaction{
		UserID:      userID,
		Type:        models.TxEntryFee,
		Amount:      fee,
		GameID:      gameID.String(),
		LobbyID:     lobbyID.String(),
		Description: "Entry fee",
	})
	return nil
}

// CollectFees charges every member of l independently. Members that cannot pay are
// logged and skipped. It returns the total collected and, if any member failed,
// a PartialSettlement error listing the failures. Assumes l.Mu is held.
func (e *Engine) CollectFees(ctx context.Context, l *lobby.Lobby) (float64, error) {
	var (
		total float64
		errs  []error
	)
	for i, uid := range l.PlayerUserIDs {
		if err := e.CollectEntryFee(ctx, l.ID, l.GameID, uid, l.EntryFee); err != nil {
			e.logger.WithFields(logrus.Fields{
				"lobby":  l.ID,
				"player": l.Players[i],
				"uid":    uid,
			}).WithError(err).Warn("entry fee collection failed, skipping player")
			errs = append(errs, fmt.Errorf("%s: %w", uid, err))
			continue
		}
		l.MarkPaid(uid)
		total += l.EntryFee
	}
	total = ledger.Round2(total)
	if len(errs) > 0 {
		return total, apperr.PartialSettlement("entry fee collection incomplete", errs...)
	}
	return total, nil
}

// DistributeWinnings pays the winner and the house from the pot of g.
// It is a no-op without a winner, with an empty pot, or when already settled.
// Assumes g.Mu is held.
func (e *Engine) DistributeWinnings(ctx context.Context, g *game.NjukaGame) (Payout, error) {
	if g.Winner == "" || g.PotAmount <= 0 || g.Settled {
		return Payout{}, nil
	}

	payout := Split(g.PotAmount)
	account := g.WinnerUserID
	if account == "" {
		account = g.Winner
	}
	fields := logrus.Fields{"game": g.ID, "winner": g.Winner, "pot": g.PotAmount}

	var errs []error
	if _, err := e.ledger.Credit(ctx, account, payout.WinnerAmount, false); err != nil {
		e.logger.WithFields(fields).WithError(err).Error("winner payout failed")
		errs = append(errs, fmt.Errorf("winner leg: %w", err))
	} else {
		e.record(ctx, models.Transaction{
			UserID:      account,
			Type:        models.TxWinnings,
			Amount:      payout.WinnerAmount,
			GameID:      g.ID.String(),
			Description: fmt.Sprintf("Winnings from pot of K%.2f", g.PotAmount),
		})
	}

	if _, err := e.ledger.Credit(ctx, e.house, payout.HouseCut, true); err != nil {
		e.logger.WithFields(fields).WithError(err).Error("house cut credit failed")
		errs = append(errs, fmt.Errorf("house leg: %w", err))
	} else {
		e.record(ctx, models.Transaction{
			UserID:      e.house,
			Type:        models.TxHouseCut,
			Amount:      payout.HouseCut,
			GameID:      g.ID.String(),
			Description: "House cut",
		})
	}

	g.RecordSettlement(payout.WinnerAmount, payout.HouseCut)
	e.logger.WithFields(fields).WithFields(logrus.Fields{
		"winner_amount": payout.WinnerAmount,
		"house_cut":     payout.HouseCut,
	}).Info("winnings distributed")

	if len(errs) > 0 {
		return payout, apperr.PartialSettlement("settlement incomplete", errs...)
	}
	return payout, nil
}

// ForfeitPotToHouse credits the entire pot to the house when no winner remains.
// The game is marked forfeited even if the credit fails. Assumes g.Mu is held.
func (e *Engine) ForfeitPotToHouse(ctx context.Context, g *game.NjukaGame) error {
	defer g.MarkForfeited()
	if g.PotAmount <= 0 {
		return nil
	}

	if _, err := e.ledger.Credit(ctx, e.house, g.PotAmount, true); err != nil {
		e.logger.WithField("game", g.ID).WithError(err).Error("pot forfeiture failed")
		return classify(err, "forfeit pot to house")
	}
	e.record(ctx, models.Transaction{
		UserID:      e.house,
		Type:        models.TxHouseForfeit,
		Amount:      g.PotAmount,
		GameID:      g.ID.String(),
		Description: "Pot forfeited: all players quit",
	})
	return nil
}

// Refund returns the entry fee to every member whose fee was collected.
// Failures are logged and reported together. Assumes l.Mu is held.
func (e *Engine) Refund(ctx context.Context, l *lobby.Lobby) error {
	var errs []error
	seen := make(map[string]bool, len(l.PaidUserIDs))
	for _, uid := range l.PaidUserIDs {
		if seen[uid] {
			continue
		}
		seen[uid] = true

		if _, err := e.ledger.Credit(ctx, uid, l.EntryFee, false); err != nil {
			e.logger.WithFields(logrus.Fields{"lobby": l.ID, "uid": uid}).WithError(err).Error("refund failed")
			errs = append(errs, fmt.Errorf("%s: %w", uid, err))
			continue
		}
		e.record(ctx, models.Transaction{
			UserID:      uid,
			Type:        models.TxRefund,
			Amount:      l.EntryFee,
			LobbyID:     l.ID.String(),
			GameID:      l.GameID.String(),
			Description: "Lobby cancelled",
		})
	}
	if len(errs) > 0 {
		return apperr.PartialSettlement("refund incomplete", errs...)
	}
	return nil
}

func (e *Engine) record(ctx context.Context, tx models.Transaction) {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	if err := e.ledger.Record(ctx, tx); err != nil {
		e.logger.WithFields(logrus.Fields{
			"uid":    tx.UserID,
			"type":   tx.Type,
			"amount": tx.Amount,
		}).WithError(err).Error("failed to record transaction")
	}
}

// classify keeps classified ledger errors and treats anything else as the ledger being unreachable.
func classify(err error, op string) error {
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	return apperr.Upstream(err, op)
}
