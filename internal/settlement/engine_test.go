package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/njuka/internal/apperr"
	"github.com/jason-s-yu/njuka/internal/game"
	"github.com/jason-s-yu/njuka/internal/ledger"
	"github.com/jason-s-yu/njuka/internal/lobby"
	"github.com/jason-s-yu/njuka/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEngine(t *testing.T) (*Engine, *ledger.Memory, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	mem := ledger.NewMemory(0)
	return NewEngine(mem, "house", logger), mem, hook
}

func wonGame(t *testing.T, pot float64) *game.NjukaGame {
	t.Helper()
	g := game.NewGame(game.ModeMultiplayer, 2, pot/2, nil)
	_, err := g.AddPlayer("P1", "uid1", false)
	require.NoError(t, err)
	_, err = g.AddPlayer("P2", "uid2", false)
	require.NoError(t, err)
	g.PotAmount = pot
	g.Winner = "P1"
	g.WinnerUserID = "uid1"
	g.GameOver = true
	return g
}

func txTypes(txs []models.Transaction) []models.TransactionType {
	out := make([]models.TransactionType, len(txs))
	for i, tx := range txs {
		out[i] = tx.Type
	}
	return out
}

func TestSplit(t *testing.T) {
	assert.Equal(t, Payout{HouseCut: 10.0, WinnerAmount: 90.0}, Split(100))
	assert.Equal(t, Payout{HouseCut: 15.5, WinnerAmount: 139.5}, Split(155))
	assert.Equal(t, Payout{HouseCut: 0.3, WinnerAmount: 2.7}, Split(3))
}

func TestDistributeWinnings(t *testing.T) {
	ctx := context.Background()
	e, mem, _ := setupEngine(t)
	mem.SetBalance("uid1", 0)
	g := wonGame(t, 155)

	payout, err := e.DistributeWinnings(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, 139.5, payout.WinnerAmount)
	assert.Equal(t, 15.5, payout.HouseCut)
	assert.Equal(t, 139.5, g.WinnerAmount)
	assert.Equal(t, 15.5, g.HouseCut)
	assert.True(t, g.Settled)

	bal, _ := mem.Balance(ctx, "uid1")
	assert.Equal(t, 139.5, bal)
	house, err := e.HouseBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 15.5, house)
	assert.Equal(t, []models.TransactionType{models.TxWinnings, models.TxHouseCut}, txTypes(mem.Transactions()))

	// settling twice pays nothing more
	_, err = e.DistributeWinnings(ctx, g)
	require.NoError(t, err)
	bal, _ = mem.Balance(ctx, "uid1")
	assert.Equal(t, 139.5, bal)
}

func TestDistributeWinnings_NoOps(t *testing.T) {
	ctx := context.Background()
	e, mem, _ := setupEngine(t)

	g := wonGame(t, 0)
	payout, err := e.DistributeWinnings(ctx, g)
	require.NoError(t, err)
	assert.Zero(t, payout)

	g = wonGame(t, 100)
	g.Winner = ""
	_, err = e.DistributeWinnings(ctx, g)
	require.NoError(t, err)
	assert.Empty(t, mem.Transactions())
}

func TestDistributeWinnings_FallsBackToDisplayName(t *testing.T) {
	ctx := context.Background()
	e, mem, _ := setupEngine(t)
	mem.SetBalance("P1", 5)
	g := wonGame(t, 100)
	g.WinnerUserID = ""

	_, err := e.DistributeWinnings(ctx, g)
	require.NoError(t, err)
	bal, _ := mem.Balance(ctx, "P1")
	assert.Equal(t, 95.0, bal)
}

func TestDistributeWinnings_OneLegFails(t *testing.T) {
	ctx := context.Background()
	e, mem, hook := setupEngine(t)
	mem.SetBalance("uid1", 0)
	mem.FailFor("uid1", errors.New("ledger unavailable"))
	g := wonGame(t, 100)

	payout, err := e.DistributeWinnings(ctx, g)
	require.Error(t, err)
	assert.Equal(t, apperr.KindPartialSettlement, apperr.KindOf(err))
	assert.Equal(t, 90.0, payout.WinnerAmount)
	assert.True(t, g.GameOver)

	// the house leg still went through
	house, _ := e.HouseBalance(ctx)
	assert.Equal(t, 10.0, house)
	assert.Equal(t, []models.TransactionType{models.TxHouseCut}, txTypes(mem.Transactions()))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	assert.Equal(t, logrus.ErrorLevel, hook.Entries[0].Level)
}

func TestDistributeWinnings_MissingWinnerAccount(t *testing.T) {
	ctx := context.Background()
	e, _, _ := setupEngine(t)
	g := wonGame(t, 100)

	_, err := e.DistributeWinnings(ctx, g)
	assert.Equal(t, apperr.KindPartialSettlement, apperr.KindOf(err))
	house, _ := e.HouseBalance(ctx)
	assert.Equal(t, 10.0, house)
}

func TestForfeitPotToHouse(t *testing.T) {
	ctx := context.Background()
	e, mem, _ := setupEngine(t)
	g := wonGame(t, 40)
	g.Winner, g.WinnerUserID = "", ""

	require.NoError(t, e.ForfeitPotToHouse(ctx, g))
	assert.True(t, g.Forfeited)
	assert.Equal(t, 40.0, g.HouseCut)
	assert.Zero(t, g.WinnerAmount)

	house, _ := e.HouseBalance(ctx)
	assert.Equal(t, 40.0, house)
	assert.Equal(t, []models.TransactionType{models.TxHouseForfeit}, txTypes(mem.Transactions()))
}

func TestCollectFees_PartialFailureSkipsPlayer(t *testing.T) {
	ctx := context.Background()
	e, mem, _ := setupEngine(t)
	now := time.Now()
	l := lobby.New("Host", "h1", 3, 10, uuid.New(), now)
	require.NoError(t, l.AddMember("Bob", "b1", now))
	require.NoError(t, l.AddMember("Cat", "c1", now))
	mem.SetBalance("h1", 50)
	mem.SetBalance("b1", 5)
	mem.SetBalance("c1", 10)

	total, err := e.CollectFees(ctx, l)
	assert.Equal(t, apperr.KindPartialSettlement, apperr.KindOf(err))
	assert.Equal(t, 20.0, total)
	assert.Equal(t, []string{"h1", "c1"}, l.PaidUserIDs)

	bal, _ := mem.Balance(ctx, "b1")
	assert.Equal(t, 5.0, bal)
	bal, _ = mem.Balance(ctx, "c1")
	assert.Zero(t, bal)
	assert.Len(t, mem.Transactions(), 2)
}

func TestRefund(t *testing.T) {
	ctx := context.Background()
	e, mem, _ := setupEngine(t)
	now := time.Now()
	l := lobby.New("Host", "h1", 2, 10, uuid.New(), now)
	require.NoError(t, l.AddMember("Bob", "b1", now))
	mem.SetBalance("h1", 0)
	mem.SetBalance("b1", 0)
	l.MarkPaid("h1")
	l.MarkPaid("b1")
	l.PaidUserIDs = append(l.PaidUserIDs, "h1")

	require.NoError(t, e.Refund(ctx, l))
	bal, _ := mem.Balance(ctx, "h1")
	assert.Equal(t, 10.0, bal, "each member refunded once")
	bal, _ = mem.Balance(ctx, "b1")
	assert.Equal(t, 10.0, bal)
	assert.Equal(t, []models.TransactionType{models.TxRefund, models.TxRefund}, txTypes(mem.Transactions()))
}

func TestRefund_FailureDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	e, mem, _ := setupEngine(t)
	now := time.Now()
	l := lobby.New("Host", "h1", 2, 10, uuid.New(), now)
	require.NoError(t, l.AddMember("Bob", "b1", now))
	mem.SetBalance("b1", 0)
	l.MarkPaid("h1") // no account for h1
	l.MarkPaid("b1")

	err := e.Refund(ctx, l)
	assert.Equal(t, apperr.KindPartialSettlement, apperr.KindOf(err))
	bal, _ := mem.Balance(ctx, "b1")
	assert.Equal(t, 10.0, bal)
}

func TestCheckBalance(t *testing.T) {
	ctx := context.Background()
	e, mem, _ := setupEngine(t)
	mem.SetBalance("rich", 100)
	mem.SetBalance("poor", 5)
	mem.SetBalance("broke", 0)

	assert.NoError(t, e.CheckBalance(ctx, "rich", 10))
	assert.Equal(t, apperr.KindInsufficientFunds, apperr.KindOf(e.CheckBalance(ctx, "poor", 10)))
	assert.Equal(t, apperr.KindInsufficientFunds, apperr.KindOf(e.CheckBalance(ctx, "broke", 0)))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(e.CheckBalance(ctx, "ghost", 1)))

	mem.FailFor("rich", errors.New("timeout"))
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(e.CheckBalance(ctx, "rich", 1)))
}
