package handlers

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/njuka/internal/auth"
	"github.com/jason-s-yu/njuka/internal/game"
	"github.com/jason-s-yu/njuka/internal/hub"
	"github.com/jason-s-yu/njuka/internal/ledger"
	"github.com/jason-s-yu/njuka/internal/lobby"
	"github.com/jason-s-yu/njuka/internal/payments"
	"github.com/jason-s-yu/njuka/internal/session"
	"github.com/jason-s-yu/njuka/internal/settlement"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "whsec"

type fakeGateway struct{}

func (fakeGateway) InitiateMomoDeposit(context.Context, payments.MomoTransfer) (map[string]interface{}, error) {
	return map[string]interface{}{"status": "pending", "identifier": "gw-1"}, nil
}

func (fakeGateway) InitiateMomoWithdrawal(context.Context, payments.MomoTransfer) (map[string]interface{}, error) {
	return map[string]interface{}{"status": "pending", "identifier": "gw-2"}, nil
}

func (fakeGateway) InitiateCardPayment(context.Context, payments.CardTransfer) (map[string]interface{}, error) {
	return map[string]interface{}{"status": "pending", "identifier": "gw-3"}, nil
}

func (fakeGateway) CheckStatus(context.Context, string, payments.TxType) (map[string]interface{}, error) {
	return map[string]interface{}{"status": "Pending"}, nil
}

type unavailableVerifier struct{}

func (unavailableVerifier) Verify(context.Context, string) (string, error) {
	return "", auth.ErrUnavailable
}

type testEnv struct {
	ts     *httptest.Server
	mem    *ledger.Memory
	signer *auth.Signer
}

func (e *testEnv) token(t *testing.T, uid string) string {
	t.Helper()
	tok, err := e.signer.CreateJWT(uid)
	require.NoError(t, err)
	return tok
}

func setupAPI(t *testing.T) *testEnv {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	mem := ledger.NewMemory(100)
	mem.SetBalance("house", 0)

	engine := settlement.NewEngine(mem, "house", logger)
	sessions := session.New(engine, hub.New(logger), logger, session.Options{})
	pay := payments.NewService(fakeGateway{}, payments.NewMemoryStore(), mem, logger, payments.Options{WebhookSecret: webhookSecret})

	api := NewAPI(sessions, pay, auth.NewJWTVerifier(pub, "njuka-test"), logger, Options{
		IsAdmin: func(uid string) bool { return uid == "admin-uid" },
	})
	ts := httptest.NewServer(api.Router())
	t.Cleanup(func() {
		ts.Close()
		sessions.Close()
	})

	return &testEnv{ts: ts, mem: mem, signer: auth.NewSigner(priv, "njuka-test", time.Hour)}
}

func assertDo(t *testing.T, req *http.Request, respObj interface{}, statusCode int, signedJWT ...string) {
	t.Helper()

	if len(signedJWT) > 0 {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", signedJWT[0]))
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if !assert.Equal(t, statusCode, resp.StatusCode) {
		b, _ := io.ReadAll(resp.Body)
		t.Log(string(b))
		return
	}

	if respObj != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(respObj))
	}
}

func assertGet(t *testing.T, ts *httptest.Server, path string, respObj interface{}, statusCode int, signedJWT ...string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	require.NoError(t, err)
	assertDo(t, req, respObj, statusCode, signedJWT...)
}

func assertPost(t *testing.T, ts *httptest.Server, path string, payload interface{}, respObj interface{}, statusCode int, signedJWT ...string) {
	t.Helper()

	var body io.Reader = http.NoBody
	switch val := payload.(type) {
	case nil:
	case string:
		body = strings.NewReader(val)
	default:
		b, err := json.Marshal(val)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequest(http.MethodPost, ts.URL+path, body)
	require.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	assertDo(t, req, respObj, statusCode, signedJWT...)
}

func createLobby(t *testing.T, env *testEnv, hostUID string) session.LobbyResult {
	t.Helper()
	var res session.LobbyResult
	assertPost(t, env.ts, "/lobby/create", map[string]interface{}{
		"host":        "Host",
		"max_players": 4,
		"entry_fee":   10,
	}, &res, http.StatusOK, env.token(t, hostUID))
	return res
}

func TestHealth(t *testing.T) {
	env := setupAPI(t)

	var resp healthResponse
	assertGet(t, env.ts, "/health", &resp, http.StatusOK)
	assert.Equal(t, "ok", resp.Status)
}

func TestAuthMiddleware(t *testing.T) {
	env := setupAPI(t)

	var errResp errorResponse
	assertPost(t, env.ts, "/lobby/create", map[string]interface{}{"host": "Host"}, &errResp, http.StatusUnauthorized)
	assert.Equal(t, http.StatusUnauthorized, errResp.StatusCode)

	assertPost(t, env.ts, "/lobby/create", map[string]interface{}{"host": "Host"}, nil, http.StatusUnauthorized, "garbage")
}

func TestAuthMiddleware_VerifierUnavailable(t *testing.T) {
	logger, _ := test.NewNullLogger()
	api := NewAPI(nil, nil, unavailableVerifier{}, logger, Options{})
	ts := httptest.NewServer(api.Router())
	defer ts.Close()

	var errResp errorResponse
	assertGet(t, ts, "/api/payments/balance", &errResp, http.StatusServiceUnavailable, "any")
	assert.Equal(t, http.StatusText(http.StatusServiceUnavailable), errResp.Message)
}

func TestLobbyLifecycle(t *testing.T) {
	env := setupAPI(t)
	created := createLobby(t, env, "host-uid")
	assert.Equal(t, []string{"Host"}, created.Lobby.Players)
	assert.Equal(t, created.Lobby.GameID, created.Game.ID)

	var open []lobby.Snapshot
	assertGet(t, env.ts, "/lobby/list", &open, http.StatusOK)
	require.Len(t, open, 1)
	assert.Equal(t, created.Lobby.ID, open[0].ID)

	lobbyPath := "/lobby/" + created.Lobby.ID.String()

	var joined session.LobbyResult
	assertPost(t, env.ts, lobbyPath+"/join", map[string]string{"player": "Guest"}, &joined, http.StatusOK, env.token(t, "guest-uid"))
	assert.Equal(t, []string{"Host", "Guest"}, joined.Lobby.Players)
	assert.Equal(t, []string{"host-uid", "guest-uid"}, joined.Lobby.PlayerUserIDs)

	var errResp errorResponse
	assertPost(t, env.ts, lobbyPath+"/start", nil, &errResp, http.StatusForbidden, env.token(t, "guest-uid"))
	assert.Equal(t, "only the host can start the game", errResp.Message)

	var started session.LobbyResult
	assertPost(t, env.ts, lobbyPath+"/start", nil, &started, http.StatusOK, env.token(t, "host-uid"))
	assert.True(t, started.Lobby.Started)
	assert.ElementsMatch(t, []string{"host-uid", "guest-uid"}, started.Lobby.PaidUserIDs)
	assert.Equal(t, 20.0, started.Game.PotAmount)

	bal, err := env.mem.Balance(context.Background(), "guest-uid")
	require.NoError(t, err)
	assert.Equal(t, 90.0, bal)

	var cancelled statusResponse
	assertPost(t, env.ts, lobbyPath+"/cancel", nil, &cancelled, http.StatusOK, env.token(t, "host-uid"))
	assert.Equal(t, "success", cancelled.Status)

	bal, err = env.mem.Balance(context.Background(), "guest-uid")
	require.NoError(t, err)
	assert.Equal(t, 100.0, bal)

	assertGet(t, env.ts, lobbyPath, nil, http.StatusNotFound)
	assertGet(t, env.ts, "/game/"+created.Game.ID.String(), nil, http.StatusNotFound)
}

func TestLobbyCreate_Rejections(t *testing.T) {
	env := setupAPI(t)
	tok := env.token(t, "host-uid")

	assertPost(t, env.ts, "/lobby/create", map[string]interface{}{"host": "Host", "max_players": 9, "entry_fee": 10}, nil, http.StatusBadRequest, tok)
	assertPost(t, env.ts, "/lobby/create", "{not json", nil, http.StatusBadRequest, tok)

	env.mem.SetBalance("broke-uid", 0)
	assertPost(t, env.ts, "/lobby/create", map[string]interface{}{"host": "Broke", "max_players": 2, "entry_fee": 10}, nil, http.StatusPaymentRequired, env.token(t, "broke-uid"))
}

func TestLobbyQuit(t *testing.T) {
	env := setupAPI(t)
	created := createLobby(t, env, "host-uid")
	lobbyPath := "/lobby/" + created.Lobby.ID.String()

	assertPost(t, env.ts, lobbyPath+"/join", map[string]string{"player": "Guest"}, nil, http.StatusOK, env.token(t, "guest-uid"))

	var quit session.QuitResult
	assertPost(t, env.ts, lobbyPath+"/quit", nil, &quit, http.StatusOK, env.token(t, "guest-uid"))
	assert.False(t, quit.Cancelled)
	require.NotNil(t, quit.Lobby)
	assert.Equal(t, []string{"Host"}, quit.Lobby.Players)

	assertPost(t, env.ts, lobbyPath+"/quit", nil, &quit, http.StatusOK, env.token(t, "host-uid"))
	assert.True(t, quit.Cancelled)
	assertGet(t, env.ts, lobbyPath, nil, http.StatusNotFound)
}

func TestTutorialGame(t *testing.T) {
	env := setupAPI(t)
	tok := env.token(t, "solo-uid")

	var snap game.Snapshot
	assertPost(t, env.ts, "/new_game?mode=tutorial&player_name=Solo", nil, &snap, http.StatusOK, tok)
	assert.Equal(t, game.ModeTutorial, snap.Mode)
	require.Len(t, snap.Players, 2)

	var fetched game.Snapshot
	assertGet(t, env.ts, "/game/"+snap.ID.String(), &fetched, http.StatusOK)
	assert.Equal(t, snap.ID, fetched.ID)

	assertPost(t, env.ts, "/new_game?mode=multiplayer", nil, nil, http.StatusBadRequest, tok)
	assertPost(t, env.ts, "/game/"+snap.ID.String()+"/discard?card_index=abc", nil, nil, http.StatusBadRequest, tok)
}

func TestGameNotFound(t *testing.T) {
	env := setupAPI(t)
	id := uuid.NewString()

	assertGet(t, env.ts, "/game/"+id, nil, http.StatusNotFound)
	assertPost(t, env.ts, "/game/"+id+"/draw", nil, nil, http.StatusNotFound, env.token(t, "uid"))
	assertGet(t, env.ts, "/game/not-a-uuid", nil, http.StatusNotFound)
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, env *testEnv, body []byte, signature string) payments.WebhookResult {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, env.ts.URL+"/api/payments/webhook/lipila", bytes.NewReader(body))
	require.NoError(t, err)
	if signature != "" {
		req.Header.Set("X-Lipila-Signature", signature)
	}
	var res payments.WebhookResult
	assertDo(t, req, &res, http.StatusOK)
	return res
}

func TestDepositFlow(t *testing.T) {
	env := setupAPI(t)
	tok := env.token(t, "payer-uid")

	var bal balanceResponse
	assertGet(t, env.ts, "/api/payments/balance", &bal, http.StatusOK, tok)
	assert.Equal(t, 100.0, bal.WalletBalance)

	var initiated payments.InitiateResult
	assertPost(t, env.ts, "/api/payments/deposit/momo", map[string]interface{}{"amount": 25, "phone": "0971234567"}, &initiated, http.StatusOK, tok)
	require.NotEmpty(t, initiated.Reference)

	var status payments.StatusResult
	assertGet(t, env.ts, "/api/payments/transaction/status?reference_id="+initiated.Reference+"&transaction_type=collection", &status, http.StatusOK, tok)
	assert.Equal(t, initiated.Reference, status.ReferenceID)
	assertGet(t, env.ts, "/api/payments/transaction/status?reference_id="+initiated.Reference, nil, http.StatusNotFound, env.token(t, "someone-else"))

	body := []byte(fmt.Sprintf(`{"referenceId":%q,"status":"Successful","amount":25,"type":"collection"}`, initiated.Reference))
	res := postWebhook(t, env, body, sign(body))
	assert.Equal(t, "received", res.Status)
	assert.Empty(t, res.Error)

	// a retried webhook is acknowledged but not applied twice
	postWebhook(t, env, body, sign(body))

	assertGet(t, env.ts, "/api/payments/balance", &bal, http.StatusOK, tok)
	assert.Equal(t, 125.0, bal.WalletBalance)
}

func TestWebhook_AlwaysAcknowledges(t *testing.T) {
	env := setupAPI(t)

	res := postWebhook(t, env, []byte(`{"referenceId":"x","status":"Successful"}`), "deadbeef")
	assert.Equal(t, "received", res.Status)
	assert.Equal(t, "invalid signature", res.Error)

	res = postWebhook(t, env, []byte(`{`), "")
	assert.Equal(t, "received", res.Status)
}

func TestPayments_Validation(t *testing.T) {
	env := setupAPI(t)
	tok := env.token(t, "payer-uid")

	assertPost(t, env.ts, "/api/payments/deposit/momo", map[string]interface{}{"amount": 0, "phone": "0971234567"}, nil, http.StatusBadRequest, tok)
	assertPost(t, env.ts, "/api/payments/withdraw/momo", map[string]interface{}{"amount": 500, "phone": "0971234567"}, nil, http.StatusPaymentRequired, tok)
	assertGet(t, env.ts, "/api/payments/transaction/status", nil, http.StatusBadRequest, tok)

	req, err := http.NewRequest(http.MethodPost, env.ts.URL+"/api/payments/deposit/momo", strings.NewReader("amount=1"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	assertDo(t, req, nil, http.StatusUnsupportedMediaType, tok)
}

func TestHouseBalance(t *testing.T) {
	env := setupAPI(t)

	assertGet(t, env.ts, "/api/admin/house-balance", nil, http.StatusUnauthorized)
	assertGet(t, env.ts, "/api/admin/house-balance", nil, http.StatusForbidden, env.token(t, "player-uid"))

	env.mem.SetBalance("house", 12.5)
	var resp houseBalanceResponse
	assertGet(t, env.ts, "/api/admin/house-balance", &resp, http.StatusOK, env.token(t, "admin-uid"))
	assert.Equal(t, 12.5, resp.HouseBalance)
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func readEnvelope(t *testing.T, ctx context.Context, c *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	return env.Type, env.Data
}

func TestLobbyWS(t *testing.T) {
	env := setupAPI(t)
	created := createLobby(t, env, "host-uid")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, wsURL(env.ts, "/ws/lobby/"+created.Lobby.ID.String()+"?access_token="+env.token(t, "watcher-uid")), nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	typ, _ := readEnvelope(t, ctx, c)
	assert.Equal(t, hub.TypeLobbyUpdate, typ)

	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)))
	typ, _ = readEnvelope(t, ctx, c)
	assert.Equal(t, hub.TypePong, typ)

	assertPost(t, env.ts, "/lobby/"+created.Lobby.ID.String()+"/join", map[string]string{"player": "Guest"}, nil, http.StatusOK, env.token(t, "guest-uid"))

	typ, data := readEnvelope(t, ctx, c)
	assert.Equal(t, hub.TypeLobbyUpdate, typ)
	var snap lobby.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, []string{"Host", "Guest"}, snap.Players)

	assertPost(t, env.ts, "/lobby/"+created.Lobby.ID.String()+"/cancel", nil, nil, http.StatusOK, env.token(t, "host-uid"))
	typ, _ = readEnvelope(t, ctx, c)
	assert.Equal(t, hub.TypeLobbyCancelled, typ)
}

func TestGameWS(t *testing.T) {
	env := setupAPI(t)
	created := createLobby(t, env, "host-uid")
	tok := env.token(t, "host-uid")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, wsURL(env.ts, "/ws/game/"+created.Game.ID.String()+"?player_name=Host&access_token="+tok), nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	typ, data := readEnvelope(t, ctx, c)
	assert.Equal(t, hub.TypeGameUpdate, typ)
	var snap game.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, created.Game.ID, snap.ID)

	assertPost(t, env.ts, "/lobby/"+created.Lobby.ID.String()+"/join", map[string]string{"player": "Guest"}, nil, http.StatusOK, env.token(t, "guest-uid"))
	typ, data = readEnvelope(t, ctx, c)
	assert.Equal(t, hub.TypeGameUpdate, typ)
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Len(t, snap.Players, 2)
}

func TestGameWS_UnknownGame(t *testing.T) {
	env := setupAPI(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, wsURL(env.ts, "/ws/game/"+uuid.NewString()+"?player_name=Nobody&access_token="+env.token(t, "uid")), nil)
	require.NoError(t, err)
	defer c.CloseNow()

	_, _, err = c.Read(ctx)
	assert.Equal(t, RoomNotFoundError, websocket.CloseStatus(err))
}
