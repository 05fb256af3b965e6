// internal/handlers/router.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jason-s-yu/njuka/internal/auth"
	"github.com/jason-s-yu/njuka/internal/payments"
	"github.com/jason-s-yu/njuka/internal/session"
	"github.com/sirupsen/logrus"
)

// uuidPattern constrains lobby and game route variables.
const uuidPattern = "{id:(?i)[a-f0-9]{8}(?:-[a-f0-9]{4}){3}-[a-f0-9]{12}}"

// Options configures the HTTP surface.
type Options struct {
	// IsAdmin decides access to the admin endpoints. Nil denies everyone.
	IsAdmin func(userID string) bool
	// OriginPatterns are passed to the websocket handshake. Empty allows only same-origin.
	OriginPatterns []string
}

// API serves the client surface: lobby and game operations, websocket channels,
// wallet payments and the admin endpoints.
type API struct {
	sessions *session.Service
	payments *payments.Service
	verifier auth.Verifier
	logger   *logrus.Logger

	isAdmin        func(string) bool
	originPatterns []string
}

// NewAPI wires the handlers to their services.
func NewAPI(sessions *session.Service, pay *payments.Service, verifier auth.Verifier, logger *logrus.Logger, opts Options) *API {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	isAdmin := opts.IsAdmin
	if isAdmin == nil {
		isAdmin = func(string) bool { return false }
	}
	return &API{
		sessions:       sessions,
		payments:       pay,
		verifier:       verifier,
		logger:         logger,
		isAdmin:        isAdmin,
		originPatterns: opts.OriginPatterns,
	}
}

// Router returns the routes of the API.
func (a *API) Router() *mux.Router {
	root := mux.NewRouter()

	authRouter := root.NewRoute().Subrouter()
	authRouter.Use(a.authMiddleware)

	adminRouter := authRouter.NewRoute().Subrouter()
	adminRouter.Use(a.adminMiddleware)

	// unauthorized endpoints
	{
		r := root
		r.Methods(http.MethodGet).Path("/health").Handler(a.getHealth())
		r.Methods(http.MethodGet).Path("/lobby/list").Handler(a.getLobbyList())
		r.Methods(http.MethodGet).Path("/lobby/" + uuidPattern).Handler(a.getLobby())
		r.Methods(http.MethodGet).Path("/game/" + uuidPattern).Handler(a.getGame())
		r.Methods(http.MethodPost).Path("/api/payments/webhook/lipila").Handler(a.postLipilaWebhook())
	}

	// requires bearer authorization
	{
		r := authRouter
		r.Methods(http.MethodPost).Path("/lobby/create").Handler(a.postLobbyCreate())
		r.Methods(http.MethodPost).Path("/lobby/" + uuidPattern + "/join").Handler(a.postLobbyJoin())
		r.Methods(http.MethodPost).Path("/lobby/" + uuidPattern + "/start").Handler(a.postLobbyStart())
		r.Methods(http.MethodPost).Path("/lobby/" + uuidPattern + "/quit").Handler(a.postLobbyQuit())
		r.Methods(http.MethodPost).Path("/lobby/" + uuidPattern + "/cancel").Handler(a.postLobbyCancel())

		r.Methods(http.MethodPost).Path("/new_game").Handler(a.postNewGame())
		r.Methods(http.MethodPost).Path("/game/" + uuidPattern + "/draw").Handler(a.postGameDraw())
		r.Methods(http.MethodPost).Path("/game/" + uuidPattern + "/discard").Handler(a.postGameDiscard())
		r.Methods(http.MethodPost).Path("/game/" + uuidPattern + "/quit").Handler(a.postGameQuit())

		r.Methods(http.MethodGet).Path("/ws/game/" + uuidPattern).Handler(a.getGameWS())
		r.Methods(http.MethodGet).Path("/ws/lobby/" + uuidPattern).Handler(a.getLobbyWS())

		p := r.PathPrefix("/api/payments").Subrouter()
		p.Methods(http.MethodGet).Path("/balance").Handler(a.getBalance())
		p.Methods(http.MethodPost).Path("/deposit/momo").Handler(a.postDepositMomo())
		p.Methods(http.MethodPost).Path("/deposit/card").Handler(a.postDepositCard())
		p.Methods(http.MethodPost).Path("/withdraw/momo").Handler(a.postWithdrawMomo())
		p.Methods(http.MethodGet).Path("/transaction/status").Handler(a.getTransactionStatus())
	}

	// requires admin access
	// depends on authMiddleware
	{
		r := adminRouter
		r.Methods(http.MethodGet).Path("/api/admin/house-balance").Handler(a.getHouseBalance())
	}

	return root
}

func (a *API) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, err := a.verifier.Verify(r.Context(), auth.TokenFromRequest(r))
		if err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, auth.ErrUnavailable) {
				status = http.StatusServiceUnavailable
			}
			a.logger.WithField("path", r.URL.Path).WithError(err).Debug("request rejected by auth")
			writeJSONError(w, status, nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), uid)))
	})
}

// adminMiddleware requires authMiddleware to execute first
func (a *API) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.isAdmin(auth.UserID(r.Context())) {
			writeJSONError(w, http.StatusForbidden, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
