package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/digimart-backend/api/controllers"
	"github.com/angelmondragon/digimart-backend/api/middleware"
	"github.com/angelmondragon/digimart-backend/internal/complaints"
	"github.com/angelmondragon/digimart-backend/internal/disbursement"
	"github.com/angelmondragon/digimart-backend/internal/escrow"
	"github.com/angelmondragon/digimart-backend/internal/wallet"
	"github.com/angelmondragon/digimart-backend/pkg/auth/session"
	"github.com/angelmondragon/digimart-backend/pkg/config"
	"github.com/angelmondragon/digimart-backend/pkg/db"
	"github.com/angelmondragon/digimart-backend/pkg/enums"
	"github.com/angelmondragon/digimart-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/digimart-backend/pkg/redis"
)

// Deps bundles everything the router needs so main stays a wiring exercise.
type Deps struct {
	Config         *config.Config
	Logger         *logger.Logger
	DBPinger       db.Pinger
	Redis          *pkgredis.Client
	SessionManager session.AccessSessionChecker

	WalletService       wallet.Service
	EscrowService       escrow.Service
	ComplaintsService   complaints.Service
	DisbursementService disbursement.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	var redisPinger pkgredis.Pinger
	var idemStore pkgredis.IdempotencyStore
	if deps.Redis != nil {
		redisPinger = deps.Redis
		idemStore = deps.Redis
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DBPinger, redisPinger))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.SessionManager, logg))
		r.Use(middleware.RateLimit(cfg.RateLimit, deps.Redis, logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/v1/wallet", func(r chi.Router) {
			r.Get("/balance", controllers.WalletBalance(deps.WalletService, logg))
			r.Post("/top-up", controllers.WalletTopUp(deps.WalletService, logg))
			r.Get("/transactions", controllers.WalletTransactions(deps.WalletService, logg))
		})

		r.Route("/v1/escrow", func(r chi.Router) {
			r.Post("/holds", controllers.EscrowCreateHold(deps.EscrowService, logg))
			r.Get("/items/{itemID}", controllers.EscrowGetItem(deps.EscrowService, logg))
			r.Post("/items/{itemID}/delivered", controllers.EscrowMarkDelivered(deps.EscrowService, logg))
			r.Post("/items/{itemID}/confirm", controllers.EscrowConfirmDelivery(deps.EscrowService, logg))
		})

		r.Route("/v1/complaints", func(r chi.Router) {
			r.Post("/", controllers.ComplaintCreate(deps.ComplaintsService, logg))
			r.Get("/", controllers.ComplaintListMine(deps.ComplaintsService, logg))
			r.Get("/code/{code}", controllers.ComplaintGetByCode(deps.ComplaintsService, logg))
			r.Get("/{ticketID}/evidence", controllers.ComplaintEvidence(deps.ComplaintsService, logg))
			r.Post("/{ticketID}/evidence", controllers.ComplaintAddEvidence(deps.ComplaintsService, logg))
			r.Post("/{ticketID}/info", controllers.ComplaintSubmitInfo(deps.ComplaintsService, logg))
			r.Post("/{ticketID}/appeal", controllers.ComplaintFileAppeal(deps.ComplaintsService, logg))
		})

		r.Route("/v1/moderation", func(r chi.Router) {
			r.Use(middleware.RequireAnyRole([]enums.UserRole{enums.UserRoleModerator, enums.UserRoleAdmin}, logg))

			r.Post("/queue/next", controllers.ModerationPickNext(deps.ComplaintsService, logg))
			r.Get("/tickets", controllers.ModerationListByStatus(deps.ComplaintsService, logg))
			r.Get("/tickets/assigned", controllers.ModerationListAssigned(deps.ComplaintsService, logg))
			r.Get("/tickets/{ticketID}", controllers.ModerationGetTicket(deps.ComplaintsService, logg))
			r.Post("/tickets/{ticketID}/claim", controllers.ModerationClaim(deps.ComplaintsService, logg))
			r.Post("/tickets/{ticketID}/review", controllers.ModerationStartReview(deps.ComplaintsService, logg))
			r.Post("/tickets/{ticketID}/request-info", controllers.ModerationRequestInfo(deps.ComplaintsService, logg))
			r.Post("/tickets/{ticketID}/decision", controllers.ModerationDecide(deps.ComplaintsService, logg))
			r.Post("/tickets/{ticketID}/escalate", controllers.ModerationEscalate(deps.ComplaintsService, logg))
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.SessionManager, logg))
		r.Use(middleware.RequireRole(enums.UserRoleAdmin, logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Get("/ping", controllers.AdminPing())

		r.Route("/v1/appeals", func(r chi.Router) {
			r.Post("/{ticketID}/decision", controllers.ModerationDecideAppeal(deps.ComplaintsService, logg))
		})

		r.Route("/v1/disbursements", func(r chi.Router) {
			r.Post("/sweep", controllers.DisbursementSweep(deps.DisbursementService, logg))
			r.Get("/holding", controllers.DisbursementHolding(deps.DisbursementService, logg))
			r.Get("/pending", controllers.DisbursementPending(deps.DisbursementService, logg))
			r.Post("/items/{itemID}/release", controllers.DisbursementTrigger(deps.DisbursementService, logg))
		})
	})

	return r
}
