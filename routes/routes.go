package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/arenaworks/wager-arena/handlers"
	"github.com/arenaworks/wager-arena/middleware"
	"github.com/arenaworks/wager-arena/models"
)

type Handlers struct {
	Auth        *handlers.AuthHandler
	Account     *handlers.AccountHandler
	Challenge   *handlers.ChallengeHandler
	Matchmaking *handlers.MatchmakingHandler
	Tournament  *handlers.TournamentHandler
	Admin       *handlers.AdminHandler
	WebSocket   *handlers.WebSocketHandler
}

func InitRoutes(auth *middleware.Auth, h Handlers) *chi.Mux {
	router := chi.NewRouter()

	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Post("/auth/signup", h.Auth.Register)
	router.Post("/auth/signin", h.Auth.Login)

	router.Group(func(r chi.Router) {
		r.Use(auth.Authenticate)

		r.Get("/me", h.Account.Me)
		r.Get("/users/{userID}", h.Account.GetProfile)
		r.Post("/users/{userID}/block", h.Account.Block)
		r.Delete("/users/{userID}/block", h.Account.Unblock)
		r.Get("/leaderboard", h.Account.Leaderboard)

		r.Route("/challenges", func(r chi.Router) {
			r.Post("/", h.Challenge.Create)
			r.Get("/", h.Challenge.ListOpen)
			r.Get("/mine", h.Challenge.ListMine)
			r.Get("/{challengeID}", h.Challenge.Get)
			r.Post("/{challengeID}/accept", h.Challenge.Accept)
			r.Post("/{challengeID}/cancel", h.Challenge.Cancel)
			r.Post("/{challengeID}/report", h.Challenge.SubmitReport)
			r.Post("/{challengeID}/evidence", h.Challenge.UploadEvidence)
			r.Post("/{challengeID}/archive", h.Challenge.Archive)
		})

		r.Route("/matchmaking", func(r chi.Router) {
			r.Post("/join", h.Matchmaking.Join)
			r.Post("/leave", h.Matchmaking.Leave)
			r.Get("/counts", h.Matchmaking.Counts)
		})

		r.Route("/tournaments", func(r chi.Router) {
			r.Post("/", h.Tournament.Create)
			r.Get("/", h.Tournament.List)
			r.Get("/{tournamentID}", h.Tournament.Get)
			r.Post("/{tournamentID}/register", h.Tournament.Register)
			r.Post("/{tournamentID}/leave", h.Tournament.Leave)
			r.Post("/{tournamentID}/start", h.Tournament.Start)
			r.Post("/{tournamentID}/matches/{matchID}/report", h.Tournament.ReportMatchResult)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Authorize(models.RoleAdmin))

			r.Post("/challenges/{challengeID}/resolve", h.Admin.ResolveChallengeDispute)
			r.Post("/tournaments/{tournamentID}/matches/{matchID}/resolve", h.Admin.ResolveMatchDispute)
			r.Delete("/tournaments/{tournamentID}/participants/{userID}", h.Admin.RemoveParticipant)
			r.Post("/tournaments/{tournamentID}/cancel", h.Admin.CancelTournament)
			r.Post("/users/{userID}/deactivate", h.Admin.DeactivateAccount)
		})

		r.Get("/ws/me", h.WebSocket.ServeUserWs)
		r.Get("/ws/tournaments/{tournamentID}", h.WebSocket.ServeTournamentWs)
	})

	return router
}
