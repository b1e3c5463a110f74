package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"classroom/backend/internal/gateway/handlers"
	"classroom/backend/internal/gateway/util"
	"classroom/backend/internal/metrics"
	"classroom/backend/internal/rpc"
	"classroom/backend/internal/shared"
)

// SetupRoutes configures the Chi router, middleware, and route handlers.
func SetupRoutes(clients *ServiceClients, corsConfig shared.CORSConfig) *chi.Mux {
	r := chi.NewRouter()

	// 1. Global Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsConfig.AllowedOrigins,
		AllowedMethods:   corsConfig.AllowedMethods,
		AllowedHeaders:   corsConfig.AllowedHeaders,
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: corsConfig.AllowCredentials,
		MaxAge:           corsConfig.MaxAge,
	}))

	// 2. Initialize Handlers
	authHandler := &handlers.AuthHandler{Client: clients.Classroom}
	classHandler := &handlers.ClassHandler{Client: clients.Classroom}
	gradeHandler := &handlers.GradeHandler{Client: clients.Classroom}
	liveHandler := &handlers.LiveHandler{Client: clients.Classroom, AllowedOrigins: corsConfig.AllowedOrigins}

	r.Get("/health", healthHandler(clients.Health))
	r.Handle("/metrics", metrics.Handler())

	// 3. Define Routes (grouped by prefix)
	r.Route("/api", func(r chi.Router) {

		// --- Public Routes ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Post("/auth/login", authHandler.Login)
			r.Post("/auth/register", authHandler.Register) // non-student roles need an admin token
			r.Post("/auth/logout", authHandler.Logout)
		})

		// --- Protected Routes (Require Valid Token) ---
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(clients.Classroom))

			// Long-lived websocket, outside the request timeout
			r.Get("/classes/{id}/live", liveHandler.Statistics)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(60 * time.Second))

				r.Get("/auth/me", authHandler.Me)
				r.Post("/auth/change-password", authHandler.ChangePassword)

				r.Route("/classes", func(r chi.Router) {
					r.Get("/", classHandler.ListClasses)
					r.Post("/", classHandler.CreateClass)
					r.Post("/join", classHandler.JoinClass)

					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", classHandler.GetClass)
						r.Post("/archive", classHandler.ArchiveClass)
						r.Post("/restore", classHandler.RestoreClass)
						r.Post("/code", classHandler.RegenerateCode)
						r.Post("/students", classHandler.AddStudent)
						r.Delete("/students", classHandler.RemoveStudents)

						r.Get("/assignments", gradeHandler.ListAssignments)
						r.Post("/assignments", gradeHandler.PublishAssignment)
						r.Get("/grades", gradeHandler.ListGrades)
						r.Get("/statistics", gradeHandler.Statistics)
						r.Get("/summary", gradeHandler.StudentSummary)
					})
				})

				r.Route("/assignments/{id}", func(r chi.Router) {
					r.Delete("/", gradeHandler.DeleteAssignment)
					r.Post("/submit", gradeHandler.Submit)
					r.Post("/return", gradeHandler.ReturnGrades)
				})

				r.Route("/grades/{id}", func(r chi.Router) {
					r.Put("/", gradeHandler.CommitGrade)
					r.Put("/draft", gradeHandler.SaveDraft)
				})
			})
		})
	})

	return r
}

// AuthMiddleware creates a middleware that validates tokens via the classroom service.
func AuthMiddleware(client *rpc.Client) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Extract Token
			tokenStr, err := util.ExtractToken(r)
			if err != nil {
				util.WriteJSONError(w, http.StatusUnauthorized, "Authorization token required")
				return
			}

			// 2. Validate via gRPC
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()

			user, err := client.WhoAmI(rpc.WithToken(ctx, tokenStr))
			if err != nil {
				util.HandleGRPCError(w, err)
				return
			}

			// 3. Inject Caller into Context
			caller := util.Caller{Principal: *user, Token: tokenStr}
			next.ServeHTTP(w, r.WithContext(util.WithCaller(r.Context(), caller)))
		})
	}
}

// healthHandler reports the gateway healthy when the classroom service is serving
func healthHandler(health healthpb.HealthClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp, err := health.Check(ctx, &healthpb.HealthCheckRequest{Service: rpc.ServiceName})
		if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			util.WriteJSONError(w, http.StatusServiceUnavailable, "classroom service is not serving")
			return
		}
		util.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"status":  "ok",
		})
	}
}
