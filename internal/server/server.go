package server

import (
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ubuntu-health/sponsorship-api/internal/auth"
	"github.com/ubuntu-health/sponsorship-api/internal/config"
	"github.com/ubuntu-health/sponsorship-api/internal/escrow"
	"github.com/ubuntu-health/sponsorship-api/internal/handlers"
	"github.com/ubuntu-health/sponsorship-api/internal/identity"
	"github.com/ubuntu-health/sponsorship-api/internal/ledger"
	"github.com/ubuntu-health/sponsorship-api/internal/logger"
	"github.com/ubuntu-health/sponsorship-api/internal/middleware"
	"github.com/ubuntu-health/sponsorship-api/internal/notifications"
	"github.com/ubuntu-health/sponsorship-api/internal/ratelimit"
	"github.com/ubuntu-health/sponsorship-api/internal/verifier"
)

// Handler Definitions
var (
	authHandler      *handlers.AuthHandler
	campaignHandler  *handlers.CampaignHandler
	milestoneHandler *handlers.MilestoneHandler
	identityHandler  *handlers.IdentityHandler
	rateLimitHandler *handlers.RateLimitHandler
	healthHandler    *handlers.HealthHandler

	authenticator *auth.Authenticator
	guard         *ratelimit.Guard
)

// InitializeHandlers builds the service graph from configuration:
// identity registry, wallet authenticator, abuse guard, ledger gateway,
// escrow and milestone verifier, then the handlers over them.
func InitializeHandlers(cfg *config.Config) {
	registry := identity.NewMemoryRegistry()
	if cfg.PlatformAdminWallet != "" {
		registry.SetRole(cfg.PlatformAdminWallet, identity.RoleAdmin)
		registry.SetVerified(cfg.PlatformAdminWallet, true)
	}

	challenges := auth.NewChallengeService(cfg.ChallengeTTL)
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.CredentialTTL)
	authenticator = auth.NewAuthenticator(challenges, auth.NewEd25519Verifier(), tokens, registry)

	var store ratelimit.RateStore
	if cfg.RedisURL != "" {
		redisStore, err := ratelimit.NewRedisStore(cfg.RedisURL)
		if err != nil {
			logger.Fatal("Unable to connect to rate limit store", zap.Error(err))
		}
		store = redisStore
	} else {
		store = ratelimit.NewMemoryStore()
	}
	guard = ratelimit.NewGuard(store, nil)

	var notifier notifications.Notifier = notifications.NoopNotifier{}
	if cfg.ResendAPIKey != "" {
		notifier = notifications.NewEmailNotifier(cfg.ResendAPIKey, cfg.NotifyFrom, []string{cfg.NotifyFrom})
	}

	gateway := ledger.NewClient(cfg.LedgerAPIURL, cfg.LedgerAPIKey)
	escrowService := escrow.NewService(gateway, notifier, cfg.CustodyAccount, cfg.PlatformAdminWallet)
	milestoneVerifier := verifier.New(escrowService)

	// Bridge verified-milestone events into the escrow's release
	// eligibility path. The escrow re-validates state on its own, so the
	// bridge carries no correctness weight.
	go func() {
		for event := range milestoneVerifier.Events() {
			escrowService.OnMilestoneVerified(event.CampaignID, event.MilestoneIndex)
		}
	}()

	commonServices := handlers.NewCommonServices(escrowService, milestoneVerifier, authenticator, registry)

	authHandler = handlers.NewAuthHandler(commonServices)
	campaignHandler = handlers.NewCampaignHandler(commonServices)
	milestoneHandler = handlers.NewMilestoneHandler(commonServices)
	identityHandler = handlers.NewIdentityHandler(commonServices)
	rateLimitHandler = handlers.NewRateLimitHandler(guard)
	healthHandler = handlers.NewHealthHandler()
}

func InitializeRoutes(router *gin.Engine) {
	// Initialize logger first
	logger.InitLogger()

	// Configure and apply CORS middleware
	router.Use(configureCORS())
	router.Use(middleware.CorrelationID())

	// if we are not in production, log the request body
	if os.Getenv("GIN_MODE") != "release" {
		router.Use(middleware.LogRequest())
	}

	// Health check
	router.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(guard.BlockSuspicious())
	v1.Use(guard.Middleware(ratelimit.PolicyGeneral))
	{
		// Public routes: the wallet sign-in handshake
		authRoutes := v1.Group("/auth")
		authRoutes.Use(guard.Middleware(ratelimit.PolicyAuth))
		{
			authRoutes.POST("/challenge", authHandler.RequestChallenge)
			authRoutes.POST("/verify", authHandler.VerifyAndAuthenticate)
		}

		// Protected routes (authentication required)
		protected := v1.Group("/")
		protected.Use(authenticator.Middleware())
		{
			protected.GET("/auth/me", authHandler.CurrentUser)

			protected.GET("/rate-limits/:policy", rateLimitHandler.Status)

			// Campaigns
			campaigns := protected.Group("/campaigns")
			{
				campaigns.GET("", campaignHandler.ListCampaigns)
				campaigns.GET("/:campaign_id", campaignHandler.GetCampaign)

				campaigns.POST("",
					auth.RequireRoles(identity.RolePatient),
					auth.RequireVerified(),
					guard.Middleware(ratelimit.PolicyTreatmentCreation),
					campaignHandler.CreateCampaign)

				campaigns.POST("/:campaign_id/commitments",
					auth.RequireRoles(identity.RoleSponsor),
					guard.Middleware(ratelimit.PolicySponsorship),
					campaignHandler.CommitFunds)

				// Milestone lifecycle
				milestones := campaigns.Group("/:campaign_id/milestones/:milestone_index")
				{
					milestones.POST("/claim",
						auth.RequireRoles(identity.RolePatient, identity.RoleProvider),
						milestoneHandler.ClaimMilestone)
					milestones.POST("/verify",
						auth.RequireRoles(identity.RoleProvider, identity.RoleWitness),
						milestoneHandler.VerifyMilestone)
					milestones.POST("/reject",
						auth.RequireRoles(identity.RoleProvider, identity.RoleWitness),
						milestoneHandler.RejectMilestone)
					milestones.POST("/release",
						auth.RequireRoles(identity.RoleProvider, identity.RoleAdmin),
						milestoneHandler.ReleaseMilestone)
				}
			}

			// Admin-only routes
			admin := protected.Group("/admin")
			admin.Use(auth.RequireRoles(identity.RoleAdmin))
			{
				admin.PUT("/identities/:wallet/role", identityHandler.SetRole)
				admin.PUT("/identities/:wallet/verified", identityHandler.SetVerified)
				admin.POST("/rate-limits/penalize", rateLimitHandler.Penalize)
				admin.POST("/campaigns/:campaign_id/expire", campaignHandler.ExpireCampaign)
			}
		}
	}
}

// configureCORS returns a configured CORS middleware
func configureCORS() gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()

	// Get allowed origins from environment variable
	originsEnv := os.Getenv("CORS_ALLOWED_ORIGINS")
	if originsEnv == "" {
		// Default to localhost if not set
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	} else {
		// Split and trim the origins
		origins := strings.Split(originsEnv, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		corsConfig.AllowOrigins = origins
	}

	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Correlation-ID"}
	corsConfig.ExposeHeaders = []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After", "X-Correlation-ID"}
	corsConfig.AllowCredentials = os.Getenv("CORS_ALLOW_CREDENTIALS") == "true"

	return cors.New(corsConfig)
}
