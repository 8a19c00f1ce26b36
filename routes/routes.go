package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/adityajain-27/medical-ai-sub000/controllers"
	"github.com/adityajain-27/medical-ai-sub000/models"
	"github.com/adityajain-27/medical-ai-sub000/ratelimit"
	"github.com/adityajain-27/medical-ai-sub000/security"
)

// Register mounts every API route on r. limiter may be nil, in which case
// the public intake routes are not rate limited.
func Register(r *gin.Engine, h *controllers.Handler, issuer *security.TokenIssuer, limiter ratelimit.KeyedRateLimiter) {
	r.GET("/", controllers.Root)

	api := r.Group("/api")
	api.GET("/health", h.HealthCheck)

	AuthRoutes(api.Group("/auth"), h, issuer)
	CreditRoutes(api.Group("/credits"), h, issuer)
	AssessRoutes(api.Group("/assess"), h, issuer)
	DoctorRoutes(api.Group("/doctor"), h, issuer)
	IntakeRoutes(api.Group("/intake"), h, issuer, limiter)
}

func AuthRoutes(rg *gin.RouterGroup, h *controllers.Handler, issuer *security.TokenIssuer) {
	// Public endpoints
	rg.POST("/signup", h.Signup)
	rg.POST("/login", h.Login)

	protected := rg.Group("")
	protected.Use(security.AuthMiddleware(issuer))
	{
		protected.GET("/me", h.GetProfile)
		protected.PUT("/me", h.UpdateProfile)
	}
}

func CreditRoutes(rg *gin.RouterGroup, h *controllers.Handler, issuer *security.TokenIssuer) {
	rg.Use(security.AuthMiddleware(issuer))
	rg.GET("", h.GetCredits)
	rg.POST("", h.DeductCredits)
	rg.POST("/deduct", h.DeductCredits)
	rg.POST("/buy", h.BuyCredits)
}

func AssessRoutes(rg *gin.RouterGroup, h *controllers.Handler, issuer *security.TokenIssuer) {
	rg.Use(security.AuthMiddleware(issuer))
	rg.POST("", h.Assess)
	rg.GET("/history", h.AssessmentHistory)
	rg.POST("/followup", h.Followup)
	rg.POST("/chat", h.Chat)
	rg.GET("/:id", h.GetAssessment)
}

func DoctorRoutes(rg *gin.RouterGroup, h *controllers.Handler, issuer *security.TokenIssuer) {
	rg.Use(security.AuthMiddleware(issuer), security.RequireRole(models.RoleDoctor))
	{
		rg.GET("/patients", h.ListPatients)
		rg.POST("/patients", h.CreatePatient)
		rg.GET("/patients/:id", h.GetPatient)
		rg.PUT("/patients/:id", h.UpdatePatient)
		rg.DELETE("/patients/:id", h.DeletePatient)
		rg.GET("/patients/:id/assessments", h.ListPatientAssessments)
		rg.POST("/patients/:id/analyze", h.AnalyzePatient)
		rg.POST("/patients/:id/analyze/image", h.AnalyzePatientImage)

		rg.GET("/assessments", h.ListDoctorAssessments)
		rg.GET("/stats", h.DoctorStats)
	}
}

func IntakeRoutes(rg *gin.RouterGroup, h *controllers.Handler, issuer *security.TokenIssuer, limiter ratelimit.KeyedRateLimiter) {
	rg.POST("/send", security.AuthMiddleware(issuer), security.RequireRole(models.RoleDoctor), h.SendIntake)

	// Public endpoints, the token in the path is the only credential
	public := rg.Group("")
	if limiter != nil {
		public.Use(ratelimit.Middleware(limiter, "intake:", h.Logger))
	}
	{
		public.GET("/:token", h.GetIntake)
		public.POST("/:token/submit", h.SubmitIntake)
	}
}
