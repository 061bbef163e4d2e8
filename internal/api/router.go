package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ideaflow/ideaflow/internal/auth"
	"github.com/ideaflow/ideaflow/internal/cache"
	"github.com/ideaflow/ideaflow/internal/indexer"
	"github.com/ideaflow/ideaflow/internal/lineage"
	"github.com/ideaflow/ideaflow/internal/models"
	"github.com/ideaflow/ideaflow/internal/mutation"
	"github.com/ideaflow/ideaflow/internal/notify"
	"github.com/ideaflow/ideaflow/internal/store"
	"github.com/ideaflow/ideaflow/pkg/config"
	"github.com/ideaflow/ideaflow/pkg/logging"
)

const actorContextKey = "ideaflow_actor_id"

var (
	errMissingTable    = errors.New("api: table dependency required")
	errMissingService  = errors.New("api: mutation service dependency required")
	errMissingAnalyzer = errors.New("api: analyzer dependency required")
)

// HealthChecker is implemented by backing stores that can report health.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Dependencies wires the router. Sync, Sessions, Dispatcher and Health are
// optional.
type Dependencies struct {
	Table      *store.Table
	Service    *mutation.Service
	Analyzer   *lineage.Analyzer
	Sync       *indexer.Sync
	Seen       *cache.SeenStore
	Sessions   *auth.SessionValidator
	Dispatcher *notify.Dispatcher
	Health     map[string]HealthChecker
	Logger     *zap.Logger
}

// Router sets up API routes
type Router struct {
	handler    *JSONRPCHandler
	table      *store.Table
	service    *mutation.Service
	analyzer   *lineage.Analyzer
	sync       *indexer.Sync
	seen       *cache.SeenStore
	sessions   *auth.SessionValidator
	dispatcher *notify.Dispatcher
	health     map[string]HealthChecker
	logger     *zap.Logger
}

// NewRouter creates a new API router
func NewRouter(deps Dependencies) (*Router, error) {
	if deps.Table == nil {
		return nil, errMissingTable
	}
	if deps.Service == nil {
		return nil, errMissingService
	}
	if deps.Analyzer == nil {
		return nil, errMissingAnalyzer
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.WithComponent("api-router")
	}
	seen := deps.Seen
	if seen == nil {
		seen = cache.NewSeenStore(nil, logger)
	}

	router := &Router{
		handler:    NewJSONRPCHandler(logger.With(zap.String("component", "jsonrpc"))),
		table:      deps.Table,
		service:    deps.Service,
		analyzer:   deps.Analyzer,
		sync:       deps.Sync,
		seen:       seen,
		sessions:   deps.Sessions,
		dispatcher: deps.Dispatcher,
		health:     deps.Health,
		logger:     logger,
	}
	router.registerMethods()
	return router, nil
}

// NewEngine creates a gin engine with recovery and CORS configured.
func NewEngine(cfg config.ServerConfig) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(cfg.CORSOrigins) == 0 || (len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
		corsConfig.AllowCredentials = true
	}
	engine.Use(cors.New(corsConfig))
	return engine
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)

	identified := engine.Group("/")
	identified.Use(r.identify)
	identified.POST("/", r.handler.Handle)
	identified.GET("/feed.atom", r.atomFeed)
	identified.GET("/ws", r.realtime)
}

// identify resolves the session, if any. Anonymous requests pass through;
// an invalid token is rejected.
func (r *Router) identify(c *gin.Context) {
	if r.sessions == nil {
		c.Next()
		return
	}
	claims, err := r.sessions.ValidateRequest(c.Request)
	switch {
	case err == nil:
		c.Set(actorContextKey, claims.UserID)
		if claims.UserDisplayName != "" {
			r.rememberUser(claims)
		}
	case errors.Is(err, auth.ErrMissingToken):
	default:
		r.logger.Warn("session validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

// rememberUser records the session's display name on a not yet known user.
func (r *Router) rememberUser(claims auth.SessionClaims) {
	if _, ok := r.table.Snapshot().User(claims.UserID); ok {
		return
	}
	user := models.User{ID: claims.UserID, DisplayName: claims.UserDisplayName, Registered: true}
	if err := r.table.Upsert(user); err != nil {
		r.logger.Debug("failed to record session user", zap.Error(err))
	}
}

func actorID(c *gin.Context) string {
	return c.GetString(actorContextKey)
}

// registerMethods registers all API methods
func (r *Router) registerMethods() {
	// Queries
	r.handler.RegisterMethod("ideaflow.get_current_user", r.getCurrentUser)
	r.handler.RegisterMethod("ideaflow.get_user", r.getUser)
	r.handler.RegisterMethod("ideaflow.get_post", r.getPost)
	r.handler.RegisterMethod("ideaflow.get_idea", r.getIdea)
	r.handler.RegisterMethod("ideaflow.get_topic", r.getTopic)
	r.handler.RegisterMethod("ideaflow.get_community", r.getCommunity)
	r.handler.RegisterMethod("ideaflow.list_communities", r.listCommunities)
	r.handler.RegisterMethod("ideaflow.list_ideas", r.listIdeas)
	r.handler.RegisterMethod("ideaflow.list_posts", r.listPosts)
	r.handler.RegisterMethod("ideaflow.list_topics", r.listTopics)
	r.handler.RegisterMethod("ideaflow.get_feed", r.getFeed)
	r.handler.RegisterMethod("ideaflow.get_contributions", r.getContributions)
	r.handler.RegisterMethod("ideaflow.get_home_stats", r.getHomeStats)
	r.handler.RegisterMethod("ideaflow.search", r.search)
	r.handler.RegisterMethod("ideaflow.list_chains", r.listChains)
	r.handler.RegisterMethod("ideaflow.get_chain_context", r.getChainContext)

	// Mutations
	r.handler.RegisterMethod("ideaflow.toggle_support", r.toggleSupport)
	r.handler.RegisterMethod("ideaflow.rate_idea", r.rateIdea)
	r.handler.RegisterMethod("ideaflow.add_reply", r.addReply)
	r.handler.RegisterMethod("ideaflow.toggle_reply_like", r.toggleReplyLike)
	r.handler.RegisterMethod("ideaflow.create_post", r.createPost)
	r.handler.RegisterMethod("ideaflow.create_idea", r.createIdea)
	r.handler.RegisterMethod("ideaflow.create_topic", r.createTopic)
	r.handler.RegisterMethod("ideaflow.add_topic_post", r.addTopicPost)
	r.handler.RegisterMethod("ideaflow.toggle_topic_upvote", r.toggleTopicUpvote)
	r.handler.RegisterMethod("ideaflow.mark_answer", r.markAnswer)
	r.handler.RegisterMethod("ideaflow.toggle_membership", r.toggleMembership)
	r.handler.RegisterMethod("ideaflow.report_content", r.reportContent)
	r.handler.RegisterMethod("ideaflow.mark_seen", r.markSeen)
	r.handler.RegisterMethod("ideaflow.reconcile", r.reconcile)
}

// healthHandler handles health check requests
func (r *Router) healthHandler(c *gin.Context) {
	status := http.StatusOK
	checks := gin.H{}
	for name, checker := range r.health {
		if checker == nil {
			continue
		}
		if err := checker.Health(c.Request.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "OK"
	}

	state := "OK"
	if status != http.StatusOK {
		state = "DEGRADED"
	}
	c.JSON(status, gin.H{
		"status":   state,
		"service":  "ideaflow-api",
		"version":  r.table.Snapshot().Version(),
		"entities": r.table.Snapshot().Counts(),
		"checks":   checks,
	})
}
