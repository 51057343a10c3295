package api

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"timeline-archive/internal/models"
	"timeline-archive/internal/queue"
	"timeline-archive/internal/store"
)

var (
	usernameRegex   = regexp.MustCompile(`^\w{1,15}$`)
	profileURLRegex = regexp.MustCompile(`^(?:https?://)?(?:www\.)?(?:twitter\.com|x\.com)/(\w{1,15})/?$`)
)

// ParseUsername extracts a provider username from either a bare handle or a
// profile URL. Returns false for anything else.
func ParseUsername(value string) (string, bool) {
	if m := profileURLRegex.FindStringSubmatch(value); m != nil {
		return m[1], true
	}
	if usernameRegex.MatchString(value) {
		return value, true
	}
	return "", false
}

type createSyncRequest struct {
	Profiles []string `json:"profiles" binding:"required"`
}

func (s *Server) createSync(c *gin.Context) {
	var req createSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "invalid_body", "message": "profiles list required"}})
		return
	}

	seen := make(map[string]bool)
	var usernames []string
	for _, item := range req.Profiles {
		username, ok := ParseUsername(item)
		if !ok || seen[username] {
			continue
		}
		seen[username] = true
		usernames = append(usernames, username)
	}

	if len(usernames) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "no_valid_profiles", "message": "no valid usernames or profile urls"}})
		return
	}

	task := models.SyncTask{
		SessionID: uuid.NewString(),
		UsersList: usernames,
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	if err := s.tasks.Create(ctx, task); err != nil {
		s.log.Error("task_create_failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "internal", "message": "could not create task"}})
		return
	}

	job := queue.Job{Type: queue.JobSyncProfiles, Usernames: usernames}
	if err := s.enqueuer.Enqueue(ctx, job); err != nil {
		s.log.Error("task_enqueue_failed", "session_id", task.SessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "internal", "message": "could not enqueue task"}})
		return
	}

	s.log.Info("sync_task_created", "session_id", task.SessionID, "usernames", len(usernames))
	c.JSON(http.StatusAccepted, gin.H{"session_id": task.SessionID})
}

func (s *Server) syncStatus(c *gin.Context) {
	sessionID := c.Param("session_id")
	if _, err := uuid.Parse(sessionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "invalid_session_id", "message": "session_id must be a uuid"}})
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	task, err := s.tasks.BySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "unknown_session", "message": "no such sync task"}})
			return
		}
		s.log.Error("task_lookup_failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "internal", "message": "task lookup failed"}})
		return
	}

	statuses, err := s.accounts.StatusesByUsernames(ctx, task.UsersList)
	if err != nil {
		s.log.Error("status_lookup_failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "internal", "message": "status lookup failed"}})
		return
	}
	if statuses == nil {
		statuses = []models.AccountStatus{}
	}

	c.JSON(http.StatusOK, gin.H{"session_id": task.SessionID, "accounts": statuses})
}

func (s *Server) getAccount(c *gin.Context) {
	username, ok := ParseUsername(c.Param("username"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "invalid_username", "message": "invalid username"}})
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	acc, err := s.accounts.ByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "unknown_account", "message": "account not found"}})
			return
		}
		s.log.Error("account_lookup_failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "internal", "message": "account lookup failed"}})
		return
	}

	c.JSON(http.StatusOK, acc)
}

func (s *Server) getAccountPosts(c *gin.Context) {
	username, ok := ParseUsername(c.Param("username"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "invalid_username", "message": "invalid username"}})
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	acc, err := s.accounts.ByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "unknown_account", "message": "account not found"}})
			return
		}
		s.log.Error("account_lookup_failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "internal", "message": "account lookup failed"}})
		return
	}
	if acc.TwitterID == nil {
		c.JSON(http.StatusOK, gin.H{"username": username, "stored": 0, "posts": []string{}})
		return
	}

	stored, err := s.posts.Count(ctx, *acc.TwitterID)
	if err != nil {
		s.log.Error("posts_count_failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "internal", "message": "posts lookup failed"}})
		return
	}

	texts, err := s.posts.LastTexts(ctx, *acc.TwitterID, 10)
	if err != nil {
		s.log.Error("posts_lookup_failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "internal", "message": "posts lookup failed"}})
		return
	}
	if texts == nil {
		texts = []string{}
	}

	c.JSON(http.StatusOK, gin.H{"username": username, "stored": stored, "posts": texts})
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	dbStatus := "connected"
	if err := s.db.Pool.Ping(ctx); err != nil {
		dbStatus = "unreachable"
	}

	redisStatus := "connected"
	if err := s.redis.Ping(ctx); err != nil {
		redisStatus = "unreachable"
	}

	code := http.StatusOK
	if dbStatus != "connected" {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":   "ok",
		"database": dbStatus,
		"redis":    redisStatus,
	})
}
