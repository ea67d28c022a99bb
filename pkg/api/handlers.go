package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bfsched/kernel/pkg/auth"
	"github.com/bfsched/kernel/pkg/security"
)

// healthHandler reports liveness plus the monitor's threshold-evaluated
// status, with no auth required — this is what a load balancer or a
// teaching-lab dashboard polls.
func (s *Server) healthHandler(c *gin.Context) {
	health := s.monitor.Health()
	status := http.StatusOK
	if health.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}

// statsHandler returns the monitor's latest scheduler stats snapshot.
func (s *Server) statsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.Latest())
}

// taskView is the wire shape of one entry in the /tasks ps-like listing.
type taskView struct {
	PID             int    `json:"pid"`
	Name            string `json:"name"`
	State           string `json:"state"`
	Niceness        int    `json:"niceness"`
	VirtualDeadline int64  `json:"virtual_deadline"`
	TicksLeft       int    `json:"ticks_left"`
	ParentPID       int    `json:"parent_pid"`
}

// auditHandler returns the most recently reaped tasks from the audit sink,
// for postmortem analysis of tasks whose slots have already been freed. An
// empty list (not an error) when auditing is disabled.
func (s *Server) auditHandler(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := s.audit.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// listTasksHandler returns a snapshot of every live task, unauthenticated
// — equivalent to running ps, not a mutation.
func (s *Server) listTasksHandler(c *gin.Context) {
	snap := s.sched.Snapshot()
	views := make([]taskView, 0, len(snap))
	for _, tcb := range snap {
		views = append(views, taskView{
			PID:             tcb.PID,
			Name:            tcb.Name,
			State:           tcb.State.String(),
			Niceness:        tcb.Niceness,
			VirtualDeadline: tcb.VirtualDeadline,
			TicksLeft:       tcb.TicksLeft,
			ParentPID:       tcb.ParentPID,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"uptime_ticks": s.sched.Uptime(),
		"tasks":        views,
	})
}

// killHandler sends a cooperative kill to the task named by :pid. Per
// spec.md's kill semantics, a RUNNING target keeps running until it next
// yields or sleeps — this endpoint only flips the flag and, if the target
// was sleeping, wakes it.
func (s *Server) killHandler(c *gin.Context) {
	pid, err := strconv.Atoi(c.Param("pid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pid must be an integer"})
		return
	}
	if err := s.sched.Kill(pid); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	operator := "unknown"
	if claims, ok := auth.GetCurrentClaims(c); ok {
		operator = claims.Username
	}
	s.logger.Info("operator killed task", "operator", operator, "pid", pid)
	c.JSON(http.StatusOK, gin.H{"pid": pid, "killed": true})
}

// toggleSchedlogHandler calls the schedlog(n) syscall (spec.md §6): enables
// line emission for the next n ticks, or disables it immediately when
// ticks is 0 or omitted.
func (s *Server) toggleSchedlogHandler(c *gin.Context) {
	ticks := 0
	if raw := c.Query("ticks"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ticks must be an integer"})
			return
		}
		ticks = n
	}
	s.sched.Schedlog(ticks)
	c.JSON(http.StatusOK, gin.H{"ticks": ticks, "active": s.sched.SchedlogActive()})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// loginHandler issues a bearer token for the single configured operator
// account. There is no self-registration: the operator credential is
// provisioned via internal/config.AuthConfig at boot.
func (s *Server) loginHandler(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	cfg := s.config.Auth
	if !security.SecureCompare(req.Username, cfg.OperatorUser) || !security.VerifyPassword(req.Password, cfg.OperatorPassHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, expiresAt, err := s.jwtSvc.GenerateToken(req.Username)
	if err != nil {
		s.logger.Error("failed to generate token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiresAt,
	})
}
