package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meong5670/InfinitarLockin/internal/api"
	"github.com/meong5670/InfinitarLockin/internal/attendance"
	"github.com/meong5670/InfinitarLockin/internal/config"
	"github.com/meong5670/InfinitarLockin/internal/device"
	"github.com/meong5670/InfinitarLockin/internal/notify"
	"github.com/meong5670/InfinitarLockin/internal/prefs"
	"github.com/meong5670/InfinitarLockin/internal/reminder"
	"github.com/meong5670/InfinitarLockin/internal/session"
)

// The agent is the device-side orchestration core: it owns every backend
// call, both attendance state machines, and the daily reminder, and exposes a
// loopback HTTP surface for the presentation shell.
func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("agent failed: %v", err)
	}
}

func run(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deviceID, err := device.Identity(cfg.DeviceID)
	if err != nil {
		return err
	}
	log.Printf("device id: %s", deviceID)

	store, err := prefs.Open(cfg.PrefsPath)
	if err != nil {
		return err
	}
	defer store.Close()

	backend := api.New(cfg.BackendURL)
	resolver := session.NewResolver(backend, deviceID)
	orch := attendance.NewOrchestrator(backend, device.ExecWifiSource{})
	history := attendance.NewHistory(backend)

	var dispatch notify.Dispatcher
	if cfg.DispatchBackend == "redis" {
		dispatch = notify.NewRedisDispatcher(notify.NewRedisClient(cfg.RedisAddr), cfg.ReminderKey)
	} else {
		dispatch = notify.NewInMemory(16)
		// Nothing else consumes the in-memory backend, so drain it here and
		// let the shell pick reminders up from the log / state poll.
		if reminders, err := dispatch.Consume(ctx); err == nil {
			go func() {
				for r := range reminders {
					log.Printf("reminder pending delivery: %s (%s)", r.Body, r.ID)
				}
			}()
		}
	}

	sched := reminder.NewScheduler(backend, dispatch, deviceID, cfg.RestDay)
	host := &reminder.Host{
		Scheduler:  sched,
		Hour:       cfg.ReminderHour,
		Min:        cfg.ReminderMinute,
		RetryDelay: cfg.ReminderRetryDelay,
	}
	go host.Run(ctx)

	// Cold-start identity resolution; the shell re-triggers it on foreground.
	go resolver.Resolve(ctx, false)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"auth":   resolver.State().Phase.String(),
		})
	})

	v1 := r.Group("/v1")

	v1.GET("/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, stateView(resolver, orch, history))
	})

	v1.POST("/register", func(c *gin.Context) {
		var req struct {
			Name string `json:"name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := backend.Register(c.Request.Context(), req.Name, deviceID)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		if !resp.Success {
			c.JSON(http.StatusOK, gin.H{"success": false, "error": resp.Error})
			return
		}

		state := resolver.Resolve(c.Request.Context(), false)
		c.JSON(http.StatusOK, gin.H{"success": true, "auth": authView(state)})
	})

	v1.POST("/resolve", func(c *gin.Context) {
		var req struct {
			Retry bool `json:"retry"`
		}
		_ = c.ShouldBindJSON(&req)
		state := resolver.Resolve(c.Request.Context(), req.Retry)
		c.JSON(http.StatusOK, gin.H{"auth": authView(state)})
	})

	v1.POST("/verify", func(c *gin.Context) {
		var req struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := store.MarkAttendancePressed(time.Now()); err != nil {
			log.Printf("press marker write failed: %v", err)
		}

		state, err := orch.Verify(c.Request.Context(), req.Latitude, req.Longitude)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"phase": state.Phase.String(), "message": state.Message})
	})

	v1.POST("/clock-in", func(c *gin.Context) {
		auth := resolver.State()
		if auth.Phase != session.Authenticated {
			c.JSON(http.StatusForbidden, gin.H{"error": "device not registered"})
			return
		}

		file, header, err := c.Request.FormFile("photo")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "photo field required"})
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "read photo failed"})
			return
		}

		capturedAt := time.Now()
		if raw := c.PostForm("captured_at"); raw != "" {
			if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
				capturedAt = time.UnixMilli(ms)
			}
		}

		photo := attendance.Photo{
			Name:       header.Filename,
			Data:       data,
			CapturedAt: capturedAt,
		}
		if name := cachePhoto(cfg.CacheDir, data); name != "" {
			photo.Name = name
		}

		state, err := orch.SubmitClockIn(c.Request.Context(), auth.Employee.ID, auth.Employee.DeviceID, photo)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if state.Phase == attendance.SubmitSuccess {
			// Refresh the cached employee so attendanceStatus moves off NONE.
			resolver.Resolve(c.Request.Context(), false)
		}
		c.JSON(http.StatusOK, gin.H{"phase": state.Phase.String(), "message": state.Message})
	})

	v1.POST("/clock-out", func(c *gin.Context) {
		var req struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		auth := resolver.State()
		if auth.Phase != session.Authenticated {
			c.JSON(http.StatusForbidden, gin.H{"error": "device not registered"})
			return
		}

		if err := store.MarkAttendancePressed(time.Now()); err != nil {
			log.Printf("press marker write failed: %v", err)
		}

		state, err := orch.SubmitClockOut(c.Request.Context(), auth.Employee.ID, auth.Employee.DeviceID, req.Latitude, req.Longitude)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if state.Phase == attendance.SubmitSuccess {
			resolver.Resolve(c.Request.Context(), false)
		}
		c.JSON(http.StatusOK, gin.H{"phase": state.Phase.String(), "message": state.Message})
	})

	v1.POST("/reset", func(c *gin.Context) {
		orch.ResetVerification()
		orch.ResetSubmission()
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1.GET("/history", func(c *gin.Context) {
		auth := resolver.State()
		if auth.Phase != session.Authenticated {
			c.JSON(http.StatusForbidden, gin.H{"error": "device not registered"})
			return
		}

		limit := cfg.HistoryLimit
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}

		state := history.Fetch(c.Request.Context(), auth.Employee.ID, limit)
		if state.Phase == attendance.HistoryError {
			c.JSON(http.StatusBadGateway, gin.H{"error": state.Message})
			return
		}
		c.JSON(http.StatusOK, gin.H{"history": state.Records})
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("agent listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}

	log.Println("agent exited")
	return nil
}

func authView(s session.AuthState) gin.H {
	view := gin.H{"phase": s.Phase.String()}
	if s.Employee != nil {
		view["employee"] = s.Employee
	}
	if s.Message != "" {
		view["message"] = s.Message
	}
	return view
}

func stateView(resolver *session.Resolver, orch *attendance.Orchestrator, history *attendance.History) gin.H {
	verification := orch.Verification()
	submission := orch.Submission()
	return gin.H{
		"auth": authView(resolver.State()),
		"verification": gin.H{
			"phase":   verification.Phase.String(),
			"message": verification.Message,
		},
		"submission": gin.H{
			"phase":   submission.Phase.String(),
			"message": submission.Message,
		},
		"history_phase": history.State().Phase.String(),
	}
}

// cachePhoto writes the JPEG to the local cache and returns the stored name.
// A half-written file on crash is just an orphan the cache sweep removes.
func cachePhoto(dir string, data []byte) string {
	if dir == "" {
		return ""
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ""
	}
	name := uuid.NewString() + ".jpg"
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		log.Printf("photo cache write failed: %v", err)
		return ""
	}
	return name
}
