package api

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"booster-trader/internal/config"
	"booster-trader/internal/models"
	"booster-trader/internal/scanner"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type APIHandler struct {
	db  *gorm.DB
	cfg *config.Config
	hub *Hub

	// scan job state
	jobMu sync.Mutex
	job   *scanJob
	last  *scanner.Summary
}

// scanJob is the status snapshot of the current or last scan.
type scanJob struct {
	Running    bool       `json:"running"`
	Stage      string     `json:"stage"`
	Message    string     `json:"message"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Error      string     `json:"error"`
}

func SetupRoutes(r *gin.RouterGroup, db *gorm.DB, cfg *config.Config, hub *Hub) *APIHandler {
	handler := &APIHandler{db: db, cfg: cfg, hub: hub}

	scan := r.Group("/scan")
	{
		scan.POST("/start", handler.StartScan)
		scan.GET("/status", handler.ScanStatus)
		scan.GET("/latest", handler.LatestResult)
		scan.GET("/report.xlsx", handler.DownloadReport)
	}

	history := r.Group("/history")
	{
		history.GET("/runs", handler.ListRuns)
		history.GET("/runs/:id", handler.GetRun)
		history.GET("/gem-prices", handler.ListGemPrices)
	}

	return handler
}

func (h *APIHandler) StartScan(c *gin.Context) {
	var req struct {
		GemPriceOverrideCents int  `json:"gem_price_override_cents"`
		GemPriceFloorCents    int  `json:"gem_price_floor_cents"`
		AskPreCheck           bool `json:"ask_pre_check"`
		OnlyCrafted           bool `json:"only_crafted"`
		RetryFailures         bool `json:"retry_failures"`
		RefreshListings       bool `json:"refresh_listings"`
		Craft                 bool `json:"craft"`
	}
	_ = c.ShouldBindJSON(&req)

	h.jobMu.Lock()
	if h.job != nil && h.job.Running {
		st := *h.job
		h.jobMu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"error": "scan already running", "status": st})
		return
	}
	job := &scanJob{Running: true, Stage: "starting", StartedAt: time.Now()}
	h.job = job
	h.jobMu.Unlock()

	opts := scanner.Options{
		GemPriceOverrideCents: req.GemPriceOverrideCents,
		GemPriceFloorCents:    req.GemPriceFloorCents,
		AskPreCheck:           req.AskPreCheck,
		OnlyCrafted:           req.OnlyCrafted,
		RetryFailures:         req.RetryFailures,
		RefreshListings:       req.RefreshListings,
		Craft:                 req.Craft,
		// Crafting through the web surface is always a dry run; real
		// spending stays behind the CLI flag.
		Simulate: true,
	}
	go h.runScan(job, opts)
	c.JSON(http.StatusOK, gin.H{"code": 200, "msg": "started", "status": job})
}

func (h *APIHandler) runScan(job *scanJob, opts scanner.Options) {
	sc, err := scanner.New(h.cfg, h.db)
	if err != nil {
		h.finishJob(job, nil, err)
		return
	}
	sc.SetProgress(func(p scanner.Progress) {
		h.jobMu.Lock()
		job.Stage = p.Stage
		job.Message = p.Message
		h.jobMu.Unlock()
		h.hub.Broadcast(gin.H{"type": "scan_progress", "payload": p})
	})
	sum, err := sc.Run(context.Background(), opts)
	h.finishJob(job, sum, err)
}

func (h *APIHandler) finishJob(job *scanJob, sum *scanner.Summary, err error) {
	now := time.Now()
	h.jobMu.Lock()
	job.Running = false
	job.FinishedAt = &now
	if err != nil {
		job.Error = err.Error()
	} else {
		h.last = sum
	}
	st := *job
	h.jobMu.Unlock()

	if err != nil {
		h.hub.Broadcast(gin.H{"type": "scan_failed", "payload": st})
		return
	}
	h.hub.Broadcast(gin.H{"type": "scan_finished", "payload": gin.H{
		"arbitrages": len(sum.Result.Arbitrages),
		"unknown":    len(sum.Result.UnknownMarketable),
		"filtered":   sum.Result.Filtered,
	}})
}

func (h *APIHandler) ScanStatus(c *gin.Context) {
	h.jobMu.Lock()
	var st *scanJob
	if h.job != nil {
		cp := *h.job
		st = &cp
	}
	h.jobMu.Unlock()
	if st == nil {
		c.JSON(http.StatusOK, gin.H{"code": 200, "status": gin.H{"running": false}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "status": st})
}

func (h *APIHandler) LatestResult(c *gin.Context) {
	h.jobMu.Lock()
	last := h.last
	h.jobMu.Unlock()
	if last == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no completed scan yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "summary": last})
}

func (h *APIHandler) DownloadReport(c *gin.Context) {
	path := filepath.Join(h.cfg.DataDir, h.cfg.ReportXlsx)
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no report generated yet"})
		return
	}
	c.FileAttachment(path, h.cfg.ReportXlsx)
}

func (h *APIHandler) ListRuns(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run history not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var runs []models.ScanRun
	if err := h.db.Order("id desc").Limit(limit).Find(&runs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "runs": runs})
}

func (h *APIHandler) GetRun(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run history not configured"})
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}
	var run models.ScanRun
	if err := h.db.Preload("Records").First(&run, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "run": run})
}

func (h *APIHandler) ListGemPrices(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run history not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	if limit <= 0 || limit > 2000 {
		limit = 200
	}
	var samples []models.GemPriceSample
	if err := h.db.Order("id desc").Limit(limit).Find(&samples).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "samples": samples})
}
