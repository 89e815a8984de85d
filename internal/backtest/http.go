package backtest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"orb/internal/config"
	"orb/internal/config/loader"
	"orb/internal/market"
)

// HTTPServer 提供 Gin 接口：提交/查询回测、导出台账、实时建议。
type HTTPServer struct {
	addr         string
	sim          *Simulator
	results      *ResultStore
	store        *market.Store
	advisor      *Advisor
	profiles     *loader.ProfileLoader
	baseStrategy config.StrategyConfig
	defaultTF    string
	chartFn      ChartRenderer
	router       *gin.Engine
}

// ChartRenderer 把资金曲线渲染为文件并返回路径，由上层注入避免包环。
type ChartRenderer func(run Run, equity []EquityPoint) (string, error)

type HTTPConfig struct {
	Addr             string
	Simulator        *Simulator
	Results          *ResultStore
	Store            *market.Store
	Advisor          *Advisor
	Profiles         *loader.ProfileLoader
	BaseStrategy     config.StrategyConfig
	DefaultTimeframe string
	Chart            ChartRenderer
}

func NewHTTPServer(cfg HTTPConfig) (*HTTPServer, error) {
	if cfg.Simulator == nil {
		return nil, errors.New("simulator 不能为空")
	}
	if cfg.Results == nil {
		return nil, errors.New("result store 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9980"
	}
	if cfg.DefaultTimeframe == "" {
		cfg.DefaultTimeframe = "5m"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &HTTPServer{
		addr:         cfg.Addr,
		sim:          cfg.Simulator,
		results:      cfg.Results,
		store:        cfg.Store,
		advisor:      cfg.Advisor,
		profiles:     cfg.Profiles,
		baseStrategy: cfg.BaseStrategy,
		defaultTF:    cfg.DefaultTimeframe,
		chartFn:      cfg.Chart,
		router:       router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *HTTPServer) registerRoutes() {
	api := s.router.Group("/api/backtest")
	api.POST("/runs", s.handleRunStart)
	api.GET("/runs", s.handleRunList)
	api.GET("/runs/:id", s.handleRunDetail)
	api.GET("/runs/:id/trades", s.handleRunTrades)
	api.GET("/runs/:id/equity", s.handleRunEquity)
	api.GET("/runs/:id/skips", s.handleRunSkips)
	api.GET("/runs/:id/trades.csv", s.handleRunTradesCSV)
	api.GET("/runs/:id/summary.yaml", s.handleRunSummaryYAML)
	api.GET("/runs/:id/chart", s.handleRunChart)

	data := s.router.Group("/api/data")
	data.GET("/manifest", s.handleManifest)
	data.GET("/candles", s.handleCandles)

	s.router.GET("/api/recommendation", s.handleRecommendation)
	s.router.GET("/api/profiles", s.handleProfiles)
}

// buildRunConfig 合成一次回测的策略参数：全局基线 → profile 覆盖 →
// 请求内联字段覆盖，优先级依次升高。
func (s *HTTPServer) buildRunConfig(req RunRequest) (RunConfig, error) {
	strategy := s.baseStrategy
	if req.Profile != "" {
		if s.profiles == nil {
			return RunConfig{}, fmt.Errorf("profile %q 不可用：未配置 profile 文件", req.Profile)
		}
		def, ok := s.profiles.Snapshot().Get(req.Profile)
		if !ok {
			return RunConfig{}, fmt.Errorf("未知 profile: %s", req.Profile)
		}
		strategy = def.Apply(strategy)
	}
	if req.InitialCapital > 0 {
		strategy.InitialCapital = req.InitialCapital
	}
	if req.Leverage > 0 {
		strategy.Leverage = req.Leverage
	}
	if req.RiskPerTrade > 0 {
		strategy.RiskPerTrade = req.RiskPerTrade
	}
	tf := req.Timeframe
	if tf == "" {
		tf = s.defaultTF
	}
	return RunConfig{
		Symbol:    req.Symbol,
		Timeframe: tf,
		Profile:   req.Profile,
		StartTS:   req.StartTS,
		EndTS:     req.EndTS,
		Strategy:  strategy,
	}, nil
}

func (s *HTTPServer) handleRunStart(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg, err := s.buildRunConfig(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	run, err := s.sim.Submit(cfg)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}

func (s *HTTPServer) handleRunList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.results.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *HTTPServer) getRun(c *gin.Context) (Run, bool) {
	run, ok, err := s.results.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return Run{}, false
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return Run{}, false
	}
	return run, true
}

func (s *HTTPServer) handleRunDetail(c *gin.Context) {
	run, ok := s.getRun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (s *HTTPServer) handleRunTrades(c *gin.Context) {
	trades, err := s.results.ListTrades(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *HTTPServer) handleRunEquity(c *gin.Context) {
	equity, err := s.results.ListEquity(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"equity": equity})
}

func (s *HTTPServer) handleRunSkips(c *gin.Context) {
	skips, err := s.results.ListSkips(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"skips": skips})
}

func (s *HTTPServer) handleRunTradesCSV(c *gin.Context) {
	trades, err := s.results.ListTrades(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=trades_%s.csv", c.Param("id")))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)
	if err := WriteTradesCSV(c.Writer, trades); err != nil {
		_ = c.Error(err)
	}
}

func (s *HTTPServer) handleRunSummaryYAML(c *gin.Context) {
	run, ok := s.getRun(c)
	if !ok {
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=summary_%s.yaml", run.ID))
	c.Header("Content-Type", "application/yaml; charset=utf-8")
	c.Status(http.StatusOK)
	if err := WriteRunSummaryYAML(c.Writer, run); err != nil {
		_ = c.Error(err)
	}
}

func (s *HTTPServer) handleRunChart(c *gin.Context) {
	if s.chartFn == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "图表渲染未启用"})
		return
	}
	run, ok := s.getRun(c)
	if !ok {
		return
	}
	equity, err := s.results.ListEquity(c.Request.Context(), run.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	path, err := s.chartFn(run, equity)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.File(path)
}

func (s *HTTPServer) handleManifest(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "K 线存储未启用"})
		return
	}
	symbol := c.Query("symbol")
	tf := c.Query("timeframe")
	if symbol == "" || tf == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol/timeframe 必填"})
		return
	}
	info, err := s.store.Manifest(c.Request.Context(), symbol, tf)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"manifest": info})
}

func (s *HTTPServer) handleCandles(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "K 线存储未启用"})
		return
	}
	symbol := c.Query("symbol")
	tf := c.Query("timeframe")
	if symbol == "" || tf == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol/timeframe 必填"})
		return
	}
	start, _ := strconv.ParseInt(c.Query("start_ts"), 10, 64)
	end, _ := strconv.ParseInt(c.Query("end_ts"), 10, 64)
	data, err := s.store.RangeCandles(c.Request.Context(), symbol, tf, start, end)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"candles": data})
}

func (s *HTTPServer) handleRecommendation(c *gin.Context) {
	if s.advisor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "实时建议未启用"})
		return
	}
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol 必填"})
		return
	}
	tf := c.DefaultQuery("timeframe", s.defaultTF)
	now, _ := strconv.ParseInt(c.Query("now"), 10, 64)

	strategy := s.baseStrategy
	if name := c.Query("profile"); name != "" && s.profiles != nil {
		if def, ok := s.profiles.Snapshot().Get(name); ok {
			strategy = def.Apply(strategy)
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": "未知 profile: " + name})
			return
		}
	}
	rec, err := s.advisor.Recommend(c.Request.Context(), symbol, tf, strategy, now)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recommendation": rec})
}

func (s *HTTPServer) handleProfiles(c *gin.Context) {
	if s.profiles == nil {
		c.JSON(http.StatusOK, gin.H{"profiles": []string{}})
		return
	}
	snap := s.profiles.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"profiles": snap.Names(),
		"default":  snap.DefaultName,
		"version":  snap.Version,
	})
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *HTTPServer) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
