// Package loader 管理策略参数 profile：一个 YAML 文件里维护多组可切换的
// ORB/EMA 参数，支持 fsnotify 热加载。回测任务启动时固定一份快照，
// 文件变更不影响进行中的 run。
package loader

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"orb/internal/config"
	"orb/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// ProfileDefinition 描述一组命名的策略参数覆盖。
// 未设置的字段（零值）沿用主配置里的基础值。
type ProfileDefinition struct {
	Name           string   `mapstructure:"-"`
	Symbols        []string `mapstructure:"symbols"`
	InitialCapital float64  `mapstructure:"initial_capital"`
	Leverage       float64  `mapstructure:"leverage"`
	RiskPerTrade   float64  `mapstructure:"risk_per_trade"`
	RangeMinutes   int      `mapstructure:"range_minutes"`
	EntryWindow    int      `mapstructure:"entry_window_minutes"`
	TakeProfitR    float64  `mapstructure:"take_profit_r"`
	PullbackATR    float64  `mapstructure:"pullback_atr"`
	Default        bool     `mapstructure:"default"`

	symbolsUpper []string
}

// SymbolsUpper 返回归一化后的交易对列表。
func (d ProfileDefinition) SymbolsUpper() []string {
	out := make([]string, len(d.symbolsUpper))
	copy(out, d.symbolsUpper)
	return out
}

// Apply 将覆盖值合并进基础 StrategyConfig，返回新值（不修改入参）。
func (d ProfileDefinition) Apply(base config.StrategyConfig) config.StrategyConfig {
	out := base
	if d.InitialCapital > 0 {
		out.InitialCapital = d.InitialCapital
	}
	if d.Leverage > 0 {
		out.Leverage = d.Leverage
	}
	if d.RiskPerTrade > 0 {
		out.RiskPerTrade = d.RiskPerTrade
	}
	if d.RangeMinutes > 0 {
		out.ORB.RangeMinutes = d.RangeMinutes
	}
	if d.EntryWindow > 0 {
		out.ORB.EntryWindowMinutes = d.EntryWindow
	}
	if d.TakeProfitR > 0 {
		out.ORB.TakeProfitR = d.TakeProfitR
	}
	if d.PullbackATR > 0 {
		out.EMAFallback.PullbackATR = d.PullbackATR
	}
	return out
}

type fileConfig struct {
	Profiles map[string]ProfileDefinition `mapstructure:"profiles"`
}

// Snapshot 是对外暴露的只读快照。
type Snapshot struct {
	Version     int64
	LoadedAt    time.Time
	DefaultName string
	Profiles    map[string]ProfileDefinition
}

// Get 按名称取 profile；空名称返回默认 profile。
func (s Snapshot) Get(name string) (ProfileDefinition, bool) {
	if s.Profiles == nil {
		return ProfileDefinition{}, false
	}
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = s.DefaultName
	}
	def, ok := s.Profiles[key]
	return def, ok
}

// Names 返回排序后的 profile 名称。
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.Profiles))
	for name := range s.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProfileLoader 负责加载并监听 profiles 文件。
type ProfileLoader struct {
	path string

	mu      sync.RWMutex
	current Snapshot
	watcher *fsnotify.Watcher
	done    chan struct{}
}

func NewProfileLoader(path string) (*ProfileLoader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("profiles path cannot be empty")
	}
	l := &ProfileLoader{path: path, done: make(chan struct{})}
	if err := l.reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Snapshot 返回当前快照。
func (l *ProfileLoader) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Watch 启动 fsnotify 监听，文件变化时重新加载；失败保留旧快照。
func (l *ProfileLoader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		_ = watcher.Close()
		return err
	}
	l.watcher = watcher
	go func() {
		target := filepath.Clean(l.path)
		for {
			select {
			case <-l.done:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if err := l.reload(); err != nil {
					logger.Warnf("profiles reload failed (%s): %v", l.path, err)
					continue
				}
				logger.Infof("profiles reloaded: %s", l.path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnf("profiles watcher error: %v", err)
			}
		}
	}()
	return nil
}

// Close 停止监听。
func (l *ProfileLoader) Close() error {
	close(l.done)
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

func (l *ProfileLoader) reload() error {
	v := viper.New()
	v.SetConfigFile(l.path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading profiles failed: %w", err)
	}
	var fc fileConfig
	if err := v.Unmarshal(&fc, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return fmt.Errorf("parsing profiles failed: %w", err)
	}
	if len(fc.Profiles) == 0 {
		return fmt.Errorf("profiles file defines no profiles")
	}
	normalized := make(map[string]ProfileDefinition, len(fc.Profiles))
	defaultName := ""
	for name, def := range fc.Profiles {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		def.Name = key
		def.symbolsUpper = normalizeSymbols(def.Symbols)
		normalized[key] = def
		if def.Default && defaultName == "" {
			defaultName = key
		}
	}
	if len(normalized) == 0 {
		return fmt.Errorf("profiles file defines no usable profiles")
	}
	if defaultName == "" {
		names := make([]string, 0, len(normalized))
		for name := range normalized {
			names = append(names, name)
		}
		sort.Strings(names)
		defaultName = names[0]
	}

	l.mu.Lock()
	l.current = Snapshot{
		Version:     l.current.Version + 1,
		LoadedAt:    time.Now(),
		DefaultName: defaultName,
		Profiles:    normalized,
	}
	l.mu.Unlock()
	return nil
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
