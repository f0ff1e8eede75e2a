// The logging package is a thin facade over slog: components ask for a named provider and get back whatever was
// registered under that name, falling back to the default slog-backed provider. The lookup is the whole feature;
// there is deliberately no leveling, rotation or formatting logic here beyond what the backing handler does.

package logging

import (
	"flag"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/pomelo-lab/appkit/pkg/utils"
)

// Provider is the surface the facade hands out. The default implementation delegates to slog.
type Provider interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var (
	providersMux sync.RWMutex
	providers    = make(map[string]Provider)
)

// Register binds a provider to a name, replacing any previous binding.
func Register(name string, provider Provider) {
	if provider == nil {
		utils.RaiseInvariant("logging", "nil_provider", "A nil provider has been registered.", "name", name)
		return
	}
	providersMux.Lock()
	defer providersMux.Unlock()
	providers[name] = provider
}

// Get returns the provider registered under the given name. Unknown names fall back to the default slog provider
// so callers never receive nil.
func Get(name string) Provider {
	providersMux.RLock()
	defer providersMux.RUnlock()
	if provider, exists := providers[name]; exists {
		return provider
	}
	return defaultProvider
}

// slogProvider adapts a *slog.Logger to the Provider surface.
type slogProvider struct {
	logger *slog.Logger
}

func (p *slogProvider) Debug(msg string, args ...any) { p.logger.Debug(msg, args...) }
func (p *slogProvider) Info(msg string, args ...any)  { p.logger.Info(msg, args...) }
func (p *slogProvider) Warn(msg string, args ...any)  { p.logger.Warn(msg, args...) }
func (p *slogProvider) Error(msg string, args ...any) { p.logger.Error(msg, args...) }

var defaultProvider Provider = &slogProvider{logger: slog.Default()}

type HandlerType string

const (
	HandlerTypeText HandlerType = "text"
	HandlerTypeJSON HandlerType = "json"
)

type Level string

const (
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
)

var (
	handlerTypeFlag = flag.String("log_handler_type", string(HandlerTypeJSON), "Log handler type: json/text")
	logLevelFlag    = flag.String("log_level", string(LevelInfo), "Log level: debug/info/warn/error")
)

// initWith configures the default slog logger and the facade's fallback provider with the given arguments.
func initWith(handlerType HandlerType, level Level) {
	slogLevel := slog.LevelInfo
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelInfo:
		slogLevel = slog.LevelInfo
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		utils.RaiseInvariant("logging", "unsupported_log_level", "Got an unsupported log level.",
			"logLevel", level)
	}

	handlerOptions := slog.HandlerOptions{Level: slogLevel}
	var handler slog.Handler
	switch handlerType {
	case HandlerTypeJSON:
		handler = slog.NewJSONHandler(os.Stdout, &handlerOptions)
	case HandlerTypeText:
		handler = slog.NewTextHandler(os.Stdout, &handlerOptions)
	default:
		utils.RaiseInvariant("logging", "unsupported_handler_type", "Got an unsupported handler type.",
			"handlerType", handlerType)
		handler = slog.NewJSONHandler(os.Stdout, &handlerOptions)
	}

	// `SetDefault` happens atomically and doesn't panic when called in multiple goroutines.
	logger := slog.New(handler)
	slog.SetDefault(logger)
	providersMux.Lock()
	defaultProvider = &slogProvider{logger: logger}
	providersMux.Unlock()
	slog.Debug("Log handler configured successfully.", "type", handlerType, "logLevel", level)
}

// Init configures the default logger from the -log_handler_type and -log_level flags. It must be called after
// flag.Parse().
func Init() {
	initWith(HandlerType(strings.ToLower(*handlerTypeFlag)), Level(strings.ToLower(*logLevelFlag)))
}
