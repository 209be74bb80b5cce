package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. The returned level can be changed while running.
func New(level string, development bool) (*zap.SugaredLogger, zap.AtomicLevel, error) {
	atom := zap.NewAtomicLevel()
	if err := SetLevel(atom, level); err != nil {
		return nil, atom, err
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = atom

	logger, err := cfg.Build()
	if err != nil {
		return nil, atom, err
	}
	return logger.Sugar(), atom, nil
}

// SetLevel parses level ("debug", "info", ...) into atom. An empty level means info.
func SetLevel(atom zap.AtomicLevel, level string) error {
	if level == "" {
		level = "info"
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	atom.SetLevel(l)
	return nil
}
