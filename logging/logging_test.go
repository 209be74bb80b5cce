package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestSetLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level   string
		want    zapcore.Level
		wantErr bool
	}{
		{level: "", want: zapcore.InfoLevel},
		{level: "debug", want: zapcore.DebugLevel},
		{level: "WARN", want: zapcore.WarnLevel},
		{level: "loud", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.level, func(t *testing.T) {
			t.Parallel()
			atom := zap.NewAtomicLevel()
			err := SetLevel(atom, tt.level)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, atom.Level())
		})
	}
}

func TestNew(t *testing.T) {
	t.Parallel()
	log, atom, err := New("debug", true)
	require.NoError(t, err)
	assert.NotNil(t, log)
	assert.True(t, atom.Enabled(zapcore.DebugLevel))
}
