package color

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewColor(t *testing.T) {
	assert.Equal(t, "\033[31mERROR\033[0m", NewColor("\033[31m")("ERROR"))
	assert.Equal(t, "\033[36mcatalog.yaml\033[0m", Cyan("catalog.yaml"))
}

func TestForLevel(t *testing.T) {
	assert.Equal(t, Red("x"), ForLevel(slog.LevelError)("x"))
	assert.Equal(t, Yellow("x"), ForLevel(slog.LevelWarn)("x"))
	assert.Equal(t, Green("x"), ForLevel(slog.LevelInfo)("x"))
	assert.Equal(t, Gray("x"), ForLevel(slog.LevelDebug)("x"))
}

func TestNewPalette(t *testing.T) {
	plain := NewPalette(false)
	assert.Equal(t, "a.yaml", plain.Path("a.yaml"))
	assert.Equal(t, "cached", plain.Muted("cached"))

	colored := NewPalette(true)
	assert.Equal(t, Cyan("a.yaml"), colored.Path("a.yaml"))
	assert.Equal(t, Red("boom"), colored.Error("boom"))
}
