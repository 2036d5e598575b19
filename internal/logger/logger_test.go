package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestJSONOutputCarriesLedgerAttributes(t *testing.T) {
	var buf bytes.Buffer
	InitializeWithWriter("info", "json", &buf)
	defer Initialize("info", "text")

	LedgerMovement(context.Background(), 42, "SAVINGS", "5000.00", "journal_id", int64(7))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Ledger movement recorded", entry["msg"])
	assert.Equal(t, float64(42), entry["movement_id"])
	assert.Equal(t, "SAVINGS", entry["sense"])
	assert.Equal(t, float64(7), entry["journal_id"])
}

func TestDebugSuppressedAtInfo(t *testing.T) {
	var buf bytes.Buffer
	InitializeWithWriter("info", "text", &buf)
	defer Initialize("info", "text")

	EnterMethod("movementService.Transfer")
	DatabaseCall("SELECT", "accounts")
	assert.Empty(t, buf.String())

	ExitMethodWithError("movementService.Transfer", errors.New("boom"))
	assert.Contains(t, buf.String(), "boom")
}

func TestWithJournal(t *testing.T) {
	var buf bytes.Buffer
	InitializeWithWriter("debug", "text", &buf)
	defer Initialize("info", "text")

	WithJournal(3, 9).Info("journal opened")
	assert.Contains(t, buf.String(), "collector_id=3")
	assert.Contains(t, buf.String(), "journal_id=9")
}
