package cli

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/custodia-labs/tender-ingest/internal/config"
)

func stubChecks(checks ...HealthCheck) ChecksFactory {
	return func(*config.Config, *zap.Logger) []HealthCheck { return checks }
}

func passing(context.Context) error { return nil }

func failing(context.Context) error { return errors.New("executable file not found in $PATH") }

func TestDoctorCmd_AllPass(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	checksFactory = stubChecks(
		HealthCheck{Name: "soffice", Check: passing},
		HealthCheck{Name: "vector store", Check: passing},
	)

	out, err := execute(t, "doctor")

	require.NoError(t, err)
	assert.Contains(t, out, "  ok    soffice")
	assert.Contains(t, out, "  ok    vector store")
	assert.Contains(t, out, "All required checks passed.")
}

func TestDoctorCmd_OptionalFailureWarns(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	checksFactory = stubChecks(
		HealthCheck{Name: "soffice", Check: passing},
		HealthCheck{Name: "tesseract", Check: failing, Optional: true, Hint: "apt install tesseract-ocr\napt install tesseract-ocr-spa"},
	)

	out, err := execute(t, "doctor")

	require.NoError(t, err)
	assert.Contains(t, out, "  warn  tesseract: executable file not found")
	assert.Contains(t, out, "        apt install tesseract-ocr\n        apt install tesseract-ocr-spa")
	assert.Contains(t, out, "All required checks passed.")
}

func TestDoctorCmd_RequiredFailure(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	checksFactory = stubChecks(
		HealthCheck{Name: "soffice", Check: failing, Hint: "install LibreOffice"},
		HealthCheck{Name: "pdftotext", Check: failing},
		HealthCheck{Name: "ollama", Check: failing, Optional: true},
	)

	out, err := execute(t, "doctor")

	require.Error(t, err)
	assert.Equal(t, "2 required check(s) failed", err.Error())
	assert.Contains(t, out, "  FAIL  soffice")
	assert.Contains(t, out, "install LibreOffice")
	assert.Contains(t, out, "  FAIL  pdftotext")
	assert.Contains(t, out, "  warn  ollama")
}

func TestDoctorCmd_ChecksBounded(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	var hasDeadline bool
	checksFactory = stubChecks(HealthCheck{Name: "store", Check: func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	}})

	_, err := execute(t, "doctor")

	require.NoError(t, err)
	assert.True(t, hasDeadline)
}

func TestDoctorCmd_NotConfigured(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "doctor")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "health checks not configured")
}

func TestIndent(t *testing.T) {
	assert.Equal(t, "  a\n  b", indent("a\nb", "  "))
}
