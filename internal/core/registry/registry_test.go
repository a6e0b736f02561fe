package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Fixtures
// =============================================================================

const validRegistry = `
dashboard:
  - .env
  - .env.dashboard
vnc-desktop:
  - .env
postgres:
  - .env
  - .env.postgres
consul: []
`

// =============================================================================
// Parse Tests
// =============================================================================

func TestParse_ValidRegistry(t *testing.T) {
	reg, err := Parse([]byte(validRegistry))
	require.NoError(t, err)

	assert.Equal(t, 4, reg.Len())
	assert.Equal(t, []string{"dashboard", "vnc-desktop", "postgres", "consul"}, reg.Services())

	decl, ok := reg.Declaration("postgres")
	require.True(t, ok)
	assert.Equal(t, []string{".env", ".env.postgres"}, decl.EnvFiles)
}

func TestParse_EmptyEnvFileList(t *testing.T) {
	reg, err := Parse([]byte(validRegistry))
	require.NoError(t, err)

	decl, ok := reg.Declaration("consul")
	require.True(t, ok)
	assert.Empty(t, decl.EnvFiles)
}

func TestParse_NullDeclarationMeansNoEnvFiles(t *testing.T) {
	reg, err := Parse([]byte("watchtower:\n"))
	require.NoError(t, err)

	decl, ok := reg.Declaration("watchtower")
	require.True(t, ok)
	assert.Empty(t, decl.EnvFiles)
}

func TestParse_EmptyDocument(t *testing.T) {
	_, err := Parse([]byte("   \n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyRegistry)
}

func TestParse_NotAMapping(t *testing.T) {
	_, err := Parse([]byte("- dashboard\n- postgres\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedRegistry)
}

func TestParse_ScalarValueRejected(t *testing.T) {
	_, err := Parse([]byte("dashboard: .env\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedRegistry)
	assert.Contains(t, err.Error(), "dashboard")
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("dashboard: [\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedRegistry)
}

func TestParse_EnvFileNameValidation(t *testing.T) {
	tests := []struct {
		name     string
		document string
	}{
		{"path traversal", "web:\n  - ../secrets/.env\n"},
		{"absolute path", "web:\n  - /etc/passwd\n"},
		{"subdirectory", "web:\n  - conf/.env\n"},
		{"backslash", "web:\n  - conf\\.env\n"},
		{"dot dot", "web:\n  - ..\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.document))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidEnvFile)
			assert.Contains(t, err.Error(), "web")
		})
	}
}

func TestParse_PlainDotEnvAccepted(t *testing.T) {
	reg, err := Parse([]byte("web:\n  - .env\n  - .env.web\n"))
	require.NoError(t, err)

	decl, _ := reg.Declaration("web")
	assert.Equal(t, []string{".env", ".env.web"}, decl.EnvFiles)
}

// =============================================================================
// Consistency Tests
// =============================================================================

func TestCheckConsistency_SetEqual(t *testing.T) {
	reg, err := Parse([]byte(validRegistry))
	require.NoError(t, err)

	err = CheckConsistency(reg, []string{"dashboard", "vnc-desktop", "postgres", "consul"}, nil)
	assert.NoError(t, err)
}

func TestCheckConsistency_ServiceMissingFromRegistry(t *testing.T) {
	reg, err := Parse([]byte(validRegistry))
	require.NoError(t, err)

	err = CheckConsistency(reg, []string{"dashboard", "vnc-desktop", "postgres", "consul", "grafana"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnregisteredService)
	assert.Contains(t, err.Error(), "grafana")
}

func TestCheckConsistency_OrphanDeclaration(t *testing.T) {
	reg, err := Parse([]byte(validRegistry))
	require.NoError(t, err)

	err = CheckConsistency(reg, []string{"dashboard", "vnc-desktop", "postgres"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOrphanDeclaration)
	assert.Contains(t, err.Error(), "consul")
}

func TestCheckConsistency_NamesEveryOffender(t *testing.T) {
	reg, err := Parse([]byte("web: [.env]\n"))
	require.NoError(t, err)

	err = CheckConsistency(reg, []string{"web", "grafana", "loki"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grafana")
	assert.Contains(t, err.Error(), "loki")
}

func TestCheckConsistency_EnvFileMismatch(t *testing.T) {
	// The registry declares only .env for vnc-desktop, but a fragment
	// attaches .env.vnc-desktop as well. The registry is authoritative.
	reg, err := Parse([]byte("vnc-desktop:\n  - .env\n"))
	require.NoError(t, err)

	err = CheckConsistency(reg,
		[]string{"vnc-desktop"},
		map[string][]string{"vnc-desktop": {".env", ".env.vnc-desktop"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEnvFileMismatch)
	assert.Contains(t, err.Error(), "vnc-desktop")
}

func TestCheckConsistency_EnvFileAgreement(t *testing.T) {
	reg, err := Parse([]byte("postgres:\n  - .env\n  - .env.postgres\n"))
	require.NoError(t, err)

	err = CheckConsistency(reg,
		[]string{"postgres"},
		map[string][]string{"postgres": {".env", ".env.postgres"}})
	assert.NoError(t, err)
}

func TestCheckConsistency_EnvFileOrderMatters(t *testing.T) {
	reg, err := Parse([]byte("postgres:\n  - .env\n  - .env.postgres\n"))
	require.NoError(t, err)

	err = CheckConsistency(reg,
		[]string{"postgres"},
		map[string][]string{"postgres": {".env.postgres", ".env"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEnvFileMismatch)
}

func TestParse_DuplicateServiceRejected(t *testing.T) {
	// Node-based decoding keeps duplicate mapping keys, so the parser's
	// own guard must refuse them rather than silently keeping one.
	_, err := Parse([]byte("web:\n  - .env\nweb:\n  - .env.web\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateService)
	assert.Contains(t, err.Error(), "web")
}
