package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const syncYAML = `secrets:
  - code: api-key
    provider: env
    value: SLUICE_API_KEY
  - code: webhook-token
    provider: inline
    value: shhh
connections:
  - code: erp
    type: http
    settings:
      baseUrl: https://erp.example.com
      headers:
        Authorization: Bearer ${ERP_TOKEN}
pipelines:
  - code: nightly-import
    name: Nightly Import
    enabled: true
    definition:
      steps:
        - key: fetch
          type: EXTRACT
          adapterCode: http
          config:
            url: https://erp.example.com/items
        - key: store
          type: LOAD
          config:
            entityType: product
            operation: UPSERT
`

func TestLoadSyncFile(t *testing.T) {
	t.Parallel()

	f, err := LoadSyncFile(writeFile(t, "sync.yaml", syncYAML))
	require.NoError(t, err)
	require.Len(t, f.Secrets, 2)
	require.Len(t, f.Connections, 1)
	require.Len(t, f.Pipelines, 1)

	require.Equal(t, SecretEnv, f.Secrets[0].Provider)
	require.Equal(t, "SLUICE_API_KEY", f.Secrets[0].Value)
	require.NotNil(t, f.Pipelines[0].Definition.Steps[1].Load)
}

func TestLoadSyncFileRejectsBadSecret(t *testing.T) {
	t.Parallel()

	contents := `secrets:
  - code: broken
    provider: vault
    value: x
`
	_, err := LoadSyncFile(writeFile(t, "sync.yaml", contents))
	require.Error(t, err)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("ERP_TOKEN", "tok-123")

	settings := map[string]any{
		"baseUrl": "https://erp.example.com",
		"headers": map[string]any{
			"Authorization": "Bearer ${ERP_TOKEN}",
		},
		"retries": 3,
		"tags":    []any{"${ERP_TOKEN}", "static"},
	}

	out, ok := ExpandEnv(settings).(map[string]any)
	require.True(t, ok)
	require.Equal(t, "https://erp.example.com", out["baseUrl"])
	require.Equal(t, "Bearer tok-123", out["headers"].(map[string]any)["Authorization"])
	require.Equal(t, 3, out["retries"])
	require.Equal(t, "tok-123", out["tags"].([]any)[0])

	// Unset variables expand to the empty string.
	require.Equal(t, "", ExpandEnv("${DEFINITELY_NOT_SET_12345}"))
}
