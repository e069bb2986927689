package fixture

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveAllThenLoadAllRoundTripsAndRecomputesPriority(t *testing.T) {
	dir := t.TempDir()

	fixtures := []*Fixture{
		{ID: "0001_GET_api_users_id", Request: Request{Method: "GET", Path: "/api/users/42"}},
		{ID: "0002_POST_api_users", Request: Request{Method: "POST", Path: "/api/users"}},
	}

	require.NoError(t, SaveAll(dir, fixtures))
	require.FileExists(t, filepath.Join(dir, "_index.json"))
	require.FileExists(t, filepath.Join(dir, "0001_GET_api_users_id.json"))

	loaded, err := LoadAll(dir)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	byID := map[string]*Fixture{}
	for _, f := range loaded {
		byID[f.ID] = f
	}
	require.Contains(t, byID, "0001_GET_api_users_id")
	require.Equal(t, ExtractPattern("/api/users/42").Priority, byID["0001_GET_api_users_id"].Priority)
}

func TestLoadAllErrorsWhenIndexMissing(t *testing.T) {
	_, err := LoadAll(t.TempDir())
	require.Error(t, err)
}
