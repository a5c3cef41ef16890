package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveName(t *testing.T) {
	at := time.Date(2023, 3, 1, 12, 0, 0, 0, time.FixedZone("PST", -8*3600))
	assert.Equal(t, "acme-robotics-inc/20230301T200000Z.ocf.zip", ArchiveName("Acme Robotics, Inc.", at))
	assert.Equal(t, "issuer/20230301T200000Z.ocf.zip", ArchiveName("  ", at))
}

func TestNewAzureStore(t *testing.T) {
	tests := []struct {
		name             string
		connectionString string
		containerName    string
		errContains      string
		wantURL          string
	}{
		{
			name:          "empty connection string",
			containerName: "archives",
			errContains:   "connection string is required",
		},
		{
			name:             "empty container name",
			connectionString: "DefaultEndpointsProtocol=https;AccountName=test;AccountKey=dGVzdA==;EndpointSuffix=core.windows.net",
			errContains:      "container name is required",
		},
		{
			name:             "missing key",
			connectionString: "AccountName=test",
			containerName:    "archives",
			errContains:      "account name and key are required",
		},
		{
			name:             "account endpoint",
			connectionString: "DefaultEndpointsProtocol=https;AccountName=test;AccountKey=dGVzdA==;EndpointSuffix=core.windows.net",
			containerName:    "archives",
			wantURL:          "https://test.blob.core.windows.net",
		},
		{
			name:             "development storage",
			connectionString: "UseDevelopmentStorage=true",
			containerName:    "archives",
			wantURL:          devBlobURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewAzureStore(tt.connectionString, tt.containerName, nil)
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Nil(t, store)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, store.serviceURL)
		})
	}
}

func TestAzureStore_BlobName(t *testing.T) {
	store, err := NewAzureStore("UseDevelopmentStorage=true", "archives", nil)
	require.NoError(t, err)

	tests := map[string]string{
		devBlobURL + "/archives/acme/x.ocf.zip":            "acme/x.ocf.zip",
		devBlobURL + "/archives/acme/x.ocf.zip?sig=abc":    "acme/x.ocf.zip",
		"https://elsewhere.example/archives/acme%20co.zip": "acme co.zip",
		"archives/acme/x.ocf.zip":                          "acme/x.ocf.zip",
		"acme/x.ocf.zip":                                   "acme/x.ocf.zip",
	}
	for ref, want := range tests {
		got, err := store.blobName(ref)
		require.NoError(t, err, ref)
		assert.Equal(t, want, got, ref)
	}

	_, err = store.blobName("  ")
	assert.Error(t, err)
	_, err = store.blobName(devBlobURL + "/archives/")
	assert.Error(t, err)
}

// TestAzureStore_RoundTrip needs Azurite; set CE2OCF_TEST_AZURITE=1 to run it.
func TestAzureStore_RoundTrip(t *testing.T) {
	if os.Getenv("CE2OCF_TEST_AZURITE") == "" {
		t.Skip("Azurite not available")
	}

	store, err := NewAzureStore("UseDevelopmentStorage=true", "ce2ocf-test", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	url, err := store.Put(ctx, "acme/test.ocf.zip", []byte("PK"), map[string]string{"issuer": "acme"})
	require.NoError(t, err)

	data, err := store.Get(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, []byte("PK"), data)
}

var _ ArchiveStore = (*AzureStore)(nil)
