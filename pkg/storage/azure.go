package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"github.com/wehubfusion/ce2ocf/pkg/logging"
)

// Azurite's well-known development account.
const (
	devAccountName = "devstoreaccount1"
	devAccountKey  = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="
	devBlobURL     = "http://127.0.0.1:10000/devstoreaccount1"
)

// AzureStore implements ArchiveStore on Azure Blob Storage with a shared key,
// so it also works against a local Azurite over HTTP.
type AzureStore struct {
	client        *azblob.Client
	serviceURL    string
	containerName string
	logger        logging.Logger

	mu            sync.Mutex
	containerInit bool
}

// NewAzureStore creates a store from a standard connection string.
// "UseDevelopmentStorage=true" targets Azurite.
func NewAzureStore(connectionString, containerName string, logger logging.Logger) (*AzureStore, error) {
	if connectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}
	if containerName == "" {
		return nil, fmt.Errorf("container name is required")
	}

	params := parseConnectionString(connectionString)
	if strings.EqualFold(params["UseDevelopmentStorage"], "true") {
		params["AccountName"] = devAccountName
		params["AccountKey"] = devAccountKey
		if params["BlobEndpoint"] == "" {
			params["BlobEndpoint"] = devBlobURL
		}
	}

	accountName := params["AccountName"]
	accountKey := params["AccountKey"]
	serviceURL := params["BlobEndpoint"]
	if accountName == "" || accountKey == "" {
		return nil, fmt.Errorf("account name and key are required in the connection string")
	}
	if serviceURL == "" {
		suffix := params["EndpointSuffix"]
		if suffix == "" {
			suffix = "core.windows.net"
		}
		protocol := params["DefaultEndpointsProtocol"]
		if protocol == "" {
			protocol = "https"
		}
		serviceURL = fmt.Sprintf("%s://%s.blob.%s", protocol, accountName, suffix)
	}

	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create shared key credential: %w", err)
	}

	var clientOpts *azblob.ClientOptions
	if strings.HasPrefix(strings.ToLower(serviceURL), "http://") {
		clientOpts = &azblob.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				InsecureAllowCredentialWithHTTP: true,
			},
		}
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	return &AzureStore{
		client:        client,
		serviceURL:    strings.TrimRight(serviceURL, "/"),
		containerName: containerName,
		logger:        logging.OrNoOp(logger),
	}, nil
}

// Put uploads an archive to the configured container.
func (a *AzureStore) Put(ctx context.Context, name string, data []byte, metadata map[string]string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("blob name is required")
	}
	if err := a.ensureContainer(ctx); err != nil {
		return "", err
	}

	metadataPtr := make(map[string]*string, len(metadata))
	for k, v := range metadata {
		metadataPtr[k] = to.Ptr(v)
	}

	blobClient := a.client.ServiceClient().NewContainerClient(a.containerName).NewBlockBlobClient(name)
	_, err := blobClient.UploadBuffer(ctx, data, &azblob.UploadBufferOptions{
		Metadata: metadataPtr,
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: to.Ptr(ContentTypeZip),
		},
	})
	if err != nil {
		a.logger.Error("failed to upload archive",
			logging.F("blob", name),
			logging.F("size", len(data)),
			logging.F("error", err))
		return "", fmt.Errorf("blob upload failed: %w", err)
	}

	a.logger.Info("uploaded archive", logging.F("blob", name), logging.F("size_bytes", len(data)))
	return blobClient.URL(), nil
}

// Get downloads an archive by blob URL or name.
func (a *AzureStore) Get(ctx context.Context, ref string) ([]byte, error) {
	name, err := a.blobName(ref)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.ServiceClient().NewContainerClient(a.containerName).NewBlobClient(name).DownloadStream(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download blob: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob data: %w", err)
	}
	return data, nil
}

func (a *AzureStore) ensureContainer(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.containerInit {
		return nil
	}

	_, err := a.client.CreateContainer(ctx, a.containerName, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if !errors.As(err, &respErr) || respErr.ErrorCode != "ContainerAlreadyExists" {
			return fmt.Errorf("failed to ensure container: %w", err)
		}
	}
	a.containerInit = true
	return nil
}

func parseConnectionString(connectionString string) map[string]string {
	parts := strings.Split(connectionString, ";")
	params := make(map[string]string, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		idx := strings.Index(part, "=")
		if idx <= 0 {
			continue
		}
		params[part[:idx]] = part[idx+1:]
	}
	return params
}

// blobName accepts a full blob URL, a container-relative path or a bare name.
func (a *AzureStore) blobName(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("blob reference is required")
	}

	if strings.HasPrefix(strings.ToLower(ref), strings.ToLower(a.serviceURL)) {
		ref = ref[len(a.serviceURL):]
	}
	if idx := strings.Index(ref, "?"); idx != -1 {
		ref = ref[:idx]
	}
	if u, err := url.Parse(ref); err == nil && u.Host != "" {
		ref = u.Path
	}
	if decoded, err := url.PathUnescape(ref); err == nil {
		ref = decoded
	}

	ref = strings.TrimPrefix(ref, "/")
	ref = strings.TrimPrefix(ref, a.containerName+"/")
	if ref == "" {
		return "", fmt.Errorf("blob path is empty")
	}
	return ref, nil
}
