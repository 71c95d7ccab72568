// Package backend builds the NetworkAdapter named by a wallet's settings,
// so the CLI never has to know which object-storage SDK a given backend
// choice maps to.
package backend

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/storage"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"mutant/internal/home"
	"mutant/internal/network"
	"mutant/internal/network/azblobnet"
	"mutant/internal/network/gcsnet"
	"mutant/internal/network/localnet"
	"mutant/internal/network/s3net"
	"mutant/internal/settings"
)

// Open builds the NetworkAdapter for s.Backend. hd and walletID are only
// used by BackendLocal, whose pads live under the home directory.
func Open(ctx context.Context, s settings.Settings, hd home.Dir, walletID string) (network.Adapter, error) {
	switch s.Backend {
	case settings.BackendLocal, "":
		if err := hd.EnsureWalletDir(walletID); err != nil {
			return nil, err
		}
		return localnet.New(hd.PadsDir(walletID))

	case settings.BackendS3:
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return s3net.New(s3.NewFromConfig(cfg), s.BucketName, ""), nil

	case settings.BackendAzblob:
		account := os.Getenv("AZURE_STORAGE_ACCOUNT")
		key := os.Getenv("AZURE_STORAGE_KEY")
		cred, err := azblob.NewSharedKeyCredential(account, key)
		if err != nil {
			return nil, fmt.Errorf("build azure credential: %w", err)
		}
		serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", account)
		client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("build azure client: %w", err)
		}
		return azblobnet.New(client, s.BucketName, ""), nil

	case settings.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("build gcs client: %w", err)
		}
		return gcsnet.New(client, s.BucketName, ""), nil

	default:
		return nil, fmt.Errorf("unknown backend %q", s.Backend)
	}
}
