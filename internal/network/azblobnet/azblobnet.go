// Package azblobnet is a NetworkAdapter backed by Azure Blob Storage.
package azblobnet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"mutant/internal/mutanterr"
	"mutant/internal/network"
)

// Adapter stores each pad as a blob named by its hex address.
type Adapter struct {
	client    *azblob.Client
	container string
	prefix    string
}

var _ network.Adapter = (*Adapter)(nil)

// New builds an Adapter over an existing azblob client, storing blobs in
// container, optionally namespaced by prefix.
func New(client *azblob.Client, container, prefix string) *Adapter {
	return &Adapter{client: client, container: container, prefix: prefix}
}

func (a *Adapter) blobName(addr network.Address) string {
	if a.prefix == "" {
		return addr.String()
	}
	return a.prefix + "/" + addr.String()
}

func (a *Adapter) PutPad(ctx context.Context, key network.Key, data []byte, hint network.PadStatus) (network.Address, error) {
	addr := network.DeriveAddress(key)
	blobName := a.blobName(addr)

	if hint == network.StatusGenerated {
		exists, err := a.Exists(ctx, addr)
		if err != nil {
			return network.Address{}, err
		}
		if exists {
			return network.Address{}, fmt.Errorf("%w: pad %s already exists but caller hinted create", mutanterr.ErrInconsistentState, addr)
		}
	}

	if _, err := a.client.UploadBuffer(ctx, a.container, blobName, data, nil); err != nil {
		return network.Address{}, mutanterr.Storage(err)
	}
	return addr, nil
}

func (a *Adapter) GetPad(ctx context.Context, addr network.Address) ([]byte, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, a.blobName(addr), nil)
	if err != nil {
		return nil, mutanterr.Storage(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, mutanterr.Storage(err)
	}
	return data, nil
}

func (a *Adapter) Exists(ctx context.Context, addr network.Address) (bool, error) {
	_, err := a.client.ServiceClient().
		NewContainerClient(a.container).
		NewBlobClient(a.blobName(addr)).
		GetProperties(ctx, nil)
	if err == nil {
		return true, nil
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, mutanterr.Storage(err)
}
