// Package gcsnet is a NetworkAdapter backed by Google Cloud Storage.
package gcsnet

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"mutant/internal/mutanterr"
	"mutant/internal/network"
)

// Adapter stores each pad as an object named by its hex address.
type Adapter struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ network.Adapter = (*Adapter)(nil)

// New builds an Adapter over an existing GCS client, storing objects in
// bucket, optionally namespaced by prefix.
func New(client *storage.Client, bucket, prefix string) *Adapter {
	return &Adapter{client: client, bucket: bucket, prefix: prefix}
}

func (a *Adapter) objectName(addr network.Address) string {
	if a.prefix == "" {
		return addr.String()
	}
	return a.prefix + "/" + addr.String()
}

func (a *Adapter) object(addr network.Address) *storage.ObjectHandle {
	return a.client.Bucket(a.bucket).Object(a.objectName(addr))
}

func (a *Adapter) PutPad(ctx context.Context, key network.Key, data []byte, hint network.PadStatus) (network.Address, error) {
	addr := network.DeriveAddress(key)
	obj := a.object(addr)

	if hint == network.StatusGenerated {
		exists, err := a.Exists(ctx, addr)
		if err != nil {
			return network.Address{}, err
		}
		if exists {
			return network.Address{}, fmt.Errorf("%w: pad %s already exists but caller hinted create", mutanterr.ErrInconsistentState, addr)
		}
	}

	w := obj.NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return network.Address{}, mutanterr.Storage(err)
	}
	if err := w.Close(); err != nil {
		return network.Address{}, mutanterr.Storage(err)
	}
	return addr, nil
}

func (a *Adapter) GetPad(ctx context.Context, addr network.Address) ([]byte, error) {
	r, err := a.object(addr).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("pad %s not found: %w", addr, err)
		}
		return nil, mutanterr.Storage(err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, mutanterr.Storage(err)
	}
	return data, nil
}

func (a *Adapter) Exists(ctx context.Context, addr network.Address) (bool, error) {
	_, err := a.object(addr).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, mutanterr.Storage(err)
}
