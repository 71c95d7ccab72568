// Package s3net is a NetworkAdapter backed by an S3-compatible object
// store, one of the pluggable backends a deployment can choose instead of
// the bundled reference adapters.
package s3net

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"mutant/internal/mutanterr"
	"mutant/internal/network"
)

// Adapter stores each pad as an object keyed by its hex address.
type Adapter struct {
	client *s3.Client
	bucket string
	prefix string
}

var _ network.Adapter = (*Adapter)(nil)

// New builds an Adapter over an existing S3 client, storing objects under
// bucket, optionally namespaced by prefix.
func New(client *s3.Client, bucket, prefix string) *Adapter {
	return &Adapter{client: client, bucket: bucket, prefix: prefix}
}

func (a *Adapter) objectKey(addr network.Address) string {
	if a.prefix == "" {
		return addr.String()
	}
	return a.prefix + "/" + addr.String()
}

func (a *Adapter) PutPad(ctx context.Context, key network.Key, data []byte, hint network.PadStatus) (network.Address, error) {
	addr := network.DeriveAddress(key)
	objKey := a.objectKey(addr)

	if hint == network.StatusGenerated {
		exists, err := a.Exists(ctx, addr)
		if err != nil {
			return network.Address{}, err
		}
		if exists {
			return network.Address{}, fmt.Errorf("%w: pad %s already exists but caller hinted create", mutanterr.ErrInconsistentState, addr)
		}
	}

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(objKey),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return network.Address{}, mutanterr.Storage(err)
	}
	return addr, nil
}

func (a *Adapter) GetPad(ctx context.Context, addr network.Address) ([]byte, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.objectKey(addr)),
	})
	if err != nil {
		return nil, mutanterr.Storage(err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, mutanterr.Storage(err)
	}
	return data, nil
}

func (a *Adapter) Exists(ctx context.Context, addr network.Address) (bool, error) {
	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.objectKey(addr)),
	})
	if err == nil {
		return true, nil
	}

	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, mutanterr.Storage(err)
}
