package archive

import (
	"context"
	"errors"
	"net/http"

	"github.com/kozaktomas/photo-variants/internal/config"
	"github.com/kozaktomas/photo-variants/internal/httpclient"
)

// CreateEndpoint is the path of the packer service.
const CreateEndpoint = "/api/v1/zip/create"

// Remote asks a packer service sharing the filesystem to build the archive.
type Remote struct {
	baseURL string
	client  *http.Client
}

// NewFromConfig returns the remote packer when PACKER_URL is set, otherwise
// the local one.
func NewFromConfig(cfg config.PackerConfig) Packer {
	if cfg.URL == "" {
		return Local{}
	}
	return NewRemote(cfg.URL, nil)
}

func NewRemote(baseURL string, client *http.Client) *Remote {
	if client == nil {
		client = httpclient.New(0)
	}
	return &Remote{baseURL: baseURL, client: client}
}

func (r *Remote) Pack(ctx context.Context, sourceDir, destPath, rootName string) (string, error) {
	resp, err := httpclient.PostJSON[CreateResponse](ctx, r.client, httpclient.JoinURL(r.baseURL, CreateEndpoint), CreateRequest{
		InputFolders:   []string{sourceDir},
		OutputZipPath:  destPath,
		RootFolderName: rootName,
		Flatten:        true,
		Files:          []File{},
	})
	if err != nil {
		return "", err
	}
	if !resp.OK {
		return "", errors.New("packer service reported failure")
	}
	if resp.Output == "" {
		return destPath, nil
	}
	return resp.Output, nil
}
