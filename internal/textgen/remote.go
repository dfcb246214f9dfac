package textgen

import (
	"context"
	"net/http"

	"github.com/kozaktomas/photo-variants/internal/httpclient"
)

// GenerateEndpoint is the path of the text service.
const GenerateEndpoint = "/api/v1/texts/generate"

// GenerateResponse is the text service answer. The service always replies
// 200; an empty list means it could not produce anything.
type GenerateResponse struct {
	OK       bool     `json:"ok"`
	Variants []string `json:"variants"`
}

// RemoteProvider calls a text service over HTTP.
type RemoteProvider struct {
	baseURL string
	client  *http.Client
}

func NewRemoteProvider(baseURL string, client *http.Client) *RemoteProvider {
	if client == nil {
		client = httpclient.New(0)
	}
	return &RemoteProvider{baseURL: baseURL, client: client}
}

func (p *RemoteProvider) Name() string {
	return "remote"
}

func (p *RemoteProvider) Generate(ctx context.Context, req Request) ([]string, error) {
	resp, err := httpclient.PostJSON[GenerateResponse](ctx, p.client, httpclient.JoinURL(p.baseURL, GenerateEndpoint), req)
	if err != nil {
		return nil, err
	}
	if len(resp.Variants) == 0 {
		return nil, ErrNoVariants
	}
	return resp.Variants, nil
}
