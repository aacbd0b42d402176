package auth

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/liveriver/fabric/internal/logger"
)

// RemoteProvider authenticates against credential_store_url: a GET to
// {baseURL}/{stream_name} that must return 200 with the expected stream key
// as a plain-text body, or any non-200 (404 in particular) for an unknown
// stream.
type RemoteProvider struct {
	baseURL string
	client  *http.Client
}

// NewRemoteProvider builds a provider backed by an HTTP credential store.
// A zero timeout defaults to 3s so a stalled store can't wedge Create.
func NewRemoteProvider(baseURL string, timeout time.Duration) *RemoteProvider {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &RemoteProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *RemoteProvider) Authenticate(ctx context.Context, streamName, streamKey string) error {
	reqURL := p.baseURL + "/" + url.PathEscape(streamName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return newAuthError("authenticate", streamName)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		logger.Logger().Warn().Str("stream", streamName).Err(err).Msg("credential store request failed")
		return newAuthError("authenticate", streamName)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return newAuthError("authenticate", streamName)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return newAuthError("authenticate", streamName)
	}

	if strings.TrimSpace(string(body)) != streamKey {
		return newAuthError("authenticate", streamName)
	}
	return nil
}

// NewProvider selects a Provider the way the core's auth_enable/
// credential_store_url settings dictate: a configured store URL wins,
// falling back to the static keys map, falling back to accepting everyone
// when auth is disabled entirely.
func NewProvider(enabled bool, credentialStoreURL string, storeTimeout time.Duration, staticKeys map[string]string) Provider {
	if !enabled {
		return NoopProvider{}
	}
	if credentialStoreURL != "" {
		return NewRemoteProvider(credentialStoreURL, storeTimeout)
	}
	return NewMemoryProvider(staticKeys)
}
