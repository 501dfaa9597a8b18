package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/squidstack/squidflags/pkg/eval"
	"github.com/squidstack/squidflags/pkg/store"
)

const httpSource = "http"

// HTTPProvider fetches the flag document for an environment key from a remote
// configuration endpoint. Unchanged documents are detected with ETags.
type HTTPProvider struct {
	evaluating

	BaseURL string
	Client  *http.Client

	mu   sync.Mutex
	url  string
	etag string
}

func NewHTTPProvider(baseURL string) *HTTPProvider {
	return &HTTPProvider{
		evaluating: evaluating{evaluator: eval.NewJSONEvaluator(store.NewFlags())},
		BaseURL:    baseURL,
		Client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (hp *HTTPProvider) Setup(ctx context.Context, key string, opts Options) error {
	if hp.BaseURL == "" {
		return errors.New("no flag endpoint url set")
	}
	if key == "" {
		return errors.New("no environment key set")
	}
	hp.setOptions(opts)

	hp.mu.Lock()
	hp.url = strings.TrimRight(hp.BaseURL, "/") + "/" + url.PathEscape(key)
	hp.mu.Unlock()

	return hp.Fetch(ctx)
}

func (hp *HTTPProvider) Fetch(ctx context.Context) error {
	hp.mu.Lock()
	defer hp.mu.Unlock()

	if hp.url == "" {
		return errors.New("provider has not been set up")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hp.url, nil)
	if err != nil {
		return fmt.Errorf("unable to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if hp.etag != "" {
		req.Header.Set("If-None-Match", hp.etag)
	}

	res, err := hp.Client.Do(req)
	if err != nil {
		return fmt.Errorf("unable to fetch flag configuration: %w", err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotModified:
		log.Debug("flag configuration not modified")
		return nil
	case res.StatusCode != http.StatusOK:
		return fmt.Errorf("flag configuration fetch failed: %s", res.Status)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("unable to read flag configuration: %w", err)
	}
	notifications, err := hp.evaluator.SetState(httpSource, string(body))
	if err != nil {
		return err
	}
	hp.etag = res.Header.Get("ETag")
	log.WithField("changed", len(notifications)).Debug("flag configuration fetched")
	return nil
}

func (hp *HTTPProvider) Configuration() (string, error) {
	return hp.evaluator.GetState(httpSource)
}

func (hp *HTTPProvider) Close() error {
	hp.Client.CloseIdleConnections()
	return nil
}
