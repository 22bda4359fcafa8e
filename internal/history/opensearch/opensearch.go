package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/loykin/glassd/internal/history"
)

// DefaultIndex receives events when the DSN names no index.
const DefaultIndex = "overlay-history"

// Sink sends events to OpenSearch via HTTP.
// Events with an id are indexed with PUT {base}/{index}/_doc/{id} so a
// retried send does not duplicate the document; others are POSTed to _doc.
type Sink struct {
	client  *http.Client
	baseURL string
	index   string
}

func New(baseURL, index string) *Sink {
	if index == "" {
		index = DefaultIndex
	}
	c := &http.Client{Timeout: 5 * time.Second}
	return &Sink{client: c, baseURL: strings.TrimRight(baseURL, "/"), index: index}
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	method := http.MethodPost
	u := fmt.Sprintf("%s/%s/_doc", s.baseURL, url.PathEscape(s.index))
	if e.ID != "" {
		method = http.MethodPut
		u += "/" + url.PathEscape(e.ID)
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("opensearch sink status %d", resp.StatusCode)
	}
	return nil
}
