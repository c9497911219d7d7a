package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/httpclient"
	"github.com/ternarybob/vigil/internal/models"
)

// Service implements FetchService against the upstream REST API. All
// fetches share one rate limiter so many concurrent monitors cannot hammer
// the server.
type Service struct {
	client  *http.Client
	baseURL string
	apiKey  string
	limiter *rate.Limiter
	logger  arbor.ILogger
}

// NewService creates a new fetch service
func NewService(config *common.FetchConfig, logger arbor.ILogger) *Service {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	return &Service{
		client:  httpclient.NewDefaultHTTPClient(config.Timeout),
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		limiter: limiter,
		logger:  logger,
	}
}

func (s *Service) FetchDataset(ctx context.Context, id string) (models.RawPayload, error) {
	return s.get(ctx, fmt.Sprintf("/api/datasets/%s", url.PathEscape(id)))
}

func (s *Service) FetchDatasetCollection(ctx context.Context, id string) (models.RawPayload, error) {
	return s.get(ctx, fmt.Sprintf("/api/dataset_collections/%s", url.PathEscape(id)))
}

func (s *Service) FetchInvocationStep(ctx context.Context, id string) (*models.InvocationStep, error) {
	body, err := s.get(ctx, fmt.Sprintf("/api/invocations/any/steps/%s", url.PathEscape(id)))
	if err != nil {
		return nil, err
	}

	var step models.InvocationStep
	if err := json.Unmarshal(body, &step); err != nil {
		return nil, fmt.Errorf("failed to decode invocation step: %w", err)
	}
	if step.ID == "" {
		step.ID = id
	}

	return &step, nil
}

func (s *Service) get(ctx context.Context, path string) (models.RawPayload, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("fetch cancelled: %w", err)
	}

	headers := map[string]string{}
	if s.apiKey != "" {
		headers["x-api-key"] = s.apiKey
	}

	s.logger.Debug().Str("path", path).Msg("Fetching entity")

	body, err := httpclient.GetJSON(ctx, s.client, s.baseURL+path, headers)
	if err != nil {
		return nil, fmt.Errorf("fetch %s failed: %w", path, err)
	}

	return models.RawPayload(body), nil
}
