package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/smallbiznis/rentflow/internal/config"
	"github.com/smallbiznis/rentflow/internal/gateway/adapters"
	gatewaydomain "github.com/smallbiznis/rentflow/internal/gateway/domain"
	gatewayservice "github.com/smallbiznis/rentflow/internal/gateway/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	GatewaySvc *gatewayservice.Service
	Adapters   *adapters.Registry
	Cfg        config.Config
}

type Service struct {
	log        *zap.Logger
	gatewaySvc *gatewayservice.Service
	adapters   *adapters.Registry
	secrets    map[string]string
}

func NewService(p Params) gatewaydomain.Webhook {
	return &Service{
		log:        p.Log.Named("gateway.webhook"),
		gatewaySvc: p.GatewaySvc,
		adapters:   p.Adapters,
		secrets: map[string]string{
			"stripe": strings.TrimSpace(p.Cfg.StripeWebhookSecret),
			"momo":   strings.TrimSpace(p.Cfg.MomoWebhookSecret),
		},
	}
}

func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return gatewaydomain.ErrInvalidProvider
	}
	if s.adapters == nil || !s.adapters.ProviderExists(provider) {
		return gatewaydomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return gatewaydomain.ErrInvalidPayload
	}

	adapter, err := s.adapters.NewAdapter(provider, gatewaydomain.AdapterConfig{
		Config: map[string]any{"webhook_secret": s.secrets[provider]},
	})
	if err != nil {
		return err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, gatewaydomain.ErrEventIgnored) {
			s.log.Debug("ignoring gateway event", zap.String("provider", provider))
			return nil
		}
		if errors.Is(err, gatewaydomain.ErrInvalidTenant) {
			s.log.Warn("gateway webhook missing tenant mapping", zap.String("provider", provider))
		}
		return err
	}

	if event == nil {
		return gatewaydomain.ErrInvalidSignature
	}
	if event.RawPayload == nil {
		event.RawPayload = payload
	}
	return s.gatewaySvc.ProcessEvent(ctx, event, payload)
}
