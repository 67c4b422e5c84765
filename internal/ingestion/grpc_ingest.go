package ingestion

import (
	"context"

	"CoverPool/internal/core"
	"CoverPool/internal/observability"
)

// GatewayIngestService accepts JSON commands from the HTTP gateway. It is
// the low-volume path for wallets and operators; bulk producers use NATS.
type GatewayIngestService struct {
	parser  *Parser
	submit  chan<- core.Submission
	metrics *observability.Metrics
}

func NewGatewayIngestService(parser *Parser, submit chan<- core.Submission, metrics *observability.Metrics) *GatewayIngestService {
	return &GatewayIngestService{parser: parser, submit: submit, metrics: metrics}
}

// Submit parses body as commandType and waits for the processor's result.
func (s *GatewayIngestService) Submit(ctx context.Context, commandType string, body []byte) (core.Result, error) {
	if s.metrics != nil {
		s.metrics.IngestReceived.WithLabelValues("http").Inc()
	}

	cmd, err := s.parser.Parse(commandType, body)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IngestInvalid.WithLabelValues("http").Inc()
		}
		return core.Result{}, err
	}

	return core.Submit(ctx, s.submit, cmd)
}
