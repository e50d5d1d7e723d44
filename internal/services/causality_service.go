package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-causality/internal/api"
	"github.com/miradorstack/mirador-causality/internal/engine"
	"github.com/miradorstack/mirador-causality/internal/models"
	"github.com/miradorstack/mirador-causality/internal/utils"
)

// CausalityService implements the gRPC causality service on top of the aggregation
// pipeline, the evidence pager and the causality explorer.
type CausalityService struct {
	logger    *slog.Logger
	pipeline  *engine.Pipeline
	pager     *engine.Pager
	explorer  *engine.Explorer
	latencies *utils.LatencyTracker
}

var _ api.CausalityServer = (*CausalityService)(nil)

// NewCausalityService constructs the service facade.
func NewCausalityService(logger *slog.Logger, pipeline *engine.Pipeline, pager *engine.Pager, explorer *engine.Explorer) *CausalityService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CausalityService{
		logger:    logger,
		pipeline:  pipeline,
		pager:     pager,
		explorer:  explorer,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// AggregateProbableCauses returns the aggregated probable causes of an item of evidence.
func (s *CausalityService) AggregateProbableCauses(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.pipeline == nil {
		return nil, status.Error(codes.FailedPrecondition, "pipeline not configured")
	}
	domainReq, err := api.FromAggregationRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	start := time.Now()
	groups, err := s.pipeline.Aggregate(ctx, domainReq)
	if err != nil {
		return nil, s.toStatus("aggregate probable causes", err)
	}
	s.observe(time.Since(start))

	return encoded(api.ToAggregatesResponse(domainReq.EvidenceID, groups))
}

// ListProbableCauses returns the unaggregated probable causes.
func (s *CausalityService) ListProbableCauses(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.pipeline == nil {
		return nil, status.Error(codes.FailedPrecondition, "pipeline not configured")
	}
	domainReq, err := api.FromAggregationRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	records, err := s.pipeline.ProbableCauses(ctx, domainReq)
	if err != nil {
		return nil, s.toStatus("list probable causes", err)
	}
	return encoded(api.ToProbableCausesResponse(records))
}

// GetViewConfiguration returns the metric path, anomaly score and raw peak value per time
// series type and metric. Without an explorer only the peak values are filled in.
func (s *CausalityService) GetViewConfiguration(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.pipeline == nil {
		return nil, status.Error(codes.FailedPrecondition, "pipeline not configured")
	}
	domainReq, err := api.FromAggregationRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if s.explorer != nil {
		view, err := s.explorer.ViewConfiguration(ctx, domainReq)
		if err != nil {
			return nil, s.toStatus("get view configuration", err)
		}
		return encoded(api.ToViewConfigurationResponse(view))
	}
	peaks, err := s.pipeline.PeakValues(ctx, domainReq)
	if err != nil {
		return nil, s.toStatus("get view configuration", err)
	}
	return encoded(api.ToViewConfigurationResponse(models.ViewConfiguration{EvidenceID: domainReq.EvidenceID, PeakValues: peaks}))
}

// PageEvidence returns one page of the evidence rows behind an aggregate.
func (s *CausalityService) PageEvidence(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.pager == nil {
		return nil, status.Error(codes.FailedPrecondition, "pager not configured")
	}
	q, err := api.FromPageRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	page, err := s.pager.Page(ctx, q)
	if err != nil {
		return nil, s.toStatus("page evidence", err)
	}
	return encoded(api.ToPageResponse(page))
}

// LatestEvidenceId returns the newest evidence id of an aggregate.
func (s *CausalityService) LatestEvidenceId(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.pager == nil {
		return nil, status.Error(codes.FailedPrecondition, "pager not configured")
	}
	key, err := api.FromLatestEvidenceRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	id, err := s.pager.LatestEvidenceID(ctx, key)
	if err != nil {
		return nil, s.toStatus("latest evidence id", err)
	}
	return encoded(api.ToLatestEvidenceResponse(id))
}

// PageCausalityData returns one sorted window of the causality data grid.
func (s *CausalityService) PageCausalityData(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.explorer == nil {
		return nil, status.Error(codes.FailedPrecondition, "explorer not configured")
	}
	q, err := api.FromCausalityDataRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	page, err := s.explorer.CausalityDataPage(ctx, q)
	if err != nil {
		return nil, s.toStatus("page causality data", err)
	}
	return encoded(api.ToCausalityDataPageResponse(page))
}

// GetCausalityDataColumnValues returns the sorted values of one causality data column.
func (s *CausalityService) GetCausalityDataColumnValues(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.explorer == nil {
		return nil, status.Error(codes.FailedPrecondition, "explorer not configured")
	}
	evidenceID, name, err := api.FromColumnValuesRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	values, err := s.explorer.ColumnValues(ctx, evidenceID, name)
	if err != nil {
		return nil, s.toStatus("get causality data column values", err)
	}
	return encoded(api.ToColumnValuesResponse(values))
}

// LatencyP95 returns the current p95 aggregation latency.
func (s *CausalityService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}

func (s *CausalityService) observe(duration time.Duration) {
	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("aggregation latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}
}

func (s *CausalityService) toStatus(op string, err error) error {
	switch {
	case errors.Is(err, models.ErrEvidenceNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	if appErr, ok := utils.AsAppError(err); ok {
		s.logger.Error(op+" failed", slog.String("op", appErr.Op), slog.Any("error", err))
	} else {
		s.logger.Error(op+" failed", slog.Any("error", err))
	}
	return status.Error(codes.Internal, op+" failed")
}

func encoded(resp *structpb.Struct, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response: "+err.Error())
	}
	return resp, nil
}
