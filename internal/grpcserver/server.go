// Package grpcserver exposes the matcha analyzer over gRPC so that the HTTP API
// and the analysis can run on different hosts.
//
// The service has a single unary method. Requests carry the raw image as a
// google.protobuf.BytesValue; responses are a google.protobuf.Struct with the
// fields cup_found, color_score, max_score and avg_color.
package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/matcha-check/internal/imageprocessor"
	"github.com/example/matcha-check/internal/matcha"
)

const (
	ServiceName   = "matcha.v1.Analyzer"
	AnalyzeMethod = "/matcha.v1.Analyzer/Analyze"

	// MaxMessageSize leaves headroom above the HTTP upload limit.
	MaxMessageSize = 16 << 20
)

// AnalyzerServer is the server API of the analyzer service.
type AnalyzerServer interface {
	Analyze(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error)
}

// ServiceDesc describes the analyzer service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AnalyzerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Analyze", Handler: analyzeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "matcha/v1/analyzer.proto",
}

func analyzeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalyzerServer).Analyze(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AnalyzeMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AnalyzerServer).Analyze(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Server adapts an imageprocessor.Client to AnalyzerServer.
type Server struct {
	client imageprocessor.Client
	logger *zap.Logger
}

// Analyze implements AnalyzerServer.
func (s *Server) Analyze(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error) {
	res, err := s.client.Analyze(ctx, in.GetValue())
	if errors.Is(err, matcha.ErrEmptyImage) {
		return nil, status.Error(codes.InvalidArgument, "image is empty")
	}
	if err != nil {
		s.logger.Error("analysis failed", zap.Error(err))
		return nil, status.Error(codes.Internal, "analysis failed")
	}
	return EncodeResult(res)
}

// New builds a gRPC server with the analyzer and the standard health service
// registered.
func New(client imageprocessor.Client, logger *zap.Logger) *grpc.Server {
	logger = logger.Named("grpc_server")
	srv := grpc.NewServer(
		grpc.MaxRecvMsgSize(MaxMessageSize),
		grpc.UnaryInterceptor(loggingInterceptor(logger)),
	)
	srv.RegisterService(&ServiceDesc, &Server{client: client, logger: logger})

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, healthSrv)
	return srv
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		started := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("elapsed", time.Since(started)),
		)
		return resp, err
	}
}

// EncodeResult converts a verdict to its wire form.
func EncodeResult(res *imageprocessor.Result) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"cup_found":   res.CupFound,
		"color_score": res.ColorScore,
		"max_score":   res.MaxScore,
		"avg_color":   res.AvgColor,
	})
}

// DecodeResult reads a verdict from its wire form.
func DecodeResult(s *structpb.Struct) (*imageprocessor.Result, error) {
	fields := s.GetFields()
	avgColor, ok := fields["avg_color"].GetKind().(*structpb.Value_StringValue)
	if !ok {
		return nil, fmt.Errorf("response is missing avg_color")
	}
	return &imageprocessor.Result{
		CupFound:   fields["cup_found"].GetBoolValue(),
		ColorScore: fields["color_score"].GetNumberValue(),
		MaxScore:   fields["max_score"].GetNumberValue(),
		AvgColor:   avgColor.StringValue,
	}, nil
}
