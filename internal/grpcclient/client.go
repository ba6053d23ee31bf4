package grpcclient

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/matcha-check/internal/grpcserver"
	"github.com/example/matcha-check/internal/imageprocessor"
	"github.com/example/matcha-check/internal/logging"
	"github.com/example/matcha-check/internal/matcha"
)

// DialAnalyzer returns a ready-to-use client for a remote analyzer service.
func DialAnalyzer(ctx context.Context, addr string, logger *zap.Logger, opts ...grpc.DialOption) (imageprocessor.Client, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.MaxCallSendMsgSize(grpcserver.MaxMessageSize)),
		grpc.WithBlock(),
	}, opts...)

	conn, err := grpc.DialContext(dialCtx, addr, dialOpts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_analyzer", "", err)
		logger.Error("failed to dial analyzer", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return &grpcAnalyzer{conn: conn, logger: logger}, conn, nil
}

type grpcAnalyzer struct {
	conn   *grpc.ClientConn
	logger *zap.Logger
}

func (g *grpcAnalyzer) Analyze(ctx context.Context, imageBytes []byte) (*imageprocessor.Result, error) {
	out := new(structpb.Struct)
	err := g.conn.Invoke(ctx, grpcserver.AnalyzeMethod, wrapperspb.Bytes(imageBytes), out)
	if status.Code(err) == codes.InvalidArgument {
		return nil, logging.NewOperationError("grpcclient.analyze", "", matcha.ErrEmptyImage)
	}
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.analyze", "", err)
		g.logger.Error("analyzer call failed", zap.Error(wrapped))
		return nil, wrapped
	}
	return grpcserver.DecodeResult(out)
}
