package grpcclient

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/example/matcha-check/internal/grpcserver"
	"github.com/example/matcha-check/internal/imageprocessor"
	"github.com/example/matcha-check/internal/matcha"
)

func startServer(t *testing.T) *grpc.ClientConn {
	t.Helper()

	analyzer, err := matcha.New(matcha.DefaultConfig())
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	srv := grpcserver.New(imageprocessor.NewLocalClient(analyzer, zap.NewNop()), zap.NewNop())
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	_, conn, err := DialAnalyzer(context.Background(), "bufnet", zap.NewNop(),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func greenPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 0x7b, G: 0xaf, B: 0x5c, A: 0xff})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestRemoteAnalyzeRoundTrip(t *testing.T) {
	conn := startServer(t)
	client := &grpcAnalyzer{conn: conn, logger: zap.NewNop()}

	res, err := client.Analyze(context.Background(), greenPNG(t))
	require.NoError(t, err)
	require.Equal(t, &imageprocessor.Result{CupFound: true, ColorScore: 10, MaxScore: 10, AvgColor: "#7baf5c"}, res)

	res, err = client.Analyze(context.Background(), []byte("garbage"))
	require.NoError(t, err)
	require.False(t, res.CupFound)
	require.Equal(t, matcha.NeutralColor, res.AvgColor)
}

func TestRemoteAnalyzeEmptyImage(t *testing.T) {
	conn := startServer(t)
	client := &grpcAnalyzer{conn: conn, logger: zap.NewNop()}

	_, err := client.Analyze(context.Background(), nil)
	require.True(t, errors.Is(err, matcha.ErrEmptyImage))
}

func TestHealthService(t *testing.T) {
	conn := startServer(t)

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: grpcserver.ServiceName})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
