package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/lab-report-parser/internal/common"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "labreport.v1.LabReportService"

// LabReportServer is the gRPC surface. Requests and responses are JSON-shaped
// google.protobuf.Struct messages mirroring the HTTP bodies.
type LabReportServer interface {
	ParseText(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitCorrections(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetReport(context.Context, *structpb.Struct) (*structpb.Struct, error)
	BestCorrection(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type GRPCServer struct {
	api    *API
	logger *slog.Logger
}

func NewGRPCServer(api *API, logger *slog.Logger) *GRPCServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &GRPCServer{api: api, logger: logger}
}

// Register adds the service to s.
func (g *GRPCServer) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&serviceDesc, g)
}

func (g *GRPCServer) ParseText(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ParseRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, common.ToGRPCError(err)
	}
	return respond(g.api.ParseText(ctx, req))
}

func (g *GRPCServer) SubmitCorrections(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SubmitRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, common.ToGRPCError(err)
	}
	return respond(g.api.SubmitCorrections(ctx, req))
}

func (g *GRPCServer) GetReport(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		ReportID string `json:"reportId"`
	}
	if err := decodeStruct(in, &req); err != nil {
		return nil, common.ToGRPCError(err)
	}
	return respond(g.api.GetReport(ctx, req.ReportID))
}

func (g *GRPCServer) BestCorrection(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req BestCorrectionRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, common.ToGRPCError(err)
	}
	return respond(g.api.BestCorrection(ctx, req))
}

func respond[T any](v *T, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, common.ToGRPCError(err)
	}
	out, err := encodeStruct(v)
	if err != nil {
		return nil, common.ToGRPCError(err)
	}
	return out, nil
}

func decodeStruct(in *structpb.Struct, v any) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	b, err := protojson.Marshal(in)
	if err != nil {
		return common.NewAppError("INVALID_ARGUMENT", "decode request", fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}
	if err := json.Unmarshal(b, v); err != nil {
		return common.NewAppError("INVALID_ARGUMENT", "decode request", fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}
	return nil
}

func encodeStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, common.NewAppError("ENCODE_ERROR", "encode response", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, common.NewAppError("ENCODE_ERROR", "encode response", err)
	}
	return out, nil
}

func unaryMethod(name string, call func(LabReportServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(LabReportServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*structpb.Struct))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LabReportServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("ParseText", LabReportServer.ParseText),
		unaryMethod("SubmitCorrections", LabReportServer.SubmitCorrections),
		unaryMethod("GetReport", LabReportServer.GetReport),
		unaryMethod("BestCorrection", LabReportServer.BestCorrection),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "labreport/v1/labreport.proto",
}

// UnaryLogging tags each call with a request id (from x-request-id metadata or new)
// and logs its outcome.
func UnaryLogging(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get("x-request-id"); len(ids) > 0 && ids[0] != "" {
				ctx = common.WithRequestID(ctx, ids[0])
			}
		}
		ctx, reqID := common.EnsureRequestID(ctx)
		start := time.Now()
		resp, err := handler(ctx, req)
		attrs := []any{"method", info.FullMethod, "request_id", reqID, "duration_ms", time.Since(start).Milliseconds()}
		if err != nil {
			logger.Warn("grpc.call.failed", append(attrs, "error", err)...)
		} else {
			logger.Info("grpc.call.ok", attrs...)
		}
		return resp, err
	}
}

// Client calls LabReportService over a gRPC connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) ParseText(ctx context.Context, req ParseRequest) (*ReportResponse, error) {
	var out ReportResponse
	return &out, c.call(ctx, "ParseText", req, &out)
}

func (c *Client) SubmitCorrections(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	var out SubmitResponse
	return &out, c.call(ctx, "SubmitCorrections", req, &out)
}

func (c *Client) GetReport(ctx context.Context, id string) (*ReportResponse, error) {
	var out ReportResponse
	return &out, c.call(ctx, "GetReport", map[string]string{"reportId": id}, &out)
}

func (c *Client) BestCorrection(ctx context.Context, req BestCorrectionRequest) (*BestCorrectionResponse, error) {
	var out BestCorrectionResponse
	return &out, c.call(ctx, "BestCorrection", req, &out)
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	in, err := encodeStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return err
	}
	return decodeStruct(out, resp)
}
