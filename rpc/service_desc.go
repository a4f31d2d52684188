package rpc

import (
	"context"
	"io"
	"os"

	"google.golang.org/grpc"
)

// Method name constants shared by the client and the hand-registered
// ServiceDesc below, so both sides reference one literal.
const (
	methodCreateObject     = "CreateObject"
	methodCallMethod       = "CallMethod"
	methodDeleteObject     = "DeleteObject"
	methodDeleteAll        = "DeleteAll"
	methodIsAlive          = "IsAlive"
	methodStop             = "Stop"
	methodUpdatePlaceholder = "UpdatePlaceholder"
	methodListObjects      = "ListObjects"
	methodServerInfo       = "ServerInfo"
	methodSetModelConfigs  = "SetModelConfigs"
	methodGetObjectMemory  = "GetObjectMemory"
	streamDownloadFile     = "DownloadFile"

	serviceName = "agentscope.rpc.ObjectService"
)

// serviceDesc is a hand-registered grpc.ServiceDesc: there is no .proto file
// and no protoc-generated stub anywhere in this package. Every handler below
// decodes its request with the jsonCodec-negotiated wire format and dials
// straight into the matching *Server method (§6 "RPC wire"). Grounded in
// shape on goa-ai's generated grpcserver.New wiring style (registry/gen/grpc)
// but written by hand since the transport here carries opaque JSON payloads
// instead of Goa-generated message types.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodCreateObject, Handler: handleCreateObject},
		{MethodName: methodCallMethod, Handler: handleCallMethod},
		{MethodName: methodDeleteObject, Handler: handleDeleteObject},
		{MethodName: methodDeleteAll, Handler: handleDeleteAll},
		{MethodName: methodIsAlive, Handler: handleIsAlive},
		{MethodName: methodStop, Handler: handleStop},
		{MethodName: methodUpdatePlaceholder, Handler: handleUpdatePlaceholder},
		{MethodName: methodListObjects, Handler: handleListObjects},
		{MethodName: methodServerInfo, Handler: handleServerInfo},
		{MethodName: methodSetModelConfigs, Handler: handleSetModelConfigs},
		{MethodName: methodGetObjectMemory, Handler: handleGetObjectMemory},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: streamDownloadFile, Handler: handleDownloadFile, ServerStreams: true},
	},
	Metadata: "rpc.proto", // conventional label only; no file backs it.
}

func handleCreateObject(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	s := srv.(*Server)
	var req createObjectRequest
	if err := dec(&req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return s.createObject(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: fullMethod(methodCreateObject)}
	handler := func(ctx context.Context, in any) (any, error) { return s.createObject(ctx, in.(createObjectRequest)) }
	return interceptor(ctx, req, info, handler)
}

func handleCallMethod(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	s := srv.(*Server)
	var req callMethodRequest
	if err := dec(&req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return s.callMethod(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: fullMethod(methodCallMethod)}
	handler := func(ctx context.Context, in any) (any, error) { return s.callMethod(ctx, in.(callMethodRequest)) }
	return interceptor(ctx, req, info, handler)
}

func handleDeleteObject(srv any, _ context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	s := srv.(*Server)
	var req oidRequest
	if err := dec(&req); err != nil {
		return nil, err
	}
	return s.deleteObject(req.Oid), nil
}

func handleDeleteAll(srv any, _ context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	s := srv.(*Server)
	var req emptyRequest
	if err := dec(&req); err != nil {
		return nil, err
	}
	return s.deleteAll(), nil
}

func handleIsAlive(srv any, _ context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	s := srv.(*Server)
	var req emptyRequest
	if err := dec(&req); err != nil {
		return nil, err
	}
	return s.isAlive(), nil
}

func handleStop(srv any, _ context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	s := srv.(*Server)
	var req emptyRequest
	if err := dec(&req); err != nil {
		return nil, err
	}
	go func() { _ = s.GracefulStop() }()
	return statusResponse{OK: true}, nil
}

func handleUpdatePlaceholder(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	s := srv.(*Server)
	var req updatePlaceholderRequest
	if err := dec(&req); err != nil {
		return nil, err
	}
	return s.updatePlaceholder(ctx, req), nil
}

func handleListObjects(srv any, _ context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	s := srv.(*Server)
	var req emptyRequest
	if err := dec(&req); err != nil {
		return nil, err
	}
	return s.listObjects(), nil
}

func handleServerInfo(srv any, _ context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	s := srv.(*Server)
	var req emptyRequest
	if err := dec(&req); err != nil {
		return nil, err
	}
	return s.serverInfo(), nil
}

func handleSetModelConfigs(srv any, _ context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	s := srv.(*Server)
	var req setModelConfigsRequest
	if err := dec(&req); err != nil {
		return nil, err
	}
	return s.setModelConfigs(req), nil
}

func handleGetObjectMemory(srv any, _ context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	s := srv.(*Server)
	var req getObjectMemoryRequest
	if err := dec(&req); err != nil {
		return nil, err
	}
	return s.getObjectMemory(req)
}

// handleDownloadFile streams a file's content in fixed-size chunks (§4.3
// "download_file(path) streams file contents in fixed-size chunks").
func handleDownloadFile(srv any, stream grpc.ServerStream) error {
	s := srv.(*Server)
	var req downloadFileRequest
	if err := stream.RecvMsg(&req); err != nil {
		return err
	}
	path, err := s.downloadPath(req.Path)
	if err != nil {
		return stream.SendMsg(&downloadFileChunk{Err: err.Error()})
	}
	f, err := os.Open(path)
	if err != nil {
		return stream.SendMsg(&downloadFileChunk{Err: err.Error()})
	}
	defer f.Close()

	buf := make([]byte, s.cfg.DownloadChunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if sendErr := stream.SendMsg(&downloadFileChunk{Data: chunk}); sendErr != nil {
				return sendErr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return stream.SendMsg(&downloadFileChunk{Err: err.Error()})
		}
	}
}

func fullMethod(name string) string { return "/" + serviceName + "/" + name }
