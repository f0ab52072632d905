package server

import (
	"context"

	"google.golang.org/grpc"
)

type callerKey struct{}

// WithCaller stores the authenticated user id on ctx.
func WithCaller(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, callerKey{}, userID)
}

// CallerID returns the authenticated user id carried by ctx.
func CallerID(ctx context.Context) string {
	id, _ := ctx.Value(callerKey{}).(string)
	return id
}

// Handler is the typed body of a unary method.
type Handler[Req, Resp any] func(ctx context.Context, callerID string, req *Req) (*Resp, error)

// Unary builds a grpc.MethodDesc that decodes Req with the server codec,
// runs the interceptor chain and calls h with the caller's id.
func Unary[Req, Resp any](service, method string, h Handler[Req, Resp]) grpc.MethodDesc {
	info := &grpc.UnaryServerInfo{FullMethod: "/" + service + "/" + method}
	call := func(ctx context.Context, req any) (any, error) {
		return h(ctx, CallerID(ctx), req.(*Req))
	}
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(ctx, req)
			}
			i := *info
			i.Server = srv
			return interceptor(ctx, req, &i, call)
		},
	}
}

// ServiceDesc assembles a descriptor for a JSON-coded service.
func ServiceDesc(name string, methods ...grpc.MethodDesc) *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: name,
		HandlerType: (*any)(nil),
		Methods:     methods,
		Streams:     []grpc.StreamDesc{},
		Metadata:    name,
	}
}
