package interceptors

import (
	"context"
	"strings"
	"time"

	"github.com/christmas-fire/squadup/internal/service/auth"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type userCtxKey string

const (
	UserIDKey userCtxKey = "userID"
)

// UserID returns the authenticated user id stored by the auth interceptors.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserIDKey).(string)
	return id, ok && id != ""
}

func authenticate(ctx context.Context, jwtSecret string) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "metadata is not provided")
	}

	authHeader, ok := md["authorization"]
	if !ok || len(authHeader) == 0 {
		return "", status.Error(codes.Unauthenticated, "authorization header is not provided")
	}

	if !strings.HasPrefix(authHeader[0], "Bearer ") {
		return "", status.Error(codes.Unauthenticated, "invalid authorization header format")
	}
	tokenString := strings.TrimPrefix(authHeader[0], "Bearer ")

	userID, err := auth.ParseToken(tokenString, jwtSecret)
	if err != nil {
		return "", status.Error(codes.Unauthenticated, "invalid token")
	}
	return userID, nil
}

func AuthUnaryInterceptor(jwtSecret string, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if _, ok := publicMethods[info.FullMethod]; ok {
			return handler(ctx, req)
		}

		userID, err := authenticate(ctx, jwtSecret)
		if err != nil {
			return nil, err
		}

		newCtx := context.WithValue(ctx, UserIDKey, userID)
		return handler(newCtx, req)
	}
}

func AuthStreamInterceptor(jwtSecret string, publicMethods map[string]bool) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if _, ok := publicMethods[info.FullMethod]; ok {
			return handler(srv, ss)
		}

		ctx := ss.Context()
		userID, err := authenticate(ctx, jwtSecret)
		if err != nil {
			return err
		}

		wrapped := newWrappedServerStream(ss, context.WithValue(ctx, UserIDKey, userID))
		return handler(srv, wrapped)
	}
}

// LoggingUnaryInterceptor logs every call with its code and duration.
func LoggingUnaryInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logCall(log, info.FullMethod, start, err)
		return resp, err
	}
}

func LoggingStreamInterceptor(log *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		logCall(log, info.FullMethod, start, err)
		return err
	}
}

func logCall(log *zap.Logger, method string, start time.Time, err error) {
	code := status.Code(err)
	fields := []zap.Field{
		zap.String("method", method),
		zap.String("code", code.String()),
		zap.Duration("duration", time.Since(start)),
	}
	if code == codes.Internal || code == codes.Unknown {
		log.Error("grpc call failed", append(fields, zap.Error(err))...)
		return
	}
	log.Debug("grpc call", fields...)
}

type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func newWrappedServerStream(ss grpc.ServerStream, ctx context.Context) *wrappedServerStream {
	return &wrappedServerStream{ServerStream: ss, ctx: ctx}
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
