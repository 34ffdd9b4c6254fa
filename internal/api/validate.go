package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct tags of an API request.
func Validate(req any) error {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
			}
			return grpcstatus.Errorf(codes.InvalidArgument, "invalid request: %s", strings.Join(fields, ", "))
		}
		return grpcstatus.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

// ValidationInterceptor rejects unary requests whose struct tags do not validate.
func ValidationInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := Validate(req); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}
