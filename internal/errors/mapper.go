// internal/errors/mapper.go
package errors

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

// Map converts domain/repo/infra errors into gRPC-friendly status errors.
// Keeps service layer clean by centralizing error mapping.
func Map(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok && KindOf(err) == KindUnknown {
		return err
	}

	var de *Error
	switch {
	case errors.As(err, &de):
		return fromDomain(de)

	case errors.Is(err, gorm.ErrRecordNotFound):
		return status.Error(codes.NotFound, "record not found")

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request was canceled")

	default:
		// fallback → bubble up error message for debugging
		return status.Error(codes.Internal, err.Error())
	}
}

func fromDomain(e *Error) error {
	var code codes.Code
	switch e.Kind {
	case KindValidation:
		code = codes.InvalidArgument
	case KindPermission:
		code = codes.PermissionDenied
	case KindNotFound:
		code = codes.NotFound
	case KindState, KindPrecondition:
		code = codes.FailedPrecondition
	case KindRate:
		code = codes.ResourceExhausted
	default:
		code = codes.Internal
	}

	st := status.New(code, e.Error())
	if len(e.Codes) == 0 {
		return st.Err()
	}
	pf := &errdetails.PreconditionFailure{}
	for _, c := range e.Codes {
		pf.Violations = append(pf.Violations, &errdetails.PreconditionFailure_Violation{
			Type:    c,
			Subject: "user",
		})
	}
	if withDetails, err := st.WithDetails(pf); err == nil {
		return withDetails.Err()
	}
	return st.Err()
}

// FromValidator turns go-playground validator failures into a Validation
// error naming every offending field.
func FromValidator(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Validation("%s", err.Error())
	}
	msg := ""
	for i, fe := range verrs {
		if i > 0 {
			msg += ", "
		}
		msg += fieldMessage(fe)
	}
	return Validation("%s", msg)
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return field + " must contain at least " + fe.Param() + " item(s)"
	case "max":
		return field + " must contain at most " + fe.Param() + " item(s)"
	case "oneof":
		return field + " must be one of [" + fe.Param() + "]"
	default:
		return field + " is invalid"
	}
}

// InvalidArgument creates a gRPC InvalidArgument error.
// Use this in transport code for bad envelope input.
func InvalidArgument(msg string) error {
	return status.Error(codes.InvalidArgument, msg)
}

// Unauthenticated creates a gRPC Unauthenticated error.
func Unauthenticated(msg string) error {
	return status.Error(codes.Unauthenticated, msg)
}
