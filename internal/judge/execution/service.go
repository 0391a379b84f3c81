package execution

import (
	"context"
	"errors"

	executionv1 "judgebroker/api/gen/execution/v1"
	pkgerrors "judgebroker/pkg/errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type executionServer struct {
	executionv1.UnimplementedExecutionServiceServer
	executor Executor
}

// RegisterServer exposes executor as the execution service on s.
func RegisterServer(s grpc.ServiceRegistrar, executor Executor) {
	executionv1.RegisterExecutionServiceServer(s, &executionServer{executor: executor})
}

func (s *executionServer) Execute(pb *executionv1.ExecuteRequest, stream executionv1.ExecutionService_ExecuteServer) error {
	if pb.GetId() == "" || len(pb.GetTestCases()) == 0 {
		return status.Error(codes.InvalidArgument, "id and test_cases are required")
	}
	err := s.executor.Execute(stream.Context(), requestFromProto(pb), func(r *Result) error {
		return stream.Send(resultToProto(r))
	})
	return toStatus(err)
}

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	switch pkgerrors.GetCode(err) {
	case pkgerrors.ValidationFailed, pkgerrors.InvalidParams:
		return status.Error(codes.InvalidArgument, err.Error())
	case pkgerrors.ServiceUnavailable, pkgerrors.ExecutionBackendUnavailable:
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
