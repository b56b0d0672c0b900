// Package userservicev1 holds the UserService contract: the protobuf messages
// and gRPC bindings generated from user_service.proto, plus the error codes
// and metadata keys both sides of the wire agree on.
package userservicev1

//go:generate protoc -I ../../.. --go_out=../../.. --go_opt=paths=source_relative --go-grpc_out=../../.. --go-grpc_opt=paths=source_relative api/userservice/v1/user_service.proto

// Error codes reported in the error_code field of failed responses.
const (
	ErrorCodeValidation           = "VALIDATION_ERROR"
	ErrorCodeEmailExists          = "EMAIL_EXISTS"
	ErrorCodeUserNotFound         = "USER_NOT_FOUND"
	ErrorCodeTransportUnavailable = "TRANSPORT_UNAVAILABLE"
)

// HealthStatusServing is the only status HealthCheck reports.
const HealthStatusServing = "SERVING"

// RequestIDMetadataKey carries the caller's request id in gRPC metadata.
const RequestIDMetadataKey = "x-request-id"
