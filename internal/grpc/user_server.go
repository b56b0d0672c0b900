package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	userv1 "github.com/pronobkarmoker/gRPC-microservice/api/userservice/v1"
	"github.com/pronobkarmoker/gRPC-microservice/internal/metrics"
	"github.com/pronobkarmoker/gRPC-microservice/models"
	"github.com/pronobkarmoker/gRPC-microservice/repository"
)

const (
	defaultPage  = 1
	defaultLimit = 10

	maxNameLength  = 100
	maxEmailLength = 254
)

const (
	msgUserRetrieved  = "User retrieved successfully"
	msgUserNotFound   = "User not found"
	msgFieldsRequired = "Name and email are required"
	msgInvalidEmail   = "Invalid email address"
	msgEmailExists    = "Email already exists"
	msgUserCreated    = "User created successfully"
	msgUserUpdated    = "User updated successfully"
	msgUserDeleted    = "User deleted successfully"
	msgHealthy        = "User service is healthy"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// createInput is the validated shape of a CreateUser request after trimming.
type createInput struct {
	Name  string `validate:"required,max=100"`
	Email string `validate:"required,email,max=254"`
}

// Server bundles dependencies and implements the UserService.
type Server struct {
	userv1.UnimplementedUserServiceServer
	Users repository.UserRepositoryI
	Log   zerolog.Logger
	now   func() time.Time
}

// NewServer returns a UserService implementation backed by users.
func NewServer(users repository.UserRepositoryI, log zerolog.Logger) *Server {
	return &Server{Users: users, Log: log, now: time.Now}
}

func (s *Server) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// HealthCheck always reports SERVING while the process can answer.
func (s *Server) HealthCheck(_ context.Context, _ *userv1.HealthCheckRequest) (*userv1.HealthCheckResponse, error) {
	return &userv1.HealthCheckResponse{
		Status:    userv1.HealthStatusServing,
		Message:   msgHealthy,
		Timestamp: s.clock().UnixMilli(),
	}, nil
}

func (s *Server) GetUser(ctx context.Context, req *userv1.GetUserRequest) (*userv1.GetUserResponse, error) {
	u, err := s.Users.GetByID(ctx, req.GetId())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get user: %v", err)
	}
	if u == nil {
		failed("GetUser", userv1.ErrorCodeUserNotFound)
		return &userv1.GetUserResponse{Message: msgUserNotFound, ErrorCode: userv1.ErrorCodeUserNotFound}, nil
	}
	return &userv1.GetUserResponse{User: toProtoUser(u), Success: true, Message: msgUserRetrieved}, nil
}

// CreateUser validates and inserts a new record. Name and email are trimmed;
// an empty role becomes models.DefaultRole.
func (s *Server) CreateUser(ctx context.Context, req *userv1.CreateUserRequest) (*userv1.CreateUserResponse, error) {
	in := createInput{
		Name:  strings.TrimSpace(req.GetName()),
		Email: strings.TrimSpace(req.GetEmail()),
	}
	if err := validate.Struct(in); err != nil {
		failed("CreateUser", userv1.ErrorCodeValidation)
		return &userv1.CreateUserResponse{Message: validationMessage(err), ErrorCode: userv1.ErrorCodeValidation}, nil
	}
	role, ok := models.ParseRole(req.GetRole())
	if !ok {
		failed("CreateUser", userv1.ErrorCodeValidation)
		return &userv1.CreateUserResponse{Message: invalidRoleMessage(req.GetRole()), ErrorCode: userv1.ErrorCodeValidation}, nil
	}

	u, err := s.Users.Create(ctx, &models.User{Name: in.Name, Email: in.Email, Role: role})
	if errors.Is(err, repository.ErrEmailExists) {
		failed("CreateUser", userv1.ErrorCodeEmailExists)
		return &userv1.CreateUserResponse{Message: msgEmailExists, ErrorCode: userv1.ErrorCodeEmailExists}, nil
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "create user: %v", err)
	}

	metrics.StoreRecords.Inc()
	s.Log.Info().Int64("user_id", u.ID).Str("role", string(u.Role)).Msg("user created")
	return &userv1.CreateUserResponse{User: toProtoUser(u), Success: true, Message: msgUserCreated}, nil
}

// ListUsers filters by search, then returns the requested page. page < 1 is
// treated as 1 and limit < 1 as the default of 10; pages past the end are empty.
func (s *Server) ListUsers(ctx context.Context, req *userv1.ListUsersRequest) (*userv1.ListUsersResponse, error) {
	page := req.GetPage()
	if page < 1 {
		page = defaultPage
	}
	limit := req.GetLimit()
	if limit < 1 {
		limit = defaultLimit
	}

	list, total, err := s.Users.List(ctx, models.ListFilter{
		Search: strings.TrimSpace(req.GetSearch()),
		Offset: (int(page) - 1) * int(limit),
		Limit:  int(limit),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list users: %v", err)
	}

	out := make([]*userv1.User, 0, len(list))
	for i := range list {
		out = append(out, toProtoUser(&list[i]))
	}

	return &userv1.ListUsersResponse{
		Users:   out,
		Total:   int32(total),
		Page:    page,
		Limit:   limit,
		Success: true,
		Message: fmt.Sprintf("Retrieved %d users", len(out)),
	}, nil
}

// UpdateUser overwrites the supplied fields. Absent or blank fields keep
// their stored value; validation runs before the store is touched.
func (s *Server) UpdateUser(ctx context.Context, req *userv1.UpdateUserRequest) (*userv1.UpdateUserResponse, error) {
	var upd models.UserUpdate

	if name := strings.TrimSpace(req.GetName()); name != "" {
		if utf8.RuneCountInString(name) > maxNameLength {
			failed("UpdateUser", userv1.ErrorCodeValidation)
			return &userv1.UpdateUserResponse{
				Message:   fmt.Sprintf("name must be at most %d characters", maxNameLength),
				ErrorCode: userv1.ErrorCodeValidation,
			}, nil
		}
		upd.Name = &name
	}
	if email := strings.TrimSpace(req.GetEmail()); email != "" {
		if err := validate.Var(email, fmt.Sprintf("email,max=%d", maxEmailLength)); err != nil {
			failed("UpdateUser", userv1.ErrorCodeValidation)
			return &userv1.UpdateUserResponse{Message: msgInvalidEmail, ErrorCode: userv1.ErrorCodeValidation}, nil
		}
		upd.Email = &email
	}
	if raw := strings.TrimSpace(req.GetRole()); raw != "" {
		role, ok := models.ParseRole(raw)
		if !ok {
			failed("UpdateUser", userv1.ErrorCodeValidation)
			return &userv1.UpdateUserResponse{Message: invalidRoleMessage(raw), ErrorCode: userv1.ErrorCodeValidation}, nil
		}
		upd.Role = &role
	}

	u, err := s.Users.Update(ctx, req.GetId(), upd)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		failed("UpdateUser", userv1.ErrorCodeUserNotFound)
		return &userv1.UpdateUserResponse{Message: msgUserNotFound, ErrorCode: userv1.ErrorCodeUserNotFound}, nil
	case errors.Is(err, repository.ErrEmailExists):
		failed("UpdateUser", userv1.ErrorCodeEmailExists)
		return &userv1.UpdateUserResponse{Message: msgEmailExists, ErrorCode: userv1.ErrorCodeEmailExists}, nil
	case err != nil:
		return nil, status.Errorf(codes.Internal, "update user: %v", err)
	}

	return &userv1.UpdateUserResponse{User: toProtoUser(u), Success: true, Message: msgUserUpdated}, nil
}

func (s *Server) DeleteUser(ctx context.Context, req *userv1.DeleteUserRequest) (*userv1.DeleteUserResponse, error) {
	err := s.Users.Delete(ctx, req.GetId())
	if errors.Is(err, repository.ErrNotFound) {
		failed("DeleteUser", userv1.ErrorCodeUserNotFound)
		return &userv1.DeleteUserResponse{Message: msgUserNotFound, ErrorCode: userv1.ErrorCodeUserNotFound}, nil
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "delete user: %v", err)
	}

	metrics.StoreRecords.Dec()
	s.Log.Info().Int64("user_id", req.GetId()).Msg("user deleted")
	return &userv1.DeleteUserResponse{Success: true, Message: msgUserDeleted}, nil
}

// toProtoUser converts a models.User to its wire form; timestamps become
// Unix milliseconds.
func toProtoUser(u *models.User) *userv1.User {
	if u == nil {
		return nil
	}
	return &userv1.User{
		Id:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt.UnixMilli(),
		UpdatedAt: u.UpdatedAt.UnixMilli(),
	}
}

// validationMessage turns validator errors on createInput into the message
// returned to callers. Missing fields take precedence over format problems.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return msgFieldsRequired
		}
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "email":
		return msgInvalidEmail
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", strings.ToLower(fe.Field()), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", strings.ToLower(fe.Field()))
	}
}

func invalidRoleMessage(role string) string {
	names := make([]string, len(models.Roles))
	for i, r := range models.Roles {
		names[i] = string(r)
	}
	return fmt.Sprintf("Invalid role %q: must be one of %s", role, strings.Join(names, ", "))
}

func failed(method, code string) {
	metrics.RecordRPCFailure(method, code)
}
