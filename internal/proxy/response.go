package proxy

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	userv1 "github.com/pronobkarmoker/gRPC-microservice/api/userservice/v1"
	"github.com/pronobkarmoker/gRPC-microservice/internal/telemetry"
)

// ErrorCodeRateLimited is reported by the adapter itself when a client
// exceeds its request budget.
const ErrorCodeRateLimited = "RATE_LIMITED"

const (
	msgInternal      = "Internal server error"
	msgUnavailable   = "gRPC service unavailable"
	msgNotFound      = "Endpoint not found"
	msgInvalidID     = "Invalid user id"
	msgInvalidBody   = "Invalid JSON body"
	msgRateLimited   = "Too many requests, please retry later"
	msgProxyHealthy  = "Proxy server is running"
	healthStatusOK   = "OK"
	healthStatusDown = "ERROR"
)

// envelope is the body of every /api response.
type envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data"`
	Message   string `json:"message"`
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

type pagination struct {
	Total      int32 `json:"total"`
	Page       int32 `json:"page"`
	Limit      int32 `json:"limit"`
	TotalPages int32 `json:"totalPages"`
}

// userView is the JSON form of a record. Every field is always present.
type userView struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

func toUserView(u *userv1.User) *userView {
	if u == nil {
		return nil
	}
	return &userView{
		ID:        u.GetId(),
		Name:      u.GetName(),
		Email:     u.GetEmail(),
		Role:      u.GetRole(),
		CreatedAt: u.GetCreatedAt(),
		UpdatedAt: u.GetUpdatedAt(),
	}
}

type listData struct {
	Users      []*userView `json:"users"`
	Pagination pagination  `json:"pagination"`
}

type serviceHealth struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type healthBody struct {
	Status      string         `json:"status"`
	Message     string         `json:"message"`
	GRPCService *serviceHealth `json:"grpc_service,omitempty"`
	ErrorCode   string         `json:"error_code,omitempty"`
	Error       string         `json:"error,omitempty"`
	Timestamp   int64          `json:"timestamp"`
}

func writeOK(c *gin.Context, code int, data any, message string) {
	c.JSON(code, envelope{Success: true, Data: data, Message: message})
}

func writeFail(c *gin.Context, code int, message, errorCode string) {
	c.AbortWithStatusJSON(code, envelope{Message: message, ErrorCode: errorCode})
}

// totalPages is ceil(total/limit); limit is always at least 1 on responses.
func totalPages(total, limit int32) int32 {
	if limit < 1 {
		return 0
	}
	return (total + limit - 1) / limit
}

// transportFailure answers a failed RPC. Unavailable and DeadlineExceeded
// mean the service could not be reached in time and map to 503; anything else
// is a 500 whose detail is only exposed in development.
func (h *Handler) transportFailure(c *gin.Context, op string, err error) {
	st := status.Convert(err)
	h.log.Error().
		Str("op", op).
		Str("code", st.Code().String()).
		Str("request_id", RequestID(c)).
		Msg(st.Message())
	telemetry.SetSpanError(c.Request.Context(), err)

	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded:
		writeFail(c, http.StatusServiceUnavailable, msgUnavailable, userv1.ErrorCodeTransportUnavailable)
	default:
		body := envelope{Message: msgInternal}
		if h.devErrors {
			body.Error = st.Message()
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, body)
	}
}
