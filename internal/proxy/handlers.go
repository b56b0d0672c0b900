package proxy

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/metadata"

	userv1 "github.com/pronobkarmoker/gRPC-microservice/api/userservice/v1"
)

// Handler translates REST calls into UserService RPCs.
type Handler struct {
	client      userv1.UserServiceClient
	callTimeout time.Duration
	log         zerolog.Logger
	devErrors   bool
}

func NewHandler(client userv1.UserServiceClient, callTimeout time.Duration, log zerolog.Logger, devErrors bool) *Handler {
	if callTimeout <= 0 {
		callTimeout = 5 * time.Second
	}
	return &Handler{client: client, callTimeout: callTimeout, log: log, devErrors: devErrors}
}

// callCtx bounds one RPC by the configured timeout and forwards the request id.
func (h *Handler) callCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.callTimeout)
	if id := RequestID(c); id != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, userv1.RequestIDMetadataKey, id)
	}
	return ctx, cancel
}

// Health reports proxy liveness together with the service's own health answer.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := h.callCtx(c)
	defer cancel()

	resp, err := h.client.HealthCheck(ctx, &userv1.HealthCheckRequest{Service: "UserService"})
	if err != nil {
		h.log.Warn().Err(err).Str("request_id", RequestID(c)).Msg("health check failed")
		body := healthBody{
			Status:    healthStatusDown,
			Message:   msgUnavailable,
			ErrorCode: userv1.ErrorCodeTransportUnavailable,
			Timestamp: time.Now().UnixMilli(),
		}
		if h.devErrors {
			body.Error = err.Error()
		}
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	svc := &serviceHealth{
		Status:    resp.GetStatus(),
		Message:   resp.GetMessage(),
		Timestamp: resp.GetTimestamp(),
	}
	c.JSON(http.StatusOK, healthBody{
		Status:      healthStatusOK,
		Message:     msgProxyHealthy,
		GRPCService: svc,
		Timestamp:   time.Now().UnixMilli(),
	})
}

func (h *Handler) ListUsers(c *gin.Context) {
	req := &userv1.ListUsersRequest{
		Page:   queryInt32(c, "page"),
		Limit:  queryInt32(c, "limit"),
		Search: c.Query("search"),
	}

	ctx, cancel := h.callCtx(c)
	defer cancel()
	resp, err := h.client.ListUsers(ctx, req)
	if err != nil {
		h.transportFailure(c, "ListUsers", err)
		return
	}

	users := make([]*userView, 0, len(resp.GetUsers()))
	for _, u := range resp.GetUsers() {
		users = append(users, toUserView(u))
	}
	c.JSON(http.StatusOK, envelope{
		Success: resp.GetSuccess(),
		Data: listData{
			Users: users,
			Pagination: pagination{
				Total:      resp.GetTotal(),
				Page:       resp.GetPage(),
				Limit:      resp.GetLimit(),
				TotalPages: totalPages(resp.GetTotal(), resp.GetLimit()),
			},
		},
		Message: resp.Message,
	})
}

func (h *Handler) GetUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx, cancel := h.callCtx(c)
	defer cancel()
	resp, err := h.client.GetUser(ctx, &userv1.GetUserRequest{Id: id})
	if err != nil {
		h.transportFailure(c, "GetUser", err)
		return
	}
	if !resp.GetSuccess() {
		writeFail(c, http.StatusNotFound, resp.Message, resp.GetErrorCode())
		return
	}
	writeOK(c, http.StatusOK, toUserView(resp.GetUser()), resp.Message)
}

type createBody struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (h *Handler) CreateUser(c *gin.Context) {
	var body createBody
	if !bindJSON(c, &body) {
		return
	}

	ctx, cancel := h.callCtx(c)
	defer cancel()
	resp, err := h.client.CreateUser(ctx, &userv1.CreateUserRequest{Name: body.Name, Email: body.Email, Role: body.Role})
	if err != nil {
		h.transportFailure(c, "CreateUser", err)
		return
	}
	if !resp.GetSuccess() {
		writeFail(c, http.StatusBadRequest, resp.Message, resp.GetErrorCode())
		return
	}
	writeOK(c, http.StatusCreated, toUserView(resp.GetUser()), resp.Message)
}

// updateBody keeps absent fields nil so they are not sent to the service.
type updateBody struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Role  *string `json:"role"`
}

func (h *Handler) UpdateUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body updateBody
	if !bindJSON(c, &body) {
		return
	}

	ctx, cancel := h.callCtx(c)
	defer cancel()
	resp, err := h.client.UpdateUser(ctx, &userv1.UpdateUserRequest{Id: id, Name: body.Name, Email: body.Email, Role: body.Role})
	if err != nil {
		h.transportFailure(c, "UpdateUser", err)
		return
	}
	if !resp.GetSuccess() {
		code := http.StatusBadRequest
		if resp.GetErrorCode() == userv1.ErrorCodeUserNotFound {
			code = http.StatusNotFound
		}
		writeFail(c, code, resp.Message, resp.GetErrorCode())
		return
	}
	writeOK(c, http.StatusOK, toUserView(resp.GetUser()), resp.Message)
}

func (h *Handler) DeleteUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx, cancel := h.callCtx(c)
	defer cancel()
	resp, err := h.client.DeleteUser(ctx, &userv1.DeleteUserRequest{Id: id})
	if err != nil {
		h.transportFailure(c, "DeleteUser", err)
		return
	}
	if !resp.GetSuccess() {
		writeFail(c, http.StatusNotFound, resp.Message, resp.GetErrorCode())
		return
	}
	writeOK(c, http.StatusOK, nil, resp.Message)
}

// NotFound answers unknown routes.
func NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"message": msgNotFound,
		"path":    c.Request.URL.RequestURI(),
	})
}

// pathID parses :id, answering 400 itself when it is not an integer.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		writeFail(c, http.StatusBadRequest, msgInvalidID, userv1.ErrorCodeValidation)
		return 0, false
	}
	return id, true
}

// bindJSON decodes the request body into dst. An empty body is treated as an
// empty object; malformed JSON is answered with 400.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		writeFail(c, http.StatusBadRequest, msgInvalidBody, userv1.ErrorCodeValidation)
		return false
	}
	return true
}

// queryInt32 reads an integer query parameter. Missing or malformed values
// yield 0, which the service replaces with its default.
func queryInt32(c *gin.Context, key string) int32 {
	n, err := strconv.ParseInt(c.Query(key), 10, 64)
	if err != nil {
		return 0
	}
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	if n < math.MinInt32 {
		return math.MinInt32
	}
	return int32(n)
}
