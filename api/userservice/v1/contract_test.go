package userservicev1

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
)

func TestWireFormat_GetUserRequest(t *testing.T) {
	b, err := proto.Marshal(&GetUserRequest{Id: 1})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x08, 0x01}, b, "field 1, varint 1")

	var req GetUserRequest
	require.NoError(t, proto.Unmarshal([]byte{0x08, 0x2a}, &req))
	assert.Equal(t, int64(42), req.GetId())
}

func TestWireFormat_UpdatePresence(t *testing.T) {
	empty := ""
	b, err := proto.Marshal(&UpdateUserRequest{Id: 7, Name: &empty})
	require.NoError(t, err)

	var got UpdateUserRequest
	require.NoError(t, proto.Unmarshal(b, &got))
	require.NotNil(t, got.Name, "an explicitly empty name is still present")
	assert.Nil(t, got.Email)
	assert.Nil(t, got.Role)

	b, err = proto.Marshal(&UpdateUserRequest{Id: 7})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x08, 0x07}, b, "absent optionals are not encoded")
}

func TestWireFormat_FieldNumbers(t *testing.T) {
	u := &User{Id: 3, Name: "Bob", Email: "bob@example.com", Role: "viewer", CreatedAt: 10, UpdatedAt: 20}
	b, err := proto.Marshal(&GetUserResponse{User: u, Success: true, Message: "ok", ErrorCode: "X"})
	require.NoError(t, err)

	seen := map[protowire.Number]bool{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		require.GreaterOrEqual(t, n, 0)
		b = b[n:]
		seen[num] = true
		n = protowire.ConsumeFieldValue(num, typ, b)
		require.GreaterOrEqual(t, n, 0)
		b = b[n:]
	}
	assert.Equal(t, map[protowire.Number]bool{1: true, 2: true, 3: true, 4: true}, seen)
}

func TestDescriptor_Service(t *testing.T) {
	fd := File_api_userservice_v1_user_service_proto
	require.Equal(t, 1, fd.Services().Len())
	svc := fd.Services().Get(0)
	assert.Equal(t, UserService_ServiceDesc.ServiceName, string(svc.FullName()))

	var methods []string
	for i := 0; i < svc.Methods().Len(); i++ {
		methods = append(methods, string(svc.Methods().Get(i).Name()))
	}
	assert.Equal(t, []string{"GetUser", "CreateUser", "ListUsers", "UpdateUser", "DeleteUser", "HealthCheck"}, methods)

	upd := (&UpdateUserRequest{}).ProtoReflect().Descriptor()
	assert.True(t, upd.Fields().ByName("name").HasPresence())
	assert.Equal(t, "created_at", string((&User{}).ProtoReflect().Descriptor().Fields().ByNumber(5).Name()))
}
