package matching_test

import (
	"context"
	"encoding/base64"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	applog "github.com/oggyb/matchmaker/internal/logger"
	"github.com/oggyb/matchmaker/internal/server"
	"github.com/oggyb/matchmaker/internal/service/matching"
)

// dialService serves the matching registrar over an in-memory listener.
func dialService(t *testing.T, env *testEnv) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := server.NewGRPCServer(applog.Discard(), matching.NewRegistrar(env.appCtx))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func call(t *testing.T, conn *grpc.ClientConn, method string, in map[string]any) (*structpb.Struct, error) {
	t.Helper()
	req, err := structpb.NewStruct(in)
	require.NoError(t, err)
	out := new(structpb.Struct)
	err = conn.Invoke(context.Background(), "/"+matching.ServiceName+"/"+method, req, out)
	return out, err
}

func registerOverGRPC(t *testing.T, conn *grpc.ClientConn, email, name, gender string) string {
	t.Helper()
	out, err := call(t, conn, "RegisterParticipant", map[string]any{
		"gender":     gender,
		"first_name": name,
		"last_name":  "Tester",
		"email":      email,
		"password":   "secret123",
	})
	require.NoError(t, err)
	id := out.GetFields()["id"].GetStringValue()
	require.NotEmpty(t, id)
	return id
}

func TestGRPCRegisterAndList(t *testing.T) {
	env := setupService(t)
	conn := dialService(t, env)

	out, err := call(t, conn, "RegisterParticipant", map[string]any{
		"gender":     "female",
		"first_name": "Anna",
		"last_name":  "Schmidt",
		"email":      "anna@example.com",
		"password":   "secret123",
		"avatar":     base64.StdEncoding.EncodeToString(pngBytes(t, 20, 20)),
	})
	require.NoError(t, err)
	f := out.GetFields()
	assert.Equal(t, "anna@example.com", f["email"].GetStringValue())
	assert.NotEmpty(t, f["avatar_url"].GetStringValue())
	assert.NotContains(t, f, "password")
	assert.NotContains(t, f, "password_digest")
	assert.NotContains(t, f, "latitude")

	_, err = call(t, conn, "RegisterParticipant", map[string]any{
		"gender": "female", "first_name": "Anna", "last_name": "Again",
		"email": "anna@example.com", "password": "secret123",
	})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	_, err = call(t, conn, "RegisterParticipant", map[string]any{"gender": "female"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	list, err := call(t, conn, "ListParticipants", map[string]any{"gender": "female"})
	require.NoError(t, err)
	participants := list.GetFields()["participants"].GetListValue().GetValues()
	require.Len(t, participants, 1)
	assert.Equal(t, "Anna", participants[0].GetStructValue().GetFields()["first_name"].GetStringValue())

	avatar := new(wrapperspb.BytesValue)
	req, _ := structpb.NewStruct(map[string]any{"id": f["id"].GetStringValue()})
	require.NoError(t, conn.Invoke(context.Background(), "/"+matching.ServiceName+"/GetAvatar", req, avatar))
	assert.NotEmpty(t, avatar.GetValue())
}

func TestGRPCLikeFlow(t *testing.T) {
	env := setupService(t)
	conn := dialService(t, env)
	alice := registerOverGRPC(t, conn, "alice@example.com", "Alice", "female")
	bob := registerOverGRPC(t, conn, "bob@example.com", "Bob", "male")

	out, err := call(t, conn, "Like", map[string]any{"liker_id": alice, "target_id": bob})
	require.NoError(t, err)
	assert.Equal(t, string(matching.LikeRecorded), out.GetFields()["kind"].GetStringValue())
	assert.NotContains(t, out.GetFields(), "counterpart_email")

	_, err = call(t, conn, "Like", map[string]any{"liker_id": alice, "target_id": bob})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	// ids may also be numbers
	out, err = call(t, conn, "Like", map[string]any{"liker_id": 2, "target_id": 1})
	require.NoError(t, err)
	assert.Equal(t, string(matching.MutualMatch), out.GetFields()["kind"].GetStringValue())
	assert.Equal(t, "alice@example.com", out.GetFields()["counterpart_email"].GetStringValue())

	count, err := call(t, conn, "CountLikedYou", map[string]any{"recipient_user_id": bob})
	require.NoError(t, err)
	assert.Equal(t, float64(1), count.GetFields()["count"].GetNumberValue())

	likers, err := call(t, conn, "ListLikedYou", map[string]any{"recipient_user_id": bob})
	require.NoError(t, err)
	items := likers.GetFields()["likers"].GetListValue().GetValues()
	require.Len(t, items, 1)
	assert.Equal(t, alice, items[0].GetStructValue().GetFields()["actor_id"].GetStringValue())

	fresh, err := call(t, conn, "ListNewLikedYou", map[string]any{"recipient_user_id": bob})
	require.NoError(t, err)
	assert.Empty(t, fresh.GetFields()["likers"].GetListValue().GetValues())
}

func TestGRPCErrorCodes(t *testing.T) {
	env := setupService(t)
	conn := dialService(t, env)
	alice := registerOverGRPC(t, conn, "alice@example.com", "Alice", "female")

	tests := []struct {
		name   string
		method string
		in     map[string]any
		code   codes.Code
	}{
		{"self like", "Like", map[string]any{"liker_id": alice, "target_id": alice}, codes.FailedPrecondition},
		{"missing target", "Like", map[string]any{"liker_id": alice, "target_id": "999"}, codes.NotFound},
		{"bad id", "Like", map[string]any{"liker_id": "abc", "target_id": alice}, codes.InvalidArgument},
		{"missing id", "CountLikedYou", map[string]any{}, codes.InvalidArgument},
		{"bad token", "ListLikedYou", map[string]any{"recipient_user_id": alice, "pagination_token": "???"}, codes.InvalidArgument},
		{"bad sort", "ListParticipants", map[string]any{"sort": "up"}, codes.InvalidArgument},
		{"half origin", "ListParticipants", map[string]any{"latitude": 52.5, "max_distance_km": 5}, codes.InvalidArgument},
		{"origin without radius", "ListParticipants", map[string]any{"latitude": 52.5, "longitude": 13.4}, codes.InvalidArgument},
		{"city without radius", "ListParticipants", map[string]any{"city": "Berlin"}, codes.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := call(t, conn, tt.method, tt.in)
			assert.Equal(t, tt.code, status.Code(err), "err: %v", err)
		})
	}

	_, err := call(t, conn, "GetAvatar", map[string]any{"id": alice})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGRPCGeocodingUnavailable(t *testing.T) {
	env := setupService(t)
	conn := dialService(t, env)
	env.geo.setDown(true)

	_, err := call(t, conn, "ListParticipants", map[string]any{"city": "Berlin", "max_distance_km": 5})
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestGRPCRequestIDHeader(t *testing.T) {
	env := setupService(t)
	conn := dialService(t, env)

	req, _ := structpb.NewStruct(map[string]any{})
	var header metadata.MD
	_ = conn.Invoke(context.Background(), "/"+matching.ServiceName+"/ListParticipants", req, new(structpb.Struct), grpc.Header(&header))
	ids := header.Get(server.RequestIDHeader)
	require.Len(t, ids, 1)
	assert.NotEmpty(t, ids[0])

	ctx := metadata.AppendToOutgoingContext(context.Background(), server.RequestIDHeader, "req-42")
	_ = conn.Invoke(ctx, "/"+matching.ServiceName+"/ListParticipants", req, new(structpb.Struct), grpc.Header(&header))
	assert.Equal(t, []string{"req-42"}, header.Get(server.RequestIDHeader))
}
