package matching

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	svcErr "github.com/oggyb/matchmaker/internal/errors"
	"github.com/oggyb/matchmaker/internal/geo"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "matchmaker.v1.MatchingService"

// MatchingServiceServer is the gRPC surface of the matching service.
// Requests and responses are google.protobuf.Struct documents with
// snake_case keys; ids may be sent as numbers or decimal strings.
type MatchingServiceServer interface {
	RegisterParticipant(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Like(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListParticipants(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAvatar(context.Context, *structpb.Struct) (*wrapperspb.BytesValue, error)
	ListLikedYou(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListNewLikedYou(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CountLikedYou(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterMatchingServiceServer attaches srv to s.
func RegisterMatchingServiceServer(s grpc.ServiceRegistrar, srv MatchingServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

func unaryHandler[Resp any](
	method string,
	call func(MatchingServiceServer, context.Context, *structpb.Struct) (Resp, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				resp, err := call(srv.(MatchingServiceServer), ctx, in)
				return resp, err
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + method,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				resp, err := call(srv.(MatchingServiceServer), ctx, req.(*structpb.Struct))
				return resp, err
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MatchingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("RegisterParticipant", MatchingServiceServer.RegisterParticipant),
		unaryHandler("Like", MatchingServiceServer.Like),
		unaryHandler("ListParticipants", MatchingServiceServer.ListParticipants),
		unaryHandler("GetAvatar", MatchingServiceServer.GetAvatar),
		unaryHandler("ListLikedYou", MatchingServiceServer.ListLikedYou),
		unaryHandler("ListNewLikedYou", MatchingServiceServer.ListNewLikedYou),
		unaryHandler("CountLikedYou", MatchingServiceServer.CountLikedYou),
	},
	Streams: []grpc.StreamDesc{},
}

// GRPCHandler adapts Service to MatchingServiceServer.
type GRPCHandler struct {
	svc *Service
}

func NewGRPCHandler(svc *Service) *GRPCHandler {
	return &GRPCHandler{svc: svc}
}

var _ MatchingServiceServer = (*GRPCHandler)(nil)

// RegisterParticipant expects gender, first_name, last_name, email, password,
// optionally avatar (base64), latitude/longitude and city.
func (h *GRPCHandler) RegisterParticipant(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f := fields{in}
	req := RegisterRequest{
		Gender:    f.str("gender"),
		FirstName: f.str("first_name"),
		LastName:  f.str("last_name"),
		Email:     f.str("email"),
		Password:  f.str("password"),
		City:      f.str("city"),
		Latitude:  f.floatPtr("latitude"),
		Longitude: f.floatPtr("longitude"),
	}
	if raw := f.str("avatar"); raw != "" {
		avatar, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, svcErr.InvalidArgument("avatar must be base64 encoded")
		}
		req.Avatar = avatar
	}

	view, err := h.svc.RegisterParticipant(ctx, req)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return structpb.NewStruct(viewFields(view))
}

// Like expects liker_id and target_id.
func (h *GRPCHandler) Like(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f := fields{in}
	likerID, err := f.id("liker_id")
	if err != nil {
		return nil, err
	}
	targetID, err := f.id("target_id")
	if err != nil {
		return nil, err
	}

	outcome, err := h.svc.Like(ctx, likerID, targetID)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	out := map[string]any{
		"kind":    string(outcome.Kind),
		"message": outcome.Message,
	}
	if outcome.Kind == MutualMatch {
		out["counterpart_email"] = outcome.CounterpartEmail
		out["counterpart_name"] = outcome.CounterpartName
	}
	return structpb.NewStruct(out)
}

// ListParticipants accepts gender, first_name, last_name, sort, limit, offset
// and a proximity filter of max_distance_km with latitude/longitude or city.
func (h *GRPCHandler) ListParticipants(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f := fields{in}
	req := ListRequest{
		Gender:        f.str("gender"),
		FirstName:     f.str("first_name"),
		LastName:      f.str("last_name"),
		Sort:          f.str("sort"),
		Limit:         int(f.num("limit")),
		Offset:        int(f.num("offset")),
		City:          strings.TrimSpace(f.str("city")),
		MaxDistanceKm: f.num("max_distance_km"),
	}
	lat, lon := f.floatPtr("latitude"), f.floatPtr("longitude")
	if (lat == nil) != (lon == nil) {
		return nil, svcErr.InvalidArgument("latitude and longitude must be given together")
	}
	if lat != nil {
		req.Origin = &geo.Point{Lat: *lat, Lon: *lon}
	}
	if (req.Origin != nil || req.City != "") && f.floatPtr("max_distance_km") == nil {
		return nil, svcErr.InvalidArgument("max_distance_km is required with latitude/longitude or city")
	}

	views, err := h.svc.ListParticipants(ctx, req)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	list := make([]any, 0, len(views))
	for _, v := range views {
		list = append(list, viewFields(v))
	}
	return structpb.NewStruct(map[string]any{"participants": list})
}

// GetAvatar expects id and returns the raw PNG bytes.
func (h *GRPCHandler) GetAvatar(ctx context.Context, in *structpb.Struct) (*wrapperspb.BytesValue, error) {
	id, err := fields{in}.id("id")
	if err != nil {
		return nil, err
	}
	avatar, err := h.svc.Avatar(ctx, id)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return wrapperspb.Bytes(avatar), nil
}

// ListLikedYou expects recipient_user_id and optionally pagination_token and limit.
func (h *GRPCHandler) ListLikedYou(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return h.listLikers(ctx, in, h.svc.ListLikedYou)
}

func (h *GRPCHandler) ListNewLikedYou(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return h.listLikers(ctx, in, h.svc.ListNewLikedYou)
}

func (h *GRPCHandler) listLikers(
	ctx context.Context,
	in *structpb.Struct,
	list func(context.Context, uint64, *string, int) ([]Liker, *string, error),
) (*structpb.Struct, error) {
	f := fields{in}
	recipientID, err := f.id("recipient_user_id")
	if err != nil {
		return nil, err
	}
	var token *string
	if t := f.str("pagination_token"); t != "" {
		token = &t
	}

	likers, next, err := list(ctx, recipientID, token, int(f.num("limit")))
	if err != nil {
		return nil, svcErr.Map(err)
	}

	items := make([]any, 0, len(likers))
	for _, l := range likers {
		items = append(items, map[string]any{
			"actor_id":       strconv.FormatUint(l.UserID, 10),
			"unix_timestamp": l.LikedAt.UnixMilli(),
		})
	}
	out := map[string]any{"likers": items}
	if next != nil {
		out["next_pagination_token"] = *next
	}
	return structpb.NewStruct(out)
}

// CountLikedYou expects recipient_user_id.
func (h *GRPCHandler) CountLikedYou(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	recipientID, err := fields{in}.id("recipient_user_id")
	if err != nil {
		return nil, err
	}
	count, err := h.svc.CountLikedYou(ctx, recipientID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return structpb.NewStruct(map[string]any{"count": count})
}

func viewFields(v ParticipantView) map[string]any {
	return map[string]any{
		"id":         strconv.FormatUint(v.ID, 10),
		"gender":     v.Gender,
		"first_name": v.FirstName,
		"last_name":  v.LastName,
		"email":      v.Email,
		"avatar_url": v.AvatarURL,
		"city":       v.City,
		"is_active":  v.IsActive,
		"created_at": v.CreatedAt.Format(time.RFC3339Nano),
	}
}

// fields reads loosely typed values out of a Struct.
type fields struct {
	s *structpb.Struct
}

func (f fields) value(name string) *structpb.Value {
	if f.s == nil {
		return nil
	}
	return f.s.GetFields()[name]
}

func (f fields) str(name string) string {
	v := f.value(name)
	if v == nil {
		return ""
	}
	if _, ok := v.GetKind().(*structpb.Value_NumberValue); ok {
		return strconv.FormatFloat(v.GetNumberValue(), 'f', -1, 64)
	}
	return v.GetStringValue()
}

func (f fields) num(name string) float64 {
	v := f.value(name)
	if v == nil {
		return 0
	}
	if s, ok := v.GetKind().(*structpb.Value_StringValue); ok {
		n, _ := strconv.ParseFloat(s.StringValue, 64)
		return n
	}
	return v.GetNumberValue()
}

func (f fields) floatPtr(name string) *float64 {
	v := f.value(name)
	if v == nil {
		return nil
	}
	if _, ok := v.GetKind().(*structpb.Value_NullValue); ok {
		return nil
	}
	n := f.num(name)
	return &n
}

func (f fields) id(name string) (uint64, error) {
	v := f.value(name)
	if v == nil {
		return 0, svcErr.InvalidArgument(name + " is required")
	}
	if n, ok := v.GetKind().(*structpb.Value_NumberValue); ok {
		x := n.NumberValue
		if x < 0 || x != math.Trunc(x) || x > math.MaxInt64 {
			return 0, svcErr.InvalidArgument(name + " must be a valid uint64")
		}
		return uint64(x), nil
	}
	id, err := strconv.ParseUint(v.GetStringValue(), 10, 64)
	if err != nil {
		return 0, svcErr.InvalidArgument(fmt.Sprintf("%s must be a valid uint64", name))
	}
	return id, nil
}
