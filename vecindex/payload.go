package vecindex

import (
	pb "github.com/qdrant/go-client/qdrant"
)

func pointStruct(p Point) *pb.PointStruct {
	payload := toPayload(p.Payload)
	// The original document id rides in the payload; the engine id is the
	// derived UUID.
	payload["doc_id"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: p.ID}}
	return &pb.PointStruct{
		Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(p.ID)}},
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{
				Vector: &pb.Vector{Data: p.Vector},
			},
		},
		Payload: payload,
	}
}

func searchFilter(f SearchFilter) *pb.Filter {
	var must []*pb.Condition
	if len(f.Kinds) == 1 {
		must = append(must, fieldMatch("type", f.Kinds[0]))
	} else if len(f.Kinds) > 1 {
		must = append(must, fieldMatchAny("type", f.Kinds))
	}
	if f.ThreadID != "" {
		must = append(must, fieldMatch("thread_id", f.ThreadID))
	}

	var mustNot []*pb.Condition
	if len(f.ExcludeIDs) > 0 {
		ids := make([]*pb.PointId, 0, len(f.ExcludeIDs))
		for _, docID := range f.ExcludeIDs {
			ids = append(ids, &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(docID)}})
		}
		mustNot = append(mustNot, &pb.Condition{
			ConditionOneOf: &pb.Condition_HasId{
				HasId: &pb.HasIdCondition{HasId: ids},
			},
		})
	}

	if len(must) == 0 && len(mustNot) == 0 {
		return nil
	}
	return &pb.Filter{Must: must, MustNot: mustNot}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func fieldMatchAny(key string, values []string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keywords{
						Keywords: &pb.RepeatedStrings{Strings: values},
					},
				},
			},
		},
	}
}

func toPayload(m map[string]any) map[string]*pb.Value {
	out := make(map[string]*pb.Value, len(m)+1)
	for k, v := range m {
		out[k] = toValue(v)
	}
	return out
}

func toValue(v any) *pb.Value {
	switch val := v.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: val}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: val}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: val}}
	case []string:
		items := make([]*pb.Value, 0, len(val))
		for _, s := range val {
			items = append(items, &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}})
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: items}}}
	default:
		return &pb.Value{Kind: &pb.Value_NullValue{}}
	}
}

func fromPayload(m map[string]*pb.Value) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = fromValue(v)
	}
	return out
}

func fromValue(v *pb.Value) any {
	switch kind := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return kind.StringValue
	case *pb.Value_IntegerValue:
		return kind.IntegerValue
	case *pb.Value_DoubleValue:
		return kind.DoubleValue
	case *pb.Value_BoolValue:
		return kind.BoolValue
	case *pb.Value_ListValue:
		items := make([]any, 0, len(kind.ListValue.GetValues()))
		for _, it := range kind.ListValue.GetValues() {
			items = append(items, fromValue(it))
		}
		return items
	default:
		return nil
	}
}

func payloadDocID(m map[string]*pb.Value) string {
	if v, ok := m["doc_id"]; ok {
		return v.GetStringValue()
	}
	return ""
}
