package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/alfredjeanlab/refguard/internal/model"
)

// storedID maps a document identifier to its _id value. 24-hex identifiers
// become ObjectIDs so documents written by other Mongo clients resolve.
func storedID(id string) any {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}

func idFilter(id string) bson.M {
	return bson.M{"_id": storedID(id)}
}

func toBSON(doc *model.Document) bson.M {
	out := make(bson.M, len(doc.Fields)+1)
	for k, v := range doc.Fields {
		out[k] = toBSONValue(v)
	}
	out["_id"] = storedID(doc.ID)
	return out
}

// toBSONValue replaces materialized documents with maps the encoder can
// handle.
func toBSONValue(v any) any {
	switch t := v.(type) {
	case *model.Document:
		if t == nil {
			return nil
		}
		return toBSON(t)
	case map[string]any:
		out := make(bson.M, len(t))
		for k, e := range t {
			out[k] = toBSONValue(e)
		}
		return out
	case []any:
		out := make(bson.A, len(t))
		for i, e := range t {
			out[i] = toBSONValue(e)
		}
		return out
	}
	return v
}

// updateDocument renders operator maps as a Mongo update. $push and
// $addToSet values that are plain lists are wrapped in $each so each element
// is appended on its own.
func updateDocument(upd model.Update, now time.Time) bson.M {
	out := make(bson.M, len(upd)+1)
	for op, fields := range upd {
		m := make(bson.M, len(fields))
		for path, v := range fields {
			if op == model.OpPush || op == model.OpAddToSet {
				if list, ok := v.([]any); ok {
					v = map[string]any{model.EachKey: list}
				}
			}
			if op == model.OpUnset {
				v = ""
			}
			m[path] = toBSONValue(v)
		}
		out[string(op)] = m
	}
	set, _ := out[string(model.OpSet)].(bson.M)
	if set == nil {
		set = bson.M{}
		out[string(model.OpSet)] = set
	}
	set[updatedAtKey] = now
	return out
}

// fromBSON converts a decoded Mongo document into a loaded model.Document.
func fromBSON(raw bson.M) *model.Document {
	doc := &model.Document{Fields: make(map[string]any, len(raw))}
	for k, v := range raw {
		switch k {
		case "_id":
			doc.ID = idString(v)
		case createdAtKey:
			doc.CreatedAt = toTime(v)
		case updatedAtKey:
			doc.UpdatedAt = toTime(v)
		default:
			doc.Fields[k] = fromBSONValue(v)
		}
	}
	return doc
}

func fromBSONValue(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = fromBSONValue(e)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = fromBSONValue(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = fromBSONValue(e)
		}
		return out
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC()
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	}
	return v
}

func idString(v any) string {
	switch t := v.(type) {
	case primitive.ObjectID:
		return t.Hex()
	case string:
		return t
	}
	return ""
}

func toTime(v any) time.Time {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC()
	}
	return time.Time{}
}
