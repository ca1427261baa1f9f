package graph

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// convertValue turns driver values into plain Go values: temporal types
// become time.Time, nodes and relationships become property maps, and
// lists and maps are converted recursively.
func convertValue(v any) any {
	switch val := v.(type) {
	case dbtype.Date:
		return time.Time(val)
	case dbtype.LocalDateTime:
		return time.Time(val)
	case dbtype.LocalTime:
		return time.Time(val)
	case dbtype.Time:
		return time.Time(val)
	case dbtype.Node:
		props := convertMap(val.Props)
		props["_element_id"] = val.ElementId
		return props
	case dbtype.Relationship:
		return convertMap(val.Props)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = convertValue(item)
		}
		return out
	case map[string]any:
		return convertMap(val)
	default:
		return v
	}
}

func convertMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = convertValue(v)
	}
	return out
}
