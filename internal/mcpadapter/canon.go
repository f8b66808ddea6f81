package mcpadapter

import "encoding/json"

// canonicalize applies the request-shaping rules of spec §4.7 to a tool's
// raw MCP arguments before they are sent to the broker as message.params.
// Unknown parameters pass through verbatim; callers must never drop them.
func canonicalize(tool string, args map[string]any) map[string]any {
	switch tool {
	case "set_fill_color":
		return canonicalizeColor(args, false)
	case "set_stroke_color":
		return canonicalizeColor(args, true)
	default:
		return args
	}
}

// canonicalizeColor rewrites {nodeId, r, g, b, a?, weight?} into
// {nodeId, color: {r, g, b, a}, weight?}, defaulting a to 1 and weight to 1
// (spec §4.7). Keys other than r/g/b/a/weight/nodeId pass through
// untouched. weight is only emitted for set_stroke_color.
func canonicalizeColor(args map[string]any, withWeight bool) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		switch k {
		case "r", "g", "b", "a", "weight":
			// consumed below
		default:
			out[k] = v
		}
	}

	out["color"] = map[string]any{
		"r": numberOrZero(args["r"]),
		"g": numberOrZero(args["g"]),
		"b": numberOrZero(args["b"]),
		"a": numberOrDefault(args["a"], 1),
	}

	if withWeight {
		out["weight"] = numberOrDefault(args["weight"], 1)
	}

	return out
}

func numberOrZero(v any) float64 {
	return numberOrDefault(v, 0)
}

func numberOrDefault(v any, def float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return def
		}
		return f
	case nil:
		return def
	default:
		return def
	}
}
