package mcpadapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalize_SetFillColor_DefaultsAlpha(t *testing.T) {
	out := canonicalize("set_fill_color", map[string]any{
		"nodeId": "1:2", "r": 1.0, "g": 0.5, "b": 0.0,
	})

	assert.Equal(t, "1:2", out["nodeId"])
	color := out["color"].(map[string]any)
	assert.Equal(t, 1.0, color["r"])
	assert.Equal(t, 0.5, color["g"])
	assert.Equal(t, 0.0, color["b"])
	assert.Equal(t, 1.0, color["a"])
	_, hasWeight := out["weight"]
	assert.False(t, hasWeight, "set_fill_color must not gain a weight field")
}

func TestCanonicalize_SetStrokeColor_DefaultsWeight(t *testing.T) {
	out := canonicalize("set_stroke_color", map[string]any{
		"nodeId": "1:2", "r": 0.0, "g": 0.0, "b": 0.0, "a": 0.5,
	})

	color := out["color"].(map[string]any)
	assert.Equal(t, 0.5, color["a"])
	assert.Equal(t, 1.0, out["weight"])
}

func TestCanonicalize_SetStrokeColor_PreservesExplicitWeight(t *testing.T) {
	out := canonicalize("set_stroke_color", map[string]any{
		"nodeId": "1:2", "r": 0.0, "g": 0.0, "b": 0.0, "weight": 3.0,
	})

	assert.Equal(t, 3.0, out["weight"])
}

func TestCanonicalize_PassesThroughUnrelatedParams(t *testing.T) {
	out := canonicalize("create_rectangle", map[string]any{
		"width": 100.0, "height": 50.0, "name": "box",
	})

	assert.Equal(t, 100.0, out["width"])
	assert.Equal(t, "box", out["name"])
}

func TestCanonicalize_UnknownExtraKeysOnColorCommandsPassThrough(t *testing.T) {
	out := canonicalize("set_fill_color", map[string]any{
		"nodeId": "1:2", "r": 1.0, "g": 1.0, "b": 1.0, "visible": true,
	})

	assert.Equal(t, true, out["visible"])
}
