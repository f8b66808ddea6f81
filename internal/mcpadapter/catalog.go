// Package mcpadapter implements the MCP stdio adapter (spec §4.7): a
// long-lived process, one per AI client, presenting a fixed tool/prompt
// catalog over stdio and bridging each tool call to the broker over a
// reconnecting WebSocket. Grounded on mark3labs/mcp-go for the MCP side and
// the teacher's gorilla/websocket client shape
// (go-server/pkg/websocket/client.go) for the broker side.
package mcpadapter

// ParamSpec describes one tool parameter's static schema entry. The
// catalog is data-driven rather than fifty hand-written mcp.NewTool
// call sites, but the resulting schema is exactly as static: it is built
// once at process start from this table and never changes at runtime.
type ParamSpec struct {
	Name        string
	Type        string // "string", "number", "boolean"
	Required    bool
	Description string
}

// ToolSpec is one catalog entry (spec §4.7: "roughly fifty entries,
// schema-only").
type ToolSpec struct {
	Name        string
	Description string
	Params      []ParamSpec
	// NoChannelRequired marks tools usable before a join (the "known
	// channel-not-required set" in spec §4.7 step 4).
	NoChannelRequired bool
}

// PromptSpec is one static long-form strategy document (spec §4.7: "a
// handful of long-form strategy documents").
type PromptSpec struct {
	Name        string
	Description string
	Text        string
}

var fileKeyParam = ParamSpec{Name: "fileKey", Type: "string", Description: "Design file key; falls back to the configured default when omitted."}

// Tools is the fixed catalog advertised by tools/list and dispatched by
// tools/call. It never changes after process start.
var Tools = []ToolSpec{
	{Name: "join_channel", Description: "Join a broker channel to start exchanging commands with a design-tool executor.", NoChannelRequired: true, Params: []ParamSpec{
		{Name: "channel", Type: "string", Required: true, Description: "Channel name."},
	}},
	{Name: "get_active_channels", Description: "List channels currently known to the broker with member counts.", NoChannelRequired: true},
	{Name: "connection_diagnostics", Description: "Return broker uptime, port, and per-channel membership breakdown.", NoChannelRequired: true},

	{Name: "get_document_info", Description: "Return the active document's name and page count."},
	{Name: "get_selection", Description: "Return the current selection's node ids and basic geometry."},
	{Name: "get_node_info", Description: "Return detailed information about a single node.", Params: []ParamSpec{
		{Name: "nodeId", Type: "string", Required: true},
	}},
	{Name: "get_nodes_info", Description: "Return detailed information about multiple nodes.", Params: []ParamSpec{
		{Name: "nodeIds", Type: "string", Required: true, Description: "Comma-separated node ids."},
	}},
	{Name: "read_my_design", Description: "Summarize the structure of the current selection for the calling AI client."},

	{Name: "create_rectangle", Description: "Create a rectangle node.", Params: []ParamSpec{
		{Name: "x", Type: "number"}, {Name: "y", Type: "number"},
		{Name: "width", Type: "number", Required: true}, {Name: "height", Type: "number", Required: true},
		{Name: "name", Type: "string"}, {Name: "parentId", Type: "string"},
	}},
	{Name: "create_frame", Description: "Create a frame node.", Params: []ParamSpec{
		{Name: "x", Type: "number"}, {Name: "y", Type: "number"},
		{Name: "width", Type: "number", Required: true}, {Name: "height", Type: "number", Required: true},
		{Name: "name", Type: "string"}, {Name: "parentId", Type: "string"},
	}},
	{Name: "create_text", Description: "Create a text node.", Params: []ParamSpec{
		{Name: "x", Type: "number"}, {Name: "y", Type: "number"},
		{Name: "text", Type: "string", Required: true}, {Name: "fontSize", Type: "number"},
		{Name: "parentId", Type: "string"},
	}},
	{Name: "create_ellipse", Description: "Create an ellipse node.", Params: []ParamSpec{
		{Name: "x", Type: "number"}, {Name: "y", Type: "number"},
		{Name: "width", Type: "number", Required: true}, {Name: "height", Type: "number", Required: true},
		{Name: "parentId", Type: "string"},
	}},
	{Name: "create_component_instance", Description: "Instantiate a component by key.", Params: []ParamSpec{
		{Name: "componentKey", Type: "string", Required: true},
		{Name: "x", Type: "number"}, {Name: "y", Type: "number"}, {Name: "parentId", Type: "string"},
	}},
	{Name: "clone_node", Description: "Duplicate a node.", Params: []ParamSpec{
		{Name: "nodeId", Type: "string", Required: true}, {Name: "x", Type: "number"}, {Name: "y", Type: "number"},
	}},
	{Name: "delete_node", Description: "Delete a node.", Params: []ParamSpec{
		{Name: "nodeId", Type: "string", Required: true},
	}},
	{Name: "delete_multiple_nodes", Description: "Delete several nodes.", Params: []ParamSpec{
		{Name: "nodeIds", Type: "string", Required: true},
	}},

	{Name: "move_node", Description: "Move a node to an absolute position.", Params: []ParamSpec{
		{Name: "nodeId", Type: "string", Required: true},
		{Name: "x", Type: "number", Required: true}, {Name: "y", Type: "number", Required: true},
	}},
	{Name: "resize_node", Description: "Resize a node.", Params: []ParamSpec{
		{Name: "nodeId", Type: "string", Required: true},
		{Name: "width", Type: "number", Required: true}, {Name: "height", Type: "number", Required: true},
	}},
	{Name: "reparent_node", Description: "Move a node into a new parent.", Params: []ParamSpec{
		{Name: "nodeId", Type: "string", Required: true}, {Name: "parentId", Type: "string", Required: true},
	}},
	{Name: "set_layout_mode", Description: "Set a frame's auto-layout direction.", Params: []ParamSpec{
		{Name: "nodeId", Type: "string", Required: true}, {Name: "mode", Type: "string", Required: true},
	}},
	{Name: "set_padding", Description: "Set a frame's auto-layout padding.", Params: []ParamSpec{
		{Name: "nodeId", Type: "string", Required: true},
		{Name: "top", Type: "number"}, {Name: "right", Type: "number"}, {Name: "bottom", Type: "number"}, {Name: "left", Type: "number"},
	}},
	{Name: "set_item_spacing", Description: "Set a frame's auto-layout item spacing.", Params: []ParamSpec{
		{Name: "nodeId", Type: "string", Required: true}, {Name: "spacing", Type: "number", Required: true},
	}},
	{Name: "set_layout_sizing", Description: "Set hug/fill sizing on an axis.", Params: []ParamSpec{
		{Name: "nodeId", Type: "string", Required: true}, {Name: "axis", Type: "string", Required: true}, {Name: "mode", Type: "string", Required: true},
	}},

	{Name: "set_fill_color", Description: "Set a node's fill color (r,g,b,a in [0,1]).", Params: []ParamSpec{
		{Name: "nodeId", Type: "string", Required: true},
		{Name: "r", Type: "number", Required: true}, {Name: "g", Type: "number", Required: true}, {Name: "b", Type: "number", Required: true},
		{Name: "a", Type: "number"},
	}},
	{Name: "set_stroke_color", Description: "Set a node's stroke color and weight.", Params: []ParamSpec{
		{Name: "nodeId", Type: "string", Required: true},
		{Name: "r", Type: "number", Required: true}, {Name: "g", Type: "number", Required: true}, {Name: "b", Type: "number", Required: true},
		{Name: "a", Type: "number"}, {Name: "weight", Type: "number"},
	}},
	{Name: "set_corner_radius", Description: "Set a node's corner radius.", Params: []ParamSpec{
		{Name: "nodeId", Type: "string", Required: true}, {Name: "radius", Type: "number", Required: true},
	}},
	{Name: "set_opacity", Description: "Set a node's opacity.", Params: []ParamSpec{
		{Name: "nodeId", Type: "string", Required: true}, {Name: "opacity", Type: "number", Required: true},
	}},
	{Name: "set_effect", Description: "Add or replace a shadow/blur effect.", Params: []ParamSpec{
		{Name: "nodeId", Type: "string", Required: true}, {Name: "effectType", Type: "string", Required: true},
	}},

	{Name: "set_text_content", Description: "Replace a text node's characters.", Params: []ParamSpec{
		{Name: "nodeId", Type: "string", Required: true}, {Name: "text", Type: "string", Required: true},
	}},
	{Name: "set_font_name", Description: "Set a text node's font family and style.", Params: []ParamSpec{
		{Name: "nodeId", Type: "string", Required: true}, {Name: "family", Type: "string", Required: true}, {Name: "style", Type: "string"},
	}},
	{Name: "set_font_size", Description: "Set a text node's font size.", Params: []ParamSpec{
		{Name: "nodeId", Type: "string", Required: true}, {Name: "fontSize", Type: "number", Required: true},
	}},
	{Name: "set_text_alignment", Description: "Set a text node's horizontal alignment.", Params: []ParamSpec{
		{Name: "nodeId", Type: "string", Required: true}, {Name: "alignment", Type: "string", Required: true},
	}},
	{Name: "set_line_height", Description: "Set a text node's line height.", Params: []ParamSpec{
		{Name: "nodeId", Type: "string", Required: true}, {Name: "value", Type: "number", Required: true},
	}},
	{Name: "get_available_fonts", Description: "List fonts available in the active document."},

	{Name: "group_nodes", Description: "Group nodes under a new group.", Params: []ParamSpec{
		{Name: "nodeIds", Type: "string", Required: true},
	}},
	{Name: "ungroup_node", Description: "Ungroup a group node.", Params: []ParamSpec{
		{Name: "nodeId", Type: "string", Required: true},
	}},
	{Name: "set_constraints", Description: "Set a node's resize constraints.", Params: []ParamSpec{
		{Name: "nodeId", Type: "string", Required: true}, {Name: "horizontal", Type: "string"}, {Name: "vertical", Type: "string"},
	}},
	{Name: "flatten_node", Description: "Flatten a node's children into vector paths.", Params: []ParamSpec{
		{Name: "nodeId", Type: "string", Required: true},
	}},
	{Name: "boolean_union", Description: "Boolean-union a set of nodes.", Params: []ParamSpec{
		{Name: "nodeIds", Type: "string", Required: true},
	}},
	{Name: "boolean_subtract", Description: "Boolean-subtract a set of nodes.", Params: []ParamSpec{
		{Name: "nodeIds", Type: "string", Required: true},
	}},

	{Name: "export_node_as_image", Description: "Export a node to a raster or vector image.", Params: []ParamSpec{
		{Name: "nodeId", Type: "string", Required: true}, {Name: "format", Type: "string"}, {Name: "scale", Type: "number"},
	}},
	{Name: "get_styles", Description: "List the document's shared styles."},
	{Name: "get_local_components", Description: "List the document's local components."},
	{Name: "set_variant_property", Description: "Set a component instance's variant property.", Params: []ParamSpec{
		{Name: "nodeId", Type: "string", Required: true}, {Name: "property", Type: "string", Required: true}, {Name: "value", Type: "string", Required: true},
	}},
	{Name: "scan_text_nodes", Description: "List every text node under a root node.", Params: []ParamSpec{
		{Name: "rootId", Type: "string", Required: true},
	}},
	{Name: "scan_nodes_by_types", Description: "List every node of the given types under a root node.", Params: []ParamSpec{
		{Name: "rootId", Type: "string", Required: true}, {Name: "types", Type: "string", Required: true},
	}},

	{Name: "get_comments", Description: "Read comments on the current file.", Params: []ParamSpec{fileKeyParam}},
	{Name: "post_comment", Description: "Post a new comment.", Params: []ParamSpec{
		fileKeyParam, {Name: "message", Type: "string", Required: true}, {Name: "nodeId", Type: "string"},
	}},
	{Name: "reply_to_comment", Description: "Reply to an existing comment thread.", Params: []ParamSpec{
		fileKeyParam, {Name: "commentId", Type: "string", Required: true}, {Name: "message", Type: "string", Required: true},
	}},
	{Name: "post_reaction", Description: "React to a comment.", Params: []ParamSpec{
		fileKeyParam, {Name: "commentId", Type: "string", Required: true}, {Name: "emoji", Type: "string", Required: true},
	}},
	{Name: "get_reactions", Description: "List reactions on a comment.", Params: []ParamSpec{
		fileKeyParam, {Name: "commentId", Type: "string", Required: true},
	}},
	{Name: "delete_reaction", Description: "Remove a reaction from a comment.", Params: []ParamSpec{
		fileKeyParam, {Name: "commentId", Type: "string", Required: true}, {Name: "reactionId", Type: "string", Required: true},
	}},

	{Name: "get_config", Description: "Read a broker-side configuration value.", NoChannelRequired: true, Params: []ParamSpec{
		{Name: "key", Type: "string", Required: true},
	}},
	{Name: "set_config", Description: "Write a broker-side configuration value.", NoChannelRequired: true, Params: []ParamSpec{
		{Name: "key", Type: "string", Required: true}, {Name: "value", Type: "string", Required: true},
	}},
	{Name: "send_notification", Description: "Surface a desktop notification via the host shell.", NoChannelRequired: true, Params: []ParamSpec{
		{Name: "title", Type: "string", Required: true}, {Name: "message", Type: "string"},
	}},
}

// Prompts is the fixed set of long-form strategy documents advertised by
// prompts/list and served by prompts/get.
var Prompts = []PromptSpec{
	{
		Name:        "design_review_strategy",
		Description: "How to structure a thorough design review using the available tools.",
		Text:        "Start with get_document_info and get_selection to orient yourself, then read_my_design before proposing changes. Prefer get_node_info over assumptions about node structure.",
	},
	{
		Name:        "component_refactor_strategy",
		Description: "How to safely consolidate duplicated layers into reusable components.",
		Text:        "Use scan_nodes_by_types to find candidate duplicates, get_local_components to check for an existing match, and clone_node plus set_variant_property rather than recreating structure from scratch.",
	},
	{
		Name:        "collaboration_etiquette",
		Description: "How to use comments and reactions without disrupting other collaborators.",
		Text:        "Prefer reply_to_comment over post_comment when a thread already exists. Use post_reaction for acknowledgement instead of adding a new comment.",
	},
}
