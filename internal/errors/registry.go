package errors

import "sort"

// Template is the registered text for a code.
type Template struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
}

var registry = map[string]Template{
	// Configuration (E100-E119)
	"E100": {
		Category:   CategoryConfig,
		Message:    "Config file not found",
		Suggestion: "Pass --config with the path to roomsync.yaml, or omit it to use defaults and ROOMSYNC_* variables.",
	},
	"E101": {
		Category: CategoryConfig,
		Message:  "Config file invalid",
		Detail:   "The configuration file or environment could not be parsed.",
	},
	"E102": {
		Category:   CategoryConfig,
		Message:    "Missing server URL",
		Detail:     "server.url is required to reach the game server.",
		Suggestion: "Set server.url in the config file, ROOMSYNC_SERVER_URL, or pass --server.",
	},
	"E103": {
		Category: CategoryConfig,
		Message:  "Invalid server URL",
	},
	"E104": {
		Category: CategoryConfig,
		Message:  "Invalid duration",
		Detail:   "Timeouts and intervals must not be negative.",
	},
	"E105": {
		Category:   CategoryConfig,
		Message:    "Invalid log level",
		Suggestion: "Use one of debug, info, warn or error.",
	},
	"E106": {
		Category:   CategoryConfig,
		Message:    "Invalid log format",
		Suggestion: "Use text or json.",
	},
	"E107": {
		Category: CategoryConfig,
		Message:  "Invalid recording destination",
	},
	"E108": {
		Category: CategoryConfig,
		Message:  "Invalid size limit",
		Detail:   "Buffer sizes and queue limits must not be negative.",
	},

	// CLI (E120-E139)
	"E120": {
		Category:   CategoryCLI,
		Message:    "Missing room type",
		Suggestion: "Name the room type to join, e.g. roomsync join lobby.",
	},
	"E121": {
		Category: CategoryCLI,
		Message:  "Cannot read input file",
	},
	"E122": {
		Category:   CategoryCLI,
		Message:    "Unknown output format",
		Suggestion: "Use json or yaml.",
	},
	"E123": {
		Category:   CategoryCLI,
		Message:    "Invalid room option",
		Suggestion: "Options take the form key=value.",
	},
	"E124": {
		Category: CategoryCLI,
		Message:  "Debug listener failed",
	},

	// Matchmaking (E140-E149)
	"E140": {
		Category: CategoryMatchmaking,
		Message:  "Matchmaking request failed",
		Detail:   "The server did not return a seat reservation.",
	},
	"E141": {
		Category: CategoryMatchmaking,
		Message:  "Invalid matchmaking response",
		Detail:   "The reservation was not valid JSON or lacked roomId or sessionId.",
	},

	// Connection (E150-E159)
	"E150": {
		Category: CategoryConnection,
		Message:  "Room connection failed",
	},
	"E151": {
		Category: CategoryConnection,
		Message:  "Join rejected by server",
	},
	"E152": {
		Category:   CategoryConnection,
		Message:    "Join timed out",
		Detail:     "The server accepted the connection but never confirmed the join.",
		Suggestion: "Raise room.join_timeout or check the server logs.",
	},
	"E153": {
		Category: CategoryConnection,
		Message:  "Room closed during join",
	},
	"E154": {
		Category: CategoryConnection,
		Message:  "Token store unavailable",
	},

	// Decode (E160-E169)
	"E160": {
		Category: CategoryDecode,
		Message:  "Invalid handshake",
		Detail:   "The bytes are neither a reflection nor a legacy schema handshake.",
	},
	"E161": {
		Category:   CategoryDecode,
		Message:    "State capture needs a schema",
		Suggestion: "Pass --handshake with the handshake captured from the same room.",
	},
	"E162": {
		Category: CategoryDecode,
		Message:  "State capture invalid",
	},
}

// Codes returns every registered code in order.
func Codes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Lookup returns the template for code.
func Lookup(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds or replaces a template.
func Register(code string, t Template) {
	registry[code] = t
}
