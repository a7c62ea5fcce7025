package oie

import "github.com/DUROUXG/MCP-OIE/dataset"

// ConnectorSpec describes how to pull one kind of data from the upstream
// integration platform: which connector route to call, the API path, where
// the item array sits in the response, and which field identifies items.
type ConnectorSpec struct {
	Kind          string
	Connector     string
	Path          string
	ResultPath    string // dot-notation into the response JSON, "" = whole body
	IdentityField string
	ScopeParam    string // query parameter carrying the scope ID, "" = none
}

// connectorSpecs maps dataset kinds to their upstream connectors.
var connectorSpecs = map[string]ConnectorSpec{
	dataset.KindMessages: {
		Kind:          dataset.KindMessages,
		Connector:     "messages",
		Path:          "messages",
		ResultPath:    "documents",
		IdentityField: "id",
		ScopeParam:    "status",
	},
	dataset.KindLogEntries: {
		Kind:          dataset.KindLogEntries,
		Connector:     "log-entries",
		Path:          "log-entries",
		ResultPath:    "resource",
		IdentityField: "id",
		ScopeParam:    "workerGroupId",
	},
	dataset.KindConnectionLogs: {
		Kind:          dataset.KindConnectionLogs,
		Connector:     "connection-logs",
		Path:          "connection-logs",
		ResultPath:    "resource",
		IdentityField: "id",
		ScopeParam:    "connectionId",
	},
	dataset.KindEvents: {
		Kind:          dataset.KindEvents,
		Connector:     "events",
		Path:          "events",
		ResultPath:    "resource",
		IdentityField: "id",
		ScopeParam:    "environmentId",
	},
}

// SpecForKind returns the connector spec for a dataset kind.
func SpecForKind(kind string) (ConnectorSpec, bool) {
	spec, ok := connectorSpecs[kind]
	return spec, ok
}
