// Package docs registers the OpenAPI description served under /docs.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {"name": "Event Importer"},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/providers": {
            "get": {
                "tags": ["import"],
                "summary": "Configured providers",
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/import/{provider}": {
            "post": {
                "tags": ["import"],
                "summary": "Start an import run",
                "description": "Starts an interactive run over every configured key of the provider. Only one interactive run may be active at a time.",
                "produces": ["application/json"],
                "parameters": [{
                    "type": "string",
                    "enum": ["cbis", "xcap", "transticket", "arcgis"],
                    "name": "provider",
                    "in": "path",
                    "required": true
                }],
                "responses": {
                    "202": {"description": "Accepted"},
                    "404": {"description": "Unknown provider", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}},
                    "409": {"description": "Run in progress", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}},
                    "422": {"description": "Provider not configured", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            }
        },
        "/import/runs/{runID}": {
            "get": {
                "tags": ["import"],
                "summary": "Get an import run",
                "produces": ["application/json"],
                "parameters": [{"type": "string", "name": "runID", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/runs.Snapshot"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            },
            "delete": {
                "tags": ["import"],
                "summary": "Cancel an import run",
                "produces": ["application/json"],
                "parameters": [{"type": "string", "name": "runID", "in": "path", "required": true}],
                "responses": {
                    "202": {"description": "Accepted"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}},
                    "409": {"description": "Already finished", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            }
        },
        "/actions/{action}": {
            "post": {
                "tags": ["import"],
                "summary": "Run an administrator action",
                "produces": ["application/json"],
                "parameters": [{
                    "type": "string",
                    "enum": ["import_cbis", "import_xcap", "import_transticket", "import_arcgis", "collect_occasions"],
                    "name": "action",
                    "in": "path",
                    "required": true
                }],
                "responses": {
                    "200": {"description": "Occasion counts", "schema": {"$ref": "#/definitions/occasion.Counts"}},
                    "202": {"description": "Import started"},
                    "404": {"description": "Unknown action", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}},
                    "409": {"description": "Run in progress", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            }
        },
        "/occasions/summary": {
            "get": {
                "tags": ["occasions"],
                "summary": "Occasion summary",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/occasion.Counts"}},
                    "304": {"description": "Not modified"}
                }
            }
        }
    },
    "definitions": {
        "respond.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "object",
                    "properties": {
                        "code": {"type": "string"},
                        "message": {"type": "string"},
                        "detail": {"type": "string"}
                    }
                }
            }
        },
        "occasion.Counts": {
            "type": "object",
            "properties": {
                "total": {"type": "integer"},
                "upcoming": {"type": "integer"},
                "expired": {"type": "integer"},
                "events": {"type": "integer"}
            }
        },
        "importer.Counters": {
            "type": "object",
            "properties": {
                "events": {"type": "integer"},
                "locations": {"type": "integer"},
                "contacts": {"type": "integer"}
            }
        },
        "runs.Snapshot": {
            "type": "object",
            "properties": {
                "run_id": {"type": "string"},
                "provider": {"type": "string"},
                "key_index": {"type": "integer"},
                "key_count": {"type": "integer"},
                "state": {"type": "string", "enum": ["running", "done", "cancelled", "failed"]},
                "counters": {"$ref": "#/definitions/importer.Counters"},
                "reused": {"$ref": "#/definitions/importer.Counters"},
                "skipped": {"type": "integer"},
                "failures": {"type": "array", "items": {"type": "string"}},
                "warnings": {"type": "array", "items": {"type": "string"}},
                "started_at": {"type": "string", "format": "date-time"},
                "finished_at": {"type": "string", "format": "date-time"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:8000",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Event Importer API",
	Description:      "Imports events, locations and contacts from CBIS, XCAP, TransTicket and ArcGIS, reconciles them against stored records and manages their occasions.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
