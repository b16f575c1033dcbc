// Package docs provides Swagger documentation for the API.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "API Support",
            "email": "support@novasend.io"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/v1/campaigns/{id}/queue": {
            "post": {
                "tags": ["campaigns"],
                "summary": "Build the send queue for a campaign",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}
            }
        },
        "/api/v1/campaigns/{id}/start": {
            "post": {
                "tags": ["campaigns"],
                "summary": "Start a queued campaign",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}
            }
        },
        "/api/v1/campaigns/{id}/pause": {
            "post": {
                "tags": ["campaigns"],
                "summary": "Pause a running campaign",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}
            }
        },
        "/api/v1/campaigns/{id}/resume": {
            "post": {
                "tags": ["campaigns"],
                "summary": "Resume a paused campaign",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}
            }
        },
        "/api/v1/campaigns/{id}/cancel": {
            "post": {
                "tags": ["campaigns"],
                "summary": "Cancel a campaign",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}
            }
        },
        "/api/v1/campaigns/{id}/progress": {
            "get": {
                "tags": ["campaigns"],
                "summary": "Get a progress snapshot",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/api/v1/campaigns/{id}/distribution": {
            "get": {
                "tags": ["campaigns"],
                "summary": "Get the per-profile queue breakdown",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/campaigns/{id}/logs": {
            "get": {
                "tags": ["campaigns"],
                "summary": "List campaign audit logs",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "name": "limit", "in": "query"},
                    {"type": "integer", "name": "offset", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/campaigns/{id}/events": {
            "get": {
                "tags": ["campaigns"],
                "summary": "Subscribe to live campaign events",
                "produces": ["text/event-stream"],
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "SSE stream"}}
            }
        },
        "/api/v1/health": {
            "get": {
                "tags": ["health"],
                "summary": "Health check",
                "responses": {"200": {"description": "OK"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Nova Sender Backend API",
	Description:      "Campaign execution engine for profile-based mass messaging",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
