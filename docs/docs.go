// Package docs holds the swagger spec served at /docs.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/": {"get": {"tags": ["health"], "summary": "Worker information", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.WorkerInfoResponse"}}}}},
        "/health": {"get": {"tags": ["health"], "summary": "Health check", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.HealthResponse"}}}}},
        "/system/stats": {"get": {"tags": ["system"], "summary": "Get system stats", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}}},
        "/stream/connect": {"post": {
            "tags": ["stream"], "summary": "Connect to a stream", "consumes": ["application/json"], "produces": ["application/json"],
            "parameters": [{"name": "request", "in": "body", "required": true, "description": "Stream address", "schema": {"$ref": "#/definitions/handlers.ConnectRequest"}}],
            "responses": {
                "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.SessionSnapshot"}},
                "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
            }
        }},
        "/stream/demo/{id}": {"post": {
            "tags": ["stream"], "summary": "Connect to a demo camera", "produces": ["application/json"],
            "parameters": [{"name": "id", "in": "path", "required": true, "type": "string", "description": "Demo camera ID"}],
            "responses": {
                "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.SessionSnapshot"}},
                "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
            }
        }},
        "/stream/demos": {"get": {"tags": ["stream"], "summary": "List demo cameras", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.DemoStream"}}}}}},
        "/stream/disconnect": {"post": {"tags": ["stream"], "summary": "Disconnect the current stream", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/models.SessionSnapshot"}}}}},
        "/stream/status": {"get": {"tags": ["stream"], "summary": "Current session snapshot", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/models.SessionSnapshot"}}}}},
        "/stream/media-error": {"post": {
            "tags": ["stream"], "summary": "Report a playback failure seen by the browser", "consumes": ["application/json"], "produces": ["application/json"],
            "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.MediaErrorRequest"}}],
            "responses": {
                "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.SessionSnapshot"}},
                "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
            }
        }},
        "/stream/alerts": {"put": {
            "tags": ["stream"], "summary": "Enable or disable crowd alerts", "consumes": ["application/json"], "produces": ["application/json"],
            "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.AlertsRequest"}}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.AlertsResponse"}}}
        }},
        "/stream/preview.mjpeg": {"get": {"tags": ["stream"], "summary": "MJPEG preview of the latest sampled frame", "produces": ["multipart/x-mixed-replace"], "responses": {"200": {"description": "OK"}}}},
        "/events": {"get": {"tags": ["events"], "summary": "Session events as Server-Sent Events", "produces": ["text/event-stream"], "responses": {"200": {"description": "OK"}}}},
        "/ws": {"get": {"tags": ["events"], "summary": "Session events over WebSocket", "responses": {"101": {"description": "Switching Protocols"}}}},
        "/uploads": {"post": {
            "tags": ["uploads"], "summary": "Analyse an uploaded video", "consumes": ["multipart/form-data"], "produces": ["application/json"],
            "parameters": [{"name": "file", "in": "formData", "required": true, "type": "file", "description": "Video file (video/* content type)"}],
            "responses": {
                "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/models.UploadJob"}},
                "400": {"description": "Missing file or not a video", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
            }
        }},
        "/uploads/{id}": {"get": {
            "tags": ["uploads"], "summary": "Upload job progress and result", "produces": ["application/json"],
            "parameters": [{"name": "id", "in": "path", "required": true, "type": "string", "description": "Job ID"}],
            "responses": {
                "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.UploadJob"}},
                "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
            }
        }}
    },
    "definitions": {
        "handlers.ErrorResponse": {"type": "object", "properties": {"error": {"type": "string"}}},
        "handlers.HealthResponse": {"type": "object", "properties": {"status": {"type": "string"}, "worker_id": {"type": "string"}, "detector_ready": {"type": "boolean"}, "nats_connected": {"type": "boolean"}}},
        "handlers.WorkerInfoResponse": {"type": "object", "properties": {"worker_id": {"type": "string"}, "status": {"type": "string"}, "version": {"type": "string"}, "capabilities": {"type": "array", "items": {"type": "string"}}}},
        "handlers.ConnectRequest": {"type": "object", "required": ["url"], "properties": {"url": {"type": "string", "example": "192.168.1.5"}, "kind": {"type": "string", "enum": ["http", "rtsp"]}}},
        "handlers.MediaErrorRequest": {"type": "object", "required": ["transport"], "properties": {"transport": {"type": "string", "enum": ["primary", "fallback"]}, "message": {"type": "string"}}},
        "handlers.AlertsRequest": {"type": "object", "required": ["enabled"], "properties": {"enabled": {"type": "boolean"}}},
        "handlers.AlertsResponse": {"type": "object", "properties": {"alerts_enabled": {"type": "boolean"}}},
        "models.DemoStream": {"type": "object", "properties": {"id": {"type": "string"}, "name": {"type": "string"}, "url": {"type": "string"}, "kind": {"type": "string"}}},
        "models.CrowdStatus": {"type": "object", "properties": {"is_crowded": {"type": "boolean"}, "confidence": {"type": "number"}, "people_count": {"type": "integer"}, "timestamp": {"type": "string"}}},
        "models.SessionSnapshot": {"type": "object", "properties": {
            "session_id": {"type": "string"},
            "state": {"type": "object", "properties": {"phase": {"type": "string"}, "reason": {"type": "string"}}},
            "error_message": {"type": "string"},
            "transport_mode": {"type": "string"},
            "crowd_status": {"$ref": "#/definitions/models.CrowdStatus"},
            "no_signal": {"type": "boolean"},
            "alerts_enabled": {"type": "boolean"},
            "detector_ready": {"type": "boolean"}
        }},
        "models.UploadJob": {"type": "object", "properties": {
            "id": {"type": "string"},
            "file_name": {"type": "string"},
            "status": {"type": "string", "enum": ["pending", "analyzing", "done", "failed"]},
            "progress": {"type": "integer"},
            "result": {"$ref": "#/definitions/models.CrowdStatus"},
            "error": {"type": "string"},
            "created_at": {"type": "string"},
            "finished_at": {"type": "string"}
        }}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:8000",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "CrowdWatch Worker API",
	Description:      "Monitors a single video stream for crowding, analyses uploaded videos and publishes crowd alerts over NATS",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
