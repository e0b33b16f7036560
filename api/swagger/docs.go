// Package swagger registers the OpenAPI description of the HTTP API with swag.
// Regenerate from the handler annotations with: swag init -g cmd/api/main.go -o api/swagger
package swagger

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
        "/api/approvals/{token}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["approvals"],
                "summary": "Preview approval link",
                "parameters": [
                    {"type": "string", "description": "Approval token", "name": "token", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.Response"}},
                    "410": {"description": "Gone", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/approvals/{token}/approve": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["approvals"],
                "summary": "Approve via link",
                "parameters": [
                    {"type": "string", "description": "Approval token", "name": "token", "in": "path", "required": true},
                    {"description": "Optional subset of selected products", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/service.ApproveRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}},
                    "410": {"description": "Gone", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/approvals/{token}/reject": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["approvals"],
                "summary": "Reject via link",
                "parameters": [
                    {"type": "string", "description": "Approval token", "name": "token", "in": "path", "required": true},
                    {"description": "Rejection reason", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/service.RejectRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}},
                    "410": {"description": "Gone", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/rules": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["rules"],
                "summary": "List auto-gift rules",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["rules"],
                "summary": "Create auto-gift rule",
                "parameters": [
                    {"description": "Rule", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/service.RuleRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/response.Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/rules/{id}/deactivate": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["rules"],
                "summary": "Deactivate rule",
                "parameters": [
                    {"type": "string", "description": "Rule ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/executions": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["executions"],
                "summary": "List executions",
                "parameters": [
                    {"type": "string", "description": "Filter by status", "name": "status", "in": "query"},
                    {"type": "integer", "description": "Page number (default 1)", "name": "page", "in": "query"},
                    {"type": "integer", "description": "Number of items per page (default 20)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/executions/retrigger": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["executions"],
                "summary": "Retrigger occurrence",
                "parameters": [
                    {"description": "Rule and occurrence date", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/service.RetriggerRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/response.Response"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/executions/{id}/approve": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["executions"],
                "summary": "Approve in app",
                "parameters": [
                    {"type": "string", "description": "Execution ID", "name": "id", "in": "path", "required": true},
                    {"description": "Optional subset of selected products", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/service.ApproveRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/admin/audit-logs": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["audit"],
                "summary": "Get audit logs",
                "parameters": [
                    {"type": "integer", "description": "Page number (default 1)", "name": "page", "in": "query"},
                    {"type": "integer", "description": "Number of items per page (default 20)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/admin/jobs/{name}/run": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Run pipeline stage now",
                "parameters": [
                    {"type": "string", "description": "Job name", "name": "name", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.Response"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        }
    },
    "definitions": {
        "response.Response": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "status_code": {"type": "integer"},
                "data": {},
                "error": {"type": "string"},
                "meta": {"$ref": "#/definitions/response.Meta"}
            }
        },
        "response.Meta": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "limit": {"type": "integer"},
                "total": {"type": "integer"},
                "total_pages": {"type": "integer"}
            }
        },
        "service.ApproveRequest": {
            "type": "object",
            "properties": {
                "product_ids": {"type": "array", "items": {"type": "string"}}
            }
        },
        "service.RejectRequest": {
            "type": "object",
            "required": ["reason"],
            "properties": {
                "reason": {"type": "string"}
            }
        },
        "service.RetriggerRequest": {
            "type": "object",
            "required": ["rule_id", "execution_date"],
            "properties": {
                "rule_id": {"type": "string"},
                "execution_date": {"type": "string", "example": "2026-12-25"}
            }
        },
        "service.RuleRequest": {
            "type": "object",
            "required": ["event_id"],
            "properties": {
                "event_id": {"type": "string"},
                "budget_limit": {"type": "string", "example": "50.00"},
                "payment_method_id": {"type": "string"},
                "requires_approval": {"type": "boolean"},
                "notification_days": {"type": "array", "items": {"type": "integer"}},
                "criteria": {"type": "object"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Giftflow API",
	Description:      "Auto-gift rules, executions, approval links and Trunkline operations.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
