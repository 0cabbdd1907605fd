package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "RegenWorks API",
        "description": "Waste recycling ledger: scans, batches, project allocations and per-project provenance chains",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {"name": "Auth", "description": "Authentication"},
        {"name": "Scans", "description": "Scanned item intake and batch allocation"},
        {"name": "Projects", "description": "Infrastructure projects built from recycled materials"},
        {"name": "Ledger", "description": "Per-project hash-linked provenance chain"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate and receive an access token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/scans": {
            "post": {
                "tags": ["Scans"],
                "summary": "Record a scanned waste item",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RecordScanRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/batches/{batchId}": {
            "get": {
                "tags": ["Scans"],
                "summary": "Get a batch",
                "parameters": [
                    {"name": "batchId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/batches/{batchId}/link": {
            "post": {
                "tags": ["Scans"],
                "summary": "Manually allocate a batch to a project",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "batchId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LinkBatchRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Batch already allocated"}
                }
            }
        },
        "/projects": {
            "get": {
                "tags": ["Projects"],
                "summary": "List projects",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/projects/{projectId}": {
            "get": {
                "tags": ["Projects"],
                "summary": "Get a project with its material breakdown",
                "parameters": [
                    {"name": "projectId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/projects/{projectId}/ledger": {
            "get": {
                "tags": ["Ledger"],
                "summary": "Get the project's full chain with per-block validity",
                "parameters": [
                    {"name": "projectId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Ledger"],
                "summary": "Append a ledger entry",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "projectId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AppendEntryRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Append contention"}
                }
            }
        },
        "/projects/{projectId}/ledger/verify": {
            "get": {
                "tags": ["Ledger"],
                "summary": "Verify chain integrity",
                "parameters": [
                    {"name": "projectId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/projects/{projectId}/ledger/export": {
            "get": {
                "tags": ["Ledger"],
                "summary": "Export the chain as CSV or a certificate PDF",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "projectId", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/projects/{projectId}/ledger/mirror": {
            "get": {
                "tags": ["Ledger"],
                "summary": "List the mirrored documents for a project",
                "parameters": [
                    {"name": "projectId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/me/contributions/chain": {
            "get": {
                "tags": ["Ledger"],
                "summary": "Get the caller's contributions with their provenance chains",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "RecordScanRequest": {
            "type": "object",
            "required": ["materialType"],
            "properties": {
                "materialType": {"type": "string"},
                "weightGrams": {"type": "number"}
            }
        },
        "LinkBatchRequest": {
            "type": "object",
            "required": ["projectId"],
            "properties": {
                "projectId": {"type": "string"}
            }
        },
        "AppendEntryRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {
                "status": {"type": "string"},
                "batchReference": {"type": "string"},
                "payload": {"type": "object"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "limit": {"type": "integer"},
                "totalItems": {"type": "integer"},
                "totalPages": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
