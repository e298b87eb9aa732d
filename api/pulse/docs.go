// Package pulse registers the OpenAPI document served under /swagger/.
// Regenerate with: swag init -g internal/pulse/http/router.go -o api/pulse
package pulse

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "AussieBroadWAN Team",
            "url": "https://github.com/aussiebroadwan/pulse"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/init-table": {
            "get": {
                "tags": ["Health"],
                "summary": "Create the schema",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.StatusResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/httpx.APIError"}}
                }
            }
        },
        "/register": {
            "post": {
                "tags": ["Auth"],
                "summary": "Register a user",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"description": "new account", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.PublicUser"}},
                    "400": {"description": "invalid input", "schema": {"$ref": "#/definitions/httpx.APIError"}},
                    "409": {"description": "username or email already taken", "schema": {"$ref": "#/definitions/httpx.APIError"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/httpx.APIError"}}
                }
            }
        },
        "/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Log in",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"description": "credentials", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.LoginResponse"}},
                    "401": {"description": "invalid credentials", "schema": {"$ref": "#/definitions/httpx.APIError"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/httpx.APIError"}}
                }
            }
        },
        "/token/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Refresh tokens",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"description": "refresh token", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.RefreshRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.TokenPair"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httpx.APIError"}}
                }
            }
        },
        "/verify-token": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Auth"],
                "summary": "Verify access token",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.VerifyResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httpx.APIError"}}
                }
            }
        },
        "/password/change": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["Auth"],
                "summary": "Change password",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"description": "old and new password", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.PasswordChangeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.StatusResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httpx.APIError"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httpx.APIError"}}
                }
            }
        },
        "/logout/{userId}": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["Auth"],
                "description": "Revokes every token of the user, including the one presenting the request.\nRevocation itself is idempotent, but a repeated call with the same, now revoked, token is answered with 401.",
                "summary": "Log out everywhere",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "integer", "description": "user id", "name": "userId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.StatusResponse"}},
                    "401": {"description": "token missing, expired or already revoked", "schema": {"$ref": "#/definitions/httpx.APIError"}},
                    "403": {"description": "token belongs to another user", "schema": {"$ref": "#/definitions/httpx.APIError"}}
                }
            }
        },
        "/me": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Profile"],
                "summary": "Current user",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.PublicUser"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httpx.APIError"}}
                }
            }
        },
        "/profile/{userId}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Profile"],
                "summary": "Get profile",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "integer", "description": "user id", "name": "userId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.PublicUser"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/httpx.APIError"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httpx.APIError"}}
                }
            },
            "patch": {
                "security": [{"BearerAuth": []}],
                "tags": ["Profile"],
                "summary": "Update profile",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "integer", "description": "user id", "name": "userId", "in": "path", "required": true},
                    {"description": "any of username, email, avatarRef", "name": "body", "in": "body", "required": true, "schema": {"type": "object", "additionalProperties": {}}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.PublicUser"}},
                    "400": {"description": "disallowed or invalid field", "schema": {"$ref": "#/definitions/httpx.APIError"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/httpx.APIError"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/httpx.APIError"}}
                }
            }
        },
        "/subscription/{userId}": {
            "patch": {
                "security": [{"BearerAuth": []}],
                "tags": ["Profile"],
                "summary": "Change subscription",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "integer", "description": "user id", "name": "userId", "in": "path", "required": true},
                    {"description": "free, premium or enterprise", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.SubscriptionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.PublicUser"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httpx.APIError"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/httpx.APIError"}}
                }
            }
        },
        "/avatar/{userId}": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "PNG, JPEG, WebP or GIF, detected from the content.",
                "tags": ["Profile"],
                "summary": "Upload avatar",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "integer", "description": "user id", "name": "userId", "in": "path", "required": true},
                    {"type": "file", "description": "image", "name": "avatar", "in": "formData", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.AvatarResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httpx.APIError"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/httpx.APIError"}},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/httpx.APIError"}}
                }
            }
        },
        "/ws": {
            "get": {
                "description": "Websocket upgrade. Send the access token as a bearer header or the access_token query parameter.",
                "tags": ["Realtime"],
                "summary": "Realtime notifications",
                "parameters": [
                    {"type": "string", "description": "access token", "name": "access_token", "in": "query"}
                ],
                "responses": {
                    "101": {"description": "Switching Protocols"},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httpx.APIError"}}
                }
            }
        },
        "/livez": {
            "get": {
                "tags": ["Health"],
                "summary": "Liveness probe",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.HealthResponse"}}
                }
            }
        },
        "/readyz": {
            "get": {
                "tags": ["Health"],
                "summary": "Readiness probe",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.HealthResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/http.HealthResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.PublicUser": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "username": {"type": "string"},
                "email": {"type": "string"},
                "subscriptionType": {"type": "string", "enum": ["free", "premium", "enterprise"]},
                "avatarRef": {"type": "string"},
                "createdAt": {"type": "string"},
                "updatedAt": {"type": "string"}
            }
        },
        "domain.TokenPair": {
            "type": "object",
            "properties": {
                "accessToken": {"type": "string"},
                "refreshToken": {"type": "string"},
                "tokenType": {"type": "string"},
                "expiresIn": {"type": "integer"}
            }
        },
        "http.RegisterRequest": {
            "type": "object",
            "properties": {
                "username": {"type": "string", "example": "alice"},
                "email": {"type": "string", "example": "alice@example.com"},
                "password": {"type": "string", "example": "correct horse"}
            }
        },
        "http.LoginRequest": {
            "type": "object",
            "properties": {
                "username": {"type": "string", "example": "alice"},
                "password": {"type": "string", "example": "correct horse"}
            }
        },
        "http.LoginResponse": {
            "type": "object",
            "properties": {
                "accessToken": {"type": "string"},
                "refreshToken": {"type": "string"},
                "tokenType": {"type": "string"},
                "expiresIn": {"type": "integer"},
                "user": {"$ref": "#/definitions/domain.PublicUser"}
            }
        },
        "http.RefreshRequest": {
            "type": "object",
            "properties": {
                "refreshToken": {"type": "string"}
            }
        },
        "http.PasswordChangeRequest": {
            "type": "object",
            "properties": {
                "oldPassword": {"type": "string"},
                "newPassword": {"type": "string"}
            }
        },
        "http.SubscriptionRequest": {
            "type": "object",
            "properties": {
                "subscriptionType": {"type": "string", "example": "premium"}
            }
        },
        "http.VerifyResponse": {
            "type": "object",
            "properties": {
                "valid": {"type": "boolean"},
                "id": {"type": "integer"},
                "username": {"type": "string"},
                "email": {"type": "string"},
                "expiresAt": {"type": "string"}
            }
        },
        "http.AvatarResponse": {
            "type": "object",
            "properties": {
                "avatarRef": {"type": "string"},
                "avatarUrl": {"type": "string"},
                "user": {"$ref": "#/definitions/domain.PublicUser"}
            }
        },
        "http.StatusResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"}
            }
        },
        "http.HealthChecks": {
            "type": "object",
            "properties": {
                "database": {"type": "string"},
                "realtime": {"type": "string"}
            }
        },
        "http.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "uptime": {"type": "string"},
                "version": {"type": "string"},
                "checks": {"$ref": "#/definitions/http.HealthChecks"}
            }
        },
        "httpx.APIError": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "error_description": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "JWT access token. Format: \"Bearer {token}\".",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Pulse API",
	Description:      "Account authentication with per-user realtime notifications.\n\nAccess tokens are HS256 JWTs. Logout and password changes revoke every token issued before them.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
