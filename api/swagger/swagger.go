package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "FGC Kenya Admissions API",
        "description": "Membership, authentication and admissions workflow for FIRST Global Team Kenya",
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
        {"name": "Authentication", "description": "Passwordless OTP login, sessions and impersonation"},
        {"name": "Users", "description": "Member accounts, roles and permissions"},
        {"name": "Applications", "description": "Admissions applications and review workflow"},
        {"name": "Cohorts", "description": "Yearly cohorts and scoped memberships"},
        {"name": "Audit", "description": "Append-only audit trail"},
        {"name": "Exports", "description": "Roster downloads"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/auth/otp/request": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Request a one-time passcode",
                "responses": {
                    "202": {"description": "Accepted"},
                    "429": {"description": "Locked or rate limited"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Complete passwordless login",
                "responses": {
                    "200": {"description": "Token pair", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid or expired code"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Rotate the refresh token",
                "responses": {
                    "200": {"description": "New token pair"},
                    "401": {"description": "Unknown or revoked session"}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Revoke the current session",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "204": {"description": "Revoked"}
                }
            }
        },
        "/auth/impersonate": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Impersonate another user",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Impersonation token pair"},
                    "403": {"description": "Not a super admin, or target not allowed"}
                }
            },
            "delete": {
                "tags": ["Authentication"],
                "summary": "End the impersonation session",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "204": {"description": "Ended"}
                }
            }
        },
        "/users": {
            "get": {
                "tags": ["Users"],
                "summary": "List users",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Paginated users", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Users"],
                "summary": "Create user",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Email already registered"}
                }
            }
        },
        "/users/{id}/role": {
            "put": {
                "tags": ["Users"],
                "summary": "Change a user's role",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Updated user"},
                    "403": {"description": "Super admin role changes are restricted"}
                }
            }
        },
        "/applications": {
            "get": {
                "tags": ["Applications"],
                "summary": "List applications",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Paginated applications"}
                }
            },
            "post": {
                "tags": ["Applications"],
                "summary": "Start a draft application",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Draft created"},
                    "409": {"description": "Already applied this season"}
                }
            }
        },
        "/applications/{id}/status": {
            "put": {
                "tags": ["Applications"],
                "summary": "Apply a review decision",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Transitioned"},
                    "409": {"description": "Concurrent modification"},
                    "422": {"description": "Invalid state"}
                }
            }
        },
        "/applications/bulk-status": {
            "put": {
                "tags": ["Applications"],
                "summary": "Apply a review decision to a batch",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Partial success report"}
                }
            }
        },
        "/cohorts": {
            "get": {
                "tags": ["Cohorts"],
                "summary": "List cohorts",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Cohorts"}
                }
            },
            "post": {
                "tags": ["Cohorts"],
                "summary": "Create cohort",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        },
        "/audit": {
            "get": {
                "tags": ["Audit"],
                "summary": "List audit entries",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Paginated audit trail"}
                }
            }
        },
        "/exports/applications": {
            "get": {
                "tags": ["Exports"],
                "summary": "Export the applications roster",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "CSV or PDF document"}
                }
            }
        }
    },
    "definitions": {
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
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
