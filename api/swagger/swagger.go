package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "StudyFlow Audit API",
        "description": "Degree requirement resolution service for the StudyFlow scheduler",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Audits", "description": "Degree audit runs, caching and exports"},
        {"name": "Catalog", "description": "Degree programs and requirement definitions"}
    ],
    "paths": {
        "/audits/run": {
            "post": {
                "tags": ["Audits"],
                "summary": "Run a degree audit",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RunAuditRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Enrollment or program could not be resolved"}
                }
            }
        },
        "/audits/cached": {
            "get": {
                "tags": ["Audits"],
                "summary": "Get the last cached audit",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "enrollmentId", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No cached audit"}
                }
            }
        },
        "/audits/what-if": {
            "post": {
                "tags": ["Audits"],
                "summary": "Run a hypothetical audit",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/WhatIfRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audits/cache": {
            "delete": {
                "tags": ["Audits"],
                "summary": "Invalidate the cached audit",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "enrollmentId", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audits/progress": {
            "get": {
                "tags": ["Audits"],
                "summary": "Get a quick progress summary",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audits/export": {
            "get": {
                "tags": ["Audits"],
                "summary": "Export the audit as CSV or PDF",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]},
                    {"name": "enrollmentId", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Document bytes"}
                }
            }
        },
        "/programs": {
            "get": {
                "tags": ["Catalog"],
                "summary": "List degree programs",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/programs/{id}": {
            "get": {
                "tags": ["Catalog"],
                "summary": "Get a program with its requirements",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Program not found"}
                }
            }
        },
        "/enrollments": {
            "get": {
                "tags": ["Catalog"],
                "summary": "List the caller's program enrollments",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "RunAuditRequest": {
            "type": "object",
            "properties": {
                "enrollment_id": {"type": "string"},
                "force_refresh": {"type": "boolean"}
            }
        },
        "WhatIfRequest": {
            "type": "object",
            "properties": {
                "enrollment_id": {"type": "string"},
                "courses": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/HypotheticalCourse"}
                }
            },
            "required": ["courses"]
        },
        "HypotheticalCourse": {
            "type": "object",
            "properties": {
                "course_code": {"type": "string"},
                "grade": {"type": "string"},
                "credit_hours": {"type": "number"}
            },
            "required": ["course_code"]
        },
        "DegreeAuditResult": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "enrollment_id": {"type": "string"},
                "program_id": {"type": "string"},
                "program_name": {"type": "string"},
                "degree_type": {"type": "string"},
                "status": {"type": "string"},
                "progress_percent": {"type": "number"},
                "total_hours_required": {"type": "number"},
                "total_hours_earned": {"type": "number"},
                "cumulative_gpa": {"type": "number"},
                "requirements": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/RequirementResult"}
                },
                "recommended_courses": {
                    "type": "array",
                    "items": {"type": "string"}
                },
                "computed_at": {"type": "string"},
                "from_cache": {"type": "boolean"}
            }
        },
        "RequirementResult": {
            "type": "object",
            "properties": {
                "requirement_id": {"type": "string"},
                "name": {"type": "string"},
                "category": {"type": "string"},
                "status": {"type": "string"},
                "hours_required": {"type": "number"},
                "hours_satisfied": {"type": "number"},
                "courses_required": {"type": "integer"},
                "courses_satisfied": {"type": "integer"},
                "gpa_required": {"type": "number"},
                "gpa_achieved": {"type": "number"},
                "applied_courses": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/CourseApplication"}
                },
                "remaining_courses": {
                    "type": "array",
                    "items": {"type": "string"}
                }
            }
        },
        "CourseApplication": {
            "type": "object",
            "properties": {
                "course_code": {"type": "string"},
                "grade": {"type": "string"},
                "credit_hours": {"type": "number"},
                "is_passing": {"type": "boolean"}
            }
        },
        "QuickProgress": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "program_id": {"type": "string"},
                "program_name": {"type": "string"},
                "hours_earned": {"type": "number"},
                "gpa": {"type": "number"},
                "progress_percent": {"type": "number"}
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
