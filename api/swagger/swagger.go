package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Duet Scheduling API",
        "description": "Availability scheduling and booking service",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Authentication"},
        {"name": "Slots", "description": "Availability slot lifecycle"},
        {"name": "Bookings", "description": "Booking state machine"},
        {"name": "Scheduling", "description": "Bulk creation, conflict probes and partner search"},
        {"name": "Exports", "description": "Schedule downloads"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate and obtain an access token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Exchange a valid access token for a fresh one",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid or expired token"}
                }
            }
        },
        "/slots": {
            "get": {
                "tags": ["Slots"],
                "summary": "List the caller's upcoming slots",
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "tags": ["Slots"],
                "summary": "Create an availability slot",
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Time range overlaps an existing slot"}
                }
            }
        },
        "/slots/{id}": {
            "get": {
                "tags": ["Slots"],
                "summary": "Get one of the caller's slots",
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}
            },
            "patch": {
                "tags": ["Slots"],
                "summary": "Update an availability slot",
                "responses": {
                    "200": {"description": "OK"},
                    "422": {"description": "Schedule fields locked while slot is booked"}
                }
            },
            "delete": {
                "tags": ["Slots"],
                "summary": "Soft delete an availability slot",
                "responses": {
                    "204": {"description": "Deleted"},
                    "422": {"description": "Slot has an active booking"}
                }
            }
        },
        "/slots/{id}/cancel": {
            "post": {
                "tags": ["Slots"],
                "summary": "Cancel an availability slot",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/slots/{id}/bookings": {
            "get": {
                "tags": ["Bookings"],
                "summary": "List the booking history of one of the caller's slots",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/slots/recurring": {
            "post": {
                "tags": ["Slots"],
                "summary": "Expand a slot into weekly repetitions",
                "responses": {"200": {"description": "Per-attempt generation report"}}
            }
        },
        "/slots/{id}/recurring/cancel": {
            "post": {
                "tags": ["Slots"],
                "summary": "Cancel all active children of a recurring slot",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/slots/bulk": {
            "post": {
                "tags": ["Scheduling"],
                "summary": "Create several slots in one call",
                "responses": {"200": {"description": "Per-slot creation summary"}}
            }
        },
        "/slots/check-conflicts": {
            "post": {
                "tags": ["Scheduling"],
                "summary": "Probe a time range for conflicts",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/search/available": {
            "post": {
                "tags": ["Scheduling"],
                "summary": "Search users with open availability",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/bookings": {
            "get": {
                "tags": ["Bookings"],
                "summary": "List the caller's bookings",
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "tags": ["Bookings"],
                "summary": "Book an availability slot",
                "responses": {
                    "201": {"description": "Created"},
                    "422": {"description": "Slot not bookable"}
                }
            }
        },
        "/bookings/{id}/confirm": {
            "post": {
                "tags": ["Bookings"],
                "summary": "Confirm a pending booking",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/bookings/{id}/cancel": {
            "post": {
                "tags": ["Bookings"],
                "summary": "Cancel an active booking",
                "responses": {
                    "200": {"description": "OK"},
                    "422": {"description": "Cancellation window elapsed"}
                }
            }
        },
        "/bookings/{id}/complete": {
            "post": {
                "tags": ["Bookings"],
                "summary": "Mark a confirmed booking as completed",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/exports/schedule": {
            "get": {
                "tags": ["Exports"],
                "summary": "Export the caller's schedule as CSV or PDF",
                "responses": {"200": {"description": "File download"}}
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
