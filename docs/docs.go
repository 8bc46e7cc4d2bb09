// Package docs registers the OpenAPI document served under /swagger.
// Regenerate with: swag init -g cmd/slotgo/main.go
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
        "/healthz": {
            "get": {
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/ws": {
            "get": {
                "summary": "Real-time room connection (websocket)",
                "parameters": [
                    {"type": "string", "description": "access token", "name": "token", "in": "query"}
                ],
                "responses": {
                    "101": {"description": "switching protocols"},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            }
        },
        "/venues/{id}/availability": {
            "get": {
                "security": [{"BearerAuth": []}],
                "summary": "Slot availability for one venue, sport, date and area",
                "parameters": [
                    {"type": "string", "description": "Venue ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Sport", "name": "sport", "in": "query", "required": true},
                    {"type": "string", "description": "Date (YYYY-MM-DD)", "name": "date", "in": "query", "required": true},
                    {"type": "integer", "description": "Playable area", "name": "playableArea", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/availability.Result"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            }
        },
        "/slots/lock": {
            "post": {
                "security": [{"BearerAuth": []}],
                "summary": "Hold one slot for the caller's session (idempotent)",
                "parameters": [
                    {"description": "payload", "name": "req", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httpgin.SlotRequest"}},
                    {"type": "string", "description": "client retry key", "name": "Idempotency-Key", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httpgin.LockSlotResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}},
                    "409": {"description": "slot booked or held by another session", "schema": {"$ref": "#/definitions/httpgin.LockSlotResponse"}},
                    "429": {"description": "rate limited", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            }
        },
        "/slots/release": {
            "post": {
                "security": [{"BearerAuth": []}],
                "summary": "Release one slot held by the caller's session",
                "parameters": [
                    {"description": "payload", "name": "req", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httpgin.SlotRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/lock.ReleaseResult"}}
                }
            }
        },
        "/slots/release-session": {
            "post": {
                "security": [{"BearerAuth": []}],
                "summary": "Release every slot of the caller's session hold",
                "parameters": [
                    {"description": "payload", "name": "req", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httpgin.ReleaseSessionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/lock.ReleaseResult"}}
                }
            }
        },
        "/slots/reserve-range": {
            "post": {
                "security": [{"BearerAuth": []}],
                "summary": "Hold every free slot of an area across several dates",
                "parameters": [
                    {"description": "payload", "name": "req", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httpgin.ReserveRangeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/lock.RangeResult"}},
                    "409": {"description": "nothing reservable", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            }
        },
        "/payments/confirm": {
            "post": {
                "security": [{"BearerAuth": []}],
                "summary": "Confirm payment for the caller's session hold (idempotent)",
                "parameters": [
                    {"description": "payload", "name": "req", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httpgin.ConfirmPaymentRequest"}},
                    {"type": "string", "description": "client retry key", "name": "Idempotency-Key", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/payment.ConfirmResult"}},
                    "404": {"description": "no hold for session", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}},
                    "410": {"description": "hold expired", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            }
        },
        "/admin/venues": {
            "post": {
                "security": [{"BearerAuth": []}],
                "summary": "Seed a venue schedule",
                "parameters": [
                    {"description": "payload", "name": "req", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httpgin.CreateVenueRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/httpgin.CreateVenueResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            }
        },
        "/admin/holds/reap": {
            "post": {
                "security": [{"BearerAuth": []}],
                "summary": "Reclaim expired holds now",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/reaper.SweepResult"}}}
            }
        },
        "/admin/realtime/stats": {
            "get": {
                "security": [{"BearerAuth": []}],
                "summary": "Real-time connection and room counters of this node",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/hub.Stats"}}}
            }
        },
        "/admin/realtime/venues/{venueId}/users": {
            "get": {
                "security": [{"BearerAuth": []}],
                "summary": "Users connected to any room of a venue",
                "parameters": [
                    {"type": "string", "description": "Venue ID", "name": "venueId", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/hub.UserPresence"}}}}
            }
        },
        "/admin/realtime/users/{userId}/connected": {
            "get": {
                "security": [{"BearerAuth": []}],
                "summary": "Whether a user has a live connection on this node",
                "parameters": [
                    {"type": "string", "description": "User ID", "name": "userId", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/httpgin.ConnectedResponse"}}}
            }
        },
        "/admin/realtime/venues/{venueId}/refresh": {
            "post": {
                "security": [{"BearerAuth": []}],
                "summary": "Push fresh availability to every room of a venue",
                "parameters": [
                    {"type": "string", "description": "Venue ID", "name": "venueId", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/httpgin.ReachedResponse"}}}
            }
        },
        "/admin/realtime/venues/{venueId}/broadcast": {
            "post": {
                "security": [{"BearerAuth": []}],
                "summary": "Send an event to every room of a venue",
                "parameters": [
                    {"type": "string", "description": "Venue ID", "name": "venueId", "in": "path", "required": true},
                    {"description": "payload", "name": "req", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httpgin.BroadcastRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/httpgin.ReachedResponse"}}}
            }
        }
    },
    "definitions": {
        "domain.TimeSlot": {
            "type": "object",
            "properties": {
                "startTime": {"type": "string"},
                "endTime": {"type": "string"},
                "playableArea": {"type": "integer"}
            }
        },
        "domain.ScheduledDate": {
            "type": "object",
            "properties": {
                "date": {"type": "string"},
                "slots": {"type": "array", "items": {"$ref": "#/definitions/domain.TimeSlot"}}
            }
        },
        "domain.DaySchedule": {
            "type": "object",
            "properties": {
                "open": {"type": "boolean"},
                "openTime": {"type": "string"},
                "closeTime": {"type": "string"}
            }
        },
        "availability.Result": {
            "type": "object",
            "properties": {
                "venueId": {"type": "string"},
                "sport": {"type": "string"},
                "date": {"type": "string"},
                "playableArea": {"type": "integer"},
                "available": {"type": "array", "items": {"$ref": "#/definitions/domain.TimeSlot"}},
                "booked": {"type": "array", "items": {"type": "object"}},
                "held": {"type": "array", "items": {"type": "object"}},
                "heldByYou": {"type": "array", "items": {"type": "object"}},
                "totalSlots": {"type": "integer"},
                "isToday": {"type": "boolean"},
                "cutoffMessage": {"type": "string"},
                "closed": {"type": "boolean"},
                "reason": {"type": "string"}
            }
        },
        "httpgin.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}}
        },
        "httpgin.SlotRequest": {
            "type": "object",
            "required": ["venueId", "sport", "date", "startTime", "endTime", "playableArea", "sessionId"],
            "properties": {
                "venueId": {"type": "string"},
                "sport": {"type": "string"},
                "date": {"type": "string"},
                "startTime": {"type": "string"},
                "endTime": {"type": "string"},
                "playableArea": {"type": "integer"},
                "sessionId": {"type": "string"}
            }
        },
        "httpgin.ReleaseSessionRequest": {
            "type": "object",
            "required": ["venueId", "sport", "sessionId"],
            "properties": {
                "venueId": {"type": "string"},
                "sport": {"type": "string"},
                "sessionId": {"type": "string"}
            }
        },
        "httpgin.ReserveRangeRequest": {
            "type": "object",
            "required": ["venueId", "sport", "dates", "playableArea", "sessionId"],
            "properties": {
                "venueId": {"type": "string"},
                "sport": {"type": "string"},
                "dates": {"type": "array", "items": {"type": "string"}},
                "playableArea": {"type": "integer"},
                "sessionId": {"type": "string"}
            }
        },
        "httpgin.ConfirmPaymentRequest": {
            "type": "object",
            "required": ["venueId", "sport", "sessionId"],
            "properties": {
                "venueId": {"type": "string"},
                "sport": {"type": "string"},
                "sessionId": {"type": "string"},
                "paymentRef": {"type": "string"},
                "baseAmount": {"type": "string"},
                "fees": {"type": "string"},
                "totalAmount": {"type": "string"}
            }
        },
        "httpgin.CreateVenueRequest": {
            "type": "object",
            "required": ["id", "schedule"],
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "schedule": {"type": "object", "additionalProperties": {"$ref": "#/definitions/domain.DaySchedule"}},
                "sports": {"type": "array", "items": {"type": "string"}}
            }
        },
        "httpgin.BroadcastRequest": {
            "type": "object",
            "required": ["event"],
            "properties": {
                "event": {"type": "string"},
                "payload": {"type": "object"}
            }
        },
        "httpgin.LockSlotResponse": {
            "type": "object",
            "properties": {
                "locked": {"type": "boolean"},
                "bookingId": {"type": "string"},
                "scheduledDates": {"type": "array", "items": {"$ref": "#/definitions/domain.ScheduledDate"}},
                "lockedUntil": {"type": "string"},
                "conflicts": {"type": "array", "items": {"type": "object"}}
            }
        },
        "httpgin.CreateVenueResponse": {
            "type": "object",
            "properties": {"venueId": {"type": "string"}}
        },
        "httpgin.ConnectedResponse": {
            "type": "object",
            "properties": {"userId": {"type": "string"}, "connected": {"type": "boolean"}}
        },
        "httpgin.ReachedResponse": {
            "type": "object",
            "properties": {"venueId": {"type": "string"}, "reached": {"type": "integer"}}
        },
        "lock.ReleaseResult": {
            "type": "object",
            "properties": {
                "found": {"type": "boolean"},
                "bookingId": {"type": "string"},
                "bookingDeleted": {"type": "boolean"}
            }
        },
        "lock.RangeResult": {
            "type": "object",
            "properties": {
                "bookingId": {"type": "string"},
                "reserved": {"type": "array", "items": {"$ref": "#/definitions/domain.ScheduledDate"}},
                "skippedDates": {"type": "array", "items": {"type": "object"}},
                "skippedSlots": {"type": "array", "items": {"type": "object"}},
                "lockedUntil": {"type": "string"}
            }
        },
        "payment.ConfirmResult": {
            "type": "object",
            "properties": {
                "booking": {"type": "object"},
                "alreadyConfirmed": {"type": "boolean"}
            }
        },
        "reaper.SweepResult": {
            "type": "object",
            "properties": {"reclaimed": {"type": "integer"}, "failed": {"type": "integer"}}
        },
        "hub.Stats": {
            "type": "object",
            "properties": {
                "nodeId": {"type": "string"},
                "connections": {"type": "integer"},
                "users": {"type": "integer"},
                "rooms": {"type": "integer"},
                "selections": {"type": "integer"},
                "roomSizes": {"type": "object", "additionalProperties": {"type": "integer"}}
            }
        },
        "hub.UserPresence": {
            "type": "object",
            "properties": {
                "userId": {"type": "string"},
                "name": {"type": "string"},
                "connections": {"type": "integer"},
                "rooms": {"type": "array", "items": {"type": "object"}}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "SlotGo API",
	Description:      "Venue slot holds, conflict detection and real-time availability.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
