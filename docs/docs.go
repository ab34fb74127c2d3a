// Package docs registers the OpenAPI description served at /swagger when
// SWAGGER_ENABLED is set. Regenerate with:
//
//	swag init -g cmd/server/main.go -o docs
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
    "/admin/events/{id}/status": {
        "post": {
            "tags": ["Admin"],
            "summary": "Move an event along its lifecycle",
            "operationId": "setEventStatus",
            "produces": ["application/json"],
            "responses": {
                "default": {
                    "description": "See ErrorResponse for failures",
                    "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                }
            }
        }
    },
    "/admin/leaderboard/generate": {
        "post": {
            "tags": ["Admin"],
            "summary": "Generate a leaderboard snapshot",
            "operationId": "generateSnapshot",
            "produces": ["application/json"],
            "responses": {
                "default": {
                    "description": "See ErrorResponse for failures",
                    "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                }
            }
        }
    },
    "/admin/quests": {
        "post": {
            "tags": ["Admin"],
            "summary": "Create a quest",
            "operationId": "createQuest",
            "produces": ["application/json"],
            "responses": {
                "default": {
                    "description": "See ErrorResponse for failures",
                    "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                }
            }
        }
    },
    "/admin/quests/{id}": {
        "put": {
            "tags": ["Admin"],
            "summary": "Replace a quest definition",
            "operationId": "updateQuest",
            "produces": ["application/json"],
            "responses": {
                "default": {
                    "description": "See ErrorResponse for failures",
                    "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                }
            }
        }
    },
    "/admin/referrals/{id}/override": {
        "post": {
            "tags": ["Admin"],
            "summary": "Approve or reject a referral",
            "operationId": "overrideReferral",
            "produces": ["application/json"],
            "responses": {
                "default": {
                    "description": "See ErrorResponse for failures",
                    "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                }
            }
        }
    },
    "/admin/users/{id}/active": {
        "put": {
            "tags": ["Admin"],
            "summary": "Set leaderboard eligibility",
            "operationId": "setUserActive",
            "produces": ["application/json"],
            "responses": {
                "default": {
                    "description": "See ErrorResponse for failures",
                    "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                }
            }
        }
    },
    "/admin/xp/rules/{eventType}": {
        "put": {
            "tags": ["Admin"],
            "summary": "Create or replace an XP rule",
            "operationId": "upsertXPRule",
            "produces": ["application/json"],
            "responses": {
                "default": {
                    "description": "See ErrorResponse for failures",
                    "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                }
            }
        }
    },
    "/events": {
        "post": {
            "tags": ["Events"],
            "summary": "Submit an activity event",
            "operationId": "submitEvent",
            "produces": ["application/json"],
            "responses": {
                "default": {
                    "description": "See ErrorResponse for failures",
                    "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                }
            }
        }
    },
    "/events/me": {
        "get": {
            "tags": ["Events"],
            "summary": "List own events",
            "operationId": "listMyEvents",
            "produces": ["application/json"],
            "responses": {
                "default": {
                    "description": "See ErrorResponse for failures",
                    "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                }
            }
        }
    },
    "/leaderboard": {
        "get": {
            "tags": ["Leaderboard"],
            "summary": "Leaderboard page",
            "operationId": "getLeaderboard",
            "produces": ["application/json"],
            "responses": {
                "default": {
                    "description": "See ErrorResponse for failures",
                    "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                }
            }
        }
    },
    "/leaderboard/me": {
        "get": {
            "tags": ["Leaderboard"],
            "summary": "Own rank",
            "operationId": "getMyRank",
            "produces": ["application/json"],
            "responses": {
                "default": {
                    "description": "See ErrorResponse for failures",
                    "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                }
            }
        }
    },
    "/leaderboard/snapshot/latest": {
        "get": {
            "tags": ["Leaderboard"],
            "summary": "Latest snapshot metadata",
            "operationId": "getLatestSnapshot",
            "produces": ["application/json"],
            "responses": {
                "default": {
                    "description": "See ErrorResponse for failures",
                    "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                }
            }
        }
    },
    "/quests": {
        "get": {
            "tags": ["Quests"],
            "summary": "Quests with progress",
            "operationId": "listQuests",
            "produces": ["application/json"],
            "responses": {
                "default": {
                    "description": "See ErrorResponse for failures",
                    "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                }
            }
        }
    },
    "/quests/claim": {
        "post": {
            "tags": ["Quests"],
            "summary": "Claim a quest reward",
            "operationId": "claimQuest",
            "produces": ["application/json"],
            "responses": {
                "default": {
                    "description": "See ErrorResponse for failures",
                    "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                }
            }
        }
    },
    "/quests/history": {
        "get": {
            "tags": ["Quests"],
            "summary": "Claimed quests",
            "operationId": "questHistory",
            "produces": ["application/json"],
            "responses": {
                "default": {
                    "description": "See ErrorResponse for failures",
                    "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                }
            }
        }
    },
    "/quests/today": {
        "get": {
            "tags": ["Quests"],
            "summary": "Today's quests",
            "operationId": "listTodayQuests",
            "produces": ["application/json"],
            "responses": {
                "default": {
                    "description": "See ErrorResponse for failures",
                    "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                }
            }
        }
    },
    "/referral/history": {
        "get": {
            "tags": ["Referrals"],
            "summary": "Own referrals",
            "operationId": "referralHistory",
            "produces": ["application/json"],
            "responses": {
                "default": {
                    "description": "See ErrorResponse for failures",
                    "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                }
            }
        }
    },
    "/referral/me": {
        "get": {
            "tags": ["Referrals"],
            "summary": "Own referral stats",
            "operationId": "myReferrals",
            "produces": ["application/json"],
            "responses": {
                "default": {
                    "description": "See ErrorResponse for failures",
                    "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                }
            }
        }
    },
    "/referral/track": {
        "post": {
            "tags": ["Referrals"],
            "summary": "Use a referral code",
            "operationId": "trackReferral",
            "produces": ["application/json"],
            "responses": {
                "default": {
                    "description": "See ErrorResponse for failures",
                    "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                }
            }
        }
    },
    "/referral/verify/{code}": {
        "get": {
            "tags": ["Referrals"],
            "summary": "Check a referral code",
            "operationId": "verifyReferralCode",
            "produces": ["application/json"],
            "responses": {
                "default": {
                    "description": "See ErrorResponse for failures",
                    "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                }
            }
        }
    },
    "/xp/ledger": {
        "get": {
            "tags": ["XP"],
            "summary": "XP ledger",
            "operationId": "getMyLedger",
            "produces": ["application/json"],
            "responses": {
                "default": {
                    "description": "See ErrorResponse for failures",
                    "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                }
            }
        }
    },
    "/xp/me": {
        "get": {
            "tags": ["XP"],
            "summary": "XP summary",
            "operationId": "getMyXP",
            "produces": ["application/json"],
            "responses": {
                "default": {
                    "description": "See ErrorResponse for failures",
                    "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                }
            }
        }
    },
    "/xp/rules": {
        "get": {
            "tags": ["XP"],
            "summary": "Active XP rules",
            "operationId": "listXPRules",
            "produces": ["application/json"],
            "responses": {
                "default": {
                    "description": "See ErrorResponse for failures",
                    "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}
                }
            }
        }
    }
    },
    "definitions": {
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string", "example": "9b2f7c1e-3a55-4c1c-9d77-0b1f6a2e0c1d"},
                "code": {"type": "string", "example": "not_found"},
                "message": {"type": "string", "example": "quest not found"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "XP Backend API",
	Description:      "Event ingestion, XP ledger, quests, referrals and leaderboard snapshots.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
