// Package docs holds the OpenAPI document of the fee ledger API, served by
// gin-swagger under /swagger. Regenerate it with
// swag init -g cmd/server/main.go after changing handler annotations.
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
        "/bills": {
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "Creates a bill for a student from the selected fee structures of one academic year.\nSend an Idempotency-Key header to make retries safe.",
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "bills"
                ],
                "summary": "Generate a bill",
                "operationId": "generateBill",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Client key; a repeat replays the first response",
                        "name": "Idempotency-Key",
                        "in": "header"
                    },
                    {
                        "description": "Bill generation request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/handler.GenerateBillRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/handler.APIResponse-fees_BillResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "503": {
                        "description": "Service Unavailable",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    }
                }
            },
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "List bills",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "bills"
                ],
                "summary": "List bills",
                "operationId": "listBills",
                "parameters": [
                    {
                        "type": "integer",
                        "default": 1,
                        "description": "Page number",
                        "name": "page",
                        "in": "query"
                    },
                    {
                        "type": "integer",
                        "default": 20,
                        "maximum": 200,
                        "description": "Items per page",
                        "name": "page_size",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "enum": [
                            "created_at",
                            "issued_date",
                            "bill_number",
                            "total_amount",
                            "balance",
                            "status"
                        ],
                        "description": "Sort key",
                        "name": "order_by",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "enum": [
                            "asc",
                            "desc"
                        ],
                        "description": "Sort direction",
                        "name": "order_dir",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "Bill number contains",
                        "name": "search",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "format": "uuid",
                        "description": "Student ID",
                        "name": "student_id",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "format": "uuid",
                        "description": "Academic year ID",
                        "name": "academic_year_id",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "enum": [
                            "unpaid",
                            "partial",
                            "paid"
                        ],
                        "description": "Payment status",
                        "name": "status",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handler.APIResponse-array_fees_BillResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/bills/{id}": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "Returns a bill with its line items and current balance",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "bills"
                ],
                "summary": "Get a bill",
                "operationId": "getBill",
                "parameters": [
                    {
                        "type": "string",
                        "format": "uuid",
                        "description": "Bill ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handler.APIResponse-fees_BillResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/bills/{id}/payments": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "Every payment recorded against the bill, oldest first",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "bills"
                ],
                "summary": "List the payments of a bill",
                "operationId": "listBillPayments",
                "parameters": [
                    {
                        "type": "string",
                        "format": "uuid",
                        "description": "Bill ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handler.APIResponse-array_fees_PaymentResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/fee-structures": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "Lists the fee lines priced for a grade in an academic year, with category names",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "fee-structures"
                ],
                "summary": "Look up the fee catalog",
                "operationId": "lookupFeeStructures",
                "parameters": [
                    {
                        "type": "string",
                        "format": "uuid",
                        "description": "Grade ID",
                        "name": "grade_id",
                        "in": "query",
                        "required": true
                    },
                    {
                        "type": "string",
                        "format": "uuid",
                        "description": "Academic year ID",
                        "name": "academic_year_id",
                        "in": "query",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handler.APIResponse-array_fees_FeeStructureLineResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    }
                }
            },
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "Prices a fee category for a grade and academic year. One price per combination.",
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "fee-structures"
                ],
                "summary": "Create a fee structure",
                "operationId": "createFeeStructure",
                "parameters": [
                    {
                        "description": "Fee structure",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/handler.CreateFeeStructureRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/handler.APIResponse-fees_FeeStructureResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/fee-structures/{id}": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "Get a fee structure",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "fee-structures"
                ],
                "summary": "Get a fee structure",
                "operationId": "getFeeStructure",
                "parameters": [
                    {
                        "type": "string",
                        "format": "uuid",
                        "description": "Fee structure ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handler.APIResponse-fees_FeeStructureResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/health": {
            "get": {
                "description": "Pings every dependency. Only an unreachable database makes the service unhealthy.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "system"
                ],
                "summary": "Health check",
                "operationId": "checkHealth",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/dto.HealthResponse"
                        }
                    },
                    "503": {
                        "description": "Service Unavailable",
                        "schema": {
                            "$ref": "#/definitions/dto.HealthResponse"
                        }
                    }
                }
            }
        },
        "/payments": {
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "Applies a payment to a bill while holding the bill's row lock. The amount may not exceed the\noutstanding balance. Lock contention answers 503 with retryable set.",
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "payments"
                ],
                "summary": "Record a payment",
                "operationId": "recordPayment",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Client key; a repeat replays the first response",
                        "name": "Idempotency-Key",
                        "in": "header"
                    },
                    {
                        "description": "Payment",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/handler.RecordPaymentRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/handler.APIResponse-fees_PaymentResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "422": {
                        "description": "Overpayment",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "503": {
                        "description": "Service Unavailable",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "504": {
                        "description": "Gateway Timeout",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    }
                }
            },
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "Filtered page of payments joined with student, grade, year, bill and receipt",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "payments"
                ],
                "summary": "List payments",
                "operationId": "listPayments",
                "parameters": [
                    {
                        "type": "integer",
                        "default": 1,
                        "description": "Page number",
                        "name": "page",
                        "in": "query"
                    },
                    {
                        "type": "integer",
                        "default": 20,
                        "maximum": 200,
                        "description": "Items per page",
                        "name": "page_size",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "enum": [
                            "created_at",
                            "payment_date",
                            "amount",
                            "method",
                            "student_name",
                            "bill_number",
                            "receipt_number"
                        ],
                        "description": "Sort key",
                        "name": "order_by",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "enum": [
                            "asc",
                            "desc"
                        ],
                        "description": "Sort direction",
                        "name": "order_dir",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "Earliest payment date (YYYY-MM-DD)",
                        "name": "date_from",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "Latest payment date (YYYY-MM-DD)",
                        "name": "date_to",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "format": "uuid",
                        "description": "Academic year ID",
                        "name": "academic_year_id",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "format": "uuid",
                        "description": "Grade ID",
                        "name": "grade_id",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "format": "uuid",
                        "description": "Bill ID",
                        "name": "bill_id",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "enum": [
                            "Cash",
                            "Bank",
                            "Mobile Money"
                        ],
                        "description": "Payment method",
                        "name": "method",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "Minimum amount",
                        "name": "min_amount",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "Maximum amount",
                        "name": "max_amount",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "Receipt number contains",
                        "name": "receipt_number",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "Transaction reference contains",
                        "name": "reference",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "Student name, admission number, bill number or reference contains",
                        "name": "search",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handler.APIResponse-array_fees_PaymentListItem"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/payments/export": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "Streams every payment matching the filters, ignoring paging",
                "produces": [
                    "text/csv"
                ],
                "tags": [
                    "payments"
                ],
                "summary": "Export payments as CSV",
                "operationId": "exportPayments",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Earliest payment date (YYYY-MM-DD)",
                        "name": "date_from",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "Latest payment date (YYYY-MM-DD)",
                        "name": "date_to",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "format": "uuid",
                        "description": "Academic year ID",
                        "name": "academic_year_id",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "format": "uuid",
                        "description": "Grade ID",
                        "name": "grade_id",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "format": "uuid",
                        "description": "Bill ID",
                        "name": "bill_id",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "enum": [
                            "Cash",
                            "Bank",
                            "Mobile Money"
                        ],
                        "description": "Payment method",
                        "name": "method",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "Minimum amount",
                        "name": "min_amount",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "Maximum amount",
                        "name": "max_amount",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "Receipt number contains",
                        "name": "receipt_number",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "Transaction reference contains",
                        "name": "reference",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "Student name, admission number, bill number or reference contains",
                        "name": "search",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "CSV export",
                        "schema": {
                            "type": "file"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/payments/export/archive": {
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "Uploads the CSV export to object storage and returns a presigned download link.\nAnswers 503 when no bucket is configured.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "payments"
                ],
                "summary": "Archive a payment export",
                "operationId": "archivePaymentExport",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Earliest payment date (YYYY-MM-DD)",
                        "name": "date_from",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "Latest payment date (YYYY-MM-DD)",
                        "name": "date_to",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "format": "uuid",
                        "description": "Academic year ID",
                        "name": "academic_year_id",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "format": "uuid",
                        "description": "Grade ID",
                        "name": "grade_id",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "format": "uuid",
                        "description": "Bill ID",
                        "name": "bill_id",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "enum": [
                            "Cash",
                            "Bank",
                            "Mobile Money"
                        ],
                        "description": "Payment method",
                        "name": "method",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "Minimum amount",
                        "name": "min_amount",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "Maximum amount",
                        "name": "max_amount",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "Receipt number contains",
                        "name": "receipt_number",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "Transaction reference contains",
                        "name": "reference",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "Student name, admission number, bill number or reference contains",
                        "name": "search",
                        "in": "query"
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/handler.APIResponse-fees_ExportArchiveResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "503": {
                        "description": "Service Unavailable",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/payments/{id}": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "Get a payment",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "payments"
                ],
                "summary": "Get a payment",
                "operationId": "getPayment",
                "parameters": [
                    {
                        "type": "string",
                        "format": "uuid",
                        "description": "Payment ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handler.APIResponse-fees_PaymentResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/payments/{id}/receipt": {
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "Assigns the next receipt number. A payment has at most one receipt; asking again answers 409.",
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "payments"
                ],
                "summary": "Issue the receipt of a payment",
                "operationId": "issuePaymentReceipt",
                "parameters": [
                    {
                        "type": "string",
                        "format": "uuid",
                        "description": "Payment ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "Who generated the receipt; the caller when omitted",
                        "name": "request",
                        "in": "body",
                        "required": false,
                        "schema": {
                            "$ref": "#/definitions/handler.IssueReceiptRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/handler.APIResponse-fees_ReceiptResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "503": {
                        "description": "Service Unavailable",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/receipts/{id}": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "Get a receipt",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "receipts"
                ],
                "summary": "Get a receipt",
                "operationId": "getReceipt",
                "parameters": [
                    {
                        "type": "string",
                        "format": "uuid",
                        "description": "Receipt ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handler.APIResponse-fees_ReceiptResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/receipts/{id}/pdf": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "Answers 503 when no renderer is configured",
                "produces": [
                    "application/pdf"
                ],
                "tags": [
                    "receipts"
                ],
                "summary": "Render a receipt as PDF",
                "operationId": "getReceiptPDF",
                "parameters": [
                    {
                        "type": "string",
                        "format": "uuid",
                        "description": "Receipt ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Printable receipt",
                        "schema": {
                            "type": "file"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "503": {
                        "description": "Service Unavailable",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "504": {
                        "description": "Gateway Timeout",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/system/info": {
            "get": {
                "description": "Build, uptime and which optional ledger features (PDF receipts, export archive) are available",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "system"
                ],
                "summary": "Get system information",
                "operationId": "getSystemInfo",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handler.APIResponse-handler_SystemInfoResponse"
                        }
                    }
                }
            }
        },
        "/system/outbox/dead": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "Ledger events that used up their delivery retries, most recent first",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "outbox"
                ],
                "summary": "List dead-lettered events",
                "operationId": "listOutboxDead",
                "parameters": [
                    {
                        "type": "integer",
                        "default": 1,
                        "description": "Page number",
                        "name": "page",
                        "in": "query"
                    },
                    {
                        "type": "integer",
                        "default": 20,
                        "maximum": 200,
                        "description": "Items per page",
                        "name": "page_size",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handler.APIResponse-array_event_OutboxEntryView"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/system/outbox/stats": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "Count outbox entries by status",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "outbox"
                ],
                "summary": "Count outbox entries by status",
                "operationId": "getOutboxStats",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handler.APIResponse-event_OutboxStats"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal Server Error",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/system/outbox/{id}": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "Get an outbox entry",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "outbox"
                ],
                "summary": "Get an outbox entry",
                "operationId": "getOutboxEntry",
                "parameters": [
                    {
                        "type": "string",
                        "format": "uuid",
                        "description": "Outbox entry ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handler.APIResponse-event_OutboxEntryView"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/system/outbox/{id}/retry": {
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "Resets the retry budget of a DEAD entry and puts it back to PENDING",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "outbox"
                ],
                "summary": "Requeue a dead-lettered event",
                "operationId": "retryOutboxEntry",
                "parameters": [
                    {
                        "type": "string",
                        "format": "uuid",
                        "description": "Outbox entry ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handler.APIResponse-event_OutboxEntryView"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    },
                    "422": {
                        "description": "Unprocessable Entity",
                        "schema": {
                            "$ref": "#/definitions/handler.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/system/ping": {
            "get": {
                "description": "Answers without touching any dependency",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "system"
                ],
                "summary": "Ping",
                "operationId": "pingSystem",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handler.APIResponse-handler_PingResponse"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "dto.ErrorInfo": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "request_id": {
                    "type": "string"
                },
                "details": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/dto.ValidationDetail"
                    }
                },
                "retryable": {
                    "type": "boolean"
                }
            }
        },
        "dto.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {
                    "type": "string"
                },
                "checks": {
                    "type": "object",
                    "additionalProperties": {
                        "type": "string"
                    }
                },
                "timestamp": {
                    "type": "string",
                    "format": "date-time"
                }
            }
        },
        "dto.Meta": {
            "type": "object",
            "properties": {
                "total": {
                    "type": "integer"
                },
                "page": {
                    "type": "integer"
                },
                "page_size": {
                    "type": "integer"
                },
                "total_pages": {
                    "type": "integer"
                }
            }
        },
        "dto.ValidationDetail": {
            "type": "object",
            "properties": {
                "field": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "tag": {
                    "type": "string"
                },
                "value": {
                    "type": "string"
                }
            }
        },
        "event.OutboxEntryView": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string",
                    "format": "uuid"
                },
                "event_id": {
                    "type": "string",
                    "format": "uuid"
                },
                "event_type": {
                    "type": "string"
                },
                "aggregate_id": {
                    "type": "string",
                    "format": "uuid"
                },
                "aggregate_type": {
                    "type": "string"
                },
                "status": {
                    "type": "string"
                },
                "retry_count": {
                    "type": "integer"
                },
                "max_retries": {
                    "type": "integer"
                },
                "last_error": {
                    "type": "string"
                },
                "next_retry_at": {
                    "type": "string",
                    "format": "date-time"
                },
                "processed_at": {
                    "type": "string",
                    "format": "date-time"
                },
                "created_at": {
                    "type": "string",
                    "format": "date-time"
                },
                "updated_at": {
                    "type": "string",
                    "format": "date-time"
                }
            }
        },
        "event.OutboxStats": {
            "type": "object",
            "properties": {
                "pending": {
                    "type": "integer"
                },
                "processing": {
                    "type": "integer"
                },
                "sent": {
                    "type": "integer"
                },
                "failed": {
                    "type": "integer"
                },
                "dead": {
                    "type": "integer"
                },
                "undelivered": {
                    "type": "integer"
                },
                "total": {
                    "type": "integer"
                }
            }
        },
        "fees.BillBalanceResponse": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string",
                    "format": "uuid"
                },
                "total_amount": {
                    "type": "string"
                },
                "paid_amount": {
                    "type": "string"
                },
                "balance": {
                    "type": "string"
                },
                "status": {
                    "type": "string"
                },
                "version": {
                    "type": "integer"
                }
            }
        },
        "fees.BillItemResponse": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string",
                    "format": "uuid"
                },
                "fee_structure_id": {
                    "type": "string",
                    "format": "uuid"
                },
                "fee_category_id": {
                    "type": "string",
                    "format": "uuid"
                },
                "description": {
                    "type": "string"
                },
                "amount": {
                    "type": "string"
                }
            }
        },
        "fees.BillResponse": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string",
                    "format": "uuid"
                },
                "bill_number": {
                    "type": "string"
                },
                "student_id": {
                    "type": "string",
                    "format": "uuid"
                },
                "academic_year_id": {
                    "type": "string",
                    "format": "uuid"
                },
                "items": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/fees.BillItemResponse"
                    }
                },
                "total_amount": {
                    "type": "string"
                },
                "paid_amount": {
                    "type": "string"
                },
                "balance": {
                    "type": "string"
                },
                "status": {
                    "type": "string"
                },
                "issued_date": {
                    "type": "string",
                    "format": "date-time"
                },
                "version": {
                    "type": "integer"
                },
                "created_by": {
                    "type": "string",
                    "format": "uuid"
                },
                "created_at": {
                    "type": "string",
                    "format": "date-time"
                },
                "updated_at": {
                    "type": "string",
                    "format": "date-time"
                }
            }
        },
        "fees.ExportArchiveResponse": {
            "type": "object",
            "properties": {
                "key": {
                    "type": "string"
                },
                "url": {
                    "type": "string"
                },
                "expires_at": {
                    "type": "string",
                    "format": "date-time"
                },
                "rows": {
                    "type": "integer"
                },
                "content_type": {
                    "type": "string"
                }
            }
        },
        "fees.FeeStructureLineResponse": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string",
                    "format": "uuid"
                },
                "fee_category_id": {
                    "type": "string",
                    "format": "uuid"
                },
                "grade_id": {
                    "type": "string",
                    "format": "uuid"
                },
                "academic_year_id": {
                    "type": "string",
                    "format": "uuid"
                },
                "amount": {
                    "type": "string"
                },
                "due_date": {
                    "type": "string",
                    "format": "date-time"
                },
                "created_at": {
                    "type": "string",
                    "format": "date-time"
                },
                "category_name": {
                    "type": "string"
                }
            }
        },
        "fees.FeeStructureResponse": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string",
                    "format": "uuid"
                },
                "fee_category_id": {
                    "type": "string",
                    "format": "uuid"
                },
                "grade_id": {
                    "type": "string",
                    "format": "uuid"
                },
                "academic_year_id": {
                    "type": "string",
                    "format": "uuid"
                },
                "amount": {
                    "type": "string"
                },
                "due_date": {
                    "type": "string",
                    "format": "date-time"
                },
                "created_at": {
                    "type": "string",
                    "format": "date-time"
                }
            }
        },
        "fees.PaymentListItem": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string",
                    "format": "uuid"
                },
                "bill_id": {
                    "type": "string",
                    "format": "uuid"
                },
                "student_id": {
                    "type": "string",
                    "format": "uuid"
                },
                "payment_date": {
                    "type": "string",
                    "format": "date-time"
                },
                "amount": {
                    "type": "string"
                },
                "method": {
                    "type": "string"
                },
                "transaction_reference": {
                    "type": "string"
                },
                "received_by": {
                    "type": "string",
                    "format": "uuid"
                },
                "created_by": {
                    "type": "string",
                    "format": "uuid"
                },
                "created_at": {
                    "type": "string",
                    "format": "date-time"
                },
                "bill": {
                    "$ref": "#/definitions/fees.BillBalanceResponse"
                },
                "bill_number": {
                    "type": "string"
                },
                "student_name": {
                    "type": "string"
                },
                "admission_number": {
                    "type": "string"
                },
                "grade_name": {
                    "type": "string"
                },
                "academic_year_name": {
                    "type": "string"
                },
                "receipt_number": {
                    "type": "string"
                }
            }
        },
        "fees.PaymentResponse": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string",
                    "format": "uuid"
                },
                "bill_id": {
                    "type": "string",
                    "format": "uuid"
                },
                "student_id": {
                    "type": "string",
                    "format": "uuid"
                },
                "payment_date": {
                    "type": "string",
                    "format": "date-time"
                },
                "amount": {
                    "type": "string"
                },
                "method": {
                    "type": "string"
                },
                "transaction_reference": {
                    "type": "string"
                },
                "received_by": {
                    "type": "string",
                    "format": "uuid"
                },
                "created_by": {
                    "type": "string",
                    "format": "uuid"
                },
                "created_at": {
                    "type": "string",
                    "format": "date-time"
                },
                "bill": {
                    "$ref": "#/definitions/fees.BillBalanceResponse"
                }
            }
        },
        "fees.ReceiptResponse": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string",
                    "format": "uuid"
                },
                "payment_id": {
                    "type": "string",
                    "format": "uuid"
                },
                "receipt_number": {
                    "type": "string"
                },
                "issued_at": {
                    "type": "string",
                    "format": "date-time"
                },
                "generated_by": {
                    "type": "string",
                    "format": "uuid"
                }
            }
        },
        "handler.APIResponse-array_event_OutboxEntryView": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/event.OutboxEntryView"
                    }
                },
                "error": {
                    "$ref": "#/definitions/dto.ErrorInfo"
                },
                "meta": {
                    "$ref": "#/definitions/dto.Meta"
                },
                "success": {
                    "type": "boolean",
                    "example": true
                }
            }
        },
        "handler.APIResponse-array_fees_BillResponse": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/fees.BillResponse"
                    }
                },
                "error": {
                    "$ref": "#/definitions/dto.ErrorInfo"
                },
                "meta": {
                    "$ref": "#/definitions/dto.Meta"
                },
                "success": {
                    "type": "boolean",
                    "example": true
                }
            }
        },
        "handler.APIResponse-array_fees_FeeStructureLineResponse": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/fees.FeeStructureLineResponse"
                    }
                },
                "error": {
                    "$ref": "#/definitions/dto.ErrorInfo"
                },
                "meta": {
                    "$ref": "#/definitions/dto.Meta"
                },
                "success": {
                    "type": "boolean",
                    "example": true
                }
            }
        },
        "handler.APIResponse-array_fees_PaymentListItem": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/fees.PaymentListItem"
                    }
                },
                "error": {
                    "$ref": "#/definitions/dto.ErrorInfo"
                },
                "meta": {
                    "$ref": "#/definitions/dto.Meta"
                },
                "success": {
                    "type": "boolean",
                    "example": true
                }
            }
        },
        "handler.APIResponse-array_fees_PaymentResponse": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/fees.PaymentResponse"
                    }
                },
                "error": {
                    "$ref": "#/definitions/dto.ErrorInfo"
                },
                "meta": {
                    "$ref": "#/definitions/dto.Meta"
                },
                "success": {
                    "type": "boolean",
                    "example": true
                }
            }
        },
        "handler.APIResponse-event_OutboxEntryView": {
            "type": "object",
            "properties": {
                "data": {
                    "$ref": "#/definitions/event.OutboxEntryView"
                },
                "error": {
                    "$ref": "#/definitions/dto.ErrorInfo"
                },
                "meta": {
                    "$ref": "#/definitions/dto.Meta"
                },
                "success": {
                    "type": "boolean",
                    "example": true
                }
            }
        },
        "handler.APIResponse-event_OutboxStats": {
            "type": "object",
            "properties": {
                "data": {
                    "$ref": "#/definitions/event.OutboxStats"
                },
                "error": {
                    "$ref": "#/definitions/dto.ErrorInfo"
                },
                "meta": {
                    "$ref": "#/definitions/dto.Meta"
                },
                "success": {
                    "type": "boolean",
                    "example": true
                }
            }
        },
        "handler.APIResponse-fees_BillResponse": {
            "type": "object",
            "properties": {
                "data": {
                    "$ref": "#/definitions/fees.BillResponse"
                },
                "error": {
                    "$ref": "#/definitions/dto.ErrorInfo"
                },
                "meta": {
                    "$ref": "#/definitions/dto.Meta"
                },
                "success": {
                    "type": "boolean",
                    "example": true
                }
            }
        },
        "handler.APIResponse-fees_ExportArchiveResponse": {
            "type": "object",
            "properties": {
                "data": {
                    "$ref": "#/definitions/fees.ExportArchiveResponse"
                },
                "error": {
                    "$ref": "#/definitions/dto.ErrorInfo"
                },
                "meta": {
                    "$ref": "#/definitions/dto.Meta"
                },
                "success": {
                    "type": "boolean",
                    "example": true
                }
            }
        },
        "handler.APIResponse-fees_FeeStructureResponse": {
            "type": "object",
            "properties": {
                "data": {
                    "$ref": "#/definitions/fees.FeeStructureResponse"
                },
                "error": {
                    "$ref": "#/definitions/dto.ErrorInfo"
                },
                "meta": {
                    "$ref": "#/definitions/dto.Meta"
                },
                "success": {
                    "type": "boolean",
                    "example": true
                }
            }
        },
        "handler.APIResponse-fees_PaymentResponse": {
            "type": "object",
            "properties": {
                "data": {
                    "$ref": "#/definitions/fees.PaymentResponse"
                },
                "error": {
                    "$ref": "#/definitions/dto.ErrorInfo"
                },
                "meta": {
                    "$ref": "#/definitions/dto.Meta"
                },
                "success": {
                    "type": "boolean",
                    "example": true
                }
            }
        },
        "handler.APIResponse-fees_ReceiptResponse": {
            "type": "object",
            "properties": {
                "data": {
                    "$ref": "#/definitions/fees.ReceiptResponse"
                },
                "error": {
                    "$ref": "#/definitions/dto.ErrorInfo"
                },
                "meta": {
                    "$ref": "#/definitions/dto.Meta"
                },
                "success": {
                    "type": "boolean",
                    "example": true
                }
            }
        },
        "handler.APIResponse-handler_PingResponse": {
            "type": "object",
            "properties": {
                "data": {
                    "$ref": "#/definitions/handler.PingResponse"
                },
                "error": {
                    "$ref": "#/definitions/dto.ErrorInfo"
                },
                "meta": {
                    "$ref": "#/definitions/dto.Meta"
                },
                "success": {
                    "type": "boolean",
                    "example": true
                }
            }
        },
        "handler.APIResponse-handler_SystemInfoResponse": {
            "type": "object",
            "properties": {
                "data": {
                    "$ref": "#/definitions/handler.SystemInfoResponse"
                },
                "error": {
                    "$ref": "#/definitions/dto.ErrorInfo"
                },
                "meta": {
                    "$ref": "#/definitions/dto.Meta"
                },
                "success": {
                    "type": "boolean",
                    "example": true
                }
            }
        },
        "handler.CreateFeeStructureRequest": {
            "type": "object",
            "required": [
                "fee_category_id",
                "grade_id",
                "academic_year_id",
                "amount"
            ],
            "properties": {
                "fee_category_id": {
                    "type": "string"
                },
                "grade_id": {
                    "type": "string"
                },
                "academic_year_id": {
                    "type": "string"
                },
                "amount": {
                    "type": "string",
                    "example": "450000.00"
                },
                "due_date": {
                    "type": "string",
                    "example": "2026-03-31"
                }
            }
        },
        "handler.ErrorResponse": {
            "type": "object",
            "properties": {
                "success": {
                    "type": "boolean",
                    "example": "false"
                },
                "error": {
                    "$ref": "#/definitions/dto.ErrorInfo"
                }
            }
        },
        "handler.GenerateBillRequest": {
            "type": "object",
            "required": [
                "student_id",
                "academic_year_id",
                "fee_structure_ids"
            ],
            "properties": {
                "student_id": {
                    "type": "string"
                },
                "academic_year_id": {
                    "type": "string"
                },
                "fee_structure_ids": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "issued_date": {
                    "type": "string"
                }
            }
        },
        "handler.IssueReceiptRequest": {
            "type": "object",
            "properties": {
                "generated_by": {
                    "type": "string"
                }
            }
        },
        "handler.PingResponse": {
            "type": "object",
            "properties": {
                "message": {
                    "type": "string"
                },
                "timestamp": {
                    "type": "string"
                }
            }
        },
        "handler.RecordPaymentRequest": {
            "type": "object",
            "required": [
                "bill_id",
                "student_id",
                "payment_date",
                "amount",
                "method"
            ],
            "properties": {
                "bill_id": {
                    "type": "string",
                    "format": "uuid"
                },
                "student_id": {
                    "type": "string",
                    "format": "uuid"
                },
                "payment_date": {
                    "type": "string",
                    "example": "2026-02-05"
                },
                "amount": {
                    "type": "string",
                    "example": "250000.00"
                },
                "method": {
                    "type": "string",
                    "example": "Mobile Money",
                    "enum": [
                        "Cash",
                        "Bank",
                        "Mobile Money"
                    ]
                },
                "reference": {
                    "type": "string",
                    "example": "MTN-99812"
                },
                "received_by": {
                    "type": "string",
                    "format": "uuid"
                }
            }
        },
        "handler.SystemInfoResponse": {
            "type": "object",
            "properties": {
                "name": {
                    "type": "string"
                },
                "environment": {
                    "type": "string"
                },
                "school": {
                    "type": "string"
                },
                "currency": {
                    "type": "string"
                },
                "pdf_receipts": {
                    "type": "boolean"
                },
                "export_archive": {
                    "type": "boolean"
                },
                "version": {
                    "type": "string"
                },
                "go_version": {
                    "type": "string"
                },
                "uptime": {
                    "type": "string"
                }
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Bearer token. Format: \"Bearer {token}\"",
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
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Fee Ledger API",
	Description:      "Student fee billing, payment ledger and receipts",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
