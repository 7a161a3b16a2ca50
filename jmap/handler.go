package jmap

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/mailtree/creation"
	"github.com/jacentio/mailtree/store"
)

// Processor runs a creation batch.
type Processor interface {
	Process(ctx context.Context, session store.Session, batch creation.Batch) *creation.BatchResult
}

// Handler serves Mailbox/set creates behind API Gateway. The caller is
// identified by the authorizer's principalId; authorization happens upstream.
type Handler struct {
	processor Processor
	delimiter rune
	logger    *slog.Logger
}

// NewHandler creates a Handler. A zero delimiter means store.DefaultDelimiter.
func NewHandler(p Processor, delimiter rune, logger *slog.Logger) *Handler {
	if delimiter == 0 {
		delimiter = store.DefaultDelimiter
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		processor: p,
		delimiter: delimiter,
		logger:    logger,
	}
}

// HandleSetMailboxes processes one API Gateway request.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleSetMailboxes(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if req.HTTPMethod != http.MethodPost {
		return errorResponse(http.StatusMethodNotAllowed, "method not allowed"), nil
	}

	principal, _ := req.RequestContext.Authorizer["principalId"].(string)
	if principal == "" {
		return errorResponse(http.StatusUnauthorized, "missing principal"), nil
	}

	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return errorResponse(http.StatusBadRequest, "body is not valid base64"), nil
		}
		body = decoded
	}

	var set SetMailboxesRequest
	if err := json.Unmarshal(body, &set); err != nil {
		h.logger.Debug("rejecting malformed request",
			"principal", principal,
			"error", err,
		)
		return errorResponse(http.StatusBadRequest, "malformed request: "+err.Error()), nil
	}

	session := store.NewSession(principal)
	session.Delimiter = h.delimiter

	result := h.processor.Process(ctx, session, set.Create.Batch())

	accountID := set.AccountID
	if accountID == "" {
		accountID = principal
	}
	return jsonResponse(http.StatusOK, NewResponse(accountID, result))
}

func jsonResponse(status int, v any) (events.APIGatewayProxyResponse, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}, nil
}

func errorResponse(status int, description string) events.APIGatewayProxyResponse {
	resp, _ := jsonResponse(status, SetError{
		Type:        creation.WireInvalidArguments,
		Description: description,
	})
	return resp
}
