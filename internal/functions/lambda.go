package functions

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// HandleEvent serves both functions behind an API Gateway HTTP API. The
// function name is the last path segment.
func (f *Functions) HandleEvent(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(evt.RequestContext.HTTP.Method))
	path := strings.TrimSpace(evt.RawPath)
	if path == "" {
		path = strings.TrimSpace(evt.RequestContext.HTTP.Path)
	}

	if path == "/health" {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusOK, Body: "ok"}, nil
	}
	if method != http.MethodPost {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusMethodNotAllowed}, nil
	}

	body, err := decodeBody(evt)
	if err != nil {
		return errorResponse(&Error{Code: CodeInvalidArgument, Message: "invalid body"}), nil
	}

	name := path[strings.LastIndex(path, "/")+1:]
	switch name {
	case NameListPatientAppointments:
		var req ListRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return errorResponse(&Error{Code: CodeInvalidArgument, Message: "invalid body"}), nil
		}
		resp, err := f.ListPatientAppointments(ctx, req)
		return respond(resp, err)
	case NameCancelPatientAppointment:
		var req CancelRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return errorResponse(&Error{Code: CodeInvalidArgument, Message: "invalid body"}), nil
		}
		resp, err := f.CancelPatientAppointment(ctx, req)
		return respond(resp, err)
	default:
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusNotFound}, nil
	}
}

func decodeBody(evt events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !evt.IsBase64Encoded {
		return []byte(evt.Body), nil
	}
	return base64.StdEncoding.DecodeString(evt.Body)
}

func respond(payload any, err error) (events.APIGatewayV2HTTPResponse, error) {
	if err != nil {
		var ferr *Error
		if !errors.As(err, &ferr) {
			ferr = &Error{Code: CodeInternal, Message: "internal error"}
		}
		return errorResponse(ferr), nil
	}
	return jsonResponse(http.StatusOK, payload), nil
}

func errorResponse(e *Error) events.APIGatewayV2HTTPResponse {
	return jsonResponse(e.HTTPStatus(), map[string]*Error{"error": e})
}

func jsonResponse(status int, payload any) events.APIGatewayV2HTTPResponse {
	body, err := json.Marshal(payload)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusInternalServerError}
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}
