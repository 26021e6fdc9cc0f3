package functions

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-lambda-go/events"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/docstore"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

func setup(t *testing.T) (*Functions, docstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := redisclient.NewStore(client, 5)

	require.NoError(t, store.Set(context.Background(), docstore.AppointmentPath("c1", "S1"), docstore.Fields{
		"professionalId":  "P1",
		"date":            "2026-10-20",
		"time":            "10:00",
		"status":          "booked",
		"active":          true,
		"patientName":     "Ana",
		"patientIdentity": "11111111-1",
		"patientPhone":    "11112222",
	}))

	svc := appointment.NewCancellationService(store, nil, zerolog.Nop())
	return New(svc, zerolog.Nop()), store, mr
}

func TestListPatientAppointments(t *testing.T) {
	f, _, _ := setup(t)
	ctx := context.Background()

	resp, err := f.ListPatientAppointments(ctx, ListRequest{CenterID: "c1", Identity: "11.111.111-1", Phone: "11112222"})
	require.NoError(t, err)
	require.Len(t, resp.Appointments, 1)
	assert.Equal(t, "S1", resp.Appointments[0].ID)

	resp, err = f.ListPatientAppointments(ctx, ListRequest{CenterID: "c1", Identity: "11.111.111-1", Phone: "99999999"})
	require.NoError(t, err)
	assert.NotNil(t, resp.Appointments)
	assert.Empty(t, resp.Appointments)
}

func TestListPatientAppointments_RequiresBothFactors(t *testing.T) {
	f, _, _ := setup(t)

	_, err := f.ListPatientAppointments(context.Background(), ListRequest{CenterID: "c1", Identity: "11.111.111-1"})
	var ferr *Error
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, CodeInvalidArgument, ferr.Code)
	assert.Contains(t, ferr.Fields, "phone")
}

func TestCancelPatientAppointment_MismatchIsGeneric(t *testing.T) {
	f, _, _ := setup(t)
	ctx := context.Background()

	cases := []CancelRequest{
		{CenterID: "c1", AppointmentID: "S1", Identity: "22.222.222-2", Phone: "11112222"},
		{CenterID: "c1", AppointmentID: "S1", Identity: "11.111.111-1", Phone: "99999999"},
		{CenterID: "c1", AppointmentID: "missing", Identity: "11.111.111-1", Phone: "11112222"},
	}
	var messages []string
	for _, req := range cases {
		_, err := f.CancelPatientAppointment(ctx, req)
		var ferr *Error
		require.True(t, errors.As(err, &ferr))
		assert.Equal(t, CodeNotFound, ferr.Code)
		assert.Equal(t, http.StatusNotFound, ferr.HTTPStatus())
		messages = append(messages, ferr.Message)
	}
	assert.Equal(t, []string{"cannot locate appointment", "cannot locate appointment", "cannot locate appointment"}, messages)
}

func TestCancelPatientAppointment_FreesSlot(t *testing.T) {
	f, store, _ := setup(t)
	ctx := context.Background()

	resp, err := f.CancelPatientAppointment(ctx, CancelRequest{CenterID: "c1", AppointmentID: "S1", Identity: "11111111-1", Phone: "+56911112222"})
	require.NoError(t, err)
	assert.True(t, resp.OK)

	doc, err := store.Get(ctx, docstore.AppointmentPath("c1", "S1"))
	require.NoError(t, err)
	assert.Equal(t, "available", doc.Str("status"))
	assert.Empty(t, doc.Str("patientIdentity"))
}

func TestCancelPatientAppointment_StoreDown(t *testing.T) {
	f, _, mr := setup(t)
	mr.Close()

	_, err := f.CancelPatientAppointment(context.Background(), CancelRequest{CenterID: "c1", AppointmentID: "S1", Identity: "11111111-1", Phone: "11112222"})
	var ferr *Error
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, CodeUnavailable, ferr.Code)
}

func event(method, path, body string, b64 bool) events.APIGatewayV2HTTPRequest {
	if b64 {
		body = base64.StdEncoding.EncodeToString([]byte(body))
	}
	return events.APIGatewayV2HTTPRequest{
		RawPath:         path,
		Body:            body,
		IsBase64Encoded: b64,
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{Method: method, Path: path},
		},
	}
}

func TestHandleEvent_Routes(t *testing.T) {
	f, _, _ := setup(t)
	ctx := context.Background()

	resp, err := f.HandleEvent(ctx, event(http.MethodPost, "/functions/listPatientAppointments",
		`{"centerId":"c1","identity":"11.111.111-1","phone":"11112222"}`, true))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var list ListResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &list))
	assert.Len(t, list.Appointments, 1)

	resp, err = f.HandleEvent(ctx, event(http.MethodPost, "/functions/cancelPatientAppointment",
		`{"centerId":"c1","appointmentId":"S1","identity":"11.111.111-1","phone":"12345678"}`, false))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":{"code":"not-found","message":"cannot locate appointment"}}`, resp.Body)
}

func TestHandleEvent_Rejects(t *testing.T) {
	f, _, _ := setup(t)
	ctx := context.Background()

	resp, err := f.HandleEvent(ctx, event(http.MethodGet, "/functions/listPatientAppointments", "", false))
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = f.HandleEvent(ctx, event(http.MethodPost, "/functions/deleteEverything", "{}", false))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = f.HandleEvent(ctx, event(http.MethodPost, "/functions/cancelPatientAppointment", "{", false))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, err = f.HandleEvent(ctx, event(http.MethodGet, "/health", "", false))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Body)
}
