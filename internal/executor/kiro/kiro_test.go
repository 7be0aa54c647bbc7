package kiro

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
	"github.com/stretchr/testify/require"

	"github.com/1-api-gateway/relaygw/internal/credential"
	"github.com/1-api-gateway/relaygw/internal/executor"
	"github.com/1-api-gateway/relaygw/internal/provider"
)

func TestExecutor_SendsBearerAuthAndProfileArnHeader(t *testing.T) {
	var gotAuth, gotArn string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotArn = r.Header.Get("x-amzn-codewhisperer-profile-arn")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := &provider.Provider{Id: "kiro", BaseURL: srv.URL, ChatPath: "/generateAssistantResponse"}
	conn := &credential.Connection{
		AuthType: provider.AuthOAuth, AccessToken: "tok",
		ProviderData: map[string]string{"profileArn": "arn:aws:codewhisperer:profile"},
	}

	e := NewExecutor()
	resp, err := e.Execute(context.Background(), &executor.Request{Provider: p, Connection: conn, Body: []byte(`{}`)})
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "Bearer tok", gotAuth)
	require.Equal(t, "arn:aws:codewhisperer:profile", gotArn)
}

func encodeFrame(t *testing.T, eventType string, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := eventstream.NewEncoder(&buf)
	msg := eventstream.Message{
		Headers: eventstream.Headers{
			{Name: ":event-type", Value: eventstream.StringValue(eventType)},
		},
		Payload: payload,
	}
	require.NoError(t, enc.Encode(msg))
	return buf.Bytes()
}

func TestTranslateStream_AssistantContentEmitsRoleOnFirstChunkOnly(t *testing.T) {
	var wire bytes.Buffer
	wire.Write(encodeFrame(t, "assistantResponseEvent", []byte(`{"content":"hi"}`)))
	wire.Write(encodeFrame(t, "assistantResponseEvent", []byte(`{"content":" there"}`)))
	wire.Write(encodeFrame(t, "messageStopEvent", nil))

	var out bytes.Buffer
	require.NoError(t, TranslateStream(&wire, &out))

	text := out.String()
	require.Equal(t, 1, strings.Count(text, `"role":"assistant"`))
	require.Contains(t, text, `"content":"hi"`)
	require.Contains(t, text, `"content":" there"`)
	require.Contains(t, text, `"finish_reason":"stop"`)
	require.True(t, strings.HasSuffix(text, "data: [DONE]\n\n"))
}

func TestTranslateStream_ToolUseAllocatesIndexAndAppendsArguments(t *testing.T) {
	var wire bytes.Buffer
	wire.Write(encodeFrame(t, "toolUseEvent", []byte(`{"toolUseId":"t1","name":"get_weather","input":""}`)))
	wire.Write(encodeFrame(t, "toolUseEvent", []byte(`{"toolUseId":"t1","input":"{\"city\":"}`)))
	wire.Write(encodeFrame(t, "toolUseEvent", []byte(`{"toolUseId":"t1","input":"\"nyc\"}"}`)))
	wire.Write(encodeFrame(t, "messageStopEvent", nil))

	var out bytes.Buffer
	require.NoError(t, TranslateStream(&wire, &out))

	text := out.String()
	require.Contains(t, text, `"name":"get_weather"`)
	require.Contains(t, text, `"finish_reason":"tool_calls"`)
}

func TestTranslateStream_MeteringEventEmitsFinishIfNoneEmittedYet(t *testing.T) {
	var wire bytes.Buffer
	wire.Write(encodeFrame(t, "assistantResponseEvent", []byte(`{"content":"hi"}`)))
	wire.Write(encodeFrame(t, "meteringEvent", nil))

	var out bytes.Buffer
	require.NoError(t, TranslateStream(&wire, &out))

	text := out.String()
	require.Contains(t, text, `"finish_reason":"stop"`)
	require.Equal(t, 1, strings.Count(text, "finish_reason"))
}

func TestTranslateStream_MissingMessageStopStillEmitsFinishAndDone(t *testing.T) {
	var wire bytes.Buffer
	wire.Write(encodeFrame(t, "assistantResponseEvent", []byte(`{"content":"hi"}`)))

	var out bytes.Buffer
	require.NoError(t, TranslateStream(&wire, &out))

	text := out.String()
	require.Contains(t, text, `"finish_reason":"stop"`)
	require.True(t, strings.HasSuffix(text, "data: [DONE]\n\n"))
}

func TestAggregate_CoalescesContentDeltasIntoOneMessage(t *testing.T) {
	var wire bytes.Buffer
	wire.Write(encodeFrame(t, "assistantResponseEvent", []byte(`{"content":"hi"}`)))
	wire.Write(encodeFrame(t, "assistantResponseEvent", []byte(`{"content":" there"}`)))
	wire.Write(encodeFrame(t, "messageStopEvent", nil))

	msg, reason, err := Aggregate(&wire)
	require.NoError(t, err)
	require.Equal(t, "assistant", msg.Role)
	require.Equal(t, "hi there", msg.Content)
	require.Equal(t, "stop", reason)
	require.Empty(t, msg.ToolCalls)
}

func TestAggregate_CoalescesToolCallArgumentsAcrossFrames(t *testing.T) {
	var wire bytes.Buffer
	wire.Write(encodeFrame(t, "toolUseEvent", []byte(`{"toolUseId":"t1","name":"get_weather","input":""}`)))
	wire.Write(encodeFrame(t, "toolUseEvent", []byte(`{"toolUseId":"t1","input":"{\"city\":"}`)))
	wire.Write(encodeFrame(t, "toolUseEvent", []byte(`{"toolUseId":"t1","input":"\"nyc\"}"}`)))
	wire.Write(encodeFrame(t, "messageStopEvent", nil))

	msg, reason, err := Aggregate(&wire)
	require.NoError(t, err)
	require.Equal(t, "tool_calls", reason)
	require.Len(t, msg.ToolCalls, 1)
	require.Equal(t, "get_weather", msg.ToolCalls[0].Function.Name)
	require.Equal(t, `{"city":"nyc"}`, msg.ToolCalls[0].Function.Arguments)
}
