package server_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogmem/engram/internal/cognitive"
	"github.com/cogmem/engram/internal/config"
	"github.com/cogmem/engram/internal/connections"
	"github.com/cogmem/engram/internal/facade"
	"github.com/cogmem/engram/internal/server"
)

func newTestServer(t *testing.T) (*server.Server, string) {
	t.Helper()
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	cfg.Storage.DataPath = t.TempDir()

	conns := connections.NewManager(cfg.Storage)
	t.Cleanup(func() { _ = conns.Close() })

	encoder := cognitive.NewCognitiveEncoder(cognitive.NewLocalProvider(32), cognitive.NewDimensionExtractor())
	f := facade.New(cfg, conns, encoder, nil)

	projectPath := filepath.Join(t.TempDir(), "demo-project")
	return server.NewServer(f, server.WithDefaultProjectPath(projectPath)), projectPath
}

func rpcRequest(t *testing.T, method string, params interface{}) []byte {
	t.Helper()
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	}
	data, err := json.Marshal(req)
	require.NoError(t, err)
	return data
}

func decodeRPCResponse(t *testing.T, raw []byte) server.JSONRPCResponse {
	t.Helper()
	var resp server.JSONRPCResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

func TestHandleRequest_InvalidJSON_ReturnsParseError(t *testing.T) {
	s, _ := newTestServer(t)
	raw, err := s.HandleRequest(context.Background(), []byte("{not json"))
	require.NoError(t, err)
	resp := decodeRPCResponse(t, raw)
	require.NotNil(t, resp.Error)
	assert.Equal(t, server.ErrCodeParseError, resp.Error.Code)
}

func TestHandleRequest_UnknownMethod_ReturnsMethodNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	raw, err := s.HandleRequest(context.Background(), rpcRequest(t, "not_a_real_method", nil))
	require.NoError(t, err)
	resp := decodeRPCResponse(t, raw)
	require.NotNil(t, resp.Error)
	assert.Equal(t, server.ErrCodeMethodNotFound, resp.Error.Code)
}

func TestHandleRequest_Initialize_ReturnsProtocolInfo(t *testing.T) {
	s, _ := newTestServer(t)
	raw, err := s.HandleRequest(context.Background(), rpcRequest(t, "initialize", nil))
	require.NoError(t, err)
	resp := decodeRPCResponse(t, raw)
	require.Nil(t, resp.Error)

	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result server.MCPInitializeResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, "memento", result.ServerInfo.Name)
}

func TestHandleRequest_ToolsList_ListsAllNineOperations(t *testing.T) {
	s, _ := newTestServer(t)
	raw, err := s.HandleRequest(context.Background(), rpcRequest(t, "tools/list", nil))
	require.NoError(t, err)
	resp := decodeRPCResponse(t, raw)
	require.Nil(t, resp.Error)

	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result server.MCPToolsListResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Len(t, result.Tools, 9)
}

func TestHandleRequest_StoreExperience_ThenStatusReflectsIt(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	raw, err := s.HandleRequest(ctx, rpcRequest(t, "store_experience", map[string]interface{}{
		"text": "the deployment pipeline retries failed stages up to three times",
	}))
	require.NoError(t, err)
	resp := decodeRPCResponse(t, raw)
	require.Nil(t, resp.Error)

	result := resp.Result.(map[string]interface{})
	assert.NotEmpty(t, result["id"])

	raw, err = s.HandleRequest(ctx, rpcRequest(t, "status", map[string]interface{}{"detailed": true}))
	require.NoError(t, err)
	resp = decodeRPCResponse(t, raw)
	require.Nil(t, resp.Error)
}

func TestHandleRequest_StoreExperience_MissingText_ReturnsServerError(t *testing.T) {
	s, _ := newTestServer(t)
	raw, err := s.HandleRequest(context.Background(), rpcRequest(t, "store_experience", map[string]interface{}{}))
	require.NoError(t, err)
	resp := decodeRPCResponse(t, raw)
	require.NotNil(t, resp.Error)
	assert.Equal(t, server.ErrCodeServerError, resp.Error.Code)
}

func TestHandleRequest_ToolsCall_StoreExperience_WrapsResultAsTextContent(t *testing.T) {
	s, _ := newTestServer(t)
	raw, err := s.HandleRequest(context.Background(), rpcRequest(t, "tools/call", map[string]interface{}{
		"name": "store_experience",
		"arguments": map[string]interface{}{
			"text": "a fact worth remembering across sessions",
		},
	}))
	require.NoError(t, err)
	resp := decodeRPCResponse(t, raw)
	require.Nil(t, resp.Error)

	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result server.MCPToolCallResult
	require.NoError(t, json.Unmarshal(data, &result))
	require.Len(t, result.Content, 1)
	assert.False(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "id")
}

func TestHandleRequest_ToolsCall_UnknownTool_ReturnsIsError(t *testing.T) {
	s, _ := newTestServer(t)
	raw, err := s.HandleRequest(context.Background(), rpcRequest(t, "tools/call", map[string]interface{}{
		"name":      "not_a_real_tool",
		"arguments": map[string]interface{}{},
	}))
	require.NoError(t, err)
	resp := decodeRPCResponse(t, raw)
	require.Nil(t, resp.Error)

	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result server.MCPToolCallResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.True(t, result.IsError)
}

func TestHandleRequest_DeleteMemoryByID_MissingID_ReturnsServerError(t *testing.T) {
	s, _ := newTestServer(t)
	raw, err := s.HandleRequest(context.Background(), rpcRequest(t, "delete_memory_by_id", map[string]interface{}{}))
	require.NoError(t, err)
	resp := decodeRPCResponse(t, raw)
	require.NotNil(t, resp.Error)
}
