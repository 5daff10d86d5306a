package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/cogmem/engram/internal/facade"
	"github.com/cogmem/engram/pkg/types"
)

// Server implements the Model Context Protocol over the System Facade. It
// holds no storage or engine state of its own; every tool call resolves to
// exactly one *facade.Facade method.
type Server struct {
	facade            *facade.Facade
	defaultProjectPath string
	sessionID         string
}

// ServerOption is a functional option for configuring a Server.
type ServerOption func(*Server)

// WithDefaultProjectPath sets the project path used when a tool call omits
// project_path. This lets a single-project deployment avoid repeating the
// path on every call.
func WithDefaultProjectPath(path string) ServerOption {
	return func(s *Server) {
		s.defaultProjectPath = path
	}
}

// NewServer constructs an MCP Server dispatching into f.
func NewServer(f *facade.Facade, opts ...ServerOption) *Server {
	s := &Server{facade: f, sessionID: uuid.New().String()}
	for _, opt := range opts {
		opt(s)
	}
	log.Printf("memento-mcp: session ID: %s", s.sessionID)
	return s
}

func (s *Server) projectPath(p string) string {
	if p != "" {
		return p
	}
	return s.defaultProjectPath
}

// HandleRequest processes one JSON-RPC 2.0 request and returns the encoded
// response. It never returns a transport-level error for a malformed or
// unknown request; those are always surfaced as a JSON-RPC error object.
func (s *Server) HandleRequest(ctx context.Context, requestJSON []byte) ([]byte, error) {
	var req JSONRPCRequest
	if err := json.Unmarshal(requestJSON, &req); err != nil {
		return s.errorResponse(nil, ErrCodeParseError, "Parse error", err.Error())
	}
	if req.JSONRPC != "2.0" {
		return s.errorResponse(req.ID, ErrCodeInvalidRequest, "Invalid JSON-RPC version", nil)
	}

	var result interface{}
	var err error

	switch req.Method {
	case "initialize":
		result, err = s.handleInitialize(ctx, req.Params)
	case "initialized":
		result = map[string]interface{}{}
	case "tools/list":
		result, err = s.handleToolsList(ctx, req.Params)
	case "tools/call":
		result, err = s.handleToolsCall(ctx, req.Params)
	case "store_experience":
		result, err = s.handleStoreExperience(ctx, req.Params)
	case "retrieve_memories":
		result, err = s.handleRetrieveMemories(ctx, req.Params)
	case "load_memories":
		result, err = s.handleLoadMemories(ctx, req.Params)
	case "load_git_patterns":
		result, err = s.handleLoadGitPatterns(ctx, req.Params)
	case "consolidate_memories":
		result, err = s.handleConsolidateMemories(ctx, req.Params)
	case "status":
		result, err = s.handleStatus(ctx, req.Params)
	case "delete_memory_by_id":
		result, err = s.handleDeleteMemoryByID(ctx, req.Params)
	case "delete_memories_by_tags":
		result, err = s.handleDeleteMemoriesByTags(ctx, req.Params)
	case "delete_memories_by_source_path":
		result, err = s.handleDeleteMemoriesBySourcePath(ctx, req.Params)
	default:
		return s.errorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
	}

	if err != nil {
		return s.errorResponse(req.ID, ErrCodeServerError, err.Error(), nil)
	}
	return s.successResponse(req.ID, result)
}

func (s *Server) handleInitialize(ctx context.Context, params interface{}) (interface{}, error) {
	return MCPInitializeResult{
		ProtocolVersion: "2024-11-05",
		Capabilities:    MCPServerCapabilities{Tools: &MCPToolsCapability{}},
		ServerInfo:      MCPServerInfo{Name: "memento", Version: "1.0.0"},
	}, nil
}

func (s *Server) handleToolsList(ctx context.Context, params interface{}) (interface{}, error) {
	return MCPToolsListResult{Tools: s.buildToolsList()}, nil
}

// handleToolsCall dispatches a tools/call request to the matching native
// handler and wraps the result in the MCP content envelope.
func (s *Server) handleToolsCall(ctx context.Context, params interface{}) (interface{}, error) {
	var p MCPToolCallParams
	if err := s.unmarshalParams(params, &p); err != nil {
		return nil, err
	}

	argsJSON, err := json.Marshal(p.Arguments)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal arguments: %w", err)
	}
	var rawParams interface{}
	if err := json.Unmarshal(argsJSON, &rawParams); err != nil {
		return nil, fmt.Errorf("failed to unmarshal arguments: %w", err)
	}

	var result interface{}
	var handlerErr error

	switch p.Name {
	case "store_experience":
		result, handlerErr = s.handleStoreExperience(ctx, rawParams)
	case "retrieve_memories":
		result, handlerErr = s.handleRetrieveMemories(ctx, rawParams)
	case "load_memories":
		result, handlerErr = s.handleLoadMemories(ctx, rawParams)
	case "load_git_patterns":
		result, handlerErr = s.handleLoadGitPatterns(ctx, rawParams)
	case "consolidate_memories":
		result, handlerErr = s.handleConsolidateMemories(ctx, rawParams)
	case "status":
		result, handlerErr = s.handleStatus(ctx, rawParams)
	case "delete_memory_by_id":
		result, handlerErr = s.handleDeleteMemoryByID(ctx, rawParams)
	case "delete_memories_by_tags":
		result, handlerErr = s.handleDeleteMemoriesByTags(ctx, rawParams)
	case "delete_memories_by_source_path":
		result, handlerErr = s.handleDeleteMemoriesBySourcePath(ctx, rawParams)
	default:
		return &MCPToolCallResult{
			Content: []MCPToolCallContent{{Type: "text", Text: fmt.Sprintf("unknown tool: %s", p.Name)}},
			IsError: true,
		}, nil
	}

	if handlerErr != nil {
		return &MCPToolCallResult{
			Content: []MCPToolCallContent{{Type: "text", Text: handlerErr.Error()}},
			IsError: true,
		}, nil
	}

	text, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &MCPToolCallResult{Content: []MCPToolCallContent{{Type: "text", Text: string(text)}}}, nil
}

func (s *Server) handleStoreExperience(ctx context.Context, params interface{}) (interface{}, error) {
	var a storeExperienceArgs
	if err := s.unmarshalParams(params, &a); err != nil {
		return nil, err
	}
	if a.Text == "" {
		return nil, fmt.Errorf("text is required")
	}
	opts := facade.StoreExperienceOptions{Tags: a.Tags, Context: a.Context, Importance: a.Importance}
	if a.HierarchyLevel != nil {
		lvl := types.Level(*a.HierarchyLevel)
		opts.HierarchyLevel = &lvl
	}
	id, err := s.facade.StoreExperience(ctx, s.projectPath(a.ProjectPath), a.Text, opts)
	if err != nil {
		return nil, err
	}
	return map[string]string{"id": id}, nil
}

func (s *Server) handleRetrieveMemories(ctx context.Context, params interface{}) (interface{}, error) {
	var a retrieveMemoriesArgs
	if err := s.unmarshalParams(params, &a); err != nil {
		return nil, err
	}
	if a.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	return s.facade.RetrieveMemories(ctx, s.projectPath(a.ProjectPath), a.Query, facade.RetrieveOptions{Types: a.Types, Limit: a.Limit})
}

func (s *Server) handleLoadMemories(ctx context.Context, params interface{}) (interface{}, error) {
	var a loadMemoriesArgs
	if err := s.unmarshalParams(params, &a); err != nil {
		return nil, err
	}
	if a.SourcePath == "" {
		return nil, fmt.Errorf("source_path is required")
	}
	return s.facade.LoadMemories(ctx, s.projectPath(a.ProjectPath), a.SourcePath)
}

func (s *Server) handleLoadGitPatterns(ctx context.Context, params interface{}) (interface{}, error) {
	var a loadGitPatternsArgs
	if err := s.unmarshalParams(params, &a); err != nil {
		return nil, err
	}
	if a.RepoPath == "" {
		return nil, fmt.Errorf("repo_path is required")
	}
	return s.facade.LoadGitPatterns(ctx, s.projectPath(a.ProjectPath), a.RepoPath)
}

func (s *Server) handleConsolidateMemories(ctx context.Context, params interface{}) (interface{}, error) {
	var a consolidateMemoriesArgs
	if err := s.unmarshalParams(params, &a); err != nil {
		return nil, err
	}
	return s.facade.ConsolidateMemories(ctx, s.projectPath(a.ProjectPath), a.DryRun)
}

func (s *Server) handleStatus(ctx context.Context, params interface{}) (interface{}, error) {
	var a statusArgs
	if err := s.unmarshalParams(params, &a); err != nil {
		return nil, err
	}
	return s.facade.Status(ctx, s.projectPath(a.ProjectPath), a.Detailed)
}

func (s *Server) handleDeleteMemoryByID(ctx context.Context, params interface{}) (interface{}, error) {
	var a deleteMemoryByIDArgs
	if err := s.unmarshalParams(params, &a); err != nil {
		return nil, err
	}
	if a.ID == "" {
		return nil, fmt.Errorf("id is required")
	}
	return s.facade.DeleteMemoryByID(ctx, s.projectPath(a.ProjectPath), a.ID)
}

func (s *Server) handleDeleteMemoriesByTags(ctx context.Context, params interface{}) (interface{}, error) {
	var a deleteMemoriesByTagsArgs
	if err := s.unmarshalParams(params, &a); err != nil {
		return nil, err
	}
	if len(a.Tags) == 0 {
		return nil, fmt.Errorf("tags is required")
	}
	return s.facade.DeleteMemoriesByTags(ctx, s.projectPath(a.ProjectPath), a.Tags, a.DryRun)
}

func (s *Server) handleDeleteMemoriesBySourcePath(ctx context.Context, params interface{}) (interface{}, error) {
	var a deleteMemoriesBySourcePathArgs
	if err := s.unmarshalParams(params, &a); err != nil {
		return nil, err
	}
	if a.SourcePath == "" {
		return nil, fmt.Errorf("source_path is required")
	}
	return s.facade.DeleteMemoriesBySourcePath(ctx, s.projectPath(a.ProjectPath), a.SourcePath)
}

// buildToolsList returns the canonical MCP tool definitions for the nine
// System Facade operations (§4.14).
func (s *Server) buildToolsList() []MCPTool {
	return []MCPTool{
		{
			Name:        "store_experience",
			Description: "Encode text into a cognitive memory and store it for later retrieval.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"text"},
				"properties": map[string]interface{}{
					"project_path":    map[string]interface{}{"type": "string", "description": "Absolute path identifying the project; defaults to the server's configured default"},
					"text":            map[string]interface{}{"type": "string", "description": "The experience text to encode and store"},
					"hierarchy_level": map[string]interface{}{"type": "integer", "description": "0=concept, 1=context, 2=episode; defaults to 1"},
					"importance":      map[string]interface{}{"type": "number", "description": "Initial importance in [0,1]; defaults to 0.5"},
					"tags":            map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
					"context":         map[string]interface{}{"type": "string", "description": "Optional surrounding context prefixed onto the stored content"},
				},
			},
		},
		{
			Name:        "retrieve_memories",
			Description: "Encode a query, spread activation across the memory graph, and return core, peripheral, and bridge memories.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"query"},
				"properties": map[string]interface{}{
					"project_path": map[string]interface{}{"type": "string"},
					"query":        map[string]interface{}{"type": "string"},
					"types":        map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string", "enum": []string{"core", "peripheral", "bridge"}}},
					"limit":        map[string]interface{}{"type": "integer"},
				},
			},
		},
		{
			Name:        "load_memories",
			Description: "Ingest a Markdown file or directory tree as document memories.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"source_path"},
				"properties": map[string]interface{}{
					"project_path": map[string]interface{}{"type": "string"},
					"source_path":  map[string]interface{}{"type": "string"},
				},
			},
		},
		{
			Name:        "load_git_patterns",
			Description: "Incrementally ingest git commit history into commit, co-change, hotspot, and solution memories.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"repo_path"},
				"properties": map[string]interface{}{
					"project_path": map[string]interface{}{"type": "string"},
					"repo_path":    map[string]interface{}{"type": "string"},
				},
			},
		},
		{
			Name:        "consolidate_memories",
			Description: "Promote due episodic memories to semantic and report expired ones.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"project_path": map[string]interface{}{"type": "string"},
					"dry_run":      map[string]interface{}{"type": "boolean"},
				},
			},
		},
		{
			Name:        "status",
			Description: "Report memory counts and recent activity for a project.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"project_path": map[string]interface{}{"type": "string"},
					"detailed":     map[string]interface{}{"type": "boolean"},
				},
			},
		},
		{
			Name:        "delete_memory_by_id",
			Description: "Delete one memory and its incident edges.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"id"},
				"properties": map[string]interface{}{
					"project_path": map[string]interface{}{"type": "string"},
					"id":           map[string]interface{}{"type": "string"},
				},
			},
		},
		{
			Name:        "delete_memories_by_tags",
			Description: "Delete every memory matching any of the given tags.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"tags"},
				"properties": map[string]interface{}{
					"project_path": map[string]interface{}{"type": "string"},
					"tags":         map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
					"dry_run":      map[string]interface{}{"type": "boolean"},
				},
			},
		},
		{
			Name:        "delete_memories_by_source_path",
			Description: "Delete every memory ingested from the given source_path.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"source_path"},
				"properties": map[string]interface{}{
					"project_path": map[string]interface{}{"type": "string"},
					"source_path":  map[string]interface{}{"type": "string"},
				},
			},
		},
	}
}

func (s *Server) unmarshalParams(params interface{}, dest interface{}) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal params: %w", err)
	}
	return nil
}

func (s *Server) successResponse(id interface{}, result interface{}) ([]byte, error) {
	return json.Marshal(JSONRPCResponse{JSONRPC: "2.0", Result: result, ID: id})
}

func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) ([]byte, error) {
	return json.Marshal(JSONRPCResponse{JSONRPC: "2.0", Error: &JSONRPCError{Code: code, Message: message, Data: data}, ID: id})
}
