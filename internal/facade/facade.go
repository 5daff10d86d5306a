// Package facade implements the System Facade (§4.14): the sole boundary
// external collaborators call through. It composes CognitiveEncoder,
// DualMemoryStore, ActivationEngine, BridgeDiscovery, RetrievalCoordinator,
// ActivityTracker, and the ingestion pipelines behind nine operations, all
// taking a context.Context first and returning structured records rather
// than formatted output, per §5 and §4.14.
package facade

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/cogmem/engram/internal/cognitive"
	"github.com/cogmem/engram/internal/config"
	"github.com/cogmem/engram/internal/connections"
	"github.com/cogmem/engram/internal/engine"
	"github.com/cogmem/engram/internal/gitlog"
	"github.com/cogmem/engram/internal/importer"
	"github.com/cogmem/engram/internal/memerr"
	"github.com/cogmem/engram/internal/storage"
	"github.com/cogmem/engram/pkg/types"
)

// Facade is the engine's only externally-facing entry point. Every method
// resolves projectPath to a project_id via the Connection Manager, builds
// the per-call component stack over that project's store, and never
// returns a storage or engine type directly.
type Facade struct {
	cfg     *config.Config
	conns   *connections.Manager
	encoder *cognitive.CognitiveEncoder
	commits gitlog.CommitSource
}

// New constructs a Facade. commits may be nil; load_git_patterns then fails
// with memerr.StoreUnavailable instead of panicking, so a deployment that
// never ingests git history doesn't need to wire go-git at all.
func New(cfg *config.Config, conns *connections.Manager, encoder *cognitive.CognitiveEncoder, commits gitlog.CommitSource) *Facade {
	return &Facade{cfg: cfg, conns: conns, encoder: encoder, commits: commits}
}

// components is the per-call engine stack built fresh over one project's
// store. Construction is pure wiring, no I/O, so building it on every call
// is cheap; all real state lives in storage.
type components struct {
	ps         *connections.ProjectStore
	activation *engine.ActivationEngine
	bridge     *engine.BridgeDiscovery
	decay      *engine.DualMemoryStore
	activity   *engine.ActivityTracker
	retrieval  *engine.RetrievalCoordinator
	docs       *importer.DocumentPipeline
	gitLoader  *gitlog.Loader
}

func (f *Facade) open(ctx context.Context, projectPath string) (*components, error) {
	ps, err := f.conns.Get(ctx, projectPath)
	if err != nil {
		return nil, err
	}

	activity := engine.NewActivityTracker(ps.Memories, f.cfg.Activity)
	decay := engine.NewDualMemoryStore(ps.Memories, ps.Graph, activity, f.cfg.Decay)
	activation := engine.NewActivationEngine(ps.Graph, f.cfg.Activation)
	cache := engine.NewBridgeCache(f.cfg.Bridge.CacheSize, f.cfg.Bridge.CacheTTL)
	bridge := engine.NewBridgeDiscovery(ps.Vectors, ps.Graph, cache, f.cfg.Bridge)
	retrieval := engine.NewRetrievalCoordinator(f.encoder, ps.Vectors, ps.Memories, activation, bridge, decay, f.cfg.Activation)
	docs := importer.NewDocumentPipeline(f.encoder, ps.Memories, ps.Vectors, ps.Graph, f.cfg.Ingestion)

	var loader *gitlog.Loader
	if f.commits != nil {
		loader = gitlog.NewLoader(f.commits, f.encoder, ps.Memories, ps.Graph)
	}

	return &components{
		ps: ps, activation: activation, bridge: bridge, decay: decay,
		activity: activity, retrieval: retrieval, docs: docs, gitLoader: loader,
	}, nil
}

// StoreExperienceOptions carries store_experience's optional fields (§4.14).
type StoreExperienceOptions struct {
	HierarchyLevel *types.Level
	Importance     *float64
	Tags           []string
	Context        string
}

// StoreExperience encodes text into a cognitive vector and stores it as a
// new episodic memory, defaulting to L1 (context) and importance 0.5 when
// the caller doesn't specify either.
func (f *Facade) StoreExperience(ctx context.Context, projectPath, text string, opts StoreExperienceOptions) (string, error) {
	c, err := f.open(ctx, projectPath)
	if err != nil {
		return "", err
	}

	content := text
	if opts.Context != "" {
		content = opts.Context + " :: " + text
	}

	vector, dims, err := f.encoder.Encode(ctx, content)
	if err != nil {
		return "", err
	}

	level := types.LevelContext
	if opts.HierarchyLevel != nil {
		level = *opts.HierarchyLevel
	}
	importance := 0.5
	if opts.Importance != nil {
		importance = *opts.Importance
	}

	id := "exp::" + uuid.New().String()
	now := time.Now().UTC()
	mem := &types.Memory{
		ID:              id,
		ProjectID:       c.ps.ProjectID,
		Level:           level,
		Kind:            types.KindEpisodic,
		Content:         content,
		CognitiveVector: vector,
		Dimensions:      dims,
		CreatedAt:       now,
		LastAccessedAt:  now,
		Importance:      importance,
		Tags:            opts.Tags,
	}
	if err := c.ps.Memories.CreateMemory(ctx, mem); err != nil {
		return "", err
	}
	if err := c.ps.Vectors.EnsureCollection(ctx, c.ps.ProjectID, level, len(vector)); err != nil {
		return "", err
	}
	if err := c.ps.Vectors.Upsert(ctx, c.ps.ProjectID, level, id, vector); err != nil {
		return "", err
	}
	return id, nil
}

// RetrieveOptions carries retrieve_memories's optional fields.
type RetrieveOptions struct {
	Types []string // subset of {"core", "peripheral", "bridge"}; empty means all
	Limit int
}

// RetrievalResponse is retrieve_memories's structured result (§4.14).
type RetrievalResponse struct {
	Core       []engine.RetrievalResult
	Peripheral []engine.RetrievalResult
	Bridge     []engine.RetrievalResult
	Stats      engine.RetrievalStats
}

func wantsType(types_ []string, name string) bool {
	if len(types_) == 0 {
		return true
	}
	for _, t := range types_ {
		if t == name {
			return true
		}
	}
	return false
}

// RetrieveMemories runs the encode -> seed -> spread -> bridge pipeline
// (§4.10) and buckets results by class, truncating each bucket to limit.
func (f *Facade) RetrieveMemories(ctx context.Context, projectPath, query string, opts RetrieveOptions) (*RetrievalResponse, error) {
	c, err := f.open(ctx, projectPath)
	if err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	results, stats, err := c.retrieval.Retrieve(ctx, c.ps.ProjectID, query, limit)
	if err != nil {
		return nil, err
	}

	resp := &RetrievalResponse{Stats: stats}
	for _, r := range results {
		switch r.Class {
		case types.ClassCore:
			if wantsType(opts.Types, "core") && len(resp.Core) < limit {
				resp.Core = append(resp.Core, r)
			}
		case types.ClassPeripheral:
			if wantsType(opts.Types, "peripheral") && len(resp.Peripheral) < limit {
				resp.Peripheral = append(resp.Peripheral, r)
			}
		case types.ClassBridge:
			if wantsType(opts.Types, "bridge") && len(resp.Bridge) < limit {
				resp.Bridge = append(resp.Bridge, r)
			}
		}
	}
	return resp, nil
}

// LoadMemoriesResult is load_memories's structured result (§4.14).
type LoadMemoriesResult struct {
	Added            int
	Updated          int
	Failed           int
	ConnectionsAdded int
	Errors           []string
}

// ConsolidateResult is consolidate_memories's structured result (§4.14).
type ConsolidateResult struct {
	Promoted []string
	Expired  []string
}

// ConsolidateMemories promotes due episodic memories to semantic and
// reports (without removing, since deletion is always an explicit call)
// every episodic memory whose effective strength has decayed to the floor.
// When dryRun is true, no promotion is applied; candidates are still
// reported.
func (f *Facade) ConsolidateMemories(ctx context.Context, projectPath string, dryRun bool) (*ConsolidateResult, error) {
	c, err := f.open(ctx, projectPath)
	if err != nil {
		return nil, err
	}

	result := &ConsolidateResult{}

	if dryRun {
		return f.scanEpisodic(ctx, c, func(m *types.Memory) {
			if ok, err := c.decay.ConsolidationCandidate(ctx, c.ps.ProjectID, m); err == nil && ok {
				result.Promoted = append(result.Promoted, m.ID)
			}
			if expired, err := c.decay.Expired(ctx, c.ps.ProjectID, m); err == nil && expired {
				result.Expired = append(result.Expired, m.ID)
			}
		}, result)
	}

	promoted, err := c.decay.ConsolidateDue(ctx, c.ps.ProjectID)
	if err != nil {
		return nil, err
	}
	result.Promoted = promoted

	return f.scanEpisodic(ctx, c, func(m *types.Memory) {
		if expired, err := c.decay.Expired(ctx, c.ps.ProjectID, m); err == nil && expired {
			result.Expired = append(result.Expired, m.ID)
		}
	}, result)
}

// scanEpisodic pages through every episodic memory, invoking visit on each,
// then returns result.
func (f *Facade) scanEpisodic(ctx context.Context, c *components, visit func(*types.Memory), result *ConsolidateResult) (*ConsolidateResult, error) {
	kind := types.KindEpisodic
	page := 1
	for {
		batch, err := c.ps.Memories.List(ctx, storage.ListOptions{
			ProjectID: c.ps.ProjectID,
			Kind:      &kind,
			Page:      page,
			Limit:     200,
		})
		if err != nil {
			return nil, err
		}
		for i := range batch.Items {
			visit(&batch.Items[i])
		}
		if !batch.HasMore {
			break
		}
		page++
	}
	return result, nil
}

// DeleteResult is the shared shape of every delete_* operation (§4.14).
type DeleteResult struct {
	Deleted       int
	VectorFailures int
}

// DeleteMemoryByID deletes one memory by id, cascading edges and bridge
// cache entries per MemoryStore.DeleteMemory's contract.
func (f *Facade) DeleteMemoryByID(ctx context.Context, projectPath, id string) (*DeleteResult, error) {
	c, err := f.open(ctx, projectPath)
	if err != nil {
		return nil, err
	}
	if err := c.ps.Memories.DeleteMemory(ctx, c.ps.ProjectID, id); err != nil {
		return nil, err
	}
	result := &DeleteResult{Deleted: 1}
	for _, lvl := range []types.Level{types.LevelConcept, types.LevelContext, types.LevelEpisode} {
		if err := c.ps.Vectors.Delete(ctx, c.ps.ProjectID, lvl, []string{id}); err != nil {
			result.VectorFailures++
		}
	}
	return result, nil
}

// DeleteMemoriesByTags deletes every memory matching any of tags. When
// dryRun is true, nothing is deleted; Deleted reports the count that would
// have been removed.
func (f *Facade) DeleteMemoriesByTags(ctx context.Context, projectPath string, tags []string, dryRun bool) (*DeleteResult, error) {
	c, err := f.open(ctx, projectPath)
	if err != nil {
		return nil, err
	}
	if dryRun {
		matches, err := c.ps.Memories.QueryByTags(ctx, c.ps.ProjectID, tags)
		if err != nil {
			return nil, err
		}
		return &DeleteResult{Deleted: len(matches)}, nil
	}
	n, err := c.ps.Memories.DeleteByTags(ctx, c.ps.ProjectID, tags)
	if err != nil {
		return nil, err
	}
	return &DeleteResult{Deleted: n}, nil
}

// DeleteMemoriesBySourcePath deletes every memory ingested from sourcePath.
func (f *Facade) DeleteMemoriesBySourcePath(ctx context.Context, projectPath, sourcePath string) (*DeleteResult, error) {
	c, err := f.open(ctx, projectPath)
	if err != nil {
		return nil, err
	}
	n, err := c.ps.Memories.DeleteBySourcePath(ctx, c.ps.ProjectID, sourcePath)
	if err != nil {
		return nil, err
	}
	return &DeleteResult{Deleted: n}, nil
}

// StatusResult is status's structured result (§4.14).
type StatusResult struct {
	ProjectID       string
	TotalMemories   int
	ByLevel         map[types.Level]int
	ByKind          map[types.Kind]int
	RecentAccesses  int
	RecentCommits   int
	ActivityWindow  time.Duration
}

// Status reports counts by level/kind and recent activity. When detailed is
// false, ByLevel/ByKind are omitted (left nil) to keep the response small.
func (f *Facade) Status(ctx context.Context, projectPath string, detailed bool) (*StatusResult, error) {
	c, err := f.open(ctx, projectPath)
	if err != nil {
		return nil, err
	}

	result := &StatusResult{ProjectID: c.ps.ProjectID, ActivityWindow: f.cfg.Activity.Window}

	commitCount, accessCount, err := c.ps.Memories.QueryActivityWindow(ctx, c.ps.ProjectID, f.cfg.Activity.Window)
	if err != nil {
		return nil, err
	}
	result.RecentCommits = commitCount
	result.RecentAccesses = accessCount

	if !detailed {
		return result, nil
	}

	result.ByLevel = make(map[types.Level]int)
	result.ByKind = make(map[types.Kind]int)
	for _, lvl := range []types.Level{types.LevelConcept, types.LevelContext, types.LevelEpisode} {
		level := lvl
		page := 1
		for {
			batch, err := c.ps.Memories.List(ctx, storage.ListOptions{
				ProjectID: c.ps.ProjectID,
				Level:     &level,
				Page:      page,
				Limit:     200,
			})
			if err != nil {
				return nil, err
			}
			result.ByLevel[level] += len(batch.Items)
			for _, m := range batch.Items {
				result.ByKind[m.Kind]++
				result.TotalMemories++
			}
			if !batch.HasMore {
				break
			}
			page++
		}
	}
	return result, nil
}

// LoadMemories ingests a single Markdown file or a whole directory tree
// rooted at sourcePath into documents (§4.11), replacing any prior chunks
// for files that were already ingested from the same source_path.
func (f *Facade) LoadMemories(ctx context.Context, projectPath, sourcePath string) (*LoadMemoriesResult, error) {
	c, err := f.open(ctx, projectPath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, memerr.Wrap(memerr.InvalidInput, "stat source path", err)
	}

	result := &LoadMemoriesResult{}

	if !info.IsDir() {
		content, err := os.ReadFile(sourcePath)
		if err != nil {
			return nil, memerr.Wrap(memerr.InvalidInput, "read source file", err)
		}
		rel := filepath.Base(sourcePath)
		if _, err := c.docs.Ingest(ctx, c.ps.ProjectID, sourcePath, rel, content); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err.Error())
			return result, nil
		}
		result.Added++
		return result, nil
	}

	importerJob := importer.NewVaultImporter(c.docs, c.ps.ProjectID)
	jobID, err := importerJob.StartImport(ctx, sourcePath)
	if err != nil {
		return nil, memerr.Wrap(memerr.InvalidInput, "start vault import", err)
	}
	for {
		progress, ok := importerJob.GetJobProgress(jobID)
		if !ok || progress.Status != "running" {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	imported := importerJob.GetJobResult(jobID)
	if imported == nil {
		return result, nil
	}
	result.Added = imported.MemoriesCreated
	result.Failed = imported.FilesFailed
	result.ConnectionsAdded = imported.RelationshipsFound
	result.Errors = imported.Errors
	return result, nil
}

// LoadGitPatterns runs one incremental git ingestion pass over repoPath
// (§4.12), deriving commit memories and co-change/hotspot/solution pattern
// memories since the project's last watermark.
func (f *Facade) LoadGitPatterns(ctx context.Context, projectPath, repoPath string) (*gitlog.LoadResult, error) {
	c, err := f.open(ctx, projectPath)
	if err != nil {
		return nil, err
	}
	if c.gitLoader == nil {
		return nil, memerr.New(memerr.StoreUnavailable, "git commit source not configured")
	}
	return c.gitLoader.Load(ctx, c.ps.ProjectID, repoPath)
}
