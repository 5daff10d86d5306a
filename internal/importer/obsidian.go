package importer

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ImportResult is the final summary produced by a completed vault import job.
type ImportResult struct {
	JobID              string        `json:"job_id"`
	FilesFound         int           `json:"files_found"`
	FilesProcessed     int           `json:"files_processed"`
	FilesSkipped       int           `json:"files_skipped"`
	FilesFailed        int           `json:"files_failed"`
	MemoriesCreated    int           `json:"memories_created"`
	RelationshipsFound int           `json:"relationships_found"`
	Errors             []string      `json:"errors,omitempty"`
	Duration           time.Duration `json:"duration_ns"`
}

// ImportProgress carries live progress data for a running job.
type ImportProgress struct {
	JobID          string `json:"job_id"`
	Status         string `json:"status"` // "running" | "complete" | "failed"
	FilesFound     int    `json:"files_found"`
	FilesProcessed int    `json:"files_processed"`
	FilesTotal     int    `json:"files_total"`
	CurrentFile    string `json:"current_file,omitempty"`
	Message        string `json:"message,omitempty"`
}

// ImportJob tracks the state of an async vault import.
type ImportJob struct {
	mu       sync.RWMutex
	Progress ImportProgress
	Result   *ImportResult
	Done     chan struct{}
}

func newImportJob(jobID string) *ImportJob {
	return &ImportJob{
		Progress: ImportProgress{JobID: jobID, Status: "running"},
		Done:     make(chan struct{}),
	}
}

// GetProgress returns a snapshot of the current import progress.
func (j *ImportJob) GetProgress() ImportProgress {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Progress
}

// VaultImporter walks an Obsidian vault (or any Markdown directory tree) and
// feeds every note through a DocumentPipeline, tracking progress on a
// background job the way long-running ingestion operations are expected to
// be polled per the facade's load_memories flow (§4.14, §5).
type VaultImporter struct {
	pipeline  *DocumentPipeline
	projectID string

	mu   sync.RWMutex
	jobs map[string]*ImportJob
}

// NewVaultImporter creates an importer that stores memories for projectID
// through pipeline.
func NewVaultImporter(pipeline *DocumentPipeline, projectID string) *VaultImporter {
	return &VaultImporter{
		pipeline:  pipeline,
		projectID: projectID,
		jobs:      make(map[string]*ImportJob),
	}
}

// StartImport begins an asynchronous import of the directory at dirPath. It
// returns a job ID that callers poll with GetJobProgress / GetJobResult.
func (imp *VaultImporter) StartImport(ctx context.Context, dirPath string) (string, error) {
	info, err := os.Stat(dirPath)
	if err != nil {
		return "", fmt.Errorf("cannot access directory %q: %w", dirPath, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%q is not a directory", dirPath)
	}

	jobID := uuid.New().String()
	job := newImportJob(jobID)

	imp.mu.Lock()
	imp.jobs[jobID] = job
	imp.mu.Unlock()

	go func() {
		result := imp.runImport(ctx, job, dirPath)
		job.mu.Lock()
		job.Result = result
		if len(result.Errors) > 0 && result.FilesProcessed == 0 {
			job.Progress.Status = "failed"
			job.Progress.Message = "import failed"
		} else {
			job.Progress.Status = "complete"
			job.Progress.Message = fmt.Sprintf("imported %d memories from %d files",
				result.MemoriesCreated, result.FilesProcessed)
		}
		job.mu.Unlock()
		close(job.Done)
	}()

	return jobID, nil
}

// GetJobProgress returns the live progress for a job, or false if unknown.
func (imp *VaultImporter) GetJobProgress(jobID string) (ImportProgress, bool) {
	imp.mu.RLock()
	job, ok := imp.jobs[jobID]
	imp.mu.RUnlock()
	if !ok {
		return ImportProgress{}, false
	}
	return job.GetProgress(), true
}

// GetJobResult returns the final result for a completed job, or nil if the
// job is still running or unknown.
func (imp *VaultImporter) GetJobResult(jobID string) *ImportResult {
	imp.mu.RLock()
	job, ok := imp.jobs[jobID]
	imp.mu.RUnlock()
	if !ok {
		return nil
	}
	job.mu.RLock()
	defer job.mu.RUnlock()
	return job.Result
}

func (imp *VaultImporter) runImport(ctx context.Context, job *ImportJob, dirPath string) *ImportResult {
	start := time.Now()
	result := &ImportResult{JobID: job.Progress.JobID}

	files, err := collectMarkdownFiles(dirPath)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("walk error: %v", err))
		return result
	}

	result.FilesFound = len(files)
	job.mu.Lock()
	job.Progress.FilesFound = len(files)
	job.Progress.FilesTotal = len(files)
	job.mu.Unlock()

	if len(files) == 0 {
		result.Duration = time.Since(start)
		return result
	}

	relationshipSet := make(map[string]bool)
	rootByTitle := make(map[string]string) // lowercased title -> root chunk id
	type pending struct {
		rel    string
		result *IngestResult
	}
	var ingested []pending

	for i, absPath := range files {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, "context cancelled")
			break
		}

		rel, _ := filepath.Rel(dirPath, absPath)

		job.mu.Lock()
		job.Progress.FilesProcessed = i
		job.Progress.CurrentFile = rel
		job.mu.Unlock()

		data, err := os.ReadFile(absPath)
		if err != nil {
			log.Printf("import: skip %s: read error: %v", rel, err)
			result.FilesSkipped++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: read error: %v", rel, err))
			continue
		}

		if len(strings.TrimSpace(string(data))) == 0 {
			result.FilesSkipped++
			continue
		}

		ir, err := imp.pipeline.Ingest(ctx, imp.projectID, absPath, rel, data)
		if err != nil {
			log.Printf("import: failed to store %s: %v", rel, err)
			result.FilesFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: store error: %v", rel, err))
			continue
		}

		result.FilesProcessed++
		result.MemoriesCreated += len(ir.ChunkIDs)
		if ir.RootID != "" {
			rootByTitle[strings.ToLower(ir.Title)] = ir.RootID
		}
		ingested = append(ingested, pending{rel: rel, result: ir})
	}

	// Resolve cross-document wiki-links once every file's root chunk id is
	// known, per §4.11's wiki-link associative edge clause.
	for _, p := range ingested {
		if p.result.RootID == "" {
			continue
		}
		for _, wl := range p.result.WikiLinks {
			key := fmt.Sprintf("%s->%s", p.rel, strings.ToLower(wl.Target))
			if !relationshipSet[key] {
				relationshipSet[key] = true
				result.RelationshipsFound++
			}
			targetRoot, ok := rootByTitle[strings.ToLower(wl.Target)]
			if !ok || targetRoot == p.result.RootID {
				continue
			}
			if err := imp.pipeline.LinkWikiReference(ctx, imp.projectID, p.result.RootID, targetRoot); err != nil {
				log.Printf("import: failed to link wiki-reference %s -> %s: %v", p.rel, wl.Target, err)
			}
		}
	}

	result.Duration = time.Since(start)
	return result
}

// collectMarkdownFiles walks dirPath and returns all .md / .markdown files
// found, skipping hidden directories such as .obsidian, .git, .trash.
func collectMarkdownFiles(dirPath string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if ext == ".md" || ext == ".markdown" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
