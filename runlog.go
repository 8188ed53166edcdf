package probgen

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RunLogger writes a per-run transcript of every model interaction and filter
// verdict to its own file. All methods are safe on a nil receiver so callers
// can disable transcripts by passing nil.
type RunLogger struct {
	file  *os.File
	mu    sync.Mutex
	runID string
}

// NewRunLogger creates a transcript file under dir for one generation run.
func NewRunLogger(dir, runID string, req GenerationRequest) (*RunLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run log directory: %w", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("%s.log", runID))
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	rl := &RunLogger{file: file, runID: runID}

	rl.Logf("=== Problem Generation Log ===\n")
	rl.Logf("Run ID: %s\n", runID)
	rl.Logf("Tech: %s\n", req.Tech)
	rl.Logf("Mode: %s\n", req.Mode)
	rl.Logf("Problem Count: %d\n", req.ProblemCount)
	rl.Logf("Difficulty: %s\n", req.Difficulty)
	if req.SourceMaterial != "" {
		rl.Logf("Source Material Length: %d characters\n", len(req.SourceMaterial))
	}
	rl.Logf("Started: %s\n", time.Now().Format(time.RFC3339))
	rl.Logf("==============================\n\n")

	return rl, nil
}

// Logf writes a formatted entry with a timestamp and flushes immediately.
func (rl *RunLogger) Logf(format string, args ...interface{}) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	timestamp := time.Now().Format("15:04:05.000")
	message := fmt.Sprintf(format, args...)

	fmt.Fprintf(rl.file, "[%s] %s", timestamp, message)
	rl.file.Sync()
}

// LogStage marks a pipeline stage transition.
func (rl *RunLogger) LogStage(stage StageName) {
	rl.Logf("--- stage: %s ---\n", stage)
}

// LogLLMRequest logs the prompt sent for one model call.
func (rl *RunLogger) LogLLMRequest(stage Stage, prompt string) {
	rl.Logf("=== LLM REQUEST (%s) ===\n", stage)
	rl.Logf("Prompt:\n%s\n", prompt)
	rl.Logf("========================\n\n")
}

// LogLLMResponse logs the raw content of one model response.
func (rl *RunLogger) LogLLMResponse(stage Stage, content string) {
	rl.Logf("=== LLM RESPONSE (%s) ===\n", stage)
	rl.Logf("Response:\n%s\n", content)
	rl.Logf("=========================\n\n")
}

// LogFilterResult records what the filter chain kept and dropped.
func (rl *RunLogger) LogFilterResult(candidates, kept int, rejections RejectionCounts) {
	rl.Logf("Filter: %d candidates, %d kept (self-critique %d, validator %d, language %d, schema %d, truncated %d)\n",
		candidates, kept,
		rejections.SelfCritique, rejections.Validator,
		rejections.Language, rejections.Schema, rejections.Truncated)
}

// Close finalizes and closes the transcript file.
func (rl *RunLogger) Close() error {
	if rl == nil {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.file != nil {
		timestamp := time.Now().Format("15:04:05.000")
		fmt.Fprintf(rl.file, "[%s] === Generation Complete ===\n", timestamp)
		fmt.Fprintf(rl.file, "[%s] Completed: %s\n", timestamp, time.Now().Format(time.RFC3339))
		return rl.file.Close()
	}
	return nil
}
