package questionbank

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LLMLogger writes the transcript of one generation run to <dir>/<runID>.log.
// A nil *LLMLogger is valid and discards everything.
type LLMLogger struct {
	file  *os.File
	mu    sync.Mutex
	runID string
}

// NewLLMLogger creates the transcript file for a run and writes its header
func NewLLMLogger(dir, runID string, params GenerationParams) (*LLMLogger, error) {
	if dir == "" {
		dir = "log"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.Create(filepath.Join(dir, runID+".log"))
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	logger := &LLMLogger{file: file, runID: runID}

	logger.Logf("=== Question Generation Log ===\n")
	logger.Logf("Run ID: %s\n", runID)
	logger.Logf("Bank ID: %s\n", params.BankID)
	logger.Logf("Count: %d\n", params.Count)
	if len(params.Categories) > 0 {
		logger.Logf("Categories: %s\n", strings.Join(params.Categories, ", "))
	}
	if params.KnowledgeCategory != "" {
		logger.Logf("Knowledge Category: %s\n", params.KnowledgeCategory)
	}
	if params.Difficulty != "" {
		logger.Logf("Difficulty: %s\n", params.Difficulty)
	}
	if params.SourceMaterial != "" {
		logger.Logf("Source Material Length: %d characters\n", len(params.SourceMaterial))
	}
	logger.Logf("Started: %s\n", time.Now().Format(time.RFC3339))
	logger.Logf("========================\n\n")

	return logger, nil
}

// Logf writes a timestamped entry
func (ll *LLMLogger) Logf(format string, args ...interface{}) {
	if ll == nil {
		return
	}
	ll.mu.Lock()
	defer ll.mu.Unlock()
	ll.writef(format, args...)
}

func (ll *LLMLogger) writef(format string, args ...interface{}) {
	if ll.file == nil {
		return
	}
	fmt.Fprintf(ll.file, "[%s] %s", time.Now().Format("15:04:05.000"), fmt.Sprintf(format, args...))
	ll.file.Sync()
}

// LogLLMRequest logs a model request
func (ll *LLMLogger) LogLLMRequest(module, prompt string) {
	ll.Logf("=== LLM REQUEST (%s) ===\nPrompt:\n%s\n=====================\n\n", module, prompt)
}

// LogLLMResponse logs a model response
func (ll *LLMLogger) LogLLMResponse(module, response string) {
	ll.Logf("=== LLM RESPONSE (%s) ===\nResponse:\n%s\n======================\n\n", module, response)
}

// LogQuestionResult logs what happened to one candidate question
func (ll *LLMLogger) LogQuestionResult(questionID, action, reason string) {
	ll.Logf("Question %s: %s - %s\n", questionID, action, reason)
}

// Close writes the footer and closes the file
func (ll *LLMLogger) Close() error {
	if ll == nil {
		return nil
	}
	ll.mu.Lock()
	defer ll.mu.Unlock()

	if ll.file == nil {
		return nil
	}
	ll.writef("=== Generation Complete ===\nCompleted: %s\n", time.Now().Format(time.RFC3339))
	err := ll.file.Close()
	ll.file = nil
	return err
}
