package dependency

import (
	"encoding/json"
	"log"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// AuditLogger records every external command attempt as one JSON line.
type AuditLogger struct {
	logger *log.Logger
}

// NewAuditLogger creates an AuditLogger writing to a size-rotated file.
func NewAuditLogger(logPath string) *AuditLogger {
	writer := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    100, // MB
		MaxBackups: 10,
		MaxAge:     30, // days
		Compress:   true,
	}
	return &AuditLogger{logger: log.New(writer, "", 0)}
}

// LogExecution records a command execution attempt (successful or failed).
// Environment values are never written since they carry the HF token.
func (a *AuditLogger) LogExecution(req CommandRequest, resp CommandResponse, err error, mode ExecutionMode) {
	if a == nil {
		return
	}
	record := map[string]interface{}{
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"command":     req.Command,
		"args":        req.Args,
		"mode":        mode,
		"result":      "success",
		"exit_code":   resp.ExitCode,
		"duration_ms": resp.Duration.Milliseconds(),
	}
	if err != nil || resp.ExitCode != 0 {
		record["result"] = "failed"
		if err != nil {
			record["error_message"] = err.Error()
		}
	}

	data, _ := json.Marshal(record)
	a.logger.Println(string(data))
}

// LogRejection records a request refused by ValidateCommandRequest.
func (a *AuditLogger) LogRejection(req CommandRequest, reason string) {
	if a == nil {
		return
	}
	record := map[string]interface{}{
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
		"command":          req.Command,
		"args":             req.Args,
		"result":           "rejected",
		"rejection_reason": reason,
	}

	data, _ := json.Marshal(record)
	a.logger.Println(string(data))
}
