package logging

import (
	"io"
	"log/slog"
)

type LogCode string

const (
	// SYSTEM EVENTS (SYSTEM*)
	SYSTEM LogCode = "SYSTEM"

	// BLOB OPERATIONS (BLOB*)
	BLOB_STORE    LogCode = "BLOB_STORE"
	BLOB_RETRIEVE LogCode = "BLOB_RETRIEVE"
	BLOB_DELETE   LogCode = "BLOB_DELETE"
	BLOB_SWEEP    LogCode = "BLOB_SWEEP"

	// SUBMISSION OPERATIONS (SUBMISSION*)
	SUBMISSION_CREATE LogCode = "SUBMISSION_CREATE"
	SUBMISSION_REVIEW LogCode = "SUBMISSION_REVIEW"
	SUBMISSION_DELETE LogCode = "SUBMISSION_DELETE"

	// CIRCULAR OPERATIONS (CIRCULAR*)
	CIRCULAR_UPLOAD LogCode = "CIRCULAR_UPLOAD"
	CIRCULAR_UPDATE LogCode = "CIRCULAR_UPDATE"
	CIRCULAR_DELETE LogCode = "CIRCULAR_DELETE"
)

// Code returns the attribute used to tag a log line with its operation code.
func Code(code LogCode) slog.Attr {
	return slog.String("code", string(code))
}

// VictoriaLogs has fixed field name for time (_time) and message(_msg). This function maps fields msg -> _msg and time -> _time.
func convertKeysToVictoriaLogs(keys []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		return slog.Attr{Key: "_time", Value: slog.StringValue(a.Value.Time().Format("2006-01-02 15:04:05"))}
	}
	if a.Key == slog.MessageKey {
		return slog.Attr{Key: "_msg", Value: a.Value}
	}
	return a
}

func GetVictoriaLogsOptions(addSource bool) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level:       slog.LevelDebug,
		ReplaceAttr: convertKeysToVictoriaLogs,
		AddSource:   addSource,
	}
}

// NewJsonLogger returns a logger that writes VictoriaLogs compatible json lines to out.
func NewJsonLogger(out io.Writer, addSource bool) *slog.Logger {
	return slog.New(slog.NewJSONHandler(out, GetVictoriaLogsOptions(addSource)))
}
