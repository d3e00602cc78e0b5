package extensions

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// SilentHandler is a slog.Handler that discards all log output
// Useful for testing when you don't want log output
type SilentHandler struct{}

// NewSilentHandler creates a new silent log handler
func NewSilentHandler() *SilentHandler {
	return &SilentHandler{}
}

func (h *SilentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return false
}

func (h *SilentHandler) Handle(ctx context.Context, record slog.Record) error {
	return nil
}

func (h *SilentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *SilentHandler) WithGroup(name string) slog.Handler {
	return h
}

// HumanHandler is a slog.Handler that formats logs for a terminal, with
// framed multi-line output for chain dumps and computation faults.
type HumanHandler struct {
	writer io.Writer
	level  slog.Level
	attrs  []slog.Attr
}

// NewHumanHandler creates a new human-readable log handler
func NewHumanHandler(writer io.Writer, level slog.Level) *HumanHandler {
	return &HumanHandler{
		writer: writer,
		level:  level,
	}
}

func (h *HumanHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *HumanHandler) Handle(ctx context.Context, record slog.Record) error {
	switch record.Message {
	case msgStageFailure:
		return h.handleStageFailure(record)
	case msgComputationFault:
		return h.handleComputationFault(record)
	}

	if _, err := fmt.Fprintf(h.writer, "[%s] %s\n", record.Level, record.Message); err != nil {
		return err
	}
	for _, a := range h.attrs {
		if _, err := fmt.Fprintf(h.writer, "  %s: %v\n", a.Key, a.Value); err != nil {
			return err
		}
	}
	var writeErr error
	record.Attrs(func(a slog.Attr) bool {
		if _, err := fmt.Fprintf(h.writer, "  %s: %v\n", a.Key, a.Value); err != nil {
			writeErr = err
			return false
		}
		return true
	})
	return writeErr
}

func recordAttrs(record slog.Record) map[string]string {
	out := make(map[string]string)
	record.Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value.String()
		return true
	})
	return out
}

func (h *HumanHandler) frame(title string, body func(w io.Writer) error) error {
	rule := strings.Repeat("=", 70)
	if _, err := fmt.Fprintf(h.writer, "\n%s\n[ChainDebug] %s\n%s\n", rule, title, rule); err != nil {
		return err
	}
	if err := body(h.writer); err != nil {
		return err
	}
	_, err := fmt.Fprintf(h.writer, "%s\n\n", rule)
	return err
}

func (h *HumanHandler) handleStageFailure(record slog.Record) error {
	a := recordAttrs(record)
	return h.frame(msgStageFailure, func(w io.Writer) error {
		if _, err := fmt.Fprintf(w, "\nPipeline: %s\nFailed Stage: %s\nError: %s\nOperation: %s\n",
			a["pipeline"], a["stage"], a["error"], a["operation"]); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "\nChain:%s", a["chain"])
		return err
	})
}

func (h *HumanHandler) handleComputationFault(record slog.Record) error {
	a := recordAttrs(record)
	return h.frame(msgComputationFault, func(w io.Writer) error {
		if _, err := fmt.Fprintf(w, "\nError: %s\n", a["error"]); err != nil {
			return err
		}
		if stage, ok := a["stage"]; ok {
			if _, err := fmt.Fprintf(w, "Stage: %s\n", stage); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(w, "\nStack Trace:\n%s\n", a["stack_trace"])
		return err
	})
}

func (h *HumanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

func (h *HumanHandler) WithGroup(name string) slog.Handler {
	return h
}
