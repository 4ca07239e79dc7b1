package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/etnz/tradeledger"
	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// Tool describes one function of the closed tool set.
type Tool struct {
	Name        string
	Description string
	// Parameters is the JSON schema of the arguments object.
	Parameters map[string]any
	// ReadOnly tools can run concurrently within a round.
	ReadOnly bool
}

// Declaration returns the Gemini declaration of the tool.
func (t Tool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:                 t.Name,
		Description:          t.Description,
		ParametersJsonSchema: t.Parameters,
	}
}

// handler runs a tool with raw model arguments and returns its success payload.
type handler func(ctx context.Context, args map[string]any) (any, error)

type entry struct {
	Tool
	call handler
}

// Library is the closed dispatch table from tool names to typed handlers.
// Unknown names are rejected, never resolved dynamically.
type Library struct {
	entries []entry
	index   map[string]int
	logger  *zap.Logger
	metrics *Metrics
}

func newLibrary(logger *zap.Logger, metrics *Metrics, entries ...entry) *Library {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Library{entries: entries, index: make(map[string]int, len(entries)), logger: logger, metrics: metrics}
	for i, e := range entries {
		l.index[e.Name] = i
	}
	return l
}

// Tools returns the descriptors of the tool set, in declaration order.
func (l *Library) Tools() []Tool {
	tools := make([]Tool, len(l.entries))
	for i, e := range l.entries {
		tools[i] = e.Tool
	}
	return tools
}

// Lookup returns the descriptor of the tool called name.
func (l *Library) Lookup(name string) (Tool, bool) {
	i, ok := l.index[name]
	if !ok {
		return Tool{}, false
	}
	return l.entries[i].Tool, true
}

// Call runs the tool called name. It never fails: errors are returned as an
// {"error": {"kind", "message"}} payload.
func (l *Library) Call(ctx context.Context, name string, args map[string]any) map[string]any {
	start := time.Now()
	payload, err := l.call(ctx, name, args)
	status := "ok"
	if err != nil {
		status = "error"
		payload = errorPayload(err)
		l.logger.Debug("tool failed", zap.String("tool", name), zap.Duration("duration", time.Since(start)), zap.Error(err))
	} else {
		l.logger.Debug("tool done", zap.String("tool", name), zap.Duration("duration", time.Since(start)))
	}
	_, known := l.index[name]
	l.metrics.toolCalled(label(known, name), status)
	return payload
}

func (l *Library) call(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	i, ok := l.index[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", tradeledger.ErrUnknownTool, name)
	}
	v, err := l.entries[i].call(ctx, args)
	if err != nil {
		return nil, err
	}
	return toPayload(v)
}

func errorPayload(err error) map[string]any {
	return map[string]any{
		"error": map[string]any{
			"kind":    tradeledger.ErrorKind(err),
			"message": err.Error(),
		},
	}
}

// toPayload converts v to a JSON object, keeping numbers exact.
func toPayload(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	dec := json.NewDecoder(strings.NewReader(string(b)))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("tool result is not an object: %w", err)
	}
	return payload, nil
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

// decimalHook decodes numbers and numeric strings into decimal.Decimal.
func decimalHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != decimalType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return decimal.NewFromString(strings.TrimSpace(v))
	case json.Number:
		return decimal.NewFromString(v.String())
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	}
	return data, nil
}

// decodeArgs decodes model arguments into a typed argument struct using its
// json tags.
func decodeArgs(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       decimalHook,
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(args); err != nil {
		return &tradeledger.ValidationError{Field: "arguments", Reason: err.Error()}
	}
	return nil
}
