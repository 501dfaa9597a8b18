package eval

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/diegoholiveira/jsonlogic/v3"
	log "github.com/sirupsen/logrus"
	"github.com/xeipuuv/gojsonschema"

	"github.com/squidstack/squidflags/pkg/model"
	"github.com/squidstack/squidflags/pkg/store"
)

// JSONEvaluator evaluates JSON flag documents with jsonlogic targeting.
type JSONEvaluator struct {
	state  *store.State
	schema gojsonschema.JSONLoader
}

func NewJSONEvaluator(state *store.State) *JSONEvaluator {
	return &JSONEvaluator{
		state:  state,
		schema: gojsonschema.NewStringLoader(flagDocumentSchema),
	}
}

func (je *JSONEvaluator) GetState(source string) (string, error) {
	b, err := json.Marshal(model.Document{
		Flags:    je.state.GetAll(),
		Metadata: je.state.GetMetadataForSource(source),
	})
	if err != nil {
		return "", fmt.Errorf("unable to marshal flags: %w", err)
	}
	return string(b), nil
}

// SetState validates payload and replaces the flags owned by source.
func (je *JSONEvaluator) SetState(source string, payload string) (map[string]store.Notification, error) {
	result, err := gojsonschema.Validate(je.schema, gojsonschema.NewStringLoader(payload))
	if err != nil {
		return nil, fmt.Errorf("unable to validate flag document: %w", err)
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("invalid flag document: %s", strings.Join(msgs, "; "))
	}

	var doc model.Document
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, fmt.Errorf("unable to parse flag document: %w", err)
	}
	for key, flag := range doc.Flags {
		if _, ok := flag.Variants[flag.DefaultVariant]; !ok {
			return nil, fmt.Errorf("flag %s: default variant %q is not defined", key, flag.DefaultVariant)
		}
		if len(flag.Targeting) > 0 && !jsonlogic.IsValid(bytes.NewReader(flag.Targeting)) {
			return nil, fmt.Errorf("flag %s: targeting is not valid json logic", key)
		}
	}

	return je.state.Update(source, doc.Flags, doc.Metadata)
}

func (je *JSONEvaluator) ResolveBooleanValue(flagKey string, defaultValue bool, ctx map[string]any) (bool, string, error) {
	variant, flag, reason, err := je.evaluateVariant(flagKey, ctx)
	if err != nil || reason == model.DisabledReason {
		return defaultValue, reason, err
	}
	value, ok := flag.Variants[variant].(bool)
	if !ok {
		return defaultValue, model.ErrorReason, errors.New(model.TypeMismatchErrorCode)
	}
	return value, reason, nil
}

func (je *JSONEvaluator) ResolveStringValue(flagKey string, defaultValue string, ctx map[string]any) (string, string, error) {
	variant, flag, reason, err := je.evaluateVariant(flagKey, ctx)
	if err != nil || reason == model.DisabledReason {
		return defaultValue, reason, err
	}
	value, ok := flag.Variants[variant].(string)
	if !ok {
		return defaultValue, model.ErrorReason, errors.New(model.TypeMismatchErrorCode)
	}
	return value, reason, nil
}

func (je *JSONEvaluator) evaluateVariant(flagKey string, ctx map[string]any) (string, model.Flag, string, error) {
	flag, ok := je.state.Get(flagKey)
	if !ok {
		return "", flag, model.ErrorReason, errors.New(model.FlagNotFoundErrorCode)
	}
	if flag.State == model.DisabledState {
		return "", flag, model.DisabledReason, nil
	}

	targeting := bytes.TrimSpace(flag.Targeting)
	if len(targeting) == 0 || string(targeting) == "{}" {
		return flag.DefaultVariant, flag, model.StaticReason, nil
	}

	if ctx == nil {
		ctx = map[string]any{}
	}
	data, err := json.Marshal(ctx)
	if err != nil {
		return "", flag, model.ErrorReason, errors.New(model.ParseErrorCode)
	}
	var out bytes.Buffer
	if err := jsonlogic.Apply(bytes.NewReader(targeting), bytes.NewReader(data), &out); err != nil {
		log.Errorf("error applying targeting rules for %s: %v", flagKey, err)
		return "", flag, model.ErrorReason, errors.New(model.ParseErrorCode)
	}

	var result any
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		log.Debugf("targeting for %s produced no variant: %v", flagKey, err)
		return flag.DefaultVariant, flag, model.StaticReason, nil
	}
	variant, ok := result.(string)
	if !ok || variant == "" {
		// rules resolved to null, fall back to the default variant
		return flag.DefaultVariant, flag, model.StaticReason, nil
	}
	if _, ok := flag.Variants[variant]; !ok {
		log.Warnf("targeting for %s resolved unknown variant %q", flagKey, variant)
		return "", flag, model.ErrorReason, errors.New(model.VariantNotFoundErrCode)
	}
	return variant, flag, model.TargetingMatchReason, nil
}
