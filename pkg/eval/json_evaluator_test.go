package eval

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/squidstack/squidflags/pkg/model"
	"github.com/squidstack/squidflags/pkg/store"
)

const InvalidFlags = `{
  "flags": {
    "invalidFlag": {
      "notState": "ENABLED",
      "notVariants": {
        "on": true,
        "off": false
      },
      "notDefaultVariant": "on"
    }
  }
}`

const ValidFlags = `{
  "flags": {
    "validFlag": {
      "state": "ENABLED",
      "variants": {
        "on": true,
        "off": false
      },
      "defaultVariant": "on"
    }
  }
}`

const MissingDefaultVariantFlags = `{
  "flags": {
    "brokenFlag": {
      "state": "ENABLED",
      "variants": {"on": true},
      "defaultVariant": "off"
    }
  }
}`

const StaticBoolFlag = "staticBoolFlag"
const StaticBoolValue = true
const StaticStringFlag = "staticStringFlag"
const StaticStringValue = "#CC0000"
const DisabledFlag = "disabledFlag"

var StaticFlags = fmt.Sprintf(`{
  "flags": {
    "%s": {
      "state": "ENABLED",
      "variants": {
        "on": %t,
        "off": false
      },
      "defaultVariant": "on"
    },
    "%s": {
      "state": "ENABLED",
      "variants": {
        "red": "%s",
        "blue": "#0000CC"
      },
      "defaultVariant": "red"
    },
    "%s": {
      "state": "DISABLED",
      "variants": {
        "on": true,
        "off": false
      },
      "defaultVariant": "on"
    }
  }
}`,
	StaticBoolFlag,
	StaticBoolValue,
	StaticStringFlag,
	StaticStringValue,
	DisabledFlag)

const DynamicFlag = "ruleFlag"
const RoleProp = "roles"
const RoleValue = "admin"

var DynamicFlags = fmt.Sprintf(`{
  "flags": {
    "%s": {
      "state": "ENABLED",
      "variants": {
        "on": true,
        "off": false
      },
      "defaultVariant": "off",
      "targeting": {
        "if": [
          {
            "==": [
              {
                "var": [
                  "%s"
                ]
              },
              "%s"
            ]
          },
          "on",
          null
        ]
      }
    }
  }
}`, DynamicFlag, RoleProp, RoleValue)

func newEvaluator() *JSONEvaluator {
	return NewJSONEvaluator(store.NewFlags())
}

func TestGetState_Valid_ContainsFlag(t *testing.T) {
	evaluator := newEvaluator()
	_, err := evaluator.SetState("test", ValidFlags)
	if err != nil {
		t.Fatalf("Expected no error")
	}

	state, err := evaluator.GetState("test")
	if err != nil {
		t.Fatalf("Expected no error")
	}

	// validate it contains the flag
	wants := "validFlag"
	if !strings.Contains(state, wants) {
		t.Fatalf("Expected %s to contain %s", state, wants)
	}
}

func TestSetState_Invalid_Error(t *testing.T) {
	evaluator := newEvaluator()

	// set state with an invalid flag definition
	_, err := evaluator.SetState("test", InvalidFlags)
	if err == nil {
		t.Fatalf("Expected error")
	}
}

func TestSetState_MissingDefaultVariant_Error(t *testing.T) {
	evaluator := newEvaluator()

	_, err := evaluator.SetState("test", MissingDefaultVariantFlags)
	assert.Error(t, err)
}

func TestSetState_NotJSON_Error(t *testing.T) {
	evaluator := newEvaluator()

	_, err := evaluator.SetState("test", "{not json")
	assert.Error(t, err)
}

func TestSetState_Valid_NoError(t *testing.T) {
	evaluator := newEvaluator()

	// set state with a valid flag definition
	_, err := evaluator.SetState("test", ValidFlags)
	if err != nil {
		t.Fatalf("Expected no error")
	}
}

func TestResolveBooleanValue_FlagExistsStatic_ReturnsValue(t *testing.T) {
	evaluator := newEvaluator()
	if _, err := evaluator.SetState("test", StaticFlags); err != nil {
		t.Fatalf("Expected no error")
	}

	val, reason, err := evaluator.ResolveBooleanValue(StaticBoolFlag, false, nil)
	if assert.NoError(t, err) {
		assert.Equal(t, StaticBoolValue, val)
		assert.Equal(t, model.StaticReason, reason)
	}
}

func TestResolveBooleanValue_NotBoolean_Error(t *testing.T) {
	evaluator := newEvaluator()
	if _, err := evaluator.SetState("test", StaticFlags); err != nil {
		t.Fatalf("Expected no error")
	}

	// evaluate a non-boolean flag
	val, _, err := evaluator.ResolveBooleanValue(StaticStringFlag, true, nil)
	assert.EqualError(t, err, model.TypeMismatchErrorCode)
	assert.True(t, val)
}

func TestResolveBooleanValue_Missing_FlagNotFound(t *testing.T) {
	evaluator := newEvaluator()

	val, _, err := evaluator.ResolveBooleanValue("missing", true, nil)
	assert.EqualError(t, err, model.FlagNotFoundErrorCode)
	assert.True(t, val)
}

func TestResolveBooleanValue_Disabled_ReturnsDefault(t *testing.T) {
	evaluator := newEvaluator()
	if _, err := evaluator.SetState("test", StaticFlags); err != nil {
		t.Fatalf("Expected no error")
	}

	val, reason, err := evaluator.ResolveBooleanValue(DisabledFlag, false, nil)
	if assert.NoError(t, err) {
		assert.False(t, val)
		assert.Equal(t, model.DisabledReason, reason)
	}
}

func TestResolveStringValue_FlagExistsStatic_ReturnsValue(t *testing.T) {
	evaluator := newEvaluator()
	if _, err := evaluator.SetState("test", StaticFlags); err != nil {
		t.Fatalf("Expected no error")
	}

	val, reason, err := evaluator.ResolveStringValue(StaticStringFlag, "other", nil)
	if assert.NoError(t, err) {
		assert.Equal(t, StaticStringValue, val)
		assert.Equal(t, model.StaticReason, reason)
	}
}

func TestResolveStringValue_NotString_Error(t *testing.T) {
	evaluator := newEvaluator()
	if _, err := evaluator.SetState("test", StaticFlags); err != nil {
		t.Fatalf("Expected no error")
	}

	// evaluate a non-string flag
	_, _, err := evaluator.ResolveStringValue(StaticBoolFlag, "other", nil)
	assert.EqualError(t, err, model.TypeMismatchErrorCode)
}

func TestResolveXxxValue_RuleResolvesVariant_DynamicValue(t *testing.T) {
	evaluator := newEvaluator()
	if _, err := evaluator.SetState("test", DynamicFlags); err != nil {
		t.Fatalf("Expected no error")
	}

	// the rule matches, so the variant comes from targeting
	val, reason, err := evaluator.ResolveBooleanValue(DynamicFlag, false, map[string]any{
		RoleProp: RoleValue,
	})
	if assert.NoError(t, err) {
		assert.True(t, val)
		assert.Equal(t, model.TargetingMatchReason, reason)
	}
}

func TestResolveXxxValue_RuleResolvesNonVariant_StaticValue(t *testing.T) {
	evaluator := newEvaluator()
	if _, err := evaluator.SetState("test", DynamicFlags); err != nil {
		t.Fatalf("Expected no error")
	}

	// the rule returns null, so the default variant applies
	val, reason, err := evaluator.ResolveBooleanValue(DynamicFlag, true, map[string]any{
		RoleProp: "viewer", // not the expected value for the rule to match
	})
	if assert.NoError(t, err) {
		assert.False(t, val)
		assert.Equal(t, model.StaticReason, reason)
	}
}
