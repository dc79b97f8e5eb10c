package chat

import (
	"github.com/expr-lang/expr"

	"rulemaker-backend/internal/schema"
)

// lintRuleLogic compiles the proposed logic against an environment derived
// from the schema model. Compile-only; the program is never run, so this
// catches unknown datapoints and malformed expressions without evaluating
// anything.
func lintRuleLogic(ruleLogic string, model *schema.Model) error {
	env := make(map[string]any, model.Len())
	for _, def := range model.All() {
		switch def.Kind {
		case schema.KindNumber:
			env[def.Name] = float64(0)
		case schema.KindBoolean:
			env[def.Name] = false
		default:
			env[def.Name] = ""
		}
	}
	_, err := expr.Compile(ruleLogic, expr.Env(env))
	return err
}
