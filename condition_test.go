package graflow

import "testing"

func TestConditionEvaluatorTrueFalse(t *testing.T) {
	eval := NewConditionEvaluator()
	ec := NewExecutionContext(map[string]string{"amount": "100"})

	ok, err := eval.Eval(`amount == "100"`, ec)
	if err != nil {
		t.Fatalf("Eval returned error: %v", err)
	}
	if !ok {
		t.Error("expected true")
	}

	ok, err = eval.Eval(`amount == "999"`, ec)
	if err != nil {
		t.Fatalf("Eval returned error: %v", err)
	}
	if ok {
		t.Error("expected false")
	}
}

func TestConditionEvaluatorCompileError(t *testing.T) {
	eval := NewConditionEvaluator()
	ec := NewExecutionContext(nil)
	_, err := eval.Eval("this is not valid $$$ expr syntax (((", ec)
	if err == nil {
		t.Fatal("expected a compile error")
	}
	var verr *ValidationError
	if !errorsAsValidation(err, &verr) {
		t.Errorf("expected *ValidationError, got %T", err)
	}
}

func TestConditionEvaluatorNonBooleanResult(t *testing.T) {
	eval := NewConditionEvaluator()
	ec := NewExecutionContext(map[string]string{"x": "1"})
	_, err := eval.Eval(`x`, ec)
	if err == nil {
		t.Fatal("expected an error for a non-boolean result")
	}
}

func TestConditionEvaluatorCachesCompiledProgram(t *testing.T) {
	eval := NewConditionEvaluator()
	ec := NewExecutionContext(map[string]string{"a": "1"})
	expr := `a == "1"`
	if _, err := eval.Eval(expr, ec); err != nil {
		t.Fatalf("first Eval failed: %v", err)
	}
	if _, ok := eval.cache[expr]; !ok {
		t.Error("expected the compiled program to be cached")
	}
	if _, err := eval.Eval(expr, ec); err != nil {
		t.Fatalf("second (cached) Eval failed: %v", err)
	}
}

func errorsAsValidation(err error, target **ValidationError) bool {
	ve, ok := err.(*ValidationError)
	if ok {
		*target = ve
	}
	return ok
}
