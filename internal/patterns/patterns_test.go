package patterns

import "testing"

func TestRedactString_EmailAndSSN(t *testing.T) {
	in := "Contact john@example.com, SSN 123-45-6789"
	out, count, types := RedactString(in)

	want := "Contact j***@example.com, SSN ***-**-****"
	if out != want {
		t.Errorf("out = %q, want %q", out, want)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if _, ok := types[TagEmail]; !ok {
		t.Error("expected email type")
	}
	if _, ok := types[TagSSN]; !ok {
		t.Error("expected ssn type")
	}
}

func TestRedactString_LuhnInvalidCardUntouched(t *testing.T) {
	in := "Card 1234 5678 9012 3456 and 4111 1111 1111 1111"
	out, count, types := RedactString(in)

	want := "Card 1234 5678 9012 3456 and **** **** **** 1111"
	if out != want {
		t.Errorf("out = %q, want %q", out, want)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if len(types) != 1 {
		t.Errorf("types = %v, want only credit_card", types)
	}
	if _, ok := types[TagCreditCard]; !ok {
		t.Error("expected credit_card type")
	}
}

func TestRedactString_CardSeparatorMirrored(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"4111-1111-1111-1111", "****-****-****-1111"},
		{"4111 1111 1111 1111", "**** **** **** 1111"},
		{"4111111111111111", "************1111"},
	}
	for _, c := range cases {
		out, count, _ := RedactString(c.in)
		if out != c.want {
			t.Errorf("RedactString(%q) = %q, want %q", c.in, out, c.want)
		}
		if count != 1 {
			t.Errorf("RedactString(%q) count = %d, want 1", c.in, count)
		}
	}
}

func TestRedactString_IBAN(t *testing.T) {
	in := "Transfer to DE89370400440532013000 please"
	out, count, types := RedactString(in)
	want := "Transfer to DE89****3000 please"
	if out != want {
		t.Errorf("out = %q, want %q", out, want)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if _, ok := types[TagIBAN]; !ok {
		t.Error("expected iban type")
	}
}

func TestRedactString_IBANTooShortUntouched(t *testing.T) {
	in := "code AB12CDEF"
	out, count, _ := RedactString(in)
	if out != in {
		t.Errorf("out = %q, want unchanged %q", out, in)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

func TestRedactString_Phone(t *testing.T) {
	in := "Call +1 415-555-0132 now"
	out, count, types := RedactString(in)
	want := "Call +14***32 now"
	if out != want {
		t.Errorf("out = %q, want %q", out, want)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if _, ok := types[TagPhone]; !ok {
		t.Error("expected phone type")
	}
}

func TestRedactString_NoPII(t *testing.T) {
	in := "nothing sensitive here"
	out, count, types := RedactString(in)
	if out != in {
		t.Errorf("out = %q, want unchanged", out)
	}
	if count != 0 || len(types) != 0 {
		t.Errorf("count=%d types=%v, want zero", count, types)
	}
}

func TestRedactString_Idempotent(t *testing.T) {
	in := "Email a@b.com card 4111 1111 1111 1111 ssn 123-45-6789"
	once, _, _ := RedactString(in)
	twice, count2, types2 := RedactString(once)
	if once != twice {
		t.Errorf("redaction not idempotent: once=%q twice=%q", once, twice)
	}
	if count2 != 0 || len(types2) != 0 {
		t.Errorf("re-applying redaction should find nothing new, got count=%d types=%v", count2, types2)
	}
}

func TestRedactString_OrderingPhoneInsideEmailLocalPart(t *testing.T) {
	// Regression test for the documented open question: stage-1 patterns
	// apply in a fixed list order, and a phone-shaped run embedded in an
	// email's local part is resolved by whichever pattern runs first
	// (email runs before phone in table order, consuming the local part
	// before the phone pattern ever sees it).
	in := "reach +14155550132@example.com"
	out, _, types := RedactString(in)
	if _, ok := types[TagEmail]; !ok {
		t.Errorf("expected email type from %q, got %v (out=%q)", in, types, out)
	}
}

func TestRedactRecursive_PreservesShape(t *testing.T) {
	in := map[string]any{
		"email": "a@b.com",
		"count": float64(3),
		"ok":    true,
		"nil":   nil,
		"nested": []any{
			"ssn 123-45-6789",
			map[string]any{"x@y.com": "deep a@b.com"},
		},
	}
	out, count, types := RedactRecursive(in)
	m, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("output is not a map: %T", out)
	}
	if len(m) != len(in) {
		t.Fatalf("key count changed: got %d, want %d", len(m), len(in))
	}
	if m["count"].(float64) != 3 {
		t.Errorf("non-string leaf mutated: %v", m["count"])
	}
	if m["ok"].(bool) != true {
		t.Errorf("non-string leaf mutated: %v", m["ok"])
	}
	if m["nil"] != nil {
		t.Errorf("non-string leaf mutated: %v", m["nil"])
	}
	nested, ok := m["nested"].([]any)
	if !ok || len(nested) != 2 {
		t.Fatalf("nested list shape changed: %#v", m["nested"])
	}
	inner, ok := nested[1].(map[string]any)
	if !ok {
		t.Fatalf("nested map shape changed: %#v", nested[1])
	}
	// Map keys are never redacted, even when they themselves look like PII.
	if _, present := inner["x@y.com"]; !present {
		t.Errorf("map key was redacted, want key preserved verbatim: %#v", inner)
	}
	if count == 0 || len(types) == 0 {
		t.Errorf("expected redactions across the walk, got count=%d types=%v", count, types)
	}
}
