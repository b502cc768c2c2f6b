package sql

import "testing"

func TestCompareTotalOrder(t *testing.T) {
	// Storage classes order NULL < numeric < text < blob; numerics
	// interleave by value.
	ordered := []Value{
		nil,
		BoolValue(false),
		Int64Value(1),
		Float64Value(1.5),
		Int64Value(2),
		StringValue("a"),
		StringValue("b"),
		BytesValue([]byte{0}),
		BytesValue([]byte{1}),
	}
	for i := range ordered {
		for j := range ordered {
			got := Compare(ordered[i], ordered[j])
			want := 0
			if i < j {
				want = -1
			} else if i > j {
				want = 1
			}
			// Adjacent equal-valued entries across classes would break the
			// strictness assumption; this fixture has none.
			if got != want {
				t.Errorf("Compare(%s, %s) = %d, want %d",
					Format(ordered[i]), Format(ordered[j]), got, want)
			}
		}
	}
}

func TestNumericInterleave(t *testing.T) {
	cases := []struct {
		a, b Value
		want int
	}{
		{Int64Value(2), Float64Value(2.0), 0},
		{Int64Value(2), Float64Value(2.5), -1},
		{Float64Value(2.5), Int64Value(3), -1},
		{BoolValue(true), Int64Value(1), 0},
		{BoolValue(false), Float64Value(0.5), -1},
	}
	for _, c := range cases {
		got, err := c.a.Compare(c.b)
		if err != nil {
			t.Fatalf("%s.Compare(%s): %v", Format(c.a), Format(c.b), err)
		}
		if got != c.want {
			t.Errorf("%s.Compare(%s) = %d, want %d", Format(c.a), Format(c.b), got, c.want)
		}
	}
}

func TestCompareMismatchedClassErrors(t *testing.T) {
	if _, err := Int64Value(1).Compare(StringValue("1")); err == nil {
		t.Error("integer vs text should error at the method level")
	}
	if _, err := StringValue("x").Compare(BytesValue("x")); err == nil {
		t.Error("text vs blob should error at the method level")
	}
}

func TestFormat(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{nil, "NULL"},
		{Int64Value(-3), "-3"},
		{Float64Value(1.5), "1.5"},
		{StringValue("abc"), "'abc'"},
		{BytesValue([]byte{0xab, 0x01}), `'\xab01'`},
		{BoolValue(true), "true"},
	}
	for _, c := range cases {
		if got := Format(c.v); got != c.want {
			t.Errorf("Format(%v) = %q, want %q", c.v, got, c.want)
		}
	}
}
