package argument

import "testing"

func TestParsePositionalAndKeyed(t *testing.T) {
	type Config struct {
		Key     string
		Method  string
		ReadOnly bool `arg:"read_only"`
	}

	tests := []struct {
		name    string
		args    List
		want    Config
		wantErr bool
	}{
		{
			name: "positional fills declared order",
			args: List{{Value: String("secret")}},
			want: Config{Key: "secret"},
		},
		{
			name: "keyed overrides position",
			args: List{{Name: "method", Value: String("time")}, {Value: String("secret")}},
			want: Config{Key: "secret", Method: "time"},
		},
		{
			name: "bool presence flag",
			args: List{{Value: String("secret")}, {Name: "read_only", Value: None}},
			want: Config{Key: "secret", ReadOnly: true},
		},
		{
			name:    "bool with value is type error",
			args:    List{{Value: String("secret")}, {Name: "read_only", Value: String("x")}},
			wantErr: true,
		},
		{
			name:    "too many positional",
			args:    List{{Value: String("a")}, {Value: String("b")}, {Value: None}, {Value: String("c")}},
			wantErr: true,
		},
		{
			name:    "unknown keyword",
			args:    List{{Name: "bogus", Value: String("a")}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Config
			err := Parse(tt.args, &got)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseTypeMismatch(t *testing.T) {
	type Config struct {
		Port uint64
	}
	var got Config
	err := Parse(List{{Value: String("not-an-int")}}, &got)
	if err == nil {
		t.Fatal("expected type error")
	}
	pe, ok := err.(*ParseError)
	if !ok || pe.Kind != "TypeError" {
		t.Fatalf("expected TypeError, got %v", err)
	}
}

func TestOutputNamesAndFunctionName(t *testing.T) {
	args := List{
		{Name: "function_name", Value: String("xor")},
		{Name: "outputs", Value: ListValue([]Value{String(""), String("err")})},
	}
	if got := args.FunctionName(); got != "xor" {
		t.Errorf("FunctionName() = %q, want xor", got)
	}
	names := args.OutputNames()
	if len(names) != 2 || names[0] != "" || names[1] != "err" {
		t.Errorf("OutputNames() = %v", names)
	}
}
