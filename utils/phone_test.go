package utils

import "testing"

func TestNormalizePhoneNumber(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: ""},
		{in: "(801) 234-5678", want: "+18012345678"},
		{in: " 801.234.5678 ", want: "+18012345678"},
		{in: "+1 801 234 5678", want: "+18012345678"},
		{in: "call me", want: "call me", wantErr: true},
	}
	for _, tc := range cases {
		got, err := NormalizePhoneNumber(tc.in, "US")
		if (err != nil) != tc.wantErr {
			t.Fatalf("%q: err=%v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("%q: got %q want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidatePhoneNumber(t *testing.T) {
	if err := ValidatePhoneNumber("(801) 234-5678", "US"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := ValidatePhoneNumber("12", "US"); err == nil {
		t.Fatal("expected error")
	}
}
