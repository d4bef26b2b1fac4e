package version

import "testing"

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    VersionInfo
		wantErr bool
	}{
		{in: "1.2.3", want: VersionInfo{Major: 1, Minor: 2, Patch: 3}},
		{in: "dev", want: VersionInfo{PreRelease: "dev"}},
		{in: "2.0.0-rc.1", want: VersionInfo{Major: 2, PreRelease: "rc.1"}},
		{in: "1.0.0+abc123", want: VersionInfo{Major: 1, Build: "abc123"}},
		{in: "not-a-version", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseVersion(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseVersion(%q) error = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseVersion(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestVersionString(t *testing.T) {
	v := VersionInfo{Major: 1, Minor: 4, Patch: 0, PreRelease: "beta"}
	if v.String() != "1.4.0-beta" {
		t.Errorf("String() = %q", v.String())
	}
	if v.IsRelease() {
		t.Error("pre-release reported as release")
	}
}
