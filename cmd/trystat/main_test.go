package main

import (
	"testing"

	"github.com/crtools/trystat/buildbucket"
)

func TestParseBuilderSpec(t *testing.T) {
	cases := []struct {
		spec    string
		want    buildbucket.Build
		wantErr bool
	}{
		{spec: "linux-rel", want: buildbucket.Build{Builder: "linux-rel", Bucket: "try"}},
		{spec: "linux-rel:12345", want: buildbucket.Build{Builder: "linux-rel", Number: 12345, Bucket: "try"}},
		{spec: "ci/Linux Tests", want: buildbucket.Build{Builder: "Linux Tests", Bucket: "ci"}},
		{spec: "ci/Linux Tests:99", want: buildbucket.Build{Builder: "Linux Tests", Number: 99, Bucket: "ci"}},
		{spec: "linux-rel:zero", wantErr: true},
		{spec: "linux-rel:-3", wantErr: true},
		{spec: "try/", wantErr: true},
		{spec: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := parseBuilderSpec(tc.spec)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseBuilderSpec(%q): expected error", tc.spec)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseBuilderSpec(%q): %v", tc.spec, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseBuilderSpec(%q) = %+v, want %+v", tc.spec, got, tc.want)
		}
	}
}
