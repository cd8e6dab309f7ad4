package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunVersion(t *testing.T) {
	originalAppVersion := AppVersion
	originalBuildTime := BuildTime
	originalGitCommit := GitCommit
	defer func() {
		AppVersion = originalAppVersion
		BuildTime = originalBuildTime
		GitCommit = originalGitCommit
	}()

	tests := []struct {
		name            string
		appVersion      string
		buildTime       string
		gitCommit       string
		expectedStrings []string
	}{
		{
			name:       "release build",
			appVersion: "1.2.3",
			buildTime:  "2026-01-02T00:00:00Z",
			gitCommit:  "abc1234",
			expectedStrings: []string{
				"ragline 1.2.3",
				"Build Time: 2026-01-02T00:00:00Z",
				"Git Commit: abc1234",
			},
		},
		{
			name:       "development build",
			appVersion: "development",
			buildTime:  "unknown",
			gitCommit:  "unknown",
			expectedStrings: []string{
				"ragline development",
				"Build Time: unknown",
				"Git Commit: unknown",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			AppVersion = tt.appVersion
			BuildTime = tt.buildTime
			GitCommit = tt.gitCommit

			var buf bytes.Buffer
			versionCmd.SetOut(&buf)
			defer versionCmd.SetOut(nil)

			versionCmd.Run(versionCmd, nil)

			output := buf.String()
			for _, expected := range tt.expectedStrings {
				if !strings.Contains(output, expected) {
					t.Errorf("expected output to contain %q, got:\n%s", expected, output)
				}
			}
		})
	}
}
