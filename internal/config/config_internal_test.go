package config

import (
	"io"
	"os"
	"strings"
	"testing"
)

func TestReplaceEnvVars(t *testing.T) {
	type testCase struct {
		config   string
		envVars  map[string]string
		expected string
	}

	testCases := []testCase{
		{
			config:   "SomeParam = $MY_ENV_VAR, SomeOtherParam = $MY_2ND_VAR",
			envVars:  map[string]string{"MY_ENV_VAR": "p1", "MY_2ND_VAR": "p2"},
			expected: "SomeParam = p1, SomeOtherParam = p2",
		},
		{
			config:   "SomeParam2 = $MY_ENV_VAR, SomeOtherParam2 = $MY_2ND_VAR",
			envVars:  map[string]string{"MY_ENV_VAR": "p2"},
			expected: "SomeParam2 = p2, SomeOtherParam2 = ",
		},
		{
			config:   "SomeParam3 = $MY_ENV_VAR, SomeOtherParam3 = $32.78",
			envVars:  map[string]string{"MY_ENV_VAR": "p3", "UNUSED_VAR": "notused"},
			expected: "SomeParam3 = p3, SomeOtherParam3 = $32.78",
		},
	}

	for i, tc := range testCases {
		rdr := strings.NewReader(tc.config)
		for envVar, value := range tc.envVars {
			os.Setenv(envVar, value)
		}

		resultRdr, err := replaceEnvVars(rdr)
		if err != nil {
			t.Errorf("[%d] replaceEnvVars returned error: %v", i, err)
		}

		for envVar := range tc.envVars {
			os.Unsetenv(envVar)
		}

		byteResult, _ := io.ReadAll(resultRdr)
		if result := string(byteResult); result != tc.expected {
			t.Errorf("[%d] %q != %q", i, result, tc.expected)
		}
	}
}
